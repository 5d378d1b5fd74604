package firefox

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCapabilitiesJSON(t *testing.T) {
	var c Capabilities
	c.Headless()
	c.SetPref("network.proxy.no_proxies_on", "")
	c.Log = &Log{Level: Debug}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"args":["-headless"],"log":{"level":"debug"},"prefs":{"network.proxy.no_proxies_on":""}}`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("json.Marshal returned diff (-want/+got):\n%s", diff)
	}
}

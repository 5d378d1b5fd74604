package webdriver

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wanmail/webform/log"
)

func TestCapabilitiesLogging(t *testing.T) {
	caps := Capabilities{}
	caps.SetLogLevel(log.Browser, log.Info)
	caps.SetLogLevel(log.Driver, log.Severe)
	caps.SetLogLevel(log.Browser, log.Warning)

	want := Capabilities{
		log.CapabilitiesKey: log.Capabilities{
			log.Browser: log.Warning,
			log.Driver:  log.Severe,
		},
	}
	if diff := cmp.Diff(want, caps); diff != "" {
		t.Errorf("SetLogLevel returned diff (-want/+got):\n%s", diff)
	}

	// AddLogging replaces the whole map.
	caps.AddLogging(log.Capabilities{log.Browser: log.All})
	want[log.CapabilitiesKey] = log.Capabilities{log.Browser: log.All}
	if diff := cmp.Diff(want, caps); diff != "" {
		t.Errorf("AddLogging returned diff (-want/+got):\n%s", diff)
	}
}

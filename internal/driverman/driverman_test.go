package driverman

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v27/github"

	"github.com/wanmail/webform/internal/config"
	"github.com/wanmail/webform/internal/download"
	"github.com/wanmail/webform/internal/store"
)

// useFakeBrowser makes DetectBrowserVersion run this test binary, which
// prints version.
func useFakeBrowser(t *testing.T, version string) {
	t.Helper()
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FAKE_BROWSER_VERSION="+version)
		return cmd
	}
	t.Cleanup(func() { execCommand = exec.CommandContext })
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)
	v := os.Getenv("FAKE_BROWSER_VERSION")
	if v == "" {
		fmt.Fprintln(os.Stderr, "browser crashed")
		os.Exit(1)
	}
	fmt.Println(v)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		desc      string
		out       string
		wantFull  string
		wantMajor int
		wantErr   bool
	}{
		{
			desc:      "google chrome",
			out:       "Google Chrome 126.0.6478.126 \n",
			wantFull:  "126.0.6478.126",
			wantMajor: 126,
		},
		{
			desc:      "chromium",
			out:       "Chromium 114.0.5735.198 built on Debian 12.0, running on Debian 12.1",
			wantFull:  "114.0.5735.198",
			wantMajor: 114,
		},
		{
			desc:      "firefox",
			out:       "Mozilla Firefox 128.0.3",
			wantFull:  "128.0.3",
			wantMajor: 128,
		},
		{
			desc:      "two components",
			out:       "Mozilla Firefox 115.0esr",
			wantFull:  "115.0",
			wantMajor: 115,
		},
		{
			desc:    "no version",
			out:     "command not found",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			v, err := ParseVersion(tc.out)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseVersion(%q) returned %v, want error", tc.out, v)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVersion(%q) returned error: %v", tc.out, err)
			}
			if v.Full != tc.wantFull {
				t.Errorf("ParseVersion(%q).Full = %q, want %q", tc.out, v.Full, tc.wantFull)
			}
			if v.Major() != tc.wantMajor {
				t.Errorf("ParseVersion(%q).Major() = %d, want %d", tc.out, v.Major(), tc.wantMajor)
			}
		})
	}
}

func TestDetectBrowserVersion(t *testing.T) {
	useFakeBrowser(t, "Google Chrome 126.0.6478.126")
	v, err := DetectBrowserVersion(context.Background(), "chrome", "/opt/google/chrome/chrome")
	if err != nil {
		t.Fatalf("DetectBrowserVersion() returned error: %v", err)
	}
	if v.String() != "126.0.6478.126" {
		t.Errorf("DetectBrowserVersion() = %s, want 126.0.6478.126", v)
	}

	useFakeBrowser(t, "")
	if _, err := DetectBrowserVersion(context.Background(), "chrome", "/opt/google/chrome/chrome"); err == nil {
		t.Error("DetectBrowserVersion() of a failing binary returned nil error")
	}
}

func TestChromedriverObject(t *testing.T) {
	tests := []struct {
		desc       string
		platform   Platform
		major      int
		version    string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{
			desc:       "chrome for testing linux",
			platform:   Platform{"linux", "amd64"},
			major:      126,
			version:    "126.0.6478.126",
			wantBucket: ChromeForTestingBucket,
			wantObject: "126.0.6478.126/linux64/chromedriver-linux64.zip",
		},
		{
			desc:       "chrome for testing apple silicon",
			platform:   Platform{"darwin", "arm64"},
			major:      115,
			version:    "115.0.5790.170",
			wantBucket: ChromeForTestingBucket,
			wantObject: "115.0.5790.170/mac-arm64/chromedriver-mac-arm64.zip",
		},
		{
			desc:       "chrome for testing windows",
			platform:   Platform{"windows", "amd64"},
			major:      120,
			version:    "120.0.6099.109",
			wantBucket: ChromeForTestingBucket,
			wantObject: "120.0.6099.109/win64/chromedriver-win64.zip",
		},
		{
			desc:       "legacy linux",
			platform:   Platform{"linux", "amd64"},
			major:      114,
			version:    "114.0.5735.90",
			wantBucket: LegacyChromeBucket,
			wantObject: "114.0.5735.90/chromedriver_linux64.zip",
		},
		{
			desc:       "legacy intel mac",
			platform:   Platform{"darwin", "amd64"},
			major:      100,
			version:    "100.0.4896.60",
			wantBucket: LegacyChromeBucket,
			wantObject: "100.0.4896.60/chromedriver_mac64.zip",
		},
		{
			desc:     "unsupported platform",
			platform: Platform{"plan9", "amd64"},
			major:    126,
			version:  "126.0.6478.126",
			wantErr:  true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			bucket, object, err := chromedriverObject(tc.platform, tc.major, tc.version)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("chromedriverObject() returned %s/%s, want error", bucket, object)
				}
				return
			}
			if err != nil {
				t.Fatalf("chromedriverObject() returned error: %v", err)
			}
			if bucket != tc.wantBucket || object != tc.wantObject {
				t.Errorf("chromedriverObject() = %s/%s, want %s/%s", bucket, object, tc.wantBucket, tc.wantObject)
			}
		})
	}
}

func TestDriverFor(t *testing.T) {
	for browser, want := range map[string]string{"chrome": ChromeDriver, "firefox": GeckoDriver} {
		got, err := DriverFor(browser)
		if err != nil || got != want {
			t.Errorf("DriverFor(%q) = %q, %v; want %q", browser, got, err, want)
		}
	}
	if _, err := DriverFor("safari"); err == nil {
		t.Error("DriverFor(safari) returned nil error")
	}
}

func zipBytes(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func tarGzBytes(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeBucket serves objects from memory, and their downloads from the
// fake network.
type fakeBucket struct {
	net     *fakeNet
	objects map[string][]byte

	mu            sync.Mutex
	opens, closes int
}

func (b *fakeBucket) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

// checkClosed fails the test unless every open of b was closed.
func (b *fakeBucket) checkClosed(t *testing.T) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opens == 0 || b.opens != b.closes {
		t.Errorf("bucket opened %d times and closed %d times, want every open closed", b.opens, b.closes)
	}
}

func (b *fakeBucket) ReadObject(_ context.Context, object string) ([]byte, error) {
	data, ok := b.objects[object]
	if !ok {
		return nil, fmt.Errorf("object %q does not exist", object)
	}
	return data, nil
}

func (b *fakeBucket) ObjectFile(_ context.Context, object string) (download.File, error) {
	data, ok := b.objects[object]
	if !ok {
		return download.File{}, fmt.Errorf("object %q does not exist", object)
	}
	sum := md5.Sum(data)
	return download.File{
		URL:      b.net.serve(object, data),
		Name:     path.Base(object),
		Hash:     hex.EncodeToString(sum[:]),
		HashType: "md5",
	}, nil
}

// fakeNet stands in for Chrome for Testing, GitHub and the download hosts.
type fakeNet struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	hits  int
	down  bool
}

func newFakeNet(t *testing.T) *fakeNet {
	n := &fakeNet{files: make(map[string][]byte)}
	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.hits++
		data, ok := n.files[r.URL.Path]
		if n.down || !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(n.Close)
	return n
}

// serve publishes data at /dl/<name> and returns its URL.
func (n *fakeNet) serve(name string, data []byte) string {
	return n.add("/dl/"+name, data)
}

func (n *fakeNet) add(p string, data []byte) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.files[p] = data
	return n.URL + p
}

func (n *fakeNet) requests() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hits
}

func (n *fakeNet) setDown(down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down = down
}

var testNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, n *fakeNet, buckets map[string]*fakeBucket) (*Manager, *time.Time) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "webform.db"))
	if err != nil {
		t.Fatalf("store.Open() returned error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gh := github.NewClient(n.Client())
	gh.BaseURL, _ = url.Parse(n.URL + "/github/")

	now := testNow
	m := New(filepath.Join(t.TempDir(), "drivers"), st, time.Hour)
	m.HTTPClient = n.Client()
	m.GitHub = gh
	m.ChromeForTestingURL = n.URL + "/cft"
	m.OpenBucket = func(_ context.Context, name string) (download.Bucket, error) {
		b, ok := buckets[name]
		if !ok {
			return nil, fmt.Errorf("bucket %q does not exist", name)
		}
		b.mu.Lock()
		b.opens++
		b.mu.Unlock()
		return b, nil
	}
	m.Platform = Platform{"linux", "amd64"}
	m.now = func() time.Time { return now }
	return m, &now
}

func TestSetupChromeForTesting(t *testing.T) {
	useFakeBrowser(t, "Google Chrome 126.0.6478.126")
	n := newFakeNet(t)
	n.add("/cft/LATEST_RELEASE_126", []byte("126.0.6478.126\n"))
	cft := &fakeBucket{net: n, objects: map[string][]byte{
		"126.0.6478.126/linux64/chromedriver-linux64.zip": zipBytes(t, "chromedriver-linux64/chromedriver", "#!/bin/sh\n"),
	}}
	m, now := newTestManager(t, n, map[string]*fakeBucket{ChromeForTestingBucket: cft})

	ctx := context.Background()
	got, err := m.Setup(ctx, "chrome", "/opt/google/chrome/chrome")
	if err != nil {
		t.Fatalf("Setup() returned error: %v", err)
	}
	want := filepath.Join(m.Dir, "chromedriver", "126.0.6478.126", "chromedriver-linux64", "chromedriver")
	if got != want {
		t.Errorf("Setup() = %q, want %q", got, want)
	}

	r, err := m.Store.Resolution(ctx, ChromeDriver, 126)
	if err != nil {
		t.Fatalf("Resolution() returned error: %v", err)
	}
	wantRes := &store.Resolution{
		Driver:       ChromeDriver,
		BrowserMajor: 126,
		Version:      "126.0.6478.126",
		Path:         want,
		ResolvedAt:   testNow,
	}
	if diff := cmp.Diff(wantRes, r); diff != "" {
		t.Errorf("stored resolution returned diff (-want/+got):\n%s", diff)
	}

	// A fresh resolution does not touch the network.
	hits := n.requests()
	if got, err := m.Setup(ctx, "chrome", "/opt/google/chrome/chrome"); err != nil || got != want {
		t.Errorf("cached Setup() = %q, %v; want %q", got, err, want)
	}
	if n.requests() != hits {
		t.Errorf("cached Setup() made %d requests, want 0", n.requests()-hits)
	}

	// A stale resolution is still used when the network is down.
	*now = now.Add(2 * time.Hour)
	n.setDown(true)
	if got, err := m.Setup(ctx, "chrome", "/opt/google/chrome/chrome"); err != nil || got != want {
		t.Errorf("Setup() with the network down = %q, %v; want %q", got, err, want)
	}

	// A resolution whose binary was removed is provisioned again.
	if err := os.RemoveAll(filepath.Join(m.Dir, "chromedriver")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Setup(ctx, "chrome", "/opt/google/chrome/chrome"); err == nil {
		t.Error("Setup() with the binary gone and the network down returned nil error")
	}
	n.setDown(false)
	if got, err := m.Setup(ctx, "chrome", "/opt/google/chrome/chrome"); err != nil || got != want {
		t.Errorf("Setup() after removal = %q, %v; want %q", got, err, want)
	}
	cft.checkClosed(t)
}

func TestSetupLegacyChrome(t *testing.T) {
	useFakeBrowser(t, "Chromium 114.0.5735.198")
	n := newFakeNet(t)
	legacy := &fakeBucket{net: n, objects: map[string][]byte{
		"LATEST_RELEASE_114":                     []byte("114.0.5735.90"),
		"114.0.5735.90/chromedriver_linux64.zip": zipBytes(t, "chromedriver", "#!/bin/sh\n"),
	}}
	m, _ := newTestManager(t, n, map[string]*fakeBucket{LegacyChromeBucket: legacy})

	got, err := m.Setup(context.Background(), "chrome", "/usr/bin/chromium")
	if err != nil {
		t.Fatalf("Setup() returned error: %v", err)
	}
	if want := filepath.Join(m.Dir, "chromedriver", "114.0.5735.90", "chromedriver"); got != want {
		t.Errorf("Setup() = %q, want %q", got, want)
	}
	legacy.checkClosed(t)
}

func TestSetupBadRelease(t *testing.T) {
	useFakeBrowser(t, "Google Chrome 126.0.6478.126")
	n := newFakeNet(t)
	n.add("/cft/LATEST_RELEASE_126", []byte("<html>Not Found</html>"))
	m, _ := newTestManager(t, n, nil)

	if _, err := m.Setup(context.Background(), "chrome", "/opt/google/chrome/chrome"); err == nil {
		t.Error("Setup() with a malformed LATEST_RELEASE returned nil error")
	}
}

func TestSetupChromeNotInstalled(t *testing.T) {
	useFakeBrowser(t, "")
	n := newFakeNet(t)
	m, _ := newTestManager(t, n, nil)

	if _, err := m.Setup(context.Background(), "chrome", "/opt/google/chrome/chrome"); err == nil {
		t.Error("Setup() without a working Chrome returned nil error")
	}
	if n.requests() != 0 {
		t.Errorf("Setup() made %d requests, want 0", n.requests())
	}
}

func addGeckodriverRelease(t *testing.T, n *fakeNet) {
	t.Helper()
	dl := n.serve("geckodriver-v0.35.0-linux64.tar.gz", tarGzBytes(t, "geckodriver", "#!/bin/sh\n"))
	n.add("/github/repos/mozilla/geckodriver/releases/latest", []byte(fmt.Sprintf(`{
		"tag_name": "v0.35.0",
		"assets": [
			{"name": "geckodriver-v0.35.0-linux-aarch64.tar.gz", "browser_download_url": "https://example.invalid/aarch64.tar.gz"},
			{"name": "geckodriver-v0.35.0-linux64.tar.gz", "browser_download_url": %q},
			{"name": "geckodriver-v0.35.0-win64.zip", "browser_download_url": "https://example.invalid/win64.zip"}
		]
	}`, dl)))
}

func TestSetupGeckodriver(t *testing.T) {
	useFakeBrowser(t, "Mozilla Firefox 128.0.3")
	n := newFakeNet(t)
	addGeckodriverRelease(t, n)
	m, _ := newTestManager(t, n, nil)

	got, err := m.Setup(context.Background(), "firefox", "/usr/bin/firefox")
	if err != nil {
		t.Fatalf("Setup() returned error: %v", err)
	}
	if want := filepath.Join(m.Dir, "geckodriver", "0.35.0", "geckodriver"); got != want {
		t.Errorf("Setup() = %q, want %q", got, want)
	}

	r, err := m.Store.Resolution(context.Background(), GeckoDriver, 128)
	if err != nil || r == nil {
		t.Fatalf("Resolution() = %v, %v; want a resolution", r, err)
	}
	if r.Version != "0.35.0" {
		t.Errorf("stored version = %q, want 0.35.0", r.Version)
	}
}

func TestSetupAll(t *testing.T) {
	useFakeBrowser(t, "Google Chrome 126.0.6478.126")
	n := newFakeNet(t)
	n.add("/cft/LATEST_RELEASE_126", []byte("126.0.6478.126"))
	addGeckodriverRelease(t, n)
	cft := &fakeBucket{net: n, objects: map[string][]byte{
		"126.0.6478.126/linux64/chromedriver-linux64.zip": zipBytes(t, "chromedriver-linux64/chromedriver", "#!/bin/sh\n"),
	}}
	m, _ := newTestManager(t, n, map[string]*fakeBucket{ChromeForTestingBucket: cft})

	// The fake browser reports a Chrome version for both, which geckodriver
	// does not care about.
	got, err := m.SetupAll(context.Background(),
		Request{Browser: "chrome", BrowserPath: "/opt/google/chrome/chrome"},
		Request{Browser: "firefox", BrowserPath: "/usr/bin/firefox"},
	)
	if err != nil {
		t.Fatalf("SetupAll() returned error: %v", err)
	}
	want := []string{
		filepath.Join(m.Dir, "chromedriver", "126.0.6478.126", "chromedriver-linux64", "chromedriver"),
		filepath.Join(m.Dir, "geckodriver", "0.35.0", "geckodriver"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SetupAll() returned diff (-want/+got):\n%s", diff)
	}

	_, err = m.SetupAll(context.Background(), Request{Browser: "safari"})
	if err == nil {
		t.Fatal("SetupAll() with an unknown browser returned nil error")
	}
	if !errors.Is(err, config.ErrUnknownBrowser) {
		t.Errorf("SetupAll() returned %v, want an unknown browser error", err)
	}
}

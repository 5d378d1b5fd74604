// Package driverman finds the installed browser version and provisions a
// matching chromedriver or geckodriver, caching what it resolved.
package driverman

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/go-github/v27/github"
	"golang.org/x/sync/errgroup"

	"github.com/wanmail/webform/internal/config"
	"github.com/wanmail/webform/internal/download"
	"github.com/wanmail/webform/internal/store"
)

// Driver executable names.
const (
	ChromeDriver = "chromedriver"
	GeckoDriver  = "geckodriver"
)

// DriverFor returns the driver executable used for browser.
func DriverFor(browser string) (string, error) {
	switch browser {
	case config.Chrome:
		return ChromeDriver, nil
	case config.Firefox:
		return GeckoDriver, nil
	}
	return "", fmt.Errorf("%w: %q", config.ErrUnknownBrowser, browser)
}

// Manager provisions drivers into Dir.
type Manager struct {
	Dir string
	// Store caches resolutions. It may be nil, in which case every Setup
	// goes to the network.
	Store *store.Store
	TTL   time.Duration

	HTTPClient          *http.Client
	GitHub              *github.Client
	ChromeForTestingURL string
	// OpenBucket opens a public Cloud Storage bucket by name.
	OpenBucket func(ctx context.Context, name string) (download.Bucket, error)
	Platform   Platform

	now func() time.Time
}

// New returns a Manager for the current platform that talks to the public
// Chrome for Testing, Cloud Storage and GitHub endpoints.
func New(dir string, st *store.Store, ttl time.Duration) *Manager {
	client := &http.Client{Timeout: 5 * time.Minute}
	return &Manager{
		Dir:                 dir,
		Store:               st,
		TTL:                 ttl,
		HTTPClient:          client,
		GitHub:              github.NewClient(client),
		ChromeForTestingURL: DefaultChromeForTestingURL,
		OpenBucket: func(ctx context.Context, name string) (download.Bucket, error) {
			return download.NewGCSBucket(ctx, client, name)
		},
		Platform: Platform{OS: runtime.GOOS, Arch: runtime.GOARCH},
		now:      time.Now,
	}
}

// Request names a browser to provision a driver for. An empty BrowserPath
// looks the browser up in PATH.
type Request struct {
	Browser     string
	BrowserPath string
}

// SetupAll provisions drivers for all requests concurrently and returns
// their paths in the same order.
func (m *Manager) SetupAll(ctx context.Context, reqs ...Request) ([]string, error) {
	paths := make([]string, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			p, err := m.Setup(ctx, req.Browser, req.BrowserPath)
			if err != nil {
				return fmt.Errorf("%s: %w", req.Browser, err)
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// Setup returns the path to a driver for the browser installed at
// browserPath, downloading it if no fresh copy is cached.
func (m *Manager) Setup(ctx context.Context, browser, browserPath string) (string, error) {
	driver, err := DriverFor(browser)
	if err != nil {
		return "", err
	}

	var major int
	v, err := DetectBrowserVersion(ctx, browser, browserPath)
	switch {
	case err == nil:
		major = v.Major()
		glog.Infof("Found %s %s", browser, v)
	case driver == ChromeDriver:
		return "", fmt.Errorf("cannot pick a chromedriver: %w", err)
	default:
		// geckodriver releases support a range of Firefox versions.
		glog.Warningf("Cannot detect the Firefox version, using the latest geckodriver: %v", err)
	}

	cached, err := m.cached(ctx, driver, major)
	if err != nil {
		return "", err
	}
	if cached != nil && m.now().Sub(cached.ResolvedAt) < m.TTL {
		glog.Infof("Using cached %s %s at %s", driver, cached.Version, cached.Path)
		return cached.Path, nil
	}

	p, err := m.provision(ctx, driver, major)
	if err != nil {
		if cached != nil {
			glog.Warningf("Cannot refresh %s, using %s resolved at %s: %v", driver, cached.Version, cached.ResolvedAt.Format(time.RFC3339), err)
			return cached.Path, nil
		}
		return "", err
	}
	return p, nil
}

// cached returns the stored resolution if its binary is still on disk.
func (m *Manager) cached(ctx context.Context, driver string, major int) (*store.Resolution, error) {
	if m.Store == nil {
		return nil, nil
	}
	r, err := m.Store.Resolution(ctx, driver, major)
	if err != nil || r == nil {
		return nil, err
	}
	if _, err := os.Stat(r.Path); err != nil {
		glog.Infof("Cached %s %s is gone from %s", driver, r.Version, r.Path)
		return nil, nil
	}
	return r, nil
}

func (m *Manager) provision(ctx context.Context, driver string, major int) (string, error) {
	var (
		version string
		file    download.File
		err     error
	)
	switch driver {
	case ChromeDriver:
		version, file, err = m.resolveChromeDriver(ctx, major)
	case GeckoDriver:
		version, file, err = m.resolveGeckoDriver(ctx)
	}
	if err != nil {
		return "", err
	}

	dir := filepath.Join(m.Dir, driver, version)
	if err := download.Download(ctx, m.HTTPClient, file, dir); err != nil {
		return "", err
	}
	if err := download.Extract(file.Path(dir), dir); err != nil {
		return "", err
	}
	p, err := download.FindExecutable(dir, driver)
	if err != nil {
		return "", err
	}
	glog.Infof("Installed %s %s at %s", driver, version, p)

	if m.Store != nil {
		r := store.Resolution{
			Driver:       driver,
			BrowserMajor: major,
			Version:      version,
			Path:         p,
			ResolvedAt:   m.now(),
		}
		if err := m.Store.PutResolution(ctx, r); err != nil {
			return "", err
		}
	}
	return p, nil
}

func (m *Manager) resolveChromeDriver(ctx context.Context, major int) (string, download.File, error) {
	version, err := m.latestChromeDriver(ctx, major)
	if err != nil {
		return "", download.File{}, err
	}
	bucketName, object, err := chromedriverObject(m.Platform, major, version)
	if err != nil {
		return "", download.File{}, err
	}
	bkt, err := m.OpenBucket(ctx, bucketName)
	if err != nil {
		return "", download.File{}, err
	}
	defer bkt.Close()
	file, err := bkt.ObjectFile(ctx, object)
	if err != nil {
		return "", download.File{}, err
	}
	return version, file, nil
}

// latestChromeDriver returns the newest chromedriver release for a Chrome
// major version.
func (m *Manager) latestChromeDriver(ctx context.Context, major int) (string, error) {
	object := fmt.Sprintf("LATEST_RELEASE_%d", major)
	var data []byte
	if major >= FirstChromeForTesting {
		u := strings.TrimSuffix(m.ChromeForTestingURL, "/") + "/" + object
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", err
		}
		resp, err := m.HTTPClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("error fetching %q: %v", u, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("error fetching %q: %s", u, resp.Status)
		}
		if data, err = io.ReadAll(resp.Body); err != nil {
			return "", fmt.Errorf("error reading %q: %v", u, err)
		}
	} else {
		bkt, err := m.OpenBucket(ctx, LegacyChromeBucket)
		if err != nil {
			return "", err
		}
		defer bkt.Close()
		if data, err = bkt.ReadObject(ctx, object); err != nil {
			return "", err
		}
	}

	version := strings.TrimSpace(string(data))
	if !chromeVersionRE.MatchString(version) {
		return "", fmt.Errorf("%s holds %q, not a chromedriver version", object, version)
	}
	return version, nil
}

func (m *Manager) resolveGeckoDriver(ctx context.Context) (string, download.File, error) {
	asset, err := m.Platform.geckodriverAsset()
	if err != nil {
		return "", download.File{}, err
	}
	file, tag, err := download.LatestGitHubRelease(ctx, m.GitHub, "mozilla", "geckodriver", asset)
	if err != nil {
		return "", download.File{}, err
	}
	return strings.TrimPrefix(tag, "v"), file, nil
}

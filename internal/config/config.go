// Package config holds the settings of a webform run: which browser and
// backend to use, the scenario inputs, and where drivers and history are
// kept. Values come from defaults, then a YAML file, then CLI flags.
package config

import (
	"net"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/wanmail/webform"
	"github.com/wanmail/webform/webdriver"
)

// AppName is the directory name used under the XDG base directories.
const AppName = "webform"

// Browsers and backends.
const (
	Chrome  = "chrome"
	Firefox = "firefox"

	BackendWebDriver = "webdriver"
	BackendChromedp  = "chromedp"
	BackendRod       = "rod"
)

// DefaultDriverCacheTTL is how long a resolved driver version is trusted
// before the driver manager asks the network again.
const DefaultDriverCacheTTL = 24 * time.Hour

// Locators are the three elements the scenario touches.
type Locators struct {
	TextBox webform.Locator `yaml:"text_box"`
	Submit  webform.Locator `yaml:"submit"`
	Message webform.Locator `yaml:"message"`
}

// Config is the full set of options for a run.
type Config struct {
	Browser  string `yaml:"browser"`
	Backend  string `yaml:"backend"`
	Headless bool   `yaml:"headless"`

	URL          string        `yaml:"url"`
	Text         string        `yaml:"text"`
	ImplicitWait time.Duration `yaml:"implicit_wait"`
	// PageLoadTimeout bounds each navigation. Zero keeps the browser's
	// default.
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	Locators     Locators      `yaml:"locators"`
	Expect       string        `yaml:"expect"`

	// RemoteURL is a WebDriver executor (e.g. a Selenium Grid hub) for the
	// webdriver backend, or a DevTools endpoint for chromedp and rod. When
	// set, no local driver or browser is started.
	RemoteURL string `yaml:"remote_url"`
	// DriverPath bypasses the driver manager.
	DriverPath  string   `yaml:"driver_path"`
	BrowserPath string   `yaml:"browser_path"`
	BrowserArgs []string `yaml:"browser_args"`
	// Extensions are paths to packed .crx files or unpacked extension
	// directories. Chrome only.
	Extensions []string `yaml:"extensions"`
	// Proxy is a SOCKS5 proxy as host:port.
	Proxy string `yaml:"proxy"`
	// Xvfb runs a headful browser inside a virtual frame buffer.
	Xvfb bool `yaml:"xvfb"`
	// BrowserLogLevel, if set, asks the driver to collect the browser console
	// at that level; entries are logged when the session ends.
	BrowserLogLevel string `yaml:"browser_log_level"`

	ScreenshotOnFailure string        `yaml:"screenshot_on_failure"`
	DriverCacheTTL      time.Duration `yaml:"driver_cache_ttl"`
	// DBPath is the SQLite file holding run history and driver resolutions.
	DBPath string `yaml:"db_path"`
}

// Default returns the configuration that reproduces the web form scenario
// in headless Chrome over WebDriver.
func Default() *Config {
	sc := webform.DefaultScenario()
	return &Config{
		Browser:      Chrome,
		Backend:      BackendWebDriver,
		Headless:     true,
		URL:          sc.URL,
		Text:         sc.Text,
		ImplicitWait: sc.ImplicitWait,
		Locators: Locators{
			TextBox: sc.TextBox,
			Submit:  sc.Submit,
			Message: sc.Message,
		},
		DriverCacheTTL: DefaultDriverCacheTTL,
		DBPath:         DefaultDBPath(),
	}
}

// Validate reports the first problem with c.
func (c *Config) Validate() error {
	switch c.Browser {
	case Chrome, Firefox:
	default:
		return ErrUnknownBrowser
	}
	switch c.Backend {
	case BackendWebDriver:
	case BackendChromedp, BackendRod:
		if c.Browser != Chrome {
			return ErrBackendNeedsChrome
		}
	default:
		return ErrUnknownBackend
	}
	if c.URL == "" {
		return ErrNoURL
	}
	if c.ImplicitWait < 0 {
		return ErrInvalidImplicitWait
	}
	if c.PageLoadTimeout < 0 {
		return ErrInvalidPageLoadTimeout
	}
	for _, l := range []webform.Locator{c.Locators.TextBox, c.Locators.Submit, c.Locators.Message} {
		if l.By == "" || l.Value == "" {
			return ErrInvalidLocator
		}
		if c.Backend != BackendWebDriver {
			if _, ok := webdriver.ToCSS(l.By, l.Value); !ok {
				return ErrLocatorNotCSS
			}
		}
	}
	if c.Proxy != "" {
		if _, _, err := net.SplitHostPort(c.Proxy); err != nil {
			return ErrInvalidProxy
		}
	}
	if c.Xvfb && (c.Headless || c.RemoteURL != "") {
		return ErrXvfbNotApplicable
	}
	if c.DriverCacheTTL < 0 {
		return ErrInvalidCacheTTL
	}
	return nil
}

// Scenario returns the scenario described by c.
func (c *Config) Scenario() webform.Scenario {
	return webform.Scenario{
		URL:                 c.URL,
		Text:                c.Text,
		ImplicitWait:        c.ImplicitWait,
		TextBox:             c.Locators.TextBox,
		Submit:              c.Locators.Submit,
		Message:             c.Locators.Message,
		Expect:              c.Expect,
		ScreenshotOnFailure: c.ScreenshotOnFailure,
	}
}

// DefaultDBPath is the history database under the XDG data directory.
// On Linux: ~/.local/share/webform/webform.db
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, AppName, "webform.db")
}

// DriverDir is where the driver manager unpacks downloaded drivers.
// On Linux: ~/.cache/webform/drivers
func DriverDir() string {
	return filepath.Join(xdg.CacheHome, AppName, "drivers")
}

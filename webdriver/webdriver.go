package webdriver

import (
	"time"

	"github.com/wanmail/webform/chrome"
	"github.com/wanmail/webform/firefox"
	"github.com/wanmail/webform/log"
)

// Methods by which to find elements.
//
// Only ByCSSSelector, ByLinkText, ByPartialLinkText, ByTagName and ByXPATH
// are W3C strategies. The others are rewritten to CSS selectors before they
// are sent to the remote end.
const (
	ByID              = "id"
	ByXPATH           = "xpath"
	ByLinkText        = "link text"
	ByPartialLinkText = "partial link text"
	ByName            = "name"
	ByTagName         = "tag name"
	ByClassName       = "class name"
	ByCSSSelector     = "css selector"
)

// Special keyboard keys, for SendKeys.
const (
	TabKey       = string('\ue004')
	ReturnKey    = string('\ue006')
	EnterKey     = string('\ue007')
	EscapeKey    = string('\ue00c')
	BackspaceKey = string('\ue003')
)

// Capabilities configures both the WebDriver process and the target browsers,
// with standard and browser-specific options.
type Capabilities map[string]interface{}

// AddChrome adds Chrome-specific capabilities.
func (c Capabilities) AddChrome(f chrome.Capabilities) {
	c[chrome.CapabilitiesKey] = f
}

// AddFirefox adds Firefox-specific capabilities.
func (c Capabilities) AddFirefox(f firefox.Capabilities) {
	c[firefox.CapabilitiesKey] = f
}

// AddProxy adds proxy configuration to the capabilities.
func (c Capabilities) AddProxy(p Proxy) {
	c["proxy"] = p
}

// AddLogging adds logging configuration to the capabilities.
func (c Capabilities) AddLogging(l log.Capabilities) {
	c[log.CapabilitiesKey] = l
}

// SetLogLevel sets the logging level of a component. It is a shortcut for
// passing a log.Capabilities instance to AddLogging.
func (c Capabilities) SetLogLevel(typ log.Type, level log.Level) {
	if _, ok := c[log.CapabilitiesKey]; !ok {
		c[log.CapabilitiesKey] = make(log.Capabilities)
	}
	m := c[log.CapabilitiesKey].(log.Capabilities)
	m[typ] = level
}

// Proxy specifies configuration for proxies in the browser. Set the key
// "proxy" in Capabilities to an instance of this type.
type Proxy struct {
	// Type is the type of proxy to use. This is required to be populated.
	Type ProxyType `json:"proxyType"`

	// AutoconfigURL is the URL to be used for proxy auto configuration. This is
	// required if Type is set to PAC.
	AutoconfigURL string `json:"proxyAutoconfigUrl,omitempty"`

	// The following are used when Type is set to Manual.
	HTTP          string   `json:"httpProxy,omitempty"`
	SSL           string   `json:"sslProxy,omitempty"`
	SOCKS         string   `json:"socksProxy,omitempty"`
	SOCKSVersion  int      `json:"socksVersion,omitempty"`
	SOCKSUsername string   `json:"socksUsername,omitempty"`
	SOCKSPassword string   `json:"socksPassword,omitempty"`
	NoProxy       []string `json:"noProxy,omitempty"`
}

// ProxyType is an enumeration of the types of proxies available.
type ProxyType string

// The proxy types defined by the W3C specification.
const (
	Direct     ProxyType = "direct"
	Manual     ProxyType = "manual"
	Autodetect ProxyType = "autodetect"
	System     ProxyType = "system"
	PAC        ProxyType = "pac"
)

// Status contains information returned by the Status method.
type Status struct {
	// Ready and Message are specified by the W3C WebDriver specification.
	Ready   bool   `json:"ready"`
	Message string `json:"message"`

	// Build and OS are reported by ChromeDriver and the Selenium server.
	Build struct {
		Version, Revision, Time string
	}
	OS struct {
		Arch, Name, Version string
	}
}

// Condition is a predicate polled by the Wait methods.
type Condition func(wd WebDriver) (bool, error)

// Default values used by Wait.
const (
	DefaultWaitInterval = 100 * time.Millisecond
	DefaultWaitTimeout  = 60 * time.Second
)

// WebDriver defines methods supported by WebDriver drivers.
type WebDriver interface {
	// Status returns various pieces of information about the server environment.
	Status() (*Status, error)

	// NewSession starts a new session and returns the session ID.
	NewSession() (string, error)
	// SessionID returns the current session ID.
	SessionID() string
	// Capabilities returns the current session's capabilities.
	Capabilities() (Capabilities, error)

	// SetAsyncScriptTimeout sets the amount of time that asynchronous scripts
	// are permitted to run before they are aborted.
	SetAsyncScriptTimeout(timeout time.Duration) error
	// SetImplicitWaitTimeout sets the amount of time the driver should wait when
	// searching for elements. The timeout will be rounded to nearest millisecond.
	SetImplicitWaitTimeout(timeout time.Duration) error
	// SetPageLoadTimeout sets the amount of time the driver should wait when
	// loading a page.
	SetPageLoadTimeout(timeout time.Duration) error

	// Quit ends the current session. The browser instance will be closed.
	Quit() error

	// Get navigates the browser to the provided URL.
	Get(url string) error
	// CurrentURL returns the browser's current URL.
	CurrentURL() (string, error)
	// Title returns the current page's title.
	Title() (string, error)
	// PageSource returns the current page's source.
	PageSource() (string, error)

	// FindElement finds exactly one element in the current page's DOM.
	FindElement(by, value string) (WebElement, error)
	// FindElements finds potentially many elements in the current page's DOM.
	FindElements(by, value string) ([]WebElement, error)

	// ExecuteScript executes a script synchronously and returns its decoded
	// result.
	ExecuteScript(script string, args []interface{}) (interface{}, error)

	// Screenshot takes a screenshot of the browser window.
	Screenshot() ([]byte, error)
	// Log fetches the logs. Log types must be previously configured in the
	// capabilities.
	Log(typ log.Type) ([]log.Message, error)

	// WaitWithTimeoutAndInterval waits for the condition to evaluate to true.
	WaitWithTimeoutAndInterval(condition Condition, timeout, interval time.Duration) error
	// WaitWithTimeout works like WaitWithTimeoutAndInterval, but with the
	// default polling interval.
	WaitWithTimeout(condition Condition, timeout time.Duration) error
	// Wait works like WaitWithTimeoutAndInterval, but using the default
	// timeout and polling interval.
	Wait(condition Condition) error
}

// WebElement defines method supported by web elements.
type WebElement interface {
	// ID returns the remote element reference.
	ID() string

	// Click clicks on the element.
	Click() error
	// SendKeys types into the element.
	SendKeys(keys string) error
	// Clear clears the element.
	Clear() error

	// TagName returns the element's name.
	TagName() (string, error)
	// Text returns the text of the element.
	Text() (string, error)
	// GetAttribute returns the named attribute of the element.
	GetAttribute(name string) (string, error)
	// IsDisplayed returns true if the element is displayed.
	IsDisplayed() (bool, error)
	// IsEnabled returns true if the element is enabled.
	IsEnabled() (bool, error)
}

package config

import "errors"

// Configuration validation errors returned by Config.Validate. Callers can
// branch on them with errors.Is.
var (
	ErrUnknownBrowser         = errors.New("unknown browser: must be chrome or firefox")
	ErrUnknownBackend         = errors.New("unknown backend: must be webdriver, chromedp or rod")
	ErrBackendNeedsChrome     = errors.New("the chromedp and rod backends only drive chrome")
	ErrNoURL                  = errors.New("no url specified")
	ErrInvalidImplicitWait    = errors.New("invalid implicit wait: must be non-negative")
	ErrInvalidPageLoadTimeout = errors.New("invalid page load timeout: must be non-negative")
	ErrInvalidLocator         = errors.New("invalid locator: by and value are required")
	// ErrLocatorNotCSS is returned when a DevTools backend is given a
	// strategy, such as xpath, that has no CSS form.
	ErrLocatorNotCSS     = errors.New("locator cannot be expressed as a CSS selector")
	ErrInvalidProxy      = errors.New("invalid proxy: must be host:port")
	ErrXvfbNotApplicable = errors.New("xvfb only applies to a headful local browser")
	ErrInvalidCacheTTL   = errors.New("invalid driver cache ttl: must be non-negative")
)

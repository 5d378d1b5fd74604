// Package backend opens a webform.Session on the browser automation stack
// named by the configuration: a WebDriver executor, chromedp or rod.
package backend

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wanmail/webform"
	"github.com/wanmail/webform/internal/config"
	"github.com/wanmail/webform/webdriver"
)

// DriverProvider returns the path of a driver binary for a browser, e.g. a
// *driverman.Manager.
type DriverProvider interface {
	Setup(ctx context.Context, browser, browserPath string) (string, error)
}

type options struct {
	drivers DriverProvider
	output  io.Writer
}

// Option configures Open.
type Option func(*options)

// WithDriverProvider sets where the webdriver backend gets a driver when the
// configuration names none.
func WithDriverProvider(p DriverProvider) Option {
	return func(o *options) {
		o.drivers = p
	}
}

// WithDriverOutput sends the output of a locally started driver to w.
func WithDriverOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// Open starts a browser session for cfg. The caller must Quit it.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (webform.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	switch cfg.Backend {
	case config.BackendWebDriver:
		return openWebDriver(ctx, cfg, o)
	case config.BackendChromedp:
		return openChromedp(ctx, cfg)
	case config.BackendRod:
		return openRod(ctx, cfg)
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
}

// noSuchElement is what the DevTools backends return when a lookup times
// out. It matches webdriver.ErrNoSuchElement.
func noSuchElement(loc webform.Locator) error {
	return &webdriver.Error{
		Err:     webdriver.ErrNoSuchElement.Err,
		Message: fmt.Sprintf("no element matches %s", loc),
	}
}

// browserFlag splits a command line switch such as "--window-size=800,600"
// into its name and value.
func browserFlag(arg string) (name, value string, hasValue bool) {
	return strings.Cut(strings.TrimLeft(arg, "-"), "=")
}

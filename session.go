package webform

import (
	"context"
	"fmt"
	"time"

	"github.com/wanmail/webform/webdriver"
)

// Locator identifies an element on a page. By is one of the WebDriver
// strategy names, e.g. webdriver.ByName or webdriver.ByCSSSelector.
type Locator struct {
	By    string `yaml:"by"`
	Value string `yaml:"value"`
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%q", l.By, l.Value)
}

// CSS returns the locator as a CSS selector, for backends that only query by
// CSS.
func (l Locator) CSS() (string, error) {
	css, ok := webdriver.ToCSS(l.By, l.Value)
	if !ok {
		return "", fmt.Errorf("locator %s has no CSS equivalent", l)
	}
	return css, nil
}

// Session is a browser session as seen by the scenario.
type Session interface {
	// Navigate loads url in the current tab.
	Navigate(ctx context.Context, url string) error
	// Title returns the current page title.
	Title(ctx context.Context) (string, error)
	// SetImplicitWait bounds how long FindElement waits for a match.
	SetImplicitWait(ctx context.Context, d time.Duration) error
	// FindElement returns the first element matching loc.
	FindElement(ctx context.Context, loc Locator) (Element, error)
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Quit ends the session and releases everything started for it. It is
	// safe to call more than once.
	Quit(ctx context.Context) error
}

// Element is an element found in a Session.
type Element interface {
	SendKeys(ctx context.Context, keys string) error
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
}

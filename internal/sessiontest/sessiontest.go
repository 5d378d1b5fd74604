// Package sessiontest provides tests that exercise a webform.Session. They
// are in a separate package so that every backend, faked or driving a real
// browser, is held to the same behavior.
package sessiontest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wanmail/webform"
	"github.com/wanmail/webform/internal/webformtest"
	"github.com/wanmail/webform/webdriver"
)

// Config describes the session under test.
type Config struct {
	// Open starts a new session. Tests quit it themselves.
	Open func(t *testing.T) webform.Session
	// FormURL is where the session finds the web form.
	FormURL string
}

func runTest(f func(*testing.T, Config), c Config) func(*testing.T) {
	return func(t *testing.T) {
		f(t, c)
	}
}

func quit(t *testing.T, s webform.Session) {
	if err := s.Quit(context.Background()); err != nil {
		t.Errorf("Quit() returned error: %v", err)
	}
}

// open starts a session on the web form.
func open(t *testing.T, c Config) webform.Session {
	t.Helper()
	s := c.Open(t)
	if err := s.Navigate(context.Background(), c.FormURL); err != nil {
		s.Quit(context.Background())
		t.Fatalf("Navigate(%q) returned error: %v", c.FormURL, err)
	}
	return s
}

// RunCommonTests runs the tests every backend must pass.
func RunCommonTests(t *testing.T, c Config) {
	t.Run("Scenario", runTest(testScenario, c))
	t.Run("Title", runTest(testTitle, c))
	t.Run("FindElement", runTest(testFindElement, c))
	t.Run("NoSuchElement", runTest(testNoSuchElement, c))
	t.Run("SendKeysAndClick", runTest(testSendKeysAndClick, c))
	t.Run("Screenshot", runTest(testScreenshot, c))
	t.Run("QuitTwice", runTest(testQuitTwice, c))
	t.Run("CancelledContext", runTest(testCancelledContext, c))
}

func testScenario(t *testing.T, c Config) {
	sc := webform.DefaultScenario()
	sc.URL = c.FormURL
	sc.Expect = webformtest.ReceivedText

	res, err := sc.Run(context.Background(), c.Open(t))
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	want := &webform.Result{Title: webformtest.FormTitle, Message: webformtest.ReceivedText}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Run() returned diff (-want/+got):\n%s", diff)
	}
}

func testTitle(t *testing.T, c Config) {
	s := open(t, c)
	defer quit(t, s)

	title, err := s.Title(context.Background())
	if err != nil {
		t.Fatalf("Title() returned error: %v", err)
	}
	if title != webformtest.FormTitle {
		t.Errorf("Title() = %q, want %q", title, webformtest.FormTitle)
	}
}

func testFindElement(t *testing.T, c Config) {
	s := open(t, c)
	defer quit(t, s)

	ctx := context.Background()
	if err := s.SetImplicitWait(ctx, 500*time.Millisecond); err != nil {
		t.Fatalf("SetImplicitWait() returned error: %v", err)
	}
	for _, loc := range []webform.Locator{
		{By: webdriver.ByName, Value: "my-text"},
		{By: webdriver.ByID, Value: "my-text-id"},
		{By: webdriver.ByClassName, Value: "form-control"},
		{By: webdriver.ByCSSSelector, Value: "button"},
		{By: webdriver.ByTagName, Value: "textarea"},
	} {
		if _, err := s.FindElement(ctx, loc); err != nil {
			t.Errorf("FindElement(%s) returned error: %v", loc, err)
		}
	}
}

func testNoSuchElement(t *testing.T, c Config) {
	s := open(t, c)
	defer quit(t, s)

	ctx := context.Background()
	for _, wait := range []time.Duration{0, 200 * time.Millisecond} {
		if err := s.SetImplicitWait(ctx, wait); err != nil {
			t.Fatalf("SetImplicitWait(%s) returned error: %v", wait, err)
		}
		loc := webform.Locator{By: webdriver.ByID, Value: "no-such-element"}
		_, err := s.FindElement(ctx, loc)
		if !errors.Is(err, webdriver.ErrNoSuchElement) {
			t.Errorf("with implicit wait %s, FindElement(%s) returned %v, want %v", wait, loc, err, webdriver.ErrNoSuchElement)
		}
	}
}

func testSendKeysAndClick(t *testing.T, c Config) {
	s := open(t, c)
	defer quit(t, s)

	ctx := context.Background()
	if err := s.SetImplicitWait(ctx, 500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	box, err := s.FindElement(ctx, webform.Locator{By: webdriver.ByName, Value: "my-text"})
	if err != nil {
		t.Fatal(err)
	}
	if err := box.SendKeys(ctx, "Selenium"); err != nil {
		t.Fatalf("SendKeys() returned error: %v", err)
	}
	button, err := s.FindElement(ctx, webform.Locator{By: webdriver.ByCSSSelector, Value: "button"})
	if err != nil {
		t.Fatal(err)
	}
	if err := button.Click(ctx); err != nil {
		t.Fatalf("Click() returned error: %v", err)
	}

	message, err := s.FindElement(ctx, webform.Locator{By: webdriver.ByID, Value: "message"})
	if err != nil {
		t.Fatalf("FindElement(message) after submitting returned error: %v", err)
	}
	text, err := message.Text(ctx)
	if err != nil {
		t.Fatalf("Text() returned error: %v", err)
	}
	if text != webformtest.ReceivedText {
		t.Errorf("Text() = %q, want %q", text, webformtest.ReceivedText)
	}
	title, err := s.Title(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if title != webformtest.SubmittedTitle {
		t.Errorf("Title() after submitting = %q, want %q", title, webformtest.SubmittedTitle)
	}
}

func testScreenshot(t *testing.T, c Config) {
	s := open(t, c)
	defer quit(t, s)

	png, err := s.Screenshot(context.Background())
	if err != nil {
		t.Fatalf("Screenshot() returned error: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("Screenshot() returned %d bytes that are not a PNG", len(png))
	}
}

func testQuitTwice(t *testing.T, c Config) {
	s := open(t, c)
	quit(t, s)
	quit(t, s)
}

func testCancelledContext(t *testing.T, c Config) {
	s := open(t, c)
	defer quit(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Navigate(ctx, c.FormURL); !errors.Is(err, context.Canceled) {
		t.Errorf("Navigate() with a cancelled context returned %v, want %v", err, context.Canceled)
	}
}

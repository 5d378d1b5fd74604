package webform_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wanmail/webform"
	"github.com/wanmail/webform/internal/backend"
	"github.com/wanmail/webform/internal/config"
	"github.com/wanmail/webform/internal/webformtest"
	"github.com/wanmail/webform/webdriver"
)

// fakeSession records the calls made by a scenario.
type fakeSession struct {
	calls []string
	// failAt makes the call with that name fail.
	failAt  string
	quitErr error
	quits   int
	message string
}

var errInjected = errors.New("injected failure")

func (s *fakeSession) call(name string) error {
	s.calls = append(s.calls, name)
	if name == s.failAt {
		return errInjected
	}
	return nil
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		s.calls = append(s.calls, "navigate")
		return err
	}
	return s.call("navigate")
}

func (s *fakeSession) Title(context.Context) (string, error) {
	return "Web form", s.call("title")
}

func (s *fakeSession) SetImplicitWait(context.Context, time.Duration) error {
	return s.call("implicit wait")
}

func (s *fakeSession) FindElement(_ context.Context, loc webform.Locator) (webform.Element, error) {
	name := "find " + loc.Value
	if err := s.call(name); err != nil {
		return nil, err
	}
	return &fakeElement{s: s, name: loc.Value}, nil
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	s.calls = append(s.calls, "screenshot")
	return []byte("\x89PNG"), nil
}

func (s *fakeSession) Quit(context.Context) error {
	s.calls = append(s.calls, "quit")
	s.quits++
	return s.quitErr
}

type fakeElement struct {
	s    *fakeSession
	name string
}

func (e *fakeElement) SendKeys(_ context.Context, keys string) error {
	return e.s.call("send keys " + keys + " to " + e.name)
}

func (e *fakeElement) Click(context.Context) error {
	return e.s.call("click " + e.name)
}

func (e *fakeElement) Text(context.Context) (string, error) {
	message := e.s.message
	if message == "" {
		message = webform.ReceivedMessage
	}
	return message, e.s.call("text " + e.name)
}

func TestRun(t *testing.T) {
	s := &fakeSession{}
	res, err := webform.DefaultScenario().Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if diff := cmp.Diff(&webform.Result{Title: "Web form", Message: "Received!"}, res); diff != "" {
		t.Errorf("Run() returned diff (-want/+got):\n%s", diff)
	}
	want := []string{
		"navigate",
		"title",
		"implicit wait",
		"find my-text",
		"find button",
		"send keys Selenium to my-text",
		"click button",
		"find message",
		"text message",
		"quit",
	}
	if diff := cmp.Diff(want, s.calls); diff != "" {
		t.Errorf("calls returned diff (-want/+got):\n%s", diff)
	}
}

func TestRunStepFailure(t *testing.T) {
	tests := []struct {
		failAt   string
		wantStep string
	}{
		{"navigate", "navigate"},
		{"title", "read title"},
		{"implicit wait", "set implicit wait"},
		{"find my-text", "find text box"},
		{"find button", "find submit button"},
		{"send keys Selenium to my-text", "send keys"},
		{"click button", "click"},
		{"find message", "find message"},
		{"text message", "read message"},
	}
	for _, tc := range tests {
		t.Run(tc.wantStep, func(t *testing.T) {
			s := &fakeSession{failAt: tc.failAt}
			res, err := webform.DefaultScenario().Run(context.Background(), s)
			if res != nil {
				t.Errorf("Run() returned result %+v, want nil", res)
			}
			var stepErr *webform.StepError
			if !errors.As(err, &stepErr) {
				t.Fatalf("Run() returned %v, want a *StepError", err)
			}
			if stepErr.Step != tc.wantStep {
				t.Errorf("failed step = %q, want %q", stepErr.Step, tc.wantStep)
			}
			if !errors.Is(err, errInjected) {
				t.Errorf("Run() returned %v, want it to wrap %v", err, errInjected)
			}
			if s.quits != 1 {
				t.Errorf("Quit() called %d times, want 1", s.quits)
			}
			if last := s.calls[len(s.calls)-1]; last != "quit" {
				t.Errorf("last call = %q, want quit", last)
			}
		})
	}
}

func TestRunUnexpectedMessage(t *testing.T) {
	s := &fakeSession{message: "Rejected"}
	sc := webform.DefaultScenario()
	sc.Expect = webform.ReceivedMessage

	_, err := sc.Run(context.Background(), s)
	if !errors.Is(err, webform.ErrUnexpectedMessage) {
		t.Fatalf("Run() returned %v, want %v", err, webform.ErrUnexpectedMessage)
	}
	var stepErr *webform.StepError
	if errors.As(err, &stepErr) && stepErr.Step != "check message" {
		t.Errorf("failed step = %q, want check message", stepErr.Step)
	}
	if s.quits != 1 {
		t.Errorf("Quit() called %d times, want 1", s.quits)
	}

	// Without Expect, any message is accepted.
	s = &fakeSession{message: "Rejected"}
	res, err := webform.DefaultScenario().Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() without Expect returned error: %v", err)
	}
	if res.Message != "Rejected" {
		t.Errorf("Message = %q, want Rejected", res.Message)
	}
}

func TestRunQuitError(t *testing.T) {
	quitErr := errors.New("session already gone")

	s := &fakeSession{quitErr: quitErr}
	res, err := webform.DefaultScenario().Run(context.Background(), s)
	if !errors.Is(err, quitErr) {
		t.Errorf("Run() returned %v, want %v", err, quitErr)
	}
	if res != nil {
		t.Errorf("Run() returned result %+v with a quit error, want nil", res)
	}

	// A step failure takes precedence over the quit error.
	s = &fakeSession{failAt: "click button", quitErr: quitErr}
	_, err = webform.DefaultScenario().Run(context.Background(), s)
	if !errors.Is(err, errInjected) || errors.Is(err, quitErr) {
		t.Errorf("Run() returned %v, want the click failure", err)
	}
}

func TestRunScreenshotOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failure.png")
	sc := webform.DefaultScenario()
	sc.ScreenshotOnFailure = path

	if _, err := sc.Run(context.Background(), &fakeSession{}); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("a successful run wrote %s", path)
	}

	s := &fakeSession{failAt: "find message"}
	if _, err := sc.Run(context.Background(), s); err == nil {
		t.Fatal("Run() returned nil error")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("screenshot not saved: %v", err)
	}
	if string(data) != "\x89PNG" {
		t.Errorf("screenshot = %q, want the session's screenshot", data)
	}
	want := []string{"find message", "screenshot", "quit"}
	if diff := cmp.Diff(want, s.calls[len(s.calls)-3:]); diff != "" {
		t.Errorf("final calls returned diff (-want/+got):\n%s", diff)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeSession{}
	_, err := webform.DefaultScenario().Run(ctx, s)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() returned %v, want %v", err, context.Canceled)
	}
	if s.quits != 1 {
		t.Errorf("Quit() called %d times after cancellation, want 1", s.quits)
	}
}

func TestLocatorCSS(t *testing.T) {
	tests := []struct {
		loc     webform.Locator
		want    string
		wantErr bool
	}{
		{loc: webform.Locator{By: webdriver.ByName, Value: "my-text"}, want: `*[name="my\-text"]`},
		{loc: webform.Locator{By: webdriver.ByID, Value: "message"}, want: "#message"},
		{loc: webform.Locator{By: webdriver.ByCSSSelector, Value: "button"}, want: "button"},
		{loc: webform.Locator{By: webdriver.ByXPATH, Value: "//button"}, wantErr: true},
	}
	for _, tc := range tests {
		got, err := tc.loc.CSS()
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s.CSS() = %q, want error", tc.loc, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%s.CSS() = %q, %v; want %q", tc.loc, got, err, tc.want)
		}
	}
}

// TestRunWebDriver runs the scenario end to end through the WebDriver client
// against the fake remote end.
func TestRunWebDriver(t *testing.T) {
	srv := webformtest.NewWebFormServer(t)
	cfg := config.Default()
	cfg.RemoteURL = srv.URL
	ctx := context.Background()

	s, err := backend.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("backend.Open() returned error: %v", err)
	}
	sc := cfg.Scenario()
	sc.Expect = webform.ReceivedMessage
	res, err := sc.Run(ctx, s)
	if err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if diff := cmp.Diff(&webform.Result{Title: webformtest.FormTitle, Message: webformtest.ReceivedText}, res); diff != "" {
		t.Errorf("Run() returned diff (-want/+got):\n%s", diff)
	}

	want := []string{
		"new session",
		"navigate to",
		"get title",
		"set timeouts",
		"find element",
		"find element",
		"element send keys",
		"element click",
		"find element",
		"get element text",
		"delete session",
	}
	if diff := cmp.Diff(want, srv.CommandNames()); diff != "" {
		t.Errorf("commands returned diff (-want/+got):\n%s", diff)
	}
	if n := srv.Sessions(); n != 0 {
		t.Errorf("%d sessions left open, want 0", n)
	}
}

// TestRunWebDriverFailureQuits checks that a session whose click fails is
// still deleted.
func TestRunWebDriverFailureQuits(t *testing.T) {
	srv := webformtest.NewWebFormServer(t)
	srv.Fail("element click", "element click intercepted")
	cfg := config.Default()
	cfg.RemoteURL = srv.URL

	s, err := backend.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("backend.Open() returned error: %v", err)
	}
	_, err = cfg.Scenario().Run(context.Background(), s)
	if !errors.Is(err, webdriver.ErrElementClickIntercepted) {
		t.Errorf("Run() returned %v, want %v", err, webdriver.ErrElementClickIntercepted)
	}
	names := srv.CommandNames()
	if last := names[len(names)-1]; last != "delete session" {
		t.Errorf("last command = %q, want delete session", last)
	}
	if n := srv.Sessions(); n != 0 {
		t.Errorf("%d sessions left open, want 0", n)
	}
}

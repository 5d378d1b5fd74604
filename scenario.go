package webform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/wanmail/webform/webdriver"
)

// The Selenium web form page and the inputs the scenario uses on it.
const (
	DefaultURL          = "https://www.selenium.dev/selenium/web/web-form.html"
	DefaultText         = "Selenium"
	DefaultImplicitWait = 500 * time.Millisecond
	ReceivedMessage     = "Received!"
)

// ErrUnexpectedMessage is returned when Expect is set and the confirmation
// message differs from it.
var ErrUnexpectedMessage = errors.New("unexpected confirmation message")

// Scenario fills the text box of a form, submits it and reads back the
// confirmation message.
type Scenario struct {
	URL          string
	Text         string
	ImplicitWait time.Duration

	TextBox Locator
	Submit  Locator
	Message Locator

	// Expect, if set, is the message the run must read back.
	Expect string
	// ScreenshotOnFailure, if set, is where the page is saved when a step
	// fails.
	ScreenshotOnFailure string
}

// DefaultScenario returns the scenario for the Selenium web form.
func DefaultScenario() Scenario {
	return Scenario{
		URL:          DefaultURL,
		Text:         DefaultText,
		ImplicitWait: DefaultImplicitWait,
		TextBox:      Locator{By: webdriver.ByName, Value: "my-text"},
		Submit:       Locator{By: webdriver.ByCSSSelector, Value: "button"},
		Message:      Locator{By: webdriver.ByID, Value: "message"},
	}
}

// Result is what a successful run read from the browser.
type Result struct {
	Title   string
	Message string
}

// StepError reports which step of the scenario failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Run executes the scenario in s. The session is quit when Run returns,
// whether or not a step failed. A quit error is returned only if every step
// succeeded; otherwise it is logged.
func (sc Scenario) Run(ctx context.Context, s Session) (res *Result, err error) {
	defer func() {
		// Teardown runs even when ctx was cancelled mid-scenario.
		tctx := context.WithoutCancel(ctx)
		if err != nil {
			glog.Errorf("scenario failed: %v", err)
			sc.saveScreenshot(tctx, s)
		}
		if qerr := s.Quit(tctx); qerr != nil {
			if err == nil {
				res, err = nil, &StepError{"quit", qerr}
			} else {
				glog.Warningf("quit after failure: %v", qerr)
			}
		}
	}()

	step := func(name string, err error) error {
		if err != nil {
			return &StepError{name, err}
		}
		return nil
	}

	glog.Infof("opening %s", sc.URL)
	if err := step("navigate", s.Navigate(ctx, sc.URL)); err != nil {
		return nil, err
	}
	title, err := s.Title(ctx)
	if err := step("read title", err); err != nil {
		return nil, err
	}
	glog.Infof("page title %q", title)
	glog.Info("test started")

	if err := step("set implicit wait", s.SetImplicitWait(ctx, sc.ImplicitWait)); err != nil {
		return nil, err
	}

	textBox, err := s.FindElement(ctx, sc.TextBox)
	if err := step("find text box", err); err != nil {
		return nil, err
	}
	submit, err := s.FindElement(ctx, sc.Submit)
	if err := step("find submit button", err); err != nil {
		return nil, err
	}

	glog.Infof("typing %q into %s", sc.Text, sc.TextBox)
	if err := step("send keys", textBox.SendKeys(ctx, sc.Text)); err != nil {
		return nil, err
	}
	glog.Infof("clicking %s", sc.Submit)
	if err := step("click", submit.Click(ctx)); err != nil {
		return nil, err
	}

	message, err := s.FindElement(ctx, sc.Message)
	if err := step("find message", err); err != nil {
		return nil, err
	}
	text, err := message.Text(ctx)
	if err := step("read message", err); err != nil {
		return nil, err
	}
	glog.Infof("message %q", text)

	if sc.Expect != "" && text != sc.Expect {
		return nil, &StepError{"check message", fmt.Errorf("%w: got %q, want %q", ErrUnexpectedMessage, text, sc.Expect)}
	}
	return &Result{Title: title, Message: text}, nil
}

func (sc Scenario) saveScreenshot(ctx context.Context, s Session) {
	if sc.ScreenshotOnFailure == "" {
		return
	}
	png, err := s.Screenshot(ctx)
	if err != nil {
		glog.Warningf("screenshot: %v", err)
		return
	}
	if err := os.WriteFile(sc.ScreenshotOnFailure, png, 0o644); err != nil {
		glog.Warningf("saving screenshot: %v", err)
		return
	}
	glog.Infof("saved screenshot to %s", sc.ScreenshotOnFailure)
}

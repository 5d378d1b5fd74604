package webformtest

import (
	"net/url"
	"testing"
)

const (
	// FormURL is the address of the Selenium web form page.
	FormURL = "https://www.selenium.dev/selenium/web/web-form.html"
	// SubmittedURL is where the form posts to.
	SubmittedURL = "https://www.selenium.dev/selenium/web/submitted-form.html"

	FormTitle      = "Web form"
	SubmittedTitle = "Web form - target page"
	ReceivedText   = "Received!"
)

// WebFormPage builds the web form: a text input named "my-text", a password
// input, a textarea and a submit button.
func WebFormPage() *Page {
	text := &Element{ID: "my-text-id", Name: "my-text", Tag: "input", Class: "form-control"}
	return &Page{
		Title: FormTitle,
		Elements: []*Element{
			{Tag: "h1", Class: "display-6", Text: "Web form"},
			text,
			{Name: "my-password", Tag: "input", Class: "form-control"},
			{Name: "my-textarea", Tag: "textarea", Class: "form-control"},
			{Name: "my-disabled", Tag: "input", Class: "form-control", Hidden: true},
			{
				Tag:   "button",
				Class: "btn",
				Text:  "Submit",
				OnClick: func(s *Session) {
					s.Navigate(SubmittedURL + "?" + url.Values{"my-text": {text.Value}}.Encode())
				},
			},
		},
	}
}

// SubmittedPage builds the page shown after the form is submitted.
func SubmittedPage() *Page {
	return &Page{
		Title: SubmittedTitle,
		Elements: []*Element{
			{Tag: "h1", Class: "display-6", Text: "Form submitted"},
			{ID: "message", Tag: "p", Class: "lead", Text: ReceivedText},
		},
	}
}

// NewWebFormServer starts a server that serves the web form and its target
// page.
func NewWebFormServer(t testing.TB) *Server {
	s := NewServer(t)
	s.addWebForm()
	return s
}

// NewWebFormHandler is NewWebFormServer without the listener.
func NewWebFormHandler() *Server {
	s := NewHandler()
	s.addWebForm()
	return s
}

func (s *Server) addWebForm() {
	s.AddPage(FormURL, WebFormPage)
	s.pagePrefix(SubmittedURL, SubmittedPage)
}

// pagePrefix registers page for url regardless of its query string.
func (s *Server) pagePrefix(url string, page func() *Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes = append(s.prefixes, prefixPage{url, page})
}

type prefixPage struct {
	prefix string
	page   func() *Page
}

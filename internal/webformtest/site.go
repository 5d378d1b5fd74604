package webformtest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"testing"
)

// FormPath and SubmittedPath are the pages served by NewSite.
const (
	FormPath      = "/web-form.html"
	SubmittedPath = "/submitted-form.html"
)

const formHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>` + FormTitle + `</title></head>
<body>
<main class="container">
  <h1 class="display-6">Web form</h1>
  <form method="get" action="submitted-form.html">
    <label class="form-label w-100">Text input
      <input type="text" class="form-control" name="my-text" id="my-text-id">
    </label>
    <label class="form-label w-100">Password
      <input type="password" class="form-control" name="my-password" autocomplete="off">
    </label>
    <label class="form-label w-100">Textarea
      <textarea class="form-control" name="my-textarea" rows="3"></textarea>
    </label>
    <label class="form-label w-100">Disabled input
      <input class="form-control" type="text" name="my-disabled" placeholder="Disabled input" disabled>
    </label>
    <button type="submit" class="btn btn-outline-primary mt-3">Submit</button>
  </form>
</main>
</body>
</html>`

const submittedHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>` + SubmittedTitle + `</title></head>
<body>
<main class="container">
  <h1 class="display-6">Form submitted</h1>
  <p class="lead" id="message">` + ReceivedText + `</p>
  <p id="echo">%s</p>
</main>
</body>
</html>`

// NewSite serves an HTML copy of the web form for tests that drive a real
// browser. The form is at URL+FormPath; every other path serves it too.
func NewSite(t testing.TB) *httptest.Server {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == SubmittedPath {
			fmt.Fprintf(w, submittedHTML, html.EscapeString(r.URL.Query().Get("my-text")))
			return
		}
		fmt.Fprint(w, formHTML)
	}))
	t.Cleanup(s.Close)
	return s
}

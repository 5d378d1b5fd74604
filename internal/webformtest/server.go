// Package webformtest provides an in-process WebDriver remote end that
// models the Selenium web form page. Tests drive it through the real
// client to check what the client puts on the wire and how the scenario
// reacts to driver errors, without a browser.
package webformtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// W3C and legacy element reference keys.
const (
	webElementID    = "element-6066-11e4-a52e-4f735466cecf"
	legacyElementID = "ELEMENT"
)

// Element is a node of a fake page.
type Element struct {
	ID, Name, Tag, Class string
	// Text is the rendered text of the element.
	Text string
	// Value is the current value of an input element.
	Value  string
	Hidden bool
	// OnClick runs with the server lock held when the element is clicked.
	OnClick func(s *Session)
}

// Page is a fake document.
type Page struct {
	URL      string
	Title    string
	Elements []*Element
}

// Command is a request received by the server.
type Command struct {
	// Name is the WebDriver command name, e.g. "navigate to" or "element click".
	Name   string
	Method string
	Path   string
	Body   map[string]interface{}
}

// Session is a fake browser session.
type Session struct {
	ID           string
	Capabilities map[string]interface{}
	// Implicit is the implicit wait in milliseconds last set by the client.
	Implicit float64
	// PageLoad and Script are the other timeouts, in milliseconds.
	PageLoad, Script float64

	server *Server
	page   *Page
	refs   map[string]ref
}

type ref struct {
	elem *Element
	page *Page
}

// Navigate loads the registered page for url, or an empty page.
func (s *Session) Navigate(url string) {
	s.page = s.server.load(url)
}

// Page returns the current page.
func (s *Session) Page() *Page {
	return s.page
}

// Server is a fake WebDriver remote end.
type Server struct {
	*httptest.Server

	// Legacy makes the server reply in the JSON wire protocol format.
	Legacy bool

	mu       sync.Mutex
	pages    map[string]func() *Page
	prefixes []prefixPage
	sessions map[string]*Session
	commands []Command
	failures map[string]string
	nextID   int
}

// NewServer starts a server with no registered pages. It is closed when the
// test finishes.
func NewServer(t testing.TB) *Server {
	s := NewHandler()
	s.Server = httptest.NewServer(s)
	t.Cleanup(s.Close)
	return s
}

// NewHandler returns a server that is not listening, to be mounted in
// another HTTP server.
func NewHandler() *Server {
	return &Server{
		pages:    make(map[string]func() *Page),
		sessions: make(map[string]*Session),
		failures: make(map[string]string),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handle(w, r)
}

// AddPage registers a page constructor for url. A fresh page is built on
// every navigation.
func (s *Server) AddPage(url string, page func() *Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = page
}

// Fail makes every subsequent command with the given name reply with the W3C
// error code.
func (s *Server) Fail(command, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[command] = code
}

// Commands returns the commands received so far.
func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// CommandNames returns the names of the commands received so far.
func (s *Server) CommandNames() []string {
	var names []string
	for _, c := range s.Commands() {
		names = append(names, c.Name)
	}
	return names
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Session returns the live session with the given ID, or nil.
func (s *Server) Session(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *Server) load(url string) *Page {
	if f, ok := s.pages[url]; ok {
		p := f()
		p.URL = url
		return p
	}
	for _, pp := range s.prefixes {
		if strings.HasPrefix(url, pp.prefix) {
			p := pp.page()
			p.URL = url
			return p
		}
	}
	return &Page{URL: url}
}

type wdError struct {
	status int
	code   string
	msg    string
}

// legacyStatus maps W3C error codes to JSON wire protocol status codes.
var legacyStatus = map[string]int{
	"invalid session id":       6,
	"no such element":          7,
	"unknown command":          9,
	"stale element reference":  10,
	"element not interactable": 11,
	"unknown error":            13,
	"javascript error":         17,
	"invalid selector":         32,
	"session not created":      33,
	"invalid argument":         61,
}

func errStatus(code string) int {
	switch code {
	case "no such element", "invalid session id", "unknown command", "stale element reference":
		return http.StatusNotFound
	case "invalid argument", "invalid selector", "element not interactable", "element click intercepted":
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func newError(code, format string, args ...interface{}) *wdError {
	return &wdError{status: errStatus(code), code: code, msg: fmt.Sprintf(format, args...)}
}

func (s *Server) reply(w http.ResponseWriter, sessionID string, value interface{}, werr *wdError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	var body map[string]interface{}
	switch {
	case werr != nil && s.Legacy:
		status, ok := legacyStatus[werr.code]
		if !ok {
			status = 13
		}
		w.WriteHeader(http.StatusInternalServerError)
		body = map[string]interface{}{
			"sessionId": sessionID,
			"status":    status,
			"value":     map[string]string{"message": werr.msg},
		}
	case werr != nil:
		w.WriteHeader(werr.status)
		body = map[string]interface{}{
			"value": map[string]string{
				"error":      werr.code,
				"message":    werr.msg,
				"stacktrace": "",
			},
		}
	case s.Legacy:
		body = map[string]interface{}{
			"sessionId": sessionID,
			"status":    0,
			"value":     value,
		}
	default:
		body = map[string]interface{}{"value": value}
	}
	json.NewEncoder(w).Encode(body)
}

func (s *Server) elementRef(id string) map[string]string {
	if s.Legacy {
		return map[string]string{legacyElementID: id}
	}
	return map[string]string{webElementID: id}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := make(map[string]interface{})
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body) // empty bodies are allowed
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	name, sessionID, value, werr := s.route(r.Method, parts, body)
	s.commands = append(s.commands, Command{Name: name, Method: r.Method, Path: r.URL.Path, Body: body})
	s.reply(w, sessionID, value, werr)
}

func (s *Server) route(method string, parts []string, body map[string]interface{}) (string, string, interface{}, *wdError) {
	if len(parts) == 1 && parts[0] == "status" {
		return "status", "", map[string]interface{}{"ready": true, "message": "fake remote end ready"}, nil
	}
	if len(parts) == 0 || parts[0] != "session" {
		return "unknown", "", nil, newError("unknown command", "unknown path %q", strings.Join(parts, "/"))
	}
	if len(parts) == 1 && method == http.MethodPost {
		if code, ok := s.failures["new session"]; ok {
			return "new session", "", nil, newError(code, "injected failure")
		}
		v, id := s.newSession(body)
		return "new session", id, v, nil
	}
	if len(parts) < 2 {
		return "unknown", "", nil, newError("unknown command", "no session in path")
	}

	id := parts[1]
	sess, ok := s.sessions[id]
	rest := parts[2:]
	name := commandName(method, rest)
	if !ok {
		return name, id, nil, newError("invalid session id", "session %s does not exist", id)
	}
	if code, ok := s.failures[name]; ok {
		return name, id, nil, newError(code, "injected failure")
	}
	v, werr := s.sessionCommand(sess, name, rest, body)
	return name, id, v, werr
}

func commandName(method string, rest []string) string {
	path := strings.Join(rest, "/")
	switch {
	case path == "" && method == http.MethodDelete:
		return "delete session"
	case path == "" && method == http.MethodGet:
		return "get capabilities"
	case path == "url" && method == http.MethodPost:
		return "navigate to"
	case path == "url":
		return "get current url"
	case path == "title":
		return "get title"
	case path == "source":
		return "get page source"
	case path == "timeouts", path == "timeouts/implicit_wait", path == "timeouts/async_script":
		return "set timeouts"
	case path == "element":
		return "find element"
	case path == "elements":
		return "find elements"
	case path == "screenshot":
		return "take screenshot"
	case path == "se/log", path == "log":
		return "get log"
	case path == "execute/sync", path == "execute":
		return "execute script"
	case len(rest) >= 3 && rest[0] == "element":
		switch rest[2] {
		case "value":
			return "element send keys"
		case "click":
			return "element click"
		case "clear":
			return "element clear"
		case "text":
			return "get element text"
		case "name":
			return "get element tag name"
		case "attribute":
			return "get element attribute"
		case "displayed":
			return "is element displayed"
		case "enabled":
			return "is element enabled"
		}
	}
	return "unknown"
}

func (s *Server) newSession(body map[string]interface{}) (interface{}, string) {
	s.nextID++
	id := fmt.Sprintf("session-%d", s.nextID)

	caps, _ := body["desiredCapabilities"].(map[string]interface{})
	if c, ok := body["capabilities"].(map[string]interface{}); ok {
		if am, ok := c["alwaysMatch"].(map[string]interface{}); ok {
			caps = am
		}
	}
	sess := &Session{
		ID:           id,
		Capabilities: caps,
		server:       s,
		page:         &Page{URL: "about:blank"},
		refs:         make(map[string]ref),
	}
	s.sessions[id] = sess

	if s.Legacy {
		return caps, id
	}
	return map[string]interface{}{
		"sessionId":    id,
		"capabilities": caps,
	}, id
}

func (s *Server) sessionCommand(sess *Session, name string, rest []string, body map[string]interface{}) (interface{}, *wdError) {
	switch name {
	case "delete session":
		delete(s.sessions, sess.ID)
		return nil, nil
	case "get capabilities":
		return sess.Capabilities, nil
	case "navigate to":
		url, _ := body["url"].(string)
		if url == "" {
			return nil, newError("invalid argument", "missing url")
		}
		sess.Navigate(url)
		return nil, nil
	case "get current url":
		return sess.page.URL, nil
	case "get title":
		return sess.page.Title, nil
	case "get page source":
		return fmt.Sprintf("<html><head><title>%s</title></head></html>", sess.page.Title), nil
	case "set timeouts":
		if v, ok := body["implicit"].(float64); ok {
			sess.Implicit = v
		}
		if v, ok := body["pageLoad"].(float64); ok {
			sess.PageLoad = v
		}
		if v, ok := body["script"].(float64); ok {
			sess.Script = v
		}
		// Legacy clients send {"ms": n}, typed or on a per-timeout path.
		if v, ok := body["ms"].(float64); ok {
			switch {
			case strings.Join(rest, "/") == "timeouts/async_script":
				sess.Script = v
			case body["type"] == "page load":
				sess.PageLoad = v
			default:
				sess.Implicit = v
			}
		}
		return nil, nil
	case "find element", "find elements":
		elems, werr := s.find(sess, body)
		if werr != nil {
			return nil, werr
		}
		if name == "find element" {
			if len(elems) == 0 {
				return nil, newError("no such element", "unable to locate element: %v", body["value"])
			}
			return s.elementRef(s.addRef(sess, elems[0])), nil
		}
		refs := make([]map[string]string, 0, len(elems))
		for _, e := range elems {
			refs = append(refs, s.elementRef(s.addRef(sess, e)))
		}
		return refs, nil
	case "take screenshot":
		return base64.StdEncoding.EncodeToString([]byte("\x89PNG fake " + sess.page.URL)), nil
	case "get log":
		return []map[string]interface{}{
			{"level": "INFO", "message": "page " + sess.page.URL, "timestamp": 1700000000000},
		}, nil
	case "execute script":
		script, _ := body["script"].(string)
		if strings.Contains(script, "document.title") {
			return sess.page.Title, nil
		}
		return nil, nil
	}

	if len(rest) < 3 || rest[0] != "element" {
		return nil, newError("unknown command", "unknown command %q", strings.Join(rest, "/"))
	}
	r, ok := sess.refs[rest[1]]
	if !ok {
		return nil, newError("no such element", "unknown element reference %s", rest[1])
	}
	if r.page != sess.page {
		return nil, newError("stale element reference", "element %s is not attached to the page document", rest[1])
	}
	e := r.elem

	switch name {
	case "element send keys":
		if e.Hidden {
			return nil, newError("element not interactable", "element is not visible")
		}
		if text, ok := body["text"].(string); ok {
			e.Value += text
			return nil, nil
		}
		if keys, ok := body["value"].([]interface{}); ok {
			for _, k := range keys {
				str, _ := k.(string)
				e.Value += str
			}
			return nil, nil
		}
		return nil, newError("invalid argument", "missing text")
	case "element click":
		if e.Hidden {
			return nil, newError("element not interactable", "element is not visible")
		}
		if e.OnClick != nil {
			e.OnClick(sess)
		}
		return nil, nil
	case "element clear":
		e.Value = ""
		return nil, nil
	case "get element text":
		if e.Hidden {
			return "", nil
		}
		return e.Text, nil
	case "get element tag name":
		return e.Tag, nil
	case "get element attribute":
		if len(rest) < 4 {
			return nil, newError("invalid argument", "missing attribute name")
		}
		switch rest[3] {
		case "id":
			return e.ID, nil
		case "name":
			return e.Name, nil
		case "value":
			return e.Value, nil
		}
		return nil, nil
	case "is element displayed":
		return !e.Hidden, nil
	case "is element enabled":
		return true, nil
	}
	return nil, newError("unknown command", "unknown element command %q", rest[2])
}

func (s *Server) addRef(sess *Session, e *Element) string {
	s.nextID++
	id := fmt.Sprintf("element-%d", s.nextID)
	sess.refs[id] = ref{elem: e, page: sess.page}
	return id
}

var (
	nameSelector = regexp.MustCompile(`^\*?\[name=["'](.*)["']\]$`)
	cssEscape    = regexp.MustCompile(`(?s)\\(?:([0-9a-fA-F]{1,6}) ?|(.))`)
)

// unescape decodes the backslash and code point escapes of a CSS identifier.
func unescape(s string) string {
	return cssEscape.ReplaceAllStringFunc(s, func(esc string) string {
		m := cssEscape.FindStringSubmatch(esc)
		if m[1] == "" {
			return m[2]
		}
		n, err := strconv.ParseUint(m[1], 16, 32)
		if err != nil {
			return esc
		}
		return string(rune(n))
	})
}

func (s *Server) find(sess *Session, body map[string]interface{}) ([]*Element, *wdError) {
	using, _ := body["using"].(string)
	value, _ := body["value"].(string)

	var match func(e *Element) bool
	switch using {
	case "id":
		match = func(e *Element) bool { return e.ID == value }
	case "name":
		if !s.Legacy {
			return nil, newError("invalid argument", "invalid locator strategy %q", using)
		}
		match = func(e *Element) bool { return e.Name == value }
	case "tag name":
		match = func(e *Element) bool { return e.Tag == value }
	case "class name":
		match = func(e *Element) bool { return e.Class == value }
	case "css selector":
		switch m := nameSelector.FindStringSubmatch(value); {
		case strings.HasPrefix(value, "#"):
			id := unescape(value[1:])
			match = func(e *Element) bool { return e.ID == id }
		case strings.HasPrefix(value, "."):
			class := unescape(value[1:])
			match = func(e *Element) bool { return e.Class == class }
		case m != nil:
			name := unescape(m[1])
			match = func(e *Element) bool { return e.Name == name }
		case regexp.MustCompile(`^[a-z][a-z0-9]*$`).MatchString(value):
			match = func(e *Element) bool { return e.Tag == value }
		default:
			return nil, newError("invalid selector", "unsupported selector %q", value)
		}
	default:
		return nil, newError("invalid argument", "invalid locator strategy %q", using)
	}

	var found []*Element
	for _, e := range sess.page.Elements {
		if match(e) {
			found = append(found, e)
		}
	}
	return found, nil
}

// Remote WebDriver client implementation.
// See https://www.w3.org/TR/webdriver for the protocol.

package webdriver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/wanmail/webform/log"
)

const (
	// Success is the legacy status code that indicates the method was
	// successful. W3C replies carry no status code and decode to Success.
	Success = 0
	// DefaultExecutor is the default executor URL.
	DefaultExecutor = "http://127.0.0.1:4444/wd/hub"
	// JSONType is JSON content type.
	JSONType = "application/json"
	// MaxRedirects is the maximum number of redirects to follow.
	MaxRedirects = 10
	// RequestTimeout bounds a single round trip to the remote end. Session
	// creation starts a browser, so this is generous.
	RequestTimeout = 5 * time.Minute
)

// webElementID is the W3C key for element references.
const webElementID = "element-6066-11e4-a52e-4f735466cecf"

// legacyElementID is the JSON wire protocol key for element references.
const legacyElementID = "ELEMENT"

var debugFlag atomic.Bool

// SetDebug forces wire-level request and response logging. Without it, the
// dumps are emitted at glog verbosity 2.
func SetDebug(debug bool) {
	debugFlag.Store(debug)
}

func debugLog(format string, args ...interface{}) {
	if debugFlag.Load() {
		glog.Infof(format, args...)
		return
	}
	glog.V(2).Infof(format, args...)
}

var httpClient *http.Client

type remoteWD struct {
	id, urlPrefix string
	capabilities  Capabilities
	// sessionCaps holds the capabilities returned by the remote end.
	sessionCaps Capabilities

	w3cCompatible bool
}

// NewRemote creates new remote client, this will also start a new session.
// capabilities is the desired capabilities. urlPrefix is the URL to the
// WebDriver server, which *must* be prefixed with protocol (http, https).
//
// An empty urlPrefix means DefaultExecutor.
func NewRemote(capabilities Capabilities, urlPrefix string) (WebDriver, error) {
	if urlPrefix == "" {
		urlPrefix = DefaultExecutor
	}

	wd := &remoteWD{
		urlPrefix:    strings.TrimSuffix(urlPrefix, "/"),
		capabilities: capabilities,
	}
	if _, err := wd.NewSession(); err != nil {
		return nil, err
	}
	return wd, nil
}

// DeleteSession deletes an existing session at the WebDriver instance
// specified by the urlPrefix and the session ID.
func DeleteSession(urlPrefix, id string) error {
	u := strings.TrimSuffix(urlPrefix, "/") + "/session/" + id
	req, err := newRequest(http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		buf, _ := io.ReadAll(resp.Body)
		return replyError(resp, buf)
	}
	return nil
}

func newRequest(method string, url string, data []byte) (*http.Request, error) {
	request, err := http.NewRequest(method, url, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	request.Header.Add("Accept", JSONType)
	if data != nil {
		request.Header.Add("Content-Type", JSONType+";charset=utf-8")
	}
	return request, nil
}

func isMimeType(response *http.Response, mtype string) bool {
	return strings.HasPrefix(response.Header.Get("Content-Type"), mtype)
}

func cleanNils(buf []byte) {
	for i, b := range buf {
		if b == 0 {
			buf[i] = ' '
		}
	}
}

func (wd *remoteWD) requestURL(template string, args ...interface{}) string {
	return wd.urlPrefix + fmt.Sprintf(template, args...)
}

type serverReply struct {
	// SessionID and Status are only set by JSON wire protocol servers.
	SessionID *string
	Status    int

	Value json.RawMessage
}

// replyError decodes the error in a failed reply. It understands both the
// W3C {"value": {"error": ...}} shape and the legacy numeric status.
func replyError(response *http.Response, buf []byte) error {
	reply := new(serverReply)
	if err := json.Unmarshal(buf, reply); err != nil {
		return &Error{
			Err:      "unknown error",
			Message:  fmt.Sprintf("bad server reply status: %s", response.Status),
			HTTPCode: response.StatusCode,
		}
	}

	if reply.Status != Success {
		var detail struct {
			Message string `json:"message"`
		}
		json.Unmarshal(reply.Value, &detail) // best effort; message is optional
		e := legacyError(reply.Status, detail.Message)
		e.HTTPCode = response.StatusCode
		return e
	}

	e := new(Error)
	if err := json.Unmarshal(reply.Value, e); err != nil || e.Err == "" {
		return &Error{
			Err:      "unknown error",
			Message:  fmt.Sprintf("bad server reply status: %s", response.Status),
			HTTPCode: response.StatusCode,
		}
	}
	e.HTTPCode = response.StatusCode
	return e
}

func (wd *remoteWD) execute(method, url string, data []byte) ([]byte, error) {
	debugLog("-> %s %s\n%s", method, url, data)
	request, err := newRequest(method, url, data)
	if err != nil {
		return nil, err
	}

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	buf, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading reply to %s %s: %v", method, url, err)
	}
	debugLog("<- %s [%s]\n%s", response.Status, response.Header.Get("Content-Type"), buf)

	cleanNils(buf)
	if response.StatusCode >= 400 {
		return nil, replyError(response, buf)
	}

	if isMimeType(response, JSONType) {
		reply := new(serverReply)
		if err := json.Unmarshal(buf, reply); err != nil {
			return nil, err
		}
		if reply.Status != Success {
			return nil, replyError(response, buf)
		}
	}

	// Nothing may be returned, this is OK for some commands.
	return buf, nil
}

// decodeValue unmarshals the "value" member of a reply into v.
func decodeValue(buf []byte, v interface{}) error {
	reply := new(serverReply)
	if err := json.Unmarshal(buf, reply); err != nil {
		return err
	}
	if len(reply.Value) == 0 {
		return errors.New("reply has no value")
	}
	return json.Unmarshal(reply.Value, v)
}

func (wd *remoteWD) voidCommand(urlTemplate string, params interface{}) error {
	data := []byte("{}")
	if params != nil {
		var err error
		data, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}
	_, err := wd.execute(http.MethodPost, wd.requestURL(urlTemplate, wd.id), data)
	return err
}

func (wd *remoteWD) stringCommand(urlTemplate string) (string, error) {
	response, err := wd.execute(http.MethodGet, wd.requestURL(urlTemplate, wd.id), nil)
	if err != nil {
		return "", err
	}

	var value *string
	if err := decodeValue(response, &value); err != nil {
		return "", err
	}
	if value == nil {
		return "", errors.New("nil return value")
	}
	return *value, nil
}

func (wd *remoteWD) boolCommand(urlTemplate string) (bool, error) {
	response, err := wd.execute(http.MethodGet, wd.requestURL(urlTemplate, wd.id), nil)
	if err != nil {
		return false, err
	}

	var value bool
	if err := decodeValue(response, &value); err != nil {
		return false, err
	}
	return value, nil
}

func (wd *remoteWD) Status() (*Status, error) {
	reply, err := wd.execute(http.MethodGet, wd.requestURL("/status"), nil)
	if err != nil {
		return nil, err
	}

	status := new(Status)
	if err := decodeValue(reply, status); err != nil {
		return nil, err
	}
	return status, nil
}

func (wd *remoteWD) NewSession() (string, error) {
	message := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": wd.capabilities,
		},
		"desiredCapabilities": wd.capabilities,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return "", err
	}

	response, err := wd.execute(http.MethodPost, wd.requestURL("/session"), data)
	if err != nil {
		return "", err
	}

	reply := new(serverReply)
	if err := json.Unmarshal(response, reply); err != nil {
		return "", err
	}

	// JSON wire protocol servers put the session ID at the top level.
	if reply.SessionID != nil {
		wd.id = *reply.SessionID
		wd.w3cCompatible = false
		caps := make(Capabilities)
		json.Unmarshal(reply.Value, &caps) // capabilities are informational
		wd.sessionCaps = caps
		return wd.id, nil
	}

	var value struct {
		SessionID    string       `json:"sessionId"`
		Capabilities Capabilities `json:"capabilities"`
	}
	if err := json.Unmarshal(reply.Value, &value); err != nil {
		return "", err
	}
	if value.SessionID == "" {
		return "", &Error{Err: "session not created", Message: "reply did not include a session ID"}
	}
	wd.id = value.SessionID
	wd.sessionCaps = value.Capabilities
	wd.w3cCompatible = true
	return wd.id, nil
}

// SessionID returns the current session ID.
func (wd *remoteWD) SessionID() string {
	return wd.id
}

func (wd *remoteWD) Capabilities() (Capabilities, error) {
	// W3C removed the "get capabilities" command; the new session reply is
	// the only source.
	if wd.w3cCompatible {
		return wd.sessionCaps, nil
	}

	response, err := wd.execute(http.MethodGet, wd.requestURL("/session/%s", wd.id), nil)
	if err != nil {
		return nil, err
	}
	c := make(Capabilities)
	if err := decodeValue(response, &c); err != nil {
		return nil, err
	}
	return c, nil
}

func millis(d time.Duration) uint {
	return uint(d / time.Millisecond)
}

func (wd *remoteWD) SetAsyncScriptTimeout(timeout time.Duration) error {
	if !wd.w3cCompatible {
		return wd.voidCommand("/session/%s/timeouts/async_script", map[string]uint{
			"ms": millis(timeout),
		})
	}
	return wd.voidCommand("/session/%s/timeouts", map[string]uint{
		"script": millis(timeout),
	})
}

func (wd *remoteWD) SetImplicitWaitTimeout(timeout time.Duration) error {
	if !wd.w3cCompatible {
		return wd.voidCommand("/session/%s/timeouts/implicit_wait", map[string]uint{
			"ms": millis(timeout),
		})
	}
	return wd.voidCommand("/session/%s/timeouts", map[string]uint{
		"implicit": millis(timeout),
	})
}

func (wd *remoteWD) SetPageLoadTimeout(timeout time.Duration) error {
	if !wd.w3cCompatible {
		return wd.voidCommand("/session/%s/timeouts", map[string]interface{}{
			"ms":   millis(timeout),
			"type": "page load",
		})
	}
	return wd.voidCommand("/session/%s/timeouts", map[string]uint{
		"pageLoad": millis(timeout),
	})
}

func (wd *remoteWD) Quit() error {
	if wd.id == "" {
		return nil
	}
	_, err := wd.execute(http.MethodDelete, wd.requestURL("/session/%s", wd.id), nil)
	if err == nil {
		wd.id = ""
	}
	return err
}

func (wd *remoteWD) Get(url string) error {
	return wd.voidCommand("/session/%s/url", map[string]string{
		"url": url,
	})
}

func (wd *remoteWD) CurrentURL() (string, error) {
	return wd.stringCommand("/session/%s/url")
}

func (wd *remoteWD) Title() (string, error) {
	return wd.stringCommand("/session/%s/title")
}

func (wd *remoteWD) PageSource() (string, error) {
	return wd.stringCommand("/session/%s/source")
}

func (wd *remoteWD) find(by, value, suffix, url string) ([]byte, error) {
	if wd.w3cCompatible {
		by, value = w3cLocator(by, value)
	}
	data, err := json.Marshal(map[string]string{
		"using": by,
		"value": value,
	})
	if err != nil {
		return nil, err
	}

	if url == "" {
		url = "/session/%s/element"
	}
	return wd.execute(http.MethodPost, wd.requestURL(url+suffix, wd.id), data)
}

func elementID(ref map[string]string) (string, error) {
	if id, ok := ref[webElementID]; ok {
		return id, nil
	}
	if id, ok := ref[legacyElementID]; ok {
		return id, nil
	}
	return "", fmt.Errorf("invalid element returned: %+v", ref)
}

func (wd *remoteWD) decodeElement(data []byte) (WebElement, error) {
	var ref map[string]string
	if err := decodeValue(data, &ref); err != nil {
		return nil, err
	}
	id, err := elementID(ref)
	if err != nil {
		return nil, err
	}
	return &remoteWE{parent: wd, id: id}, nil
}

func (wd *remoteWD) decodeElements(data []byte) ([]WebElement, error) {
	var refs []map[string]string
	if err := decodeValue(data, &refs); err != nil {
		return nil, err
	}

	elems := make([]WebElement, len(refs))
	for i, ref := range refs {
		id, err := elementID(ref)
		if err != nil {
			return nil, err
		}
		elems[i] = &remoteWE{parent: wd, id: id}
	}
	return elems, nil
}

func (wd *remoteWD) FindElement(by, value string) (WebElement, error) {
	response, err := wd.find(by, value, "", "")
	if err != nil {
		return nil, err
	}
	return wd.decodeElement(response)
}

func (wd *remoteWD) FindElements(by, value string) ([]WebElement, error) {
	response, err := wd.find(by, value, "s", "")
	if err != nil {
		return nil, err
	}
	return wd.decodeElements(response)
}

func (wd *remoteWD) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	if args == nil {
		args = make([]interface{}, 0)
	}
	data, err := json.Marshal(map[string]interface{}{
		"script": script,
		"args":   args,
	})
	if err != nil {
		return nil, err
	}

	path := "/session/%s/execute"
	if wd.w3cCompatible {
		path += "/sync"
	}
	response, err := wd.execute(http.MethodPost, wd.requestURL(path, wd.id), data)
	if err != nil {
		return nil, err
	}

	var value interface{}
	if err := decodeValue(response, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func (wd *remoteWD) Screenshot() ([]byte, error) {
	data, err := wd.stringCommand("/session/%s/screenshot")
	if err != nil {
		return nil, err
	}

	// The remote end returns a base64 encoded PNG.
	decoder := base64.NewDecoder(base64.StdEncoding, strings.NewReader(data))
	return io.ReadAll(decoder)
}

func (wd *remoteWD) Log(typ log.Type) ([]log.Message, error) {
	data, err := json.Marshal(map[string]log.Type{
		"type": typ,
	})
	if err != nil {
		return nil, err
	}

	// ChromeDriver serves the log command under the Selenium prefix in W3C mode.
	path := "/session/%s/log"
	if wd.w3cCompatible {
		path = "/session/%s/se/log"
	}
	response, err := wd.execute(http.MethodPost, wd.requestURL(path, wd.id), data)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		Timestamp int64
		Level     string
		Message   string
	}
	if err := decodeValue(response, &entries); err != nil {
		return nil, err
	}

	messages := make([]log.Message, len(entries))
	for i, e := range entries {
		messages[i] = log.Message{
			Timestamp: time.Unix(0, e.Timestamp*int64(time.Millisecond)),
			Level:     log.Level(e.Level),
			Message:   e.Message,
		}
	}
	return messages, nil
}

func (wd *remoteWD) WaitWithTimeoutAndInterval(condition Condition, timeout, interval time.Duration) error {
	startTime := time.Now()

	for {
		done, err := condition(wd)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if elapsed := time.Since(startTime); elapsed > timeout {
			return &Error{Err: "timeout", Message: fmt.Sprintf("condition not met after %s", elapsed)}
		}
		time.Sleep(interval)
	}
}

func (wd *remoteWD) WaitWithTimeout(condition Condition, timeout time.Duration) error {
	return wd.WaitWithTimeoutAndInterval(condition, timeout, DefaultWaitInterval)
}

func (wd *remoteWD) Wait(condition Condition) error {
	return wd.WaitWithTimeoutAndInterval(condition, DefaultWaitTimeout, DefaultWaitInterval)
}

type remoteWE struct {
	parent *remoteWD
	id     string
}

func (elem *remoteWE) ID() string {
	return elem.id
}

func (elem *remoteWE) Click() error {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/click", elem.id)
	return elem.parent.voidCommand(urlTemplate, nil)
}

func (elem *remoteWE) SendKeys(keys string) error {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/value", elem.id)
	return elem.parent.voidCommand(urlTemplate, processKeyString(keys))
}

func processKeyString(keys string) interface{} {
	chars := make([]string, 0, len(keys))
	for _, c := range keys {
		chars = append(chars, string(c))
	}
	return map[string]interface{}{
		"value": chars,
		"text":  keys,
	}
}

func (elem *remoteWE) Clear() error {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/clear", elem.id)
	return elem.parent.voidCommand(urlTemplate, nil)
}

func (elem *remoteWE) TagName() (string, error) {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/name", elem.id)
	return elem.parent.stringCommand(urlTemplate)
}

func (elem *remoteWE) Text() (string, error) {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/text", elem.id)
	return elem.parent.stringCommand(urlTemplate)
}

func (elem *remoteWE) GetAttribute(name string) (string, error) {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/attribute/%s", elem.id, name)
	return elem.parent.stringCommand(urlTemplate)
}

func (elem *remoteWE) IsDisplayed() (bool, error) {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/displayed", elem.id)
	return elem.parent.boolCommand(urlTemplate)
}

func (elem *remoteWE) IsEnabled() (bool, error) {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/enabled", elem.id)
	return elem.parent.boolCommand(urlTemplate)
}

func (elem *remoteWE) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		legacyElementID: elem.id,
		webElementID:    elem.id,
	})
}

func init() {
	// http.Client doesn't copy request headers, and the remote end requires them.
	httpClient = &http.Client{
		Timeout: RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > MaxRedirects {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}

			req.Header.Add("Accept", JSONType)
			return nil
		},
	}
}

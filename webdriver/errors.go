package webdriver

import "fmt"

// Error is an error reported by the remote end.
type Error struct {
	// Err is the W3C error code, e.g. "no such element".
	Err string `json:"error"`
	// Message is the human-readable detail supplied by the driver.
	Message string `json:"message"`
	// Stacktrace is the driver-side stack trace, if any.
	Stacktrace string `json:"stacktrace"`
	// HTTPCode is the HTTP status of the reply.
	HTTPCode int `json:"-"`
	// LegacyCode is the JSON wire protocol status, if the reply used one.
	LegacyCode int `json:"-"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Err
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

// Is reports whether target is an *Error with the same W3C error code, so
// that errors.Is(err, ErrNoSuchElement) matches any "no such element" reply.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == e.Err
}

// Sentinel errors for the W3C error codes callers commonly branch on.
var (
	ErrNoSuchElement           = &Error{Err: "no such element"}
	ErrNoSuchSession           = &Error{Err: "invalid session id"}
	ErrStaleElement            = &Error{Err: "stale element reference"}
	ErrElementNotInteractable  = &Error{Err: "element not interactable"}
	ErrInvalidSelector         = &Error{Err: "invalid selector"}
	ErrInvalidArgument         = &Error{Err: "invalid argument"}
	ErrTimeout                 = &Error{Err: "timeout"}
	ErrScriptTimeout           = &Error{Err: "script timeout"}
	ErrUnknownCommand          = &Error{Err: "unknown command"}
	ErrSessionNotCreated       = &Error{Err: "session not created"}
	ErrUnexpectedAlertOpen     = &Error{Err: "unexpected alert open"}
	ErrJavascriptError         = &Error{Err: "javascript error"}
	ErrElementClickIntercepted = &Error{Err: "element click intercepted"}
)

// legacyErrors maps JSON wire protocol status codes to W3C error codes.
var legacyErrors = map[int]string{
	6:  "invalid session id",
	7:  "no such element",
	8:  "no such frame",
	9:  "unknown command",
	10: "stale element reference",
	11: "element not interactable",
	12: "invalid element state",
	13: "unknown error",
	15: "element not selectable",
	17: "javascript error",
	19: "invalid selector",
	21: "timeout",
	23: "no such window",
	24: "invalid cookie domain",
	25: "unable to set cookie",
	26: "unexpected alert open",
	27: "no such alert",
	28: "script timeout",
	29: "invalid element coordinates",
	32: "invalid selector",
	33: "session not created",
	34: "move target out of bounds",
}

func legacyError(status int, message string) *Error {
	code, ok := legacyErrors[status]
	if !ok {
		code = fmt.Sprintf("unknown error - %d", status)
	}
	return &Error{Err: code, Message: message, LegacyCode: status}
}

package webdriver

import (
	"fmt"
	"strings"
)

// cssSpecial are the printable ASCII characters escaped with a backslash.
const cssSpecial = " !\"#$%&'()*+,-./:;<=>?@[\\]^`{|}~"

// cssEscape escapes s for use as a CSS identifier. Control characters and a
// leading digit are written as code point escapes.
func cssEscape(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case r < 0x20 || r == 0x7f, i == 0 && r >= '0' && r <= '9':
			fmt.Fprintf(&b, `\%x `, r)
		case strings.ContainsRune(cssSpecial, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToCSS rewrites the id, name and class name strategies as CSS selectors.
// Those strategies are not part of the W3C specification. It reports false
// for strategies that cannot be expressed as CSS (xpath, link text).
func ToCSS(by, value string) (string, bool) {
	switch by {
	case ByCSSSelector:
		return value, true
	case ByID:
		return "#" + cssEscape(value), true
	case ByName:
		return fmt.Sprintf(`*[name="%s"]`, cssEscape(value)), true
	case ByClassName:
		return "." + cssEscape(value), true
	case ByTagName:
		return value, true
	}
	return "", false
}

// w3cLocator returns the strategy and value to send to a W3C remote end.
func w3cLocator(by, value string) (string, string) {
	switch by {
	case ByID, ByName, ByClassName:
		css, _ := ToCSS(by, value)
		return ByCSSSelector, css
	}
	return by, value
}

package driverman

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/blang/semver"
)

// BrowserVersion is an installed browser version. Chrome versions have four
// components; Semver holds the first three.
type BrowserVersion struct {
	Full   string
	Semver semver.Version
}

// Major is the major version number.
func (v BrowserVersion) Major() int {
	return int(v.Semver.Major)
}

func (v BrowserVersion) String() string {
	return v.Full
}

var versionRE = regexp.MustCompile(`\d+(?:\.\d+)+`)

// ParseVersion extracts the version from the output of `<browser> --version`,
// e.g. "Google Chrome 126.0.6478.126" or "Mozilla Firefox 128.0.3".
func ParseVersion(out string) (BrowserVersion, error) {
	full := versionRE.FindString(out)
	if full == "" {
		return BrowserVersion{}, fmt.Errorf("no version number in %q", strings.TrimSpace(out))
	}
	parts := strings.Split(full, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	v, err := semver.ParseTolerant(strings.Join(parts, "."))
	if err != nil {
		return BrowserVersion{}, fmt.Errorf("parsing version %q: %v", full, err)
	}
	return BrowserVersion{Full: full, Semver: v}, nil
}

// browserBinaries are the executables tried for each browser, in order.
var browserBinaries = map[string][]string{
	"chrome":  {"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"},
	"firefox": {"firefox"},
}

// execCommand is replaced in tests.
var execCommand = exec.CommandContext

// DetectBrowserVersion runs the browser with --version. An empty path
// searches PATH for the usual binary names.
func DetectBrowserVersion(ctx context.Context, browser, path string) (BrowserVersion, error) {
	candidates := []string{path}
	if path == "" {
		candidates = nil
		for _, name := range browserBinaries[browser] {
			if p, err := exec.LookPath(name); err == nil {
				candidates = append(candidates, p)
			}
		}
	}
	if len(candidates) == 0 {
		return BrowserVersion{}, fmt.Errorf("%s is not installed: none of %v found in PATH", browser, browserBinaries[browser])
	}

	var lastErr error
	for _, p := range candidates {
		out, err := execCommand(ctx, p, "--version").Output()
		if err != nil {
			lastErr = fmt.Errorf("%s --version: %v", p, err)
			continue
		}
		return ParseVersion(string(out))
	}
	return BrowserVersion{}, lastErr
}

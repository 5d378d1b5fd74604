package driverman

import (
	"fmt"
	"path"
	"regexp"
)

// Platform is an operating system and architecture pair, as in runtime.GOOS
// and runtime.GOARCH.
type Platform struct {
	OS, Arch string
}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// chromeForTesting returns the Chrome for Testing platform name, used for
// Chrome 115 and later.
func (p Platform) chromeForTesting() (string, error) {
	switch p {
	case Platform{"linux", "amd64"}:
		return "linux64", nil
	case Platform{"darwin", "amd64"}:
		return "mac-x64", nil
	case Platform{"darwin", "arm64"}:
		return "mac-arm64", nil
	case Platform{"windows", "amd64"}:
		return "win64", nil
	case Platform{"windows", "386"}:
		return "win32", nil
	}
	return "", fmt.Errorf("no chromedriver build for %s", p)
}

// legacyChrome returns the platform suffix of the chromedriver bucket, used
// before Chrome 115.
func (p Platform) legacyChrome() (string, error) {
	switch p {
	case Platform{"linux", "amd64"}:
		return "linux64", nil
	case Platform{"darwin", "amd64"}:
		return "mac64", nil
	case Platform{"darwin", "arm64"}:
		return "mac_arm64", nil
	case Platform{"windows", "amd64"}, Platform{"windows", "386"}:
		return "win32", nil
	}
	return "", fmt.Errorf("no legacy chromedriver build for %s", p)
}

// geckodriverAsset matches the release asset for the platform.
func (p Platform) geckodriverAsset() (string, error) {
	var suffix string
	switch p {
	case Platform{"linux", "amd64"}:
		suffix = `linux64\.tar\.gz`
	case Platform{"linux", "arm64"}:
		suffix = `linux-aarch64\.tar\.gz`
	case Platform{"darwin", "amd64"}:
		suffix = `macos\.tar\.gz`
	case Platform{"darwin", "arm64"}:
		suffix = `macos-aarch64\.tar\.gz`
	case Platform{"windows", "amd64"}:
		suffix = `win64\.zip`
	case Platform{"windows", "386"}:
		suffix = `win32\.zip`
	default:
		return "", fmt.Errorf("no geckodriver build for %s", p)
	}
	return `^geckodriver-v[0-9.]+-` + suffix + `$`, nil
}

// Chrome for Testing storage.
const (
	// FirstChromeForTesting is the first Chrome major version whose driver is
	// published through Chrome for Testing.
	FirstChromeForTesting = 115

	ChromeForTestingBucket = "chrome-for-testing-public"
	LegacyChromeBucket     = "chromedriver"

	// DefaultChromeForTestingURL serves the LATEST_RELEASE_<major> files.
	DefaultChromeForTestingURL = "https://googlechromelabs.github.io/chrome-for-testing"
)

var chromeVersionRE = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)

// chromedriverObject returns the bucket and object holding the chromedriver
// archive for a driver version.
func chromedriverObject(p Platform, major int, version string) (bucket, object string, err error) {
	if major >= FirstChromeForTesting {
		plat, err := p.chromeForTesting()
		if err != nil {
			return "", "", err
		}
		return ChromeForTestingBucket, path.Join(version, plat, "chromedriver-"+plat+".zip"), nil
	}
	plat, err := p.legacyChrome()
	if err != nil {
		return "", "", err
	}
	return LegacyChromeBucket, path.Join(version, "chromedriver_"+plat+".zip"), nil
}

// Package chrome provides Chrome-specific options for WebDriver.
package chrome

import (
	"fmt"
	"os"
	"path/filepath"

	crx3 "github.com/mediabuyerbot/go-crx3"
)

// CapabilitiesKey is the key in the top-level Capabilities map under which
// ChromeDriver expects the Chrome-specific options to be set.
const CapabilitiesKey = "goog:chromeOptions"

// Capabilities defines the Chrome-specific desired capabilities when using
// ChromeDriver. An instance of this struct can be stored in the Capabilities
// map with a key of CapabilitiesKey ("goog:chromeOptions"). See
// https://developer.chrome.com/docs/chromedriver/capabilities
type Capabilities struct {
	// Path is the file path to the Chrome binary to use.
	Path string `json:"binary,omitempty"`
	// Args are the command-line arguments to pass to the Chrome binary, in
	// addition to the ChromeDriver-supplied ones.
	Args []string `json:"args,omitempty"`
	// ExcludeSwitches are the command line flags that should be removed from
	// the ChromeDriver-supplied default flags. The strings included here should
	// not include a preceding '--'.
	ExcludeSwitches []string `json:"excludeSwitches,omitempty"`
	// Extensions are the list of extensions to install at startup. The
	// elements of this list should be the base-64, padded contents of a CRX3
	// file. Use AddExtension or AddUnpackedExtension to fill it.
	Extensions []string `json:"extensions,omitempty"`
	// Prefs are the key/value pairs that are applied to the preferences of the
	// user profile in use.
	Prefs map[string]interface{} `json:"prefs,omitempty"`
	// Detach, if true, will cause the browser to not be killed when
	// ChromeDriver quits if the session was not terminated.
	Detach *bool `json:"detach,omitempty"`
	// DebuggerAddr is the TCP/IP address of a Chrome debugger server to connect
	// to.
	DebuggerAddr string `json:"debuggerAddress,omitempty"`
	// MobileEmulation provides options for mobile emulation.
	MobileEmulation *MobileEmulation `json:"mobileEmulation,omitempty"`
	// W3C selects the protocol dialect. ChromeDriver 75 and later speak W3C
	// unless this is explicitly false.
	W3C *bool `json:"w3c,omitempty"`
}

// MobileEmulation provides options for mobile emulation. Only
// DeviceName or both of DeviceMetrics and UserAgent may be set at once.
type MobileEmulation struct {
	// DeviceName is the name of the device to emulate, e.g. "Pixel 7".
	DeviceName string `json:"deviceName,omitempty"`
	// DeviceMetrics provides specifications of an device to emulate.
	DeviceMetrics *DeviceMetrics `json:"deviceMetrics,omitempty"`
	// UserAgent specifies the user agent string to send to the remote web
	// server.
	UserAgent string `json:"userAgent,omitempty"`
}

// DeviceMetrics specifies device attributes for emulation.
type DeviceMetrics struct {
	Width      uint    `json:"width"`
	Height     uint    `json:"height"`
	PixelRatio float64 `json:"pixelRatio"`
	// Touch indicates whether to emulate touch events. The default is true, if
	// unset.
	Touch *bool `json:"touch,omitempty"`
}

// Headless adds the flags that run Chrome without a display.
func (c *Capabilities) Headless() {
	c.Args = append(c.Args, "--headless=new", "--disable-gpu")
}

// AddExtension adds a packed CRX3 extension for the browser to load at
// startup. The contents of the file are loaded into memory, as required by
// the protocol.
func (c *Capabilities) AddExtension(path string) error {
	if !crx3.Extension(path).IsCRX3() {
		return fmt.Errorf("%s is not a CRX3 extension", path)
	}
	data, err := crx3.Extension(path).Base64()
	if err != nil {
		return fmt.Errorf("encoding extension %s: %v", path, err)
	}
	c.Extensions = append(c.Extensions, string(data))
	return nil
}

// AddUnpackedExtension packs the extension directory at basePath with a
// freshly generated key and causes the browser to load it at startup.
func (c *Capabilities) AddUnpackedExtension(basePath string) error {
	dir, err := os.MkdirTemp("", "webform-crx")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	key, err := crx3.NewPrivateKey()
	if err != nil {
		return err
	}
	packed := filepath.Join(dir, filepath.Base(filepath.Clean(basePath))+".crx")
	if err := crx3.Pack(basePath, packed, key); err != nil {
		return fmt.Errorf("packing extension %s: %v", basePath, err)
	}
	return c.AddExtension(packed)
}

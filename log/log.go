// Package log holds the types used to request and read browser and driver
// logs through WebDriver.
package log

import (
	"fmt"
	"strings"
	"time"
)

// Type names a log source.
type Type string

// Log sources known to ChromeDriver and the Selenium server.
const (
	Server      Type = "server"
	Browser     Type = "browser"
	Client      Type = "client"
	Driver      Type = "driver"
	Performance Type = "performance"
)

// Level is the severity of a log entry, or the minimum severity to collect.
type Level string

// The valid log levels.
const (
	Off     Level = "OFF"
	Severe  Level = "SEVERE"
	Warning Level = "WARNING"
	Info    Level = "INFO"
	Debug   Level = "DEBUG"
	All     Level = "ALL"
)

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToUpper(s)); l {
	case Off, Severe, Warning, Info, Debug, All:
		return l, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// CapabilitiesKey is the capability under which ChromeDriver reads the
// logging preferences. It has been vendor prefixed since Chrome 75.
const CapabilitiesKey = "goog:loggingPrefs"

// Capabilities maps each log source to the minimum level to collect.
type Capabilities map[Type]Level

// Message is one entry returned by the Log command.
type Message struct {
	Timestamp time.Time
	Level     Level
	Message   string
}

func (m Message) String() string {
	return fmt.Sprintf("%s [%s] %s", m.Timestamp.Format(time.RFC3339), m.Level, m.Message)
}

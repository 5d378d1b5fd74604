package main

import (
	"bytes"
	"testing"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "webform" {
		t.Errorf("expected use 'webform', got %q", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("expected non-empty descriptions")
	}
	if cmd.Version == "" {
		t.Error("expected non-empty version")
	}
	if !cmd.SilenceUsage || !cmd.SilenceErrors {
		t.Error("expected usage and errors to be silenced")
	}

	t.Run("has config flag", func(t *testing.T) {
		flag := cmd.PersistentFlags().Lookup("config")
		if flag == nil {
			t.Fatal("expected config flag")
		}
		if flag.Shorthand != "c" {
			t.Errorf("expected shorthand 'c', got %q", flag.Shorthand)
		}
	})

	t.Run("has db flag", func(t *testing.T) {
		if cmd.PersistentFlags().Lookup("db") == nil {
			t.Fatal("expected db flag")
		}
	})

	t.Run("logs to stderr", func(t *testing.T) {
		flag := cmd.PersistentFlags().Lookup("logtostderr")
		if flag == nil {
			t.Fatal("expected the glog flags")
		}
		if flag.DefValue != "true" {
			t.Errorf("expected logtostderr default 'true', got %q", flag.DefValue)
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		want := map[string]bool{"run": false, "setup": false, "history": false, "version": false}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected subcommand %q", name)
			}
		}
	})
}

func TestNewRunCmdFlags(t *testing.T) {
	cmd := NewRunCmd()

	defaults := map[string]string{
		"url":                   "https://www.selenium.dev/selenium/web/web-form.html",
		"text":                  "Selenium",
		"browser":               "chrome",
		"backend":               "webdriver",
		"headless":              "true",
		"remote-url":            "",
		"driver-path":           "",
		"browser-path":          "",
		"proxy":                 "",
		"implicit-wait":         "500ms",
		"page-load-timeout":     "0s",
		"wire-debug":            "false",
		"screenshot-on-failure": "",
		"expect":                "",
		"xvfb":                  "false",
		"browser-log-level":     "",
	}
	for name, want := range defaults {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			t.Errorf("expected flag %q to exist", name)
			continue
		}
		if f.DefValue != want {
			t.Errorf("flag %q: expected default %q, got %q", name, want, f.DefValue)
		}
	}
}

func TestNewHistoryCmdFlags(t *testing.T) {
	f := NewHistoryCmd().Flags().Lookup("limit")
	if f == nil {
		t.Fatal("expected limit flag")
	}
	if f.Shorthand != "n" || f.DefValue != "10" {
		t.Errorf("limit flag: got shorthand %q default %q, want n and 10", f.Shorthand, f.DefValue)
	}
}

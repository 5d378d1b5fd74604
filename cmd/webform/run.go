package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wanmail/webform"
	"github.com/wanmail/webform/internal/backend"
	"github.com/wanmail/webform/internal/config"
	"github.com/wanmail/webform/internal/driverman"
	"github.com/wanmail/webform/internal/store"
	"github.com/wanmail/webform/webdriver"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the web form scenario once",
		Long: `Run opens the form, types the text into the text box, clicks submit and
prints the confirmation message. The browser is closed whether or not a step
fails. Every run is recorded in the history database.

Examples:
  # Headless Chrome over WebDriver, with a matching ChromeDriver downloaded
  webform run

  # Firefox with a window, failing unless the form confirms the submission
  webform run --browser firefox --headless=false --expect Received!

  # A Selenium Grid
  webform run --remote-url http://localhost:4444/wd/hub

  # Chrome over the DevTools protocol
  webform run --backend rod`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	def := config.Default()
	f := cmd.Flags()
	f.String("url", def.URL, "Address of the web form")
	f.String("text", def.Text, "Text typed into the text box")
	f.String("browser", def.Browser, "Browser: chrome or firefox")
	f.String("backend", def.Backend, "Automation backend: webdriver, chromedp or rod")
	f.Bool("headless", def.Headless, "Run the browser without a window")
	f.String("remote-url", "", "WebDriver executor or DevTools endpoint to use instead of a local browser")
	f.String("driver-path", "", "Driver binary to use instead of downloading one")
	f.String("browser-path", "", "Browser binary (default: found in PATH)")
	f.String("proxy", "", "SOCKS5 proxy as host:port")
	f.Duration("implicit-wait", def.ImplicitWait, "How long element lookups wait for a match")
	f.Duration("page-load-timeout", 0, "How long a navigation may take (default: the browser's)")
	f.String("screenshot-on-failure", "", "Save a screenshot to this file when a step fails")
	f.String("expect", "", "Fail unless the confirmation message is exactly this")
	f.Bool("xvfb", false, "Run a headful browser in an Xvfb frame buffer")
	f.String("browser-log-level", "", "Collect the browser console at this level and log it at the end")
	f.Bool("wire-debug", false, "Log every WebDriver request and response")

	return cmd
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(f *pflag.FlagSet, cfg *config.Config) error {
	stringFlags := map[string]*string{
		"url":                   &cfg.URL,
		"text":                  &cfg.Text,
		"browser":               &cfg.Browser,
		"backend":               &cfg.Backend,
		"remote-url":            &cfg.RemoteURL,
		"driver-path":           &cfg.DriverPath,
		"browser-path":          &cfg.BrowserPath,
		"proxy":                 &cfg.Proxy,
		"screenshot-on-failure": &cfg.ScreenshotOnFailure,
		"expect":                &cfg.Expect,
		"browser-log-level":     &cfg.BrowserLogLevel,
	}
	for name, p := range stringFlags {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetString(name)
		if err != nil {
			return err
		}
		*p = v
	}

	boolFlags := map[string]*bool{
		"headless": &cfg.Headless,
		"xvfb":     &cfg.Xvfb,
	}
	for name, p := range boolFlags {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetBool(name)
		if err != nil {
			return err
		}
		*p = v
	}

	durationFlags := map[string]*time.Duration{
		"implicit-wait":     &cfg.ImplicitWait,
		"page-load-timeout": &cfg.PageLoadTimeout,
	}
	for name, p := range durationFlags {
		if !f.Changed(name) {
			continue
		}
		d, err := f.GetDuration(name)
		if err != nil {
			return err
		}
		*p = d
	}
	return nil
}

// buildConfig merges the configuration file and the flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	wireDebug, err := cmd.Flags().GetBool("wire-debug")
	if err != nil {
		return err
	}
	if wireDebug {
		webdriver.SetDebug(true)
		defer webdriver.SetDebug(false)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	run := store.Run{
		StartedAt: time.Now(),
		Backend:   cfg.Backend,
		Browser:   cfg.Browser,
		URL:       cfg.URL,
	}
	res, err := runScenario(ctx, cfg, st)
	run.FinishedAt = time.Now()
	if err != nil {
		run.Status = store.StatusFailed
		run.Error = err.Error()
	} else {
		run.Status = store.StatusOK
		run.Title = res.Title
		run.Message = res.Message
	}
	if _, rerr := st.RecordRun(context.WithoutCancel(ctx), &run); rerr != nil {
		glog.Warningf("run not recorded: %v", rerr)
	}
	if err != nil {
		return err
	}

	glog.Infof("run %d finished in %s", run.ID, run.Duration().Round(time.Millisecond))
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}

func runScenario(ctx context.Context, cfg *config.Config, st *store.Store) (*webform.Result, error) {
	drivers := driverman.New(config.DriverDir(), st, cfg.DriverCacheTTL)
	s, err := backend.Open(ctx, cfg, backend.WithDriverProvider(drivers))
	if err != nil {
		return nil, err
	}
	return cfg.Scenario().Run(ctx, s)
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wanmail/webform/internal/config"
	"github.com/wanmail/webform/internal/driverman"
)

// NewSetupCmd creates the setup command.
func NewSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup [browser...]",
		Short: "Download the drivers matching the installed browsers",
		Long: `Setup detects the version of each browser and downloads the matching
ChromeDriver or GeckoDriver, so that a later run does not have to.
Without arguments it prepares the configured browser.

Examples:
  webform setup
  webform setup chrome firefox`,
		RunE: runSetupCmd,
	}
}

func runSetupCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{cfg.Browser}
	}
	reqs := make([]driverman.Request, len(args))
	for i, b := range args {
		if _, err := driverman.DriverFor(b); err != nil {
			return err
		}
		reqs[i] = driverman.Request{Browser: b}
		// browser_path describes the configured browser only.
		if b == cfg.Browser {
			reqs[i].BrowserPath = cfg.BrowserPath
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	paths, err := driverman.New(config.DriverDir(), st, cfg.DriverCacheTTL).SetupAll(ctx, reqs...)
	if err != nil {
		return err
	}
	for i, p := range paths {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", reqs[i].Browser, p)
	}
	return nil
}

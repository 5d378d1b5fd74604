package main

import (
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/wanmail/webform/internal/config"
	"github.com/wanmail/webform/internal/store"
)

// logToStderr makes glog write to stderr unless told otherwise.
var logToStderr sync.Once

// NewRootCmd creates the root command for webform.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webform",
		Short: "Fill in a web form in a real browser",
		Long: `webform opens the Selenium web form in a browser, types into its text box,
submits it and prints the confirmation message.

Browsers are driven over W3C WebDriver (ChromeDriver, GeckoDriver or a
Selenium Grid) or over the Chrome DevTools protocol with chromedp or rod.
Drivers are downloaded to match the installed browser.

Settings are read from .webform.yaml in the current directory or
$XDG_CONFIG_HOME/webform/config.yaml, then from flags.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .webform.yaml or $XDG_CONFIG_HOME/webform/config.yaml)")
	cmd.PersistentFlags().String("db", "",
		"Run history database (default: $XDG_DATA_HOME/webform/webform.db)")

	logToStderr.Do(func() {
		if f := flag.CommandLine.Lookup("logtostderr"); f != nil {
			f.DefValue = "true"
			_ = f.Value.Set("true")
		}
	})
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewSetupCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	err := NewRootCmd().Execute()
	glog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file named by --config, or the default
// one, and applies --db.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	db, err := cmd.Flags().GetString("db")
	if err != nil {
		return nil, err
	}
	if db != "" {
		cfg.DBPath = db
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DBPath, err)
	}
	return st, nil
}

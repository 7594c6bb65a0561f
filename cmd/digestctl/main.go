package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lysyi3m/rss-digest/app/bootstrap"
	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/logging"
)

var (
	dbFile string
	debug  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "digestctl",
		Short:         "Operate an RSS Digest database from the command line",
		Long:          "Runs the same operations as the HTTP API against a local database.\nConfiguration is read from the environment, like the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dbFile, "db-file", "", "SQLite database file (overrides DB_FILE)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		sourcesCmd(),
		seedCmd(),
		fetchCmd(),
		pollCmd(),
		digestCmd(),
		summarizeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openApp loads configuration from the environment and wires the components.
func openApp() (*bootstrap.App, error) {
	appCfg, err := cfg.Load(nil)
	if err != nil {
		return nil, err
	}
	if dbFile != "" {
		appCfg.DBFile = dbFile
	}

	logging.Setup(debug || appCfg.Debug)

	return bootstrap.New(appCfg)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

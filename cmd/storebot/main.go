package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	app := &app{}
	if err := newRootCmd(app).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(app *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "storebot",
		Short:         "Telegram storefront bot with an admin API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.syncLogger()
		},
	}
	rootCmd.PersistentFlags().StringVar(&app.envFile, "env-file", ".env", "dotenv file layered under the process environment")

	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newBroadcastCmd(app))
	rootCmd.AddCommand(newSeedCmd(app))
	return rootCmd
}

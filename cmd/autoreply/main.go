package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"helpdesk-autoreply/internal/app"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "autoreply",
	Short:         "Draft, review and send helpdesk replies",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the approval API and the polling scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and seed default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Migrate(); err != nil {
			return err
		}
		logrus.Info("Migration complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, pollCmd, sendCmd, migrateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("autoreply: %v", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"helpdesk-autoreply/internal/app"
	"helpdesk-autoreply/internal/poller"
)

// --- poll ---

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one polling pass and print its report",
	Long: `Run one polling pass and print its report.

Examples:
  autoreply poll
  autoreply poll --hours 72 --dry-run
  autoreply poll --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, _ := cmd.Flags().GetInt("hours")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		force, _ := cmd.Flags().GetBool("force")

		if hours < 0 {
			return fmt.Errorf("--hours must not be negative")
		}

		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, err := a.Poll(ctx, poller.Options{
			HoursLookback: hours,
			DryRun:        dryRun,
			Force:         force,
		})
		if report != nil {
			if encErr := printJSON(report); encErr != nil {
				return encErr
			}
		}
		return err
	},
}

// --- send ---

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send every approved draft",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		results, err := a.SendApproved(ctx)
		if err != nil {
			return err
		}
		if err := printJSON(results); err != nil {
			return err
		}

		for _, r := range results {
			if r.Error != "" {
				return fmt.Errorf("one or more drafts failed to send")
			}
		}
		return nil
	},
}

// --- token ---

var tokenCmd = &cobra.Command{
	Use:   "token <reviewer>",
	Short: "Print a bearer token for the approval API",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := app.IssueToken(args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime")

	pollCmd.Flags().Int("hours", 0, "lookback window in hours (defaults to the hours_lookback setting)")
	pollCmd.Flags().Bool("dry-run", false, "compose drafts without writing anything")
	pollCmd.Flags().Bool("force", false, "run even when polling is disabled")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

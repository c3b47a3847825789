package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"brigadebot/internal/usecases"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and seed the team catalogue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), cfg, log, false)
		if err != nil {
			return err
		}
		a.Close()
		return nil
	},
}

var reportDryRun bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build today's report and send it to the master chat",
	Example: `  brigadebot report --dry-run
  brigadebot report`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, log, !reportDryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		if reportDryRun {
			text, err := a.reports.Build(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		}
		return a.reports.SendDaily(ctx)
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:         "hash-password",
	Short:       "Print a bcrypt hash for ADMIN_PASSWORD_HASH (reads the password from stdin)",
	Annotations: map[string]string{"config": "none"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return fmt.Errorf("empty password")
		}
		hash, err := usecases.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportDryRun, "dry-run", false, "print the report instead of sending it")
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"brigadebot/internal/config"
	"brigadebot/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "brigadebot",
	Short: "Telegram bot for field brigades backed by Bitrix24",
	Long: `brigadebot lets workers pick their brigade, close Bitrix24 tasks from
Telegram and sends a daily report of closed tasks per brigade.

Run "serve" for the webhook and admin API, "worker" for the daily report
scheduler.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["config"] == "none" {
			log = logger.New("brigadebot", os.Getenv("APP_ENV"))
			return nil
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		log = logger.New("brigadebot", cfg.Env)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, reportCmd, hashPasswordCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

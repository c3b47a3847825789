package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"brigadebot/internal/infrastructure"
	httpapi "brigadebot/internal/interfaces/http"
	"brigadebot/internal/interfaces/telegram"
	"brigadebot/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	reportTimeout   = 10 * time.Minute
	shutdownTimeout = 15 * time.Second
	sweepInterval   = 5 * time.Minute
	idleTTL         = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram webhook and admin API",
	Long: `Registers the webhook with Telegram and serves:
  POST /webhook/<secret>  Telegram updates
  GET  /health            liveness and database check
  /api/...                admin API (JWT)

With RUN_WORKER_IN_APP=true the daily report scheduler runs in the same process.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.telegram.RegisterWebhook(cfg.WebhookURL()); err != nil {
		return err
	}
	log.Infow("webhook registered", "base", cfg.WebhookBase)

	deduper, closeDedup, err := newDeduper(ctx)
	if err != nil {
		return err
	}
	defer closeDedup()

	limiter := infrastructure.NewMessageRateLimiter(1, 5)
	sessions := infrastructure.NewSessionManager(2 * time.Second)
	dispatcher := telegram.NewDispatcher(a.telegram, a.membership, a.tasks, a.reports,
		limiter, sessions, log)
	mw := httpapi.NewMiddleware(cfg.JWTSecret)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.SetupRoutes(r, httpapi.Dependencies{
		WebhookSecret: cfg.WebhookSecret,
		Deduper:       deduper,
		Dispatcher:    dispatcher,
		Auth:          usecases.NewAuthUsecase(cfg.AdminPasswordHash, cfg.JWTSecret),
		Membership:    a.membership,
		Invites:       usecases.NewInviteUsecase(a.teams, a.telegram.Username()),
		Tasks:         a.tasks,
		Reports:       a.reports,
		Actions:       a.actions,
		DB:            a.db,
		Middleware:    mw,
		Log:           log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		dispatcher.Wait()
		log.Infow("http server stopped")
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Sweep(); n > 0 {
					log.Debugw("rate limiter swept", "removed", n)
				}
				if n := sessions.Sweep(idleTTL); n > 0 {
					log.Debugw("sessions swept", "removed", n)
				}
				if n := mw.SweepRateLimiters(idleTTL); n > 0 {
					log.Debugw("api rate limiters swept", "removed", n)
				}
			}
		}
	})
	if cfg.RunWorkerInApp {
		scheduler, err := a.newScheduler()
		if err != nil {
			return err
		}
		g.Go(func() error { return scheduler.Run(gctx) })
	}

	return g.Wait()
}

// newDeduper uses Redis when REDIS_URL is set so that several instances
// share the seen set.
func newDeduper(ctx context.Context) (infrastructure.UpdateDeduper, func(), error) {
	if cfg.RedisURL == "" {
		log.Infow("update dedup in memory")
		return infrastructure.NewMemoryDeduper(), func() {}, nil
	}
	d, err := infrastructure.NewRedisDeduper(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	log.Infow("update dedup in redis")
	return d, func() { _ = d.Close() }, nil
}

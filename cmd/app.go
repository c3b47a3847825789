package main

import (
	"context"
	"fmt"

	"brigadebot/internal/config"
	"brigadebot/internal/infrastructure"
	"brigadebot/internal/interfaces"
	"brigadebot/internal/logger"
	"brigadebot/internal/repository"
	"brigadebot/internal/usecases"
)

// app holds the components shared by every command.
type app struct {
	cfg config.Config
	log *logger.Logger

	db       *infrastructure.PostgresClient
	bitrix   *infrastructure.BitrixClient
	telegram *infrastructure.TelegramClient

	users   *repository.UserRepository
	teams   *repository.TeamRepository
	actions *repository.TaskActionRepository

	membership *usecases.MembershipUsecase
	tasks      *usecases.TaskUsecase
	reports    *usecases.ReportUsecase

	teamOrder []int64
}

// newApp connects to Postgres, applies the schema and seeds the team
// catalogue. Telegram is only contacted when withTelegram is set.
func newApp(ctx context.Context, cfg config.Config, log *logger.Logger, withTelegram bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	db, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.db = db

	if err := a.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a.users = repository.NewUserRepository(db.Pool)
	a.actions = repository.NewTaskActionRepository(db.Pool)
	a.bitrix = infrastructure.NewBitrixClient(cfg.BitrixWebhookBase, cfg.B24Domain)

	var messenger interfaces.Messenger
	if withTelegram {
		a.telegram, err = infrastructure.NewTelegramClient(cfg.BotToken)
		if err != nil {
			db.Close()
			return nil, err
		}
		messenger = a.telegram
		log.Infow("telegram bot authorized", "username", a.telegram.Username())
	}

	a.membership = usecases.NewMembershipUsecase(a.users, a.teams, a.bitrix, cfg.AdminTelegramIDs)
	a.tasks = usecases.NewTaskUsecase(a.bitrix, a.actions, log)
	a.reports = usecases.NewReportUsecase(a.users, a.teams, a.bitrix, messenger, cfg.ReportLocation, cfg.MasterReportChatID, log).
		WithTeamOrder(a.teamOrder)
	return a, nil
}

func (a *app) bootstrap(ctx context.Context) error {
	if err := a.db.Migrate(ctx); err != nil {
		return err
	}

	catalog, err := repository.LoadTeamCatalog(a.cfg.TeamsFile)
	if err != nil {
		return fmt.Errorf("load team catalogue: %w", err)
	}
	a.teams = repository.NewTeamRepository(a.db.Pool)
	if err := a.teams.Seed(ctx, catalog); err != nil {
		return fmt.Errorf("seed teams: %w", err)
	}
	for _, t := range catalog {
		a.teamOrder = append(a.teamOrder, t.ID)
	}
	a.log.Infow("schema ready", "teams", len(catalog))
	return nil
}

func (a *app) Close() {
	a.db.Close()
}

// newScheduler registers the daily report job.
func (a *app) newScheduler() (*usecases.SchedulerService, error) {
	s := usecases.NewSchedulerService(a.cfg.ReportLocation, a.log)
	if _, err := s.ScheduleDaily(a.cfg.ReportHour, 0, reportTimeout, "daily_report", a.reports.SendDaily); err != nil {
		return nil, err
	}
	a.log.Infow("daily report scheduled", "hour", a.cfg.ReportHour, "tz", a.cfg.ReportLocation.String())
	return s, nil
}

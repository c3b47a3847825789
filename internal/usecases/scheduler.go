package usecases

import (
	"context"
	"fmt"
	"time"

	"brigadebot/internal/logger"

	"github.com/robfig/cron/v3"
)

// SchedulerService wraps cron-based jobs.
type SchedulerService struct {
	cron *cron.Cron
	log  *logger.Logger
}

func NewSchedulerService(loc *time.Location, log *logger.Logger) *SchedulerService {
	return &SchedulerService{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		log:  log.Named("scheduler"),
	}
}

// ScheduleDaily registers job to run every day at hour:minute local time.
// Each run gets its own timeout so a hung Bitrix call cannot stall the next day.
func (s *SchedulerService) ScheduleDaily(hour, minute int, timeout time.Duration, name string, job func(context.Context) error) (cron.EntryID, error) {
	spec, err := dailySpec(hour, minute)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		started := time.Now()
		if err := job(ctx); err != nil {
			s.log.Errorw("scheduled job failed", "job", name, "error", err)
			return
		}
		s.log.Infow("scheduled job done", "job", name, "took", time.Since(started))
	})
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *SchedulerService) Run(ctx context.Context) error {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Infow("job scheduled", "entry", e.ID, "next", e.Next)
	}
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *SchedulerService) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// dailySpec builds "sec min hour dom month dow".
func dailySpec(hour, minute int) (string, error) {
	if hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %d", hour)
	}
	if minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %d", minute)
	}
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

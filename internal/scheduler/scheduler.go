package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/viniciushammett/go-threat-monitor/internal/config"
	"github.com/viniciushammett/go-threat-monitor/internal/logger"
	"github.com/viniciushammett/go-threat-monitor/internal/notify"
	"github.com/viniciushammett/go-threat-monitor/internal/report"
)

type Builder interface {
	Build(ctx context.Context, p report.Period) (report.Report, error)
}

type Queue interface {
	Enqueue(kind, text string) bool
}

// Scheduler sends period reports on cron expressions (5 fields).
type Scheduler struct {
	log *logger.Logger
	b   Builder
	q   Queue
	c   *cron.Cron
}

func New(log *logger.Logger, b Builder, q Queue) *Scheduler {
	return &Scheduler{
		log: log.Component("scheduler"),
		b:   b,
		q:   q,
		c:   cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Add registers every schedule; an invalid expression aborts registration.
func (s *Scheduler) Add(ctx context.Context, jobs []config.Schedule) error {
	for _, job := range jobs {
		p, err := report.ParsePeriod(job.Period)
		if err != nil {
			return err
		}
		if _, err := s.c.AddFunc(job.Cron, func() { s.Fire(ctx, p) }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", job.Period, job.Cron, err)
		}
		s.log.Info().Str("period", string(p)).Str("cron", job.Cron).Msg("report scheduled")
	}
	return nil
}

// Fire builds one report and queues it for delivery.
func (s *Scheduler) Fire(ctx context.Context, p report.Period) {
	r, err := s.b.Build(ctx, p)
	if err != nil {
		s.log.Error().Err(err).Str("period", string(p)).Msg("scheduled report failed")
		return
	}
	s.q.Enqueue(notify.KindReport, r.Render())
}

func (s *Scheduler) Entries() int { return len(s.c.Entries()) }

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.c.Start()
	<-ctx.Done()
	stopped := s.c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduled job still running at shutdown")
	}
}

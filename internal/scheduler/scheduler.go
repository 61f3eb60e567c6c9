// Package scheduler materializes reservation slots ahead of time. A cron
// job walks the configured weekly templates and inserts the slots for the
// coming horizon through the assignment store, so bookable capacity exists
// before anyone asks for it.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"portal-engine/internal/assignment"
	"portal-engine/internal/common/config"
	"portal-engine/internal/common/logger"
)

type Scheduler struct {
	store *assignment.Store
	cfg   config.SchedulerConfig
	log   logger.Logger
	cron  *cron.Cron
	now   func() time.Time
}

func New(store *assignment.Store, cfg config.SchedulerConfig, log logger.Logger) *Scheduler {
	return &Scheduler{
		store: store,
		cfg:   cfg,
		log:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
		now:   time.Now,
	}
}

// Start registers the materialization job and launches the cron loop. A nil
// return with Enabled=false means the scheduler is a no-op.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.log.Info("slot scheduler disabled", nil)
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.CronSpec, func() {
		s.Materialize(context.Background())
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("slot scheduler started", map[string]interface{}{
		"cron":      s.cfg.CronSpec,
		"templates": len(s.cfg.Templates),
	})
	return nil
}

// Materialize runs one pass over every template. Template failures are
// logged and do not stop the remaining templates.
func (s *Scheduler) Materialize(ctx context.Context) {
	now := s.now()
	for _, tpl := range s.cfg.Templates {
		spec := specFromTemplate(tpl, now)
		slots, err := s.store.CreateSlots(ctx, spec)
		if err != nil {
			s.log.Error("slot materialization failed", map[string]interface{}{
				"weekday": tpl.Weekday,
				"error":   err,
			})
			continue
		}
		s.log.Info("slots materialized", map[string]interface{}{
			"weekday": tpl.Weekday,
			"count":   len(slots),
		})
	}
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// specFromTemplate anchors a weekly template to the concrete date range
// [tomorrow, tomorrow+horizon].
func specFromTemplate(tpl config.SlotTemplate, now time.Time) assignment.SlotSpec {
	horizon := tpl.HorizonDays
	if horizon <= 0 {
		horizon = 14
	}
	from := now.AddDate(0, 0, 1)
	to := from.AddDate(0, 0, horizon)

	return assignment.SlotSpec{
		Weekday:         tpl.Weekday,
		From:            from.Format("2006-01-02"),
		To:              to.Format("2006-01-02"),
		Start:           tpl.Start,
		End:             tpl.End,
		DurationMinutes: tpl.DurationMinutes,
		GapMinutes:      tpl.GapMinutes,
	}
}

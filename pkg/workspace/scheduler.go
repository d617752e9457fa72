package workspace

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/geodeck/authcore/pkg/observability"
)

// reconcileTimeout bounds a single scheduled pass.
const reconcileTimeout = 5 * time.Minute

// Reconciling is anything that can run a reconciliation pass. Satisfied by
// *Reconciler directly and by wrappers that pick the current catalog first.
type Reconciling interface {
	Reconcile(ctx context.Context) (Result, error)
}

// Scheduler runs reconciliation on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	log  *observability.Logger
}

// NewScheduler registers a reconciliation job under the given cron
// expression (standard five-field syntax, e.g. "*/30 * * * *").
func NewScheduler(rec Reconciling, schedule string, log *observability.Logger) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		if _, err := rec.Reconcile(ctx); err != nil {
			log.WithError(err).Error("scheduled reconciliation failed")
		}
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.log.Info("reconciliation schedule started")
	s.cron.Start()
}

// Stop halts scheduling and returns once any running job finishes.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("reconciliation schedule stopped")
}

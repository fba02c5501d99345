package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/oprema/internal/transfer"
)

// Reconciler repairs completed transfers whose holder update failed.
type Reconciler interface {
	Reconcile(ctx context.Context) (transfer.ReconcileResult, error)
}

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler registers the reconciliation sweep on spec. Specs accept an
// optional seconds field and descriptors such as "@every 5m".
func NewScheduler(spec string, r Reconciler, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithParser(cron.NewParser(
			cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
		)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{cron: c, logger: logger}
	if _, err := c.AddFunc(spec, func() { s.reconcile(r) }); err != nil {
		return nil, fmt.Errorf("registering reconcile job: %w", err)
	}
	return s, nil
}

func (s *Scheduler) reconcile(r Reconciler) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := r.Reconcile(ctx)
	if err != nil {
		s.logger.Error("reconciliation sweep failed", "error", err)
		return
	}
	if res.Repaired+res.Superseded+res.Failed > 0 {
		s.logger.Info("reconciliation sweep finished",
			"repaired", res.Repaired, "superseded", res.Superseded, "failed", res.Failed)
	}
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("job scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("job scheduler stopped")
}

// Package scheduler drives the engine's periodic work: the open-PR
// poll sweep and retention cleanup of state for long-closed PRs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openjdk/jmerge/internal/config"
	"github.com/openjdk/jmerge/internal/engine"
	"github.com/openjdk/jmerge/internal/store"
	"github.com/openjdk/jmerge/pkg/logger"
)

const (
	// RetentionSchedule runs the cleanup daily at 2:00 AM.
	RetentionSchedule = "0 2 * * *"

	defaultPollSpec      = "@every 1m"
	defaultRetentionDays = 30
)

// Scheduler owns the cron jobs that feed the engine.
type Scheduler struct {
	engine *engine.Engine
	store  store.Store
	cron   *cron.Cron

	pollSpec      string
	retentionDays int
	log           *zap.SugaredLogger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(cfg config.SchedulerConfig, eng *engine.Engine, st store.Store) *Scheduler {
	pollSpec := cfg.PollSpec
	if pollSpec == "" {
		pollSpec = defaultPollSpec
	}
	retentionDays := cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &Scheduler{
		engine:        eng,
		store:         st,
		cron:          cron.New(),
		pollSpec:      pollSpec,
		retentionDays: retentionDays,
		log:           logger.Sugar().Named("scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.pollSpec, s.poll); err != nil {
		s.cancel()
		return err
	}
	if _, err := s.cron.AddFunc(RetentionSchedule, s.retention); err != nil {
		s.cancel()
		return err
	}
	s.cron.Start()
	s.started = true

	s.log.Infow("scheduler started",
		"poll_spec", s.pollSpec, "retention_days", s.retentionDays)

	// run an initial sweep right away so a restart picks up promptly
	go s.poll()

	return nil
}

// Stop halts the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.cancel()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) poll() {
	start := time.Now()
	s.engine.PollSweep(s.ctx)
	s.log.Debugw("poll sweep finished", "duration", time.Since(start))
}

// retention drops per-PR state, command ledger rows and issue links for
// PRs that have been closed longer than the retention window.
func (s *Scheduler) retention() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	start := time.Now()

	expired, err := s.store.PRState().ListClosedBefore(cutoff)
	if err != nil {
		s.log.Errorw("retention sweep failed", "error", err)
		return
	}
	for _, st := range expired {
		if _, err := s.store.Command().SweepForPR(st.RepoFullName, st.PRNumber); err != nil {
			s.log.Warnw("failed to sweep command ledger",
				"pr", st.RepoFullName, "number", st.PRNumber, "error", err)
		}
		if _, err := s.store.IssueLink().DeleteForPR(st.RepoFullName, st.PRNumber); err != nil {
			s.log.Warnw("failed to sweep issue links",
				"pr", st.RepoFullName, "number", st.PRNumber, "error", err)
		}
	}

	deleted, err := s.store.PRState().SweepClosed(cutoff)
	if err != nil {
		s.log.Errorw("retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.log.Infow("retention sweep completed",
			"deleted", deleted, "cutoff", cutoff, "duration", time.Since(start))
	}
}

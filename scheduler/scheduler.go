// Package scheduler runs periodic maintenance: expired sessions are
// deleted and upload batches nobody resolved are discarded.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-co-op/gocron"
)

const DefaultInterval = 10 * time.Minute

// SessionSweeper deletes expired sessions and reports how many it removed.
type SessionSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// BatchSweeper discards abandoned upload batches.
type BatchSweeper interface {
	Sweep(now time.Time) int
}

// Report summarizes one maintenance run.
type Report struct {
	ExpiredSessions  int64 `json:"expired_sessions"`
	AbandonedUploads int   `json:"abandoned_uploads"`
}

type Scheduler struct {
	sessions SessionSweeper
	uploads  BatchSweeper
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Scheduler. A non-positive interval means DefaultInterval.
func New(sessions SessionSweeper, uploads BatchSweeper, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		sessions: sessions,
		uploads:  uploads,
		interval: interval,
		now:      time.Now,
		logger:   slog.With("component", "scheduler"),
	}
}

// Run starts the periodic job and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	cron := gocron.NewScheduler(time.UTC)
	_, err := cron.Every(s.interval).Tag("maintenance").SingletonMode().Do(func() {
		jobCtx, cancel := context.WithTimeout(ctx, s.interval)
		defer cancel()
		if _, err := s.Tick(jobCtx); err != nil {
			s.logger.Error("maintenance run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}

	cron.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)
	<-ctx.Done()
	cron.Stop()
	return nil
}

// Tick runs one maintenance cycle. Both sweeps always run; their errors
// are joined.
func (s *Scheduler) Tick(ctx context.Context) (Report, error) {
	var report Report
	var errs []error

	if s.sessions != nil {
		n, err := s.sessions.DeleteExpired(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete expired sessions: %w", err))
		}
		report.ExpiredSessions = n
	}
	if s.uploads != nil {
		report.AbandonedUploads = s.uploads.Sweep(s.now())
	}

	if report.ExpiredSessions > 0 || report.AbandonedUploads > 0 {
		s.logger.Info("maintenance run", "expired_sessions", report.ExpiredSessions, "abandoned_uploads", report.AbandonedUploads)
	}
	return report, errors.Join(errs...)
}

// HandleTick is an HTTP handler that triggers a maintenance run.
// Used by an external cron or manual curl requests.
func (s *Scheduler) HandleTick(w http.ResponseWriter, r *http.Request) {
	report, err := s.Tick(r.Context())
	if err != nil {
		s.logger.Error("tick via HTTP failed", "error", err)
		http.Error(w, "scheduler tick failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK: removed %d sessions, %d uploads", report.ExpiredSessions, report.AbandonedUploads)
}

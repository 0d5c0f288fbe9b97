// Package reconcile periodically rebuilds the conversation summary table
// from the message log.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"chatdesk/pkg/config"
	"chatdesk/pkg/logger"
)

var ErrAlreadyRunning = errors.New("reconcile already running")

// Rebuilder is satisfied by *conversations.Aggregator.
type Rebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// Runner serializes rebuilds so scheduled and manual runs never overlap.
type Runner struct {
	target  Rebuilder
	cfg     config.ReconcileConfig
	now     func() time.Time
	mu      sync.Mutex
	running bool
}

func New(target Rebuilder, cfg config.ReconcileConfig) *Runner {
	return &Runner{target: target, cfg: cfg, now: time.Now}
}

// Start launches the schedule loop when enabled. The returned cancel stops it.
func (r *Runner) Start(ctx context.Context) (context.CancelFunc, error) {
	if !r.cfg.Enabled {
		logger.Info("reconcile_disabled")
		return func() {}, nil
	}
	if !gronx.IsValid(r.cfg.Cron) {
		return nil, fmt.Errorf("invalid reconcile cron %q", r.cfg.Cron)
	}
	ctx2, cancel := context.WithCancel(ctx)
	if r.cfg.OnStart {
		r.runJob(ctx2)
	}
	logger.Info("reconcile_enabled", "cron", r.cfg.Cron)
	go r.scheduleLoop(ctx2)
	return cancel, nil
}

// RunOnce rebuilds now. It fails with ErrAlreadyRunning instead of queueing
// behind a run in progress.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return 0, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	start := r.now()
	n, err := r.target.Rebuild(ctx)
	if err != nil {
		return 0, err
	}
	logger.Info("reconcile_run_done", "rows", n, "took", r.now().Sub(start).String())
	return n, nil
}

func (r *Runner) runJob(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			logger.Info("reconcile_skipped", "reason", "already_running")
			return
		}
		logger.Error("reconcile_run_error", "error", err)
	}
}

func (r *Runner) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(r.cfg.Cron, r.now(), false)
		if err != nil {
			logger.Error("reconcile_nexttick_failed", "cron", r.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			r.runJob(ctx)
		case <-ctx.Done():
			return
		}
	}
}

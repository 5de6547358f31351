package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Timer refreshes today's checkpoint on a fixed interval, signing it when a
// signer is configured. A broken chain is logged and retried next tick.
type Timer struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// NewTimer creates a checkpoint timer.
func NewTimer(service *Service, interval time.Duration, logger *slog.Logger) *Timer {
	return &Timer{
		service:  service,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is active.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start runs the loop until ctx ends or Stop is called. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeRun(ctx)
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Timer) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in checkpoint timer", "panic", fmt.Sprint(r))
		}
	}()

	cp, err := t.RunOnce(ctx)
	if err != nil {
		t.logger.Warn("scheduled checkpoint failed", "error", err)
		return
	}
	t.logger.Info("scheduled checkpoint written", "day", cp.Day, "audit_count", cp.AuditCount)
}

// RunOnce writes today's checkpoint.
func (t *Timer) RunOnce(ctx context.Context) (*Checkpoint, error) {
	if t.service.SignerAvailable() {
		signed, err := t.service.CreateSigned(ctx)
		if err != nil {
			return nil, err
		}
		return signed.Checkpoint, nil
	}
	return t.service.Create(ctx)
}

// Package scheduler is the in-process alarm facility: named periodic and one-shot jobs
// driven by a clockwork clock.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
	"github.com/whatasoda/twitch-clips-todo/internal/platform/correlation"
)

var _ domain.Scheduler = (*Scheduler)(nil)

// Guard decides, right before a job fires, whether this process should run it. A false
// result skips that firing only.
type Guard func(ctx context.Context, job string) bool

type Option func(*Scheduler)

// WithGuard consults g before every job run.
func WithGuard(g Guard) Option {
	return func(s *Scheduler) { s.guard = g }
}

type Scheduler struct {
	clock  clockwork.Clock
	guard  Guard
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	periodic map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a scheduler whose jobs are cancelled when ctx is done or Stop is called.
func New(ctx context.Context, clock clockwork.Clock, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		clock:    clock,
		ctx:      ctx,
		cancel:   cancel,
		periodic: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every registers a named periodic job, replacing any previous job with that name.
func (s *Scheduler) Every(name string, interval time.Duration, job domain.Job) {
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	if prev, ok := s.periodic[name]; ok {
		prev()
	}
	s.periodic[name] = cancel
	s.mu.Unlock()

	ticker := s.clock.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.run(ctx, name, job)
			}
		}
	}()

	slog.Debug("Scheduled periodic job", "job", name, "interval", interval)
}

// Once fires a named job a single time after delay.
func (s *Scheduler) Once(name string, delay time.Duration, job domain.Job) {
	timer := s.clock.NewTimer(delay)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.ctx.Done():
			timer.Stop()
		case <-timer.Chan():
			s.run(s.ctx, name, job)
		}
	}()
}

// Cancel removes a periodic job. Unknown names are ignored.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.periodic[name]; ok {
		cancel()
		delete(s.periodic, name)
	}
}

// Stop cancels every job and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, name string, job domain.Job) {
	ctx = correlation.WithID(ctx, correlation.NewID())
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Scheduled job panicked", "job", name, "panic", r)
		}
	}()

	if s.guard != nil && !s.guard(ctx, name) {
		slog.DebugContext(ctx, "Scheduled job skipped by guard", "job", name)
		return
	}

	start := s.clock.Now()
	job(ctx)
	slog.DebugContext(ctx, "Scheduled job finished", "job", name, "duration", s.clock.Since(start))
}

package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrStopped is returned for work submitted after the sequencer stopped.
var ErrStopped = errors.New("sequencer: stopped")

type job struct {
	fn   func() error
	done chan error
}

// Sequencer runs submitted functions one at a time on a single goroutine.
// The marketplace engine and its ledgers are not safe for concurrent use, so
// every mutation and read goes through Do.
type Sequencer struct {
	inbox   chan job
	stopped chan struct{}
	logger  *slog.Logger
}

// New creates a sequencer with the given inbox capacity.
func New(inboxSize int, logger *slog.Logger) *Sequencer {
	if inboxSize <= 0 {
		inboxSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		inbox:   make(chan job, inboxSize),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run processes the inbox until ctx is cancelled. It must be called exactly
// once.
func (s *Sequencer) Run(ctx context.Context) {
	s.logger.Info("sequencer started")
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sequencer stopping")
			return
		case j := <-s.inbox:
			j.done <- s.process(j.fn)
		}
	}
}

func (s *Sequencer) process(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sequencer job panicked", slog.Any("panic", r))
			err = fmt.Errorf("sequencer: panic: %v", r)
		}
	}()
	return fn()
}

// Do queues fn and waits for its result. ctx bounds only the wait for inbox
// space: a queued job always runs to completion so callers never observe a
// half-applied operation.
func (s *Sequencer) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case s.inbox <- j:
	}
	select {
	case err := <-j.done:
		return err
	case <-s.stopped:
		select {
		case err := <-j.done:
			return err
		default:
			return ErrStopped
		}
	}
}

// Stopped is closed once Run returns.
func (s *Sequencer) Stopped() <-chan struct{} { return s.stopped }

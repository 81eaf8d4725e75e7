package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
)

// DefaultEngineQueue is the inbox capacity used when none is given.
const DefaultEngineQueue = 1024

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Engine serializes every call into a Zone or Coordinator on one
// goroutine, so the registry and expeditions need no locks.
//
// @design DS-0105
type Engine struct {
	inbox   chan job
	stopped chan struct{}
	logger  *slog.Logger
}

// NewEngine creates an engine with the given inbox capacity.
func NewEngine(queue int, logger *slog.Logger) *Engine {
	if queue <= 0 {
		queue = DefaultEngineQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		inbox:   make(chan job, queue),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run consumes the inbox until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.inbox:
			err := e.exec(j)
			if j.done != nil {
				j.done <- err
			}
		}
	}
}

func (e *Engine) exec(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine job panicked", "panic", r)
			err = domain.ErrInternal.WithDetails(fmt.Sprint(r))
		}
	}()
	return j.fn(j.ctx)
}

// Do runs fn on the engine goroutine and waits for its result.
func (e *Engine) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case e.inbox <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return domain.ErrInternal.WithDetails("engine stopped")
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return domain.ErrInternal.WithDetails("engine stopped")
	}
}

// Post queues fn without waiting. Returns false when the inbox is full.
func (e *Engine) Post(ctx context.Context, fn func(ctx context.Context) error) bool {
	wrapped := func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			e.logger.Warn("engine job failed", "error", err)
		}
		return nil
	}
	select {
	case e.inbox <- job{ctx: ctx, fn: wrapped}:
		return true
	default:
		return false
	}
}

// Stopped is closed when Run returns.
func (e *Engine) Stopped() <-chan struct{} {
	return e.stopped
}

package vars

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/flowbot/core/logger"
)

// Fallback reads through a durable backend and degrades to process memory
// when the backend errors. Writes go to both while the backend is healthy so
// a later outage still sees the freshest values. An outage is logged once,
// not per call.
type Fallback struct {
	durable  Store
	memory   *Memory
	degraded atomic.Bool
}

// NewFallback wraps a durable store. A nil durable store yields a memory-only
// fallback, which is valid for the "memory" backend configuration.
func NewFallback(durable Store) *Fallback {
	return &Fallback{durable: durable, memory: NewMemory()}
}

// Get prefers the durable backend and primes the memory cache on success.
func (f *Fallback) Get(ctx context.Context, userID int64, name string) (string, bool, error) {
	if f.durable != nil {
		v, ok, err := f.durable.Get(ctx, userID, name)
		if err == nil {
			f.noteRecovered(ctx)
			if ok {
				_ = f.memory.Set(ctx, userID, name, v)
			}
			return v, ok, nil
		}
		f.noteDegraded(ctx, err)
	}
	return f.memory.Get(ctx, userID, name)
}

// Set always lands in memory; the durable write is attempted alongside and
// its failure only degrades, never surfaces.
func (f *Fallback) Set(ctx context.Context, userID int64, name, value string) error {
	if f.durable != nil {
		if err := f.durable.Set(ctx, userID, name, value); err != nil {
			f.noteDegraded(ctx, err)
		} else {
			f.noteRecovered(ctx)
		}
	}
	return f.memory.Set(ctx, userID, name, value)
}

// HasValue applies the non-blank predicate over Get.
func (f *Fallback) HasValue(ctx context.Context, userID int64, name string) (bool, error) {
	v, ok, err := f.Get(ctx, userID, name)
	if err != nil || !ok {
		return false, err
	}
	return nonBlank(v), nil
}

// Clear removes the user's variables from both layers.
func (f *Fallback) Clear(ctx context.Context, userID int64) error {
	if f.durable != nil {
		if err := f.durable.Clear(ctx, userID); err != nil {
			f.noteDegraded(ctx, err)
		}
	}
	return f.memory.Clear(ctx, userID)
}

func (f *Fallback) noteDegraded(ctx context.Context, err error) {
	if f.degraded.CompareAndSwap(false, true) {
		logger.Warn(ctx, "flow.vars", "persistence.unavailable",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func (f *Fallback) noteRecovered(ctx context.Context) {
	if f.degraded.CompareAndSwap(true, false) {
		logger.Info(ctx, "flow.vars", "persistence.recovered",
			slog.String("status", "ok"),
		)
	}
}

package history

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/flowbot/core/flow/engine"
)

func newTestRecorder(queueSize, workers int, insert func(engine.Record) error) *Recorder {
	r := New(nil, queueSize, workers)
	r.insert = insert
	return r
}

func TestRecorderDrainsOnClose(t *testing.T) {
	var mu sync.Mutex
	var got []engine.Record
	r := newTestRecorder(16, 2, func(rec engine.Record) error {
		mu.Lock()
		got = append(got, rec)
		mu.Unlock()
		return nil
	})

	for i := 0; i < 10; i++ {
		r.Observe(engine.Record{UserID: int64(i), Direction: engine.DirectionOut, Text: "hi"})
	}
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 10)
	assert.Zero(t, r.Dropped())
}

func TestRecorderDropsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	r := newTestRecorder(1, 1, func(engine.Record) error {
		<-release
		return nil
	})

	// one record occupies the worker, one fills the queue, the rest drop
	for i := 0; i < 5; i++ {
		r.Observe(engine.Record{UserID: int64(i)})
	}
	// give the worker a moment to take the first record off the queue
	time.Sleep(50 * time.Millisecond)
	assert.GreaterOrEqual(t, r.Dropped(), int64(2))

	close(release)
	r.Close()
}

func TestRecorderIgnoresAfterClose(t *testing.T) {
	r := newTestRecorder(4, 1, func(engine.Record) error { return nil })
	r.Close()
	r.Observe(engine.Record{UserID: 1})
	assert.Zero(t, r.Dropped())
	// double close is a no-op
	r.Close()
}

func TestRecorderObserveDuringClose(t *testing.T) {
	r := newTestRecorder(8, 2, func(engine.Record) error { return nil })

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			<-start
			for j := 0; j < 200; j++ {
				r.Observe(engine.Record{UserID: id})
			}
		}(int64(i))
	}
	close(start)
	r.Close()
	wg.Wait()

	// late records are dropped quietly, never sent on the closed queue
	r.Observe(engine.Record{UserID: 99})
}

func TestRecorderSurvivesInsertErrors(t *testing.T) {
	var calls int
	var mu sync.Mutex
	r := newTestRecorder(4, 1, func(engine.Record) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("connection reset")
	})
	r.Observe(engine.Record{UserID: 1})
	r.Observe(engine.Record{UserID: 2})
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, calls)
}

package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"loginguard/internal/models"
	"loginguard/internal/ratelimit"
)

// DefaultWriteTimeout bounds a single store write when none is configured.
const DefaultWriteTimeout = 5 * time.Second

// Journal is a ratelimit.Observer that records every armed block in a Store.
// Blocked never waits: events are queued on a bounded buffer and written by a
// single background goroutine. When the buffer is full the event is dropped
// and counted.
type Journal struct {
	store        Store
	events       chan *models.BlockEvent
	writeTimeout time.Duration
	logger       *slog.Logger

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewJournal starts a journal writing to store. Close must be called to flush
// queued events and stop the writer.
func NewJournal(store Store, bufferSize int, writeTimeout time.Duration, logger *slog.Logger) *Journal {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	j := &Journal{
		store:        store,
		events:       make(chan *models.BlockEvent, bufferSize),
		writeTimeout: writeTimeout,
		logger:       logger,
	}

	j.wg.Add(1)
	go j.run()
	return j
}

// Blocked queues the block for writing.
func (j *Journal) Blocked(ev ratelimit.BlockEvent) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.dropped.Add(1)
		return
	}

	select {
	case j.events <- models.NewBlockEvent(ev.Identifier, ev.Attempts, ev.BlockedAt, ev.ExpiresAt):
	default:
		j.dropped.Add(1)
		j.logger.Warn("Audit journal buffer full, dropping block event",
			"identifier", ev.Identifier)
	}
}

// Reaped is a no-op; reaper passes are not journaled.
func (j *Journal) Reaped(ratelimit.ReapStats) {}

// Recorded returns the number of events written successfully.
func (j *Journal) Recorded() uint64 { return j.recorded.Load() }

// Dropped returns the number of events discarded because the buffer was full
// or the journal was closed.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Failed returns the number of events the store rejected.
func (j *Journal) Failed() uint64 { return j.failed.Load() }

// Close stops accepting events, writes what is queued and waits for the
// writer to exit. It does not close the underlying store. Calling Close more
// than once is safe.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.events)
	j.mu.Unlock()

	j.wg.Wait()
	return nil
}

func (j *Journal) run() {
	defer j.wg.Done()

	for ev := range j.events {
		j.write(ev)
	}
}

func (j *Journal) write(ev *models.BlockEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), j.writeTimeout)
	defer cancel()

	if err := j.store.Record(ctx, ev); err != nil {
		j.failed.Add(1)
		j.logger.Error("Failed to record block event",
			"identifier", ev.Identifier,
			"error", err)
		return
	}
	j.recorded.Add(1)
}

package ratelimit

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// shard owns the attempt history and block table for the identifiers that
// hash to it. Both maps are guarded by the same mutex so that a check, the
// decision and the resulting write for one identifier happen atomically.
type shard struct {
	mu      sync.Mutex
	history map[string][]time.Time
	blocks  map[string]time.Time
}

func newShard() *shard {
	return &shard{
		history: make(map[string][]time.Time),
		blocks:  make(map[string]time.Time),
	}
}

// shardSet partitions identifiers across a fixed number of shards.
type shardSet []*shard

func newShardSet(n int) shardSet {
	if n < 1 {
		n = 1
	}
	s := make(shardSet, n)
	for i := range s {
		s[i] = newShard()
	}
	return s
}

func (s shardSet) get(identifier string) *shard {
	return s[xxhash.Sum64String(identifier)%uint64(len(s))]
}

// Window tracker. Callers must hold mu.

// appendLocked pushes an attempt timestamp onto the identifier's history.
func (sh *shard) appendLocked(identifier string, now time.Time) {
	sh.history[identifier] = append(sh.history[identifier], now)
}

// recentCountLocked counts attempts strictly newer than now-window and
// compacts the stored history to exactly that set. An identifier whose
// history compacts to nothing is dropped.
func (sh *shard) recentCountLocked(identifier string, now time.Time, window time.Duration) int {
	ts, ok := sh.history[identifier]
	if !ok {
		return 0
	}
	kept := compact(ts, now.Add(-window))
	if len(kept) == 0 {
		delete(sh.history, identifier)
		return 0
	}
	sh.history[identifier] = kept
	return len(kept)
}

// compact filters ts in place, keeping timestamps after cutoff. Histories are
// appended in ascending order, so everything after the first survivor stays.
func compact(ts []time.Time, cutoff time.Time) []time.Time {
	for i, t := range ts {
		if t.After(cutoff) {
			if i == 0 {
				return ts
			}
			n := copy(ts, ts[i:])
			return ts[:n]
		}
	}
	return ts[:0]
}

// Block overlay. Callers must hold mu.

// blockedUntilLocked returns the active block expiry for the identifier. An
// expired entry is deleted on this read.
func (sh *shard) blockedUntilLocked(identifier string, now time.Time) (time.Time, bool) {
	until, ok := sh.blocks[identifier]
	if !ok {
		return time.Time{}, false
	}
	if !now.Before(until) {
		delete(sh.blocks, identifier)
		return time.Time{}, false
	}
	return until, true
}

func (sh *shard) blockLocked(identifier string, until time.Time) {
	sh.blocks[identifier] = until
}

func (sh *shard) resetLocked(identifier string) {
	delete(sh.history, identifier)
	delete(sh.blocks, identifier)
}

// sweepLocked compacts every history and drops expired blocks, returning how
// many identifiers were removed from each map.
func (sh *shard) sweepLocked(now time.Time, window time.Duration) (histories, blocks int) {
	cutoff := now.Add(-window)
	for identifier, ts := range sh.history {
		kept := compact(ts, cutoff)
		if len(kept) == 0 {
			delete(sh.history, identifier)
			histories++
			continue
		}
		sh.history[identifier] = kept
	}
	for identifier, until := range sh.blocks {
		if !now.Before(until) {
			delete(sh.blocks, identifier)
			blocks++
		}
	}
	return histories, blocks
}

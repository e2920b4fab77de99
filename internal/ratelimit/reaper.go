package ratelimit

import "time"

// reapLoop purges stale state every reap interval until Close.
func (m *MemoryLimiter) reapLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.reap()
		}
	}
}

// reap runs one pass over every shard, taking each shard lock in turn so
// foreground calls on other shards proceed meanwhile.
func (m *MemoryLimiter) reap() ReapStats {
	var stats ReapStats
	for _, sh := range m.shards {
		sh.mu.Lock()
		h, b := sh.sweepLocked(m.clock.Now(), m.cfg.Window)
		sh.mu.Unlock()
		stats.Histories += h
		stats.Blocks += b
	}

	if stats.Histories > 0 || stats.Blocks > 0 {
		m.logger.Debug("Reaped stale login limiter state",
			"histories", stats.Histories,
			"blocks", stats.Blocks,
		)
	}
	m.observer.Reaped(stats)
	return stats
}

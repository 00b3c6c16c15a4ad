package limiter

import (
	"fmt"
	"sync"
	"time"

	"clarivid/internal/core/ports"
)

// MemoryLimiter enforces per-user daily and concurrent job quotas in memory.
// Daily counters reset at the first check of a new UTC day.
type MemoryLimiter struct {
	dailyLimit      int
	concurrentLimit int

	mu     sync.Mutex
	now    func() time.Time
	daily  map[string]*dayCount
	active map[string]int
}

type dayCount struct {
	day   string
	count int
}

// NewMemoryLimiter creates a limiter with the given per-user quotas.
func NewMemoryLimiter(dailyLimit, concurrentLimit int) *MemoryLimiter {
	return &MemoryLimiter{
		dailyLimit:      dailyLimit,
		concurrentLimit: concurrentLimit,
		now:             time.Now,
		daily:           make(map[string]*dayCount),
		active:          make(map[string]int),
	}
}

// CheckAndReserve consumes one daily unit and one concurrency slot for the
// user, or returns an error wrapping ports.ErrLimitExceeded.
func (l *MemoryLimiter) CheckAndReserve(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dc := l.todayLocked(userID)
	if dc.count >= l.dailyLimit {
		return fmt.Errorf("%w: daily limit of %d video generations reached",
			ports.ErrLimitExceeded, l.dailyLimit)
	}
	if l.active[userID] >= l.concurrentLimit {
		return fmt.Errorf("%w: %d videos already generating, wait for one to complete",
			ports.ErrLimitExceeded, l.concurrentLimit)
	}

	dc.count++
	l.active[userID]++
	return nil
}

// Release frees the user's concurrency slot. The daily unit stays consumed.
func (l *MemoryLimiter) Release(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[userID] > 0 {
		l.active[userID]--
	}
	if l.active[userID] == 0 {
		delete(l.active, userID)
	}
}

// Stats reports the user's current quota consumption.
func (l *MemoryLimiter) Stats(userID string) ports.UsageStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	dc := l.todayLocked(userID)
	remaining := l.dailyLimit - dc.count
	if remaining < 0 {
		remaining = 0
	}
	return ports.UsageStats{
		DailyLimit:      l.dailyLimit,
		UsedToday:       dc.count,
		RemainingToday:  remaining,
		Generating:      l.active[userID],
		ConcurrentLimit: l.concurrentLimit,
	}
}

// todayLocked returns the user's counter for the current UTC day, resetting
// any stale entry. Caller holds l.mu.
func (l *MemoryLimiter) todayLocked(userID string) *dayCount {
	day := l.now().UTC().Format("2006-01-02")
	dc, ok := l.daily[userID]
	if !ok || dc.day != day {
		dc = &dayCount{day: day}
		l.daily[userID] = dc
	}
	return dc
}

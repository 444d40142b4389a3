package kvs

import (
	"sync"
	"time"
)

// sweeper runs a periodic expiry pass in the background until stopped.
// Memory and LevelDB share it; Redis expires keys itself.
type sweeper struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startSweeper(interval time.Duration, sweep func()) *sweeper {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	s := &sweeper{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweep()
			case <-s.stop:
				return
			}
		}
	}()

	return s
}

// halt stops the loop and waits for it to exit. Safe to call more than once.
func (s *sweeper) halt() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

// deadline converts a TTL into an absolute expiry; zero means never.
func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func expired(at time.Time, now time.Time) bool {
	return !at.IsZero() && now.After(at)
}

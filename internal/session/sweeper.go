package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSweepSchedule runs eviction once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper evicts expired sessions on a cron schedule.
type Sweeper struct {
	cron  *cron.Cron
	cache *Cache
	ttl   time.Duration
}

// NewSweeper creates a sweeper for cache. Standard 5-field cron expressions and
// descriptors such as "@every 30s" are accepted. An empty schedule uses
// DefaultSweepSchedule.
func NewSweeper(cache *Cache, ttl time.Duration, schedule string) (*Sweeper, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive (got %s)", ttl)
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	s := &Sweeper{cron: cron.New(), cache: cache, ttl: ttl}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("registering sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	removed := s.cache.Sweep(s.ttl)
	if removed > 0 {
		log.Debug().
			Int("removed", removed).
			Int("remaining", s.cache.Len()).
			Dur("ttl", s.ttl).
			Msg("session_sweep")
	}
}

// Start begins running the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to complete.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

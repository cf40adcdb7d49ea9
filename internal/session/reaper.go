package session

import (
	"context"
	"time"
)

// ReaperStore is the persisted view of sessions the Reaper sweeps. Its AccountStore side clears
// what a reaped session left cached.
type ReaperStore interface {
	AccountStore
	// StaleSessions returns sessions not yet ended whose idle timeout passed before now.
	StaleSessions(ctx context.Context, now time.Time) ([]string, error)
	EndSession(ctx context.Context, id, reason string) error
}

// Reaper periodically ends persisted sessions that no live Monitor owns any more, such as
// sessions left behind by a restart.
type Reaper struct {
	store    ReaperStore
	manager  *Manager
	stopChan chan struct{}
	ticker   *time.Ticker
	interval time.Duration
	now      func() time.Time
}

func NewReaper(store ReaperStore, manager *Manager, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		store:    store,
		manager:  manager,
		stopChan: make(chan struct{}),
		interval: interval,
		now:      time.Now,
	}
}

func (r *Reaper) Start() {
	if r == nil {
		return
	}
	r.ticker = time.NewTicker(r.interval)
	go r.loop()
}

func (r *Reaper) Stop() {
	if r == nil {
		return
	}
	close(r.stopChan)
	if r.ticker != nil {
		r.ticker.Stop()
	}
}

func (r *Reaper) loop() {
	ctx := context.Background()
	for {
		select {
		case <-r.ticker.C:
			r.tick(ctx)
		case <-r.stopChan:
			return
		}
	}
}

// tick returns the number of sessions ended.
func (r *Reaper) tick(ctx context.Context) int {
	ids, err := r.store.StaleSessions(ctx, r.now())
	if err != nil {
		logger.Err(err).Msg("reaper: failed to load stale sessions")
		return 0
	}
	n := 0
	for _, id := range ids {
		if r.manager != nil && r.manager.Get(id) != nil {
			continue
		}
		if err := r.store.Logout(ctx, id); err != nil {
			logger.Err(err).Str("session", id).Msg("reaper: failed to clear account state")
			continue
		}
		if err := r.store.EndSession(ctx, id, ReasonReaped); err != nil {
			logger.Err(err).Str("session", id).Msg("reaper: failed to end session")
			continue
		}
		n++
	}
	if n > 0 {
		logger.Info().Int("count", n).Msg("reaper: ended stale sessions")
	}
	return n
}

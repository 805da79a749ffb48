package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Controller keeps the system events of every battle. Expiry is lazy: an event
// past its ExpiresAt is absent for every query whether or not it was pruned.
type Controller struct {
	mu     sync.RWMutex
	now    func() time.Time
	events map[string][]Event
}

func NewController(now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		now:    now,
		events: map[string][]Event{},
	}
}

func (c *Controller) Trigger(battleID string, t Type, metadata map[string]string) (Event, error) {
	if _, ok := durations[t]; !ok {
		return Event{}, ErrUnknownType
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, e := range c.events[battleID] {
		if e.Type == t && e.Active(now) {
			return Event{}, &DuplicateError{BattleID: battleID, Type: t, ExpiresAt: e.ExpiresAt}
		}
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	e := Event{
		ID:        uuid.NewString(),
		Type:      t,
		BattleID:  battleID,
		StartedAt: now,
		ExpiresAt: now.Add(t.Duration()),
		Metadata:  md,
	}
	c.events[battleID] = append(c.events[battleID], e)
	zap.L().Info("system event triggered", zap.String("battle_id", battleID), zap.String("type", string(t)),
		zap.Time("expires_at", e.ExpiresAt))
	return e, nil
}

func (c *Controller) IsActive(battleID string, t Type) bool {
	_, ok := c.Get(battleID, t)
	return ok
}

// Get returns the active event of the given type.
func (c *Controller) Get(battleID string, t Type) (Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	for _, e := range c.events[battleID] {
		if e.Type == t && e.Active(now) {
			return e, true
		}
	}
	return Event{}, false
}

func (c *Controller) Active(battleID string) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	var ret []Event
	for _, e := range c.events[battleID] {
		if e.Active(now) {
			ret = append(ret, e)
		}
	}
	return ret
}

// History returns every retained event of the battle, newest first.
func (c *Controller) History(battleID string) []Event {
	c.mu.RLock()
	ret := append([]Event(nil), c.events[battleID]...)
	c.mu.RUnlock()
	sort.SliceStable(ret, func(i, j int) bool { return ret[i].StartedAt.After(ret[j].StartedAt) })
	return ret
}

func (c *Controller) Forget(battleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events, battleID)
}

// Prune drops events that expired more than retention ago.
func (c *Controller) Prune(retention time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-retention)
	n := 0
	for id, events := range c.events {
		kept := events[:0]
		for _, e := range events {
			if e.ExpiresAt.After(cutoff) {
				kept = append(kept, e)
			} else {
				n++
			}
		}
		if len(kept) == 0 {
			delete(c.events, id)
			continue
		}
		c.events[id] = kept
	}
	return n
}

func (c *Controller) Run(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Prune(retention); n > 0 {
				zap.L().Debug("pruned system events", zap.Int("count", n))
			}
		}
	}
}

package skill

import (
	"context"
	"sync"
	"time"
)

// Effect is a timed status applied by a cast. It is inert once ExpiresAt has passed.
type Effect struct {
	SkillID   string     `json:"skill_id"`
	Kind      EffectKind `json:"kind"`
	Caster    string     `json:"caster"`
	BattleID  string     `json:"battle_id"`
	TargetID  string     `json:"target_id,omitempty"`
	Faction   string     `json:"faction,omitempty"`
	Amount    int64      `json:"amount,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func (e Effect) Live(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

type cooldownKey struct {
	user  string
	skill string
}

// Ledger tracks cooldown expiries per (user, skill) and active effects per battle.
type Ledger struct {
	mu        sync.Mutex
	now       func() time.Time
	cooldowns map[cooldownKey]time.Time
	effects   map[string][]Effect
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		now:       now,
		cooldowns: map[cooldownKey]time.Time{},
		effects:   map[string][]Effect{},
	}
}

func (l *Ledger) Now() time.Time {
	return l.now()
}

// Remaining returns max(0, expiry - now), zero when no cooldown was ever set.
func (l *Ledger) Remaining(user, skillID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining(cooldownKey{user, skillID}, l.now())
}

func (l *Ledger) remaining(k cooldownKey, now time.Time) time.Duration {
	exp, ok := l.cooldowns[k]
	if !ok || !exp.After(now) {
		return 0
	}
	return exp.Sub(now)
}

// Reserve sets the cooldown if none is running. When one is, it returns the
// remaining time and false without touching the record.
func (l *Ledger) Reserve(user, skillID string, cooldown time.Duration) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := cooldownKey{user, skillID}
	if rem := l.remaining(k, now); rem > 0 {
		return rem, false
	}
	l.cooldowns[k] = now.Add(cooldown)
	return 0, true
}

// ResetCooldowns clears every running cooldown of user except the named skill
// and returns the cleared skill IDs.
func (l *Ledger) ResetCooldowns(user, except string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	var reset []string
	for k, exp := range l.cooldowns {
		if k.user != user || k.skill == except {
			continue
		}
		if exp.After(now) {
			reset = append(reset, k.skill)
		}
		delete(l.cooldowns, k)
	}
	return reset
}

func (l *Ledger) AddEffect(e Effect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.effects[e.BattleID] = append(l.effects[e.BattleID], e)
}

// Effects returns the live effects cast by user, in every battle when battleID is empty.
func (l *Ledger) Effects(user, battleID string) []Effect {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	var ret []Effect
	collect := func(effects []Effect) {
		for _, e := range effects {
			if e.Caster == user && e.Live(now) {
				ret = append(ret, e)
			}
		}
	}
	if battleID != "" {
		collect(l.effects[battleID])
		return ret
	}
	for _, effects := range l.effects {
		collect(effects)
	}
	return ret
}

func (l *Ledger) BattleEffects(battleID string) []Effect {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	var ret []Effect
	for _, e := range l.effects[battleID] {
		if e.Live(now) {
			ret = append(ret, e)
		}
	}
	return ret
}

func (l *Ledger) HasEffect(user, battleID string, kind EffectKind) bool {
	for _, e := range l.Effects(user, battleID) {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Forget drops every effect recorded for the battle.
func (l *Ledger) Forget(battleID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.effects, battleID)
}

// Prune reclaims expired effects and cooldowns. Queries never depend on it.
func (l *Ledger) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, exp := range l.cooldowns {
		if !exp.After(now) {
			delete(l.cooldowns, k)
			n++
		}
	}
	for id, effects := range l.effects {
		live := effects[:0]
		for _, e := range effects {
			if e.Live(now) {
				live = append(live, e)
			} else {
				n++
			}
		}
		if len(live) == 0 {
			delete(l.effects, id)
			continue
		}
		l.effects[id] = live
	}
	return n
}

func (l *Ledger) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

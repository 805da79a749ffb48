package skill

import (
	"errors"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

type fakeArena struct {
	id     string
	assets map[string]AssetView
}

func (a *fakeArena) BattleID() string { return a.id }

func (a *fakeArena) Asset(id string) (AssetView, bool) {
	v, ok := a.assets[id]
	return v, ok
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newFixture() (*clock, *Resolver, *fakeArena) {
	c := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	r := NewResolver(NewLedger(c.now), 7)
	a := &fakeArena{id: "b1", assets: map[string]AssetView{
		"n1": {ID: "n1", Owner: "alice", Faction: "A", RelevanceScore: 80, StyleMatchScore: 60, Power: 170, Prompt: "A burning Fire phoenix, over the water!"},
		"n2": {ID: "n2", Owner: "bob", Faction: "B", Prompt: "shadow", EngineTag: "sdxl"},
	}}
	return c, r, a
}

func TestCastUnknownSkill(t *testing.T) {
	_, r, a := newFixture()
	_, err := r.Cast(a, Request{User: "alice", SkillID: "SKILL_NOPE"})
	assert.T(t, errors.Is(err, ErrUnknownSkill))
}

func TestCooldownLifecycle(t *testing.T) {
	c, r, a := newFixture()
	assert.Equal(t, time.Duration(0), r.Ledger().Remaining("alice", Scan))

	_, err := r.Cast(a, Request{User: "alice", SkillID: Scan, TargetID: "n2"})
	assert.Equal(t, nil, err)
	assert.Equal(t, 30*time.Second, r.Ledger().Remaining("alice", Scan))

	c.t = c.t.Add(10 * time.Second)
	first := r.Ledger().Remaining("alice", Scan)
	c.t = c.t.Add(10 * time.Second)
	second := r.Ledger().Remaining("alice", Scan)
	assert.T(t, first > second)
	assert.T(t, second > 0)

	_, err = r.Cast(a, Request{User: "alice", SkillID: Scan, TargetID: "n2"})
	var cd *CooldownError
	assert.T(t, errors.As(err, &cd))
	assert.T(t, errors.Is(err, ErrOnCooldown))
	assert.Equal(t, 10*time.Second, cd.Remaining)

	c.t = c.t.Add(10*time.Second + time.Nanosecond)
	assert.Equal(t, time.Duration(0), r.Ledger().Remaining("alice", Scan))
	_, err = r.Cast(a, Request{User: "alice", SkillID: Scan, TargetID: "n2"})
	assert.Equal(t, nil, err)
}

func TestInvalidTargetsDoNotStartCooldown(t *testing.T) {
	_, r, a := newFixture()
	cases := []Request{
		{User: "alice", SkillID: Boost},
		{User: "alice", SkillID: Boost, TargetID: "missing"},
		{User: "alice", SkillID: Audit, TargetID: "n1"},
		{User: "alice", SkillID: Fog, TargetID: "C"},
		{User: "alice", SkillID: Shield, TargetID: "bob"},
	}
	for _, req := range cases {
		_, err := r.Cast(a, req)
		assert.T(t, errors.Is(err, ErrInvalidTarget), req)
		assert.Equal(t, time.Duration(0), r.Ledger().Remaining(req.User, req.SkillID))
	}
}

func TestEffectsExpire(t *testing.T) {
	c, r, a := newFixture()
	d, err := r.Cast(a, Request{User: "alice", SkillID: Boost, TargetID: "n1"})
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(BoostAmount), d.Amount)
	assert.Equal(t, c.t.Add(time.Minute), d.ExpiresAt)

	assert.Equal(t, 1, len(r.Ledger().Effects("alice", "b1")))
	assert.Equal(t, 1, len(r.Ledger().Effects("alice", "")))
	assert.Equal(t, 0, len(r.Ledger().Effects("alice", "b2")))

	c.t = c.t.Add(time.Minute)
	assert.Equal(t, 0, len(r.Ledger().BattleEffects("b1")))
	assert.Equal(t, 1, r.Ledger().Prune())
}

func TestScanHasNoLastingEffect(t *testing.T) {
	_, r, a := newFixture()
	d, err := r.Cast(a, Request{User: "bob", SkillID: Scan, TargetID: "n1"})
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"burning", "fire", "phoenix", "over", "water"}, d.Scan.Keywords)
	assert.Equal(t, 0, len(r.Ledger().BattleEffects("b1")))

	d, err = r.Cast(a, Request{User: "alice", SkillID: Snipe, TargetID: "n2"})
	assert.Equal(t, nil, err)
	assert.Equal(t, "sdxl", d.Snipe.EngineTag)
}

func TestAuditBlockedByShield(t *testing.T) {
	_, r, a := newFixture()
	_, err := r.Cast(a, Request{User: "bob", SkillID: Shield})
	assert.Equal(t, nil, err)

	d, err := r.Cast(a, Request{User: "alice", SkillID: Audit, TargetID: "n2"})
	assert.Equal(t, nil, err)
	assert.T(t, d.Blocked)
	assert.Equal(t, int64(0), d.Amount)
	assert.Equal(t, 1, len(r.Ledger().BattleEffects("b1")))
}

func TestAuditPenaltyInRange(t *testing.T) {
	c, r, a := newFixture()
	for i := 0; i < 20; i++ {
		d, err := r.Cast(a, Request{User: "alice", SkillID: Audit, TargetID: "n2"})
		assert.Equal(t, nil, err)
		assert.T(t, d.Amount >= 10 && d.Amount <= 30, d.Amount)
		c.t = c.t.Add(time.Minute)
	}
}

func TestFogAndLiquidityCarryFaction(t *testing.T) {
	_, r, a := newFixture()
	d, err := r.Cast(a, Request{User: "alice", SkillID: Fog, TargetID: "A"})
	assert.Equal(t, nil, err)
	assert.Equal(t, "A", d.Faction)
	d, err = r.Cast(a, Request{User: "alice", SkillID: Liquidity, TargetID: "B"})
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(LiquidityPercent), d.Amount)

	effects := r.Ledger().BattleEffects("b1")
	assert.Equal(t, 2, len(effects))
	assert.Equal(t, EffectConceal, effects[0].Kind)
	assert.Equal(t, "B", effects[1].Faction)
}

func TestRewindResetsOtherCooldowns(t *testing.T) {
	_, r, a := newFixture()
	_, err := r.Cast(a, Request{User: "alice", SkillID: Scan, TargetID: "n2"})
	assert.Equal(t, nil, err)
	d, err := r.Cast(a, Request{User: "alice", SkillID: Rewind})
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{Scan}, d.Reset)
	assert.Equal(t, time.Duration(0), r.Ledger().Remaining("alice", Scan))
	assert.NotEqual(t, time.Duration(0), r.Ledger().Remaining("alice", Rewind))
}

func TestReserveIsAtomic(t *testing.T) {
	_, r, _ := newFixture()
	done := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		go func() {
			_, ok := r.Ledger().Reserve("alice", Boost, time.Minute)
			done <- ok
		}()
	}
	won := 0
	for i := 0; i < 50; i++ {
		if <-done {
			won++
		}
	}
	assert.Equal(t, 1, won)
}

package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/event"
	"github.com/COAOX/timeline_wars/skill"
	"github.com/bmizerany/assert"
)

func TestMintInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 3)
	f.ledger.Set("u1", 50)

	_, err := f.engine.MintAsset(context.Background(), MintRequest{BattleID: id, User: "u1", Faction: FactionA, MintCost: 100})
	assert.T(t, errors.Is(err, ErrInsufficientFunds))
	assert.Equal(t, int64(50), f.balance("u1"))

	s, _ := f.engine.GetState(id)
	assert.Equal(t, 0, len(s.Faction(FactionA).Assets))
}

func TestMintValidation(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 3)
	ctx := context.Background()
	bad := []MintRequest{
		{BattleID: id, User: "", Faction: FactionA},
		{BattleID: id, User: SystemOwner, Faction: FactionA},
		{BattleID: id, User: "u1", Faction: FactionNone},
		{BattleID: id, User: "u1", Faction: FactionA, Role: economy.RoleRogueAgent},
		{BattleID: id, User: "u1", Faction: FactionA, RelevanceScore: 101},
		{BattleID: id, User: "u1", Faction: FactionA, MintCost: -1},
	}
	for _, req := range bad {
		_, err := f.engine.MintAsset(ctx, req)
		assert.Equal(t, KindValidation, KindOf(err), req)
	}
}

func TestPreStartGenesisIsKept(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 3)
	g, err := f.engine.MintAsset(context.Background(), MintRequest{
		BattleID: id, User: "curator", Faction: FactionA, Role: economy.RoleGenesis,
		Media: Media{ImageURL: "ipfs://genesis", Prompt: "a lighthouse", EngineTag: "sdxl"},
	})
	assert.Equal(t, nil, err)
	_, err = f.engine.MintAsset(context.Background(), MintRequest{BattleID: id, User: "curator", Faction: FactionA, Role: economy.RoleGenesis})
	assert.T(t, errors.Is(err, ErrInvalidState))

	s, _ := f.engine.Start(id)
	assert.Equal(t, 1, len(s.Faction(FactionA).Assets))
	assert.Equal(t, g.ID, s.Faction(FactionA).Assets[0].ID)
	assert.Equal(t, "ipfs://genesis", s.Faction(FactionA).Assets[0].Media.ImageURL)
	assert.Equal(t, SystemOwner, s.Faction(FactionB).Assets[0].Owner)
}

// endingLedger ends the battle between the debit and the mint.
type endingLedger struct {
	*economy.MemoryLedger
	onDebit func()
}

func (l *endingLedger) Debit(ctx context.Context, user string, amount int64, memo string) (int64, error) {
	bal, err := l.MemoryLedger.Debit(ctx, user, amount, memo)
	if err == nil && l.onDebit != nil {
		l.onDebit()
	}
	return bal, err
}

func TestMintRefundedWhenBattleEndsMeanwhile(t *testing.T) {
	clock := newFakeClock()
	ledger := &endingLedger{MemoryLedger: economy.NewMemoryLedger(1000)}
	e := NewEngine(NewStore(ledger, WithClock(clock), WithSeed(1)), Settings{RoundDuration: time.Second})
	defer e.Close()

	s, _ := e.Create(CreateRequest{Topic: "t"})
	e.Start(s.ID)
	ledger.onDebit = func() { e.End(s.ID) }

	_, err := e.MintAsset(context.Background(), MintRequest{BattleID: s.ID, User: "u1", Faction: FactionA, MintCost: 100})
	assert.T(t, errors.Is(err, ErrInvalidState))
	bal, _ := ledger.Balance(context.Background(), "u1")
	assert.Equal(t, int64(1000), bal)
}

func TestRewardSettlement(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 3)
	alice := f.mint(t, id, "alice", FactionA, 100)
	f.mint(t, id, "bob", FactionB, 100)
	_, err := f.engine.BackAsset(context.Background(), BackRequest{BattleID: id, AssetID: alice.ID, User: "carol", Amount: 100})
	assert.Equal(t, nil, err)
	f.engine.Vote(id, "u1", FactionA)

	s, err := f.engine.End(id)
	assert.Equal(t, nil, err)
	assert.Equal(t, FactionA, s.Winner)
	assert.Equal(t, economy.Pool{Total: 300, WinnerShare: 210, LoserShare: 75, SystemFee: 15}, s.Rewards.Pool)
	assert.Equal(t, []economy.Payout{
		{User: "alice", Amount: 105, Winner: true},
		{User: "carol", Amount: 105, Winner: true},
		{User: "bob", Amount: 75},
	}, s.Rewards.Payouts)
	assert.Equal(t, int64(15), s.Rewards.Treasury)
	assert.Equal(t, economy.TreasuryState{Balance: 15, TotalEarned: 15}, f.engine.Treasury())

	assert.Equal(t, int64(1005), f.balance("alice"))
	assert.Equal(t, int64(1005), f.balance("carol"))
	assert.Equal(t, int64(975), f.balance("bob"))

	got, _ := s.Asset(alice.ID)
	assert.Equal(t, AssetCanonical, got.Status)
	assert.Equal(t, int64(105), got.Reward)
	assert.Equal(t, AssetParadox, s.Faction(FactionB).Assets[0].Status)
}

func TestMarketCrashBurnsHalfThePool(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 3)
	alice := f.mint(t, id, "alice", FactionA, 100)
	f.mint(t, id, "bob", FactionB, 100)
	f.engine.BackAsset(context.Background(), BackRequest{BattleID: id, AssetID: alice.ID, User: "carol", Amount: 100})
	f.engine.Vote(id, "u1", FactionA)

	_, err := f.engine.TriggerEvent(context.Background(), id, event.MarketCrash, nil)
	assert.Equal(t, nil, err)
	_, err = f.engine.TriggerEvent(context.Background(), id, event.MarketCrash, nil)
	assert.T(t, errors.Is(err, ErrDuplicateEvent))
	assert.Equal(t, KindStateConflict, KindOf(err))

	s, _ := f.engine.End(id)
	assert.Equal(t, int64(150), s.Rewards.Burned)
	assert.Equal(t, economy.Pool{Total: 150, WinnerShare: 105, LoserShare: 37, SystemFee: 8}, s.Rewards.Pool)
	assert.Equal(t, int64(9), s.Rewards.Treasury)
	assert.Equal(t, []string{string(event.MarketCrash)}, s.Results[0].Modifiers)
}

func TestMarketCrashHalvesBackedPower(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 3)
	alice := f.mint(t, id, "alice", FactionA, 10)
	_, err := f.engine.BackAsset(context.Background(), BackRequest{BattleID: id, AssetID: alice.ID, User: "carol", Amount: 400})
	assert.Equal(t, nil, err)
	_, err = f.engine.TriggerEvent(context.Background(), id, event.MarketCrash, nil)
	assert.Equal(t, nil, err)

	f.clock.Advance(time.Second)
	rr := f.rec.round(t)
	assert.Equal(t, 5210.0, rr.PowerA)
	assert.Equal(t, 5000.0, rr.PowerB)
	assert.Equal(t, []string{string(event.MarketCrash)}, rr.Modifiers)

	s, _ := f.engine.GetState(id)
	assert.Equal(t, 5410.0, s.Faction(FactionA).Power)
}

func TestEmptyPool(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 1)
	s, _ := f.engine.End(id)
	assert.Equal(t, economy.Pool{}, s.Rewards.Pool)
	assert.Equal(t, 0, len(s.Rewards.Payouts))
}

func TestTriggerOnEndedBattle(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 1)
	f.engine.End(id)
	_, err := f.engine.TriggerEvent(context.Background(), id, event.ChaosMode, nil)
	assert.T(t, errors.Is(err, ErrInvalidState))
	_, err = f.engine.TriggerEvent(context.Background(), id, event.Blessing, map[string]string{"bonus_amount": "lots"})
	assert.T(t, errors.Is(err, ErrValidation))
}

func TestBlessingCreditsParticipants(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 3)
	f.engine.Vote(id, "u1", FactionA)
	f.mint(t, id, "alice", FactionB, 10)

	_, err := f.engine.TriggerEvent(context.Background(), id, event.Blessing, map[string]string{"bonus_amount": "30"})
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(1030), f.balance("u1"))
	assert.Equal(t, int64(1020), f.balance("alice"))
	assert.Equal(t, int64(1000), f.balance("bystander"))
}

func TestPurgeDropsWeakestFromTally(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 1)
	for i, u := range []string{"u1", "u2", "u3", "u4"} {
		f.mint(t, id, u, FactionA, int64(10*(i+1)))
	}
	_, err := f.engine.TriggerEvent(context.Background(), id, event.ThePurge, map[string]string{"affected_count": "2"})
	assert.Equal(t, nil, err)

	s, _ := f.engine.End(id)
	assert.Equal(t, 5070.0, s.Results[0].PowerA)
	assert.Equal(t, 5000.0, s.Results[0].PowerB)
	assert.Equal(t, 5, len(s.Faction(FactionA).Assets))
	purged := 0
	for _, a := range s.Faction(FactionA).Assets {
		if a.Purged {
			purged++
		}
	}
	assert.Equal(t, 2, purged)
}

func TestDistortionDoublesMatchingPrompts(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 1)
	f.engine.MintAsset(context.Background(), MintRequest{BattleID: id, User: "u1", Faction: FactionB, MintCost: 100,
		Media: Media{Prompt: "A storm over the sea"}})
	f.engine.TriggerEvent(context.Background(), id, event.TimelineDistortion, map[string]string{"keywords": "storm"})

	s, _ := f.engine.End(id)
	assert.Equal(t, 5000.0, s.Results[0].PowerA)
	assert.Equal(t, 5200.0, s.Results[0].PowerB)
}

func TestDistortionMatchesWholeWordsOnly(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 1)
	f.engine.MintAsset(context.Background(), MintRequest{BattleID: id, User: "u1", Faction: FactionB, MintCost: 100,
		Media: Media{Prompt: "a glowing firefly in the seasonal meadow"}})
	f.engine.TriggerEvent(context.Background(), id, event.TimelineDistortion, map[string]string{"keywords": "fire,sea"})

	s, _ := f.engine.End(id)
	assert.Equal(t, 5100.0, s.Results[0].PowerB)
	assert.Equal(t, []string{string(event.TimelineDistortion)}, s.Results[0].Modifiers)
}

func TestMatchesKeyword(t *testing.T) {
	assert.T(t, matchesKeyword("Dragons of FIRE, ice", []string{"fire"}))
	assert.T(t, matchesKeyword("fire,water", []string{"water"}))
	assert.T(t, !matchesKeyword("bonfire night", []string{"fire"}))
	assert.T(t, !matchesKeyword("the sea", []string{"sea"}))
	assert.T(t, !matchesKeyword("", []string{"fire"}))
}

func TestChaosJitterIsBounded(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 1)
	f.engine.TriggerEvent(context.Background(), id, event.ChaosMode, nil)

	s, _ := f.engine.End(id)
	for _, p := range []float64{s.Results[0].PowerA, s.Results[0].PowerB} {
		assert.T(t, p >= 3750 && p <= 6250, p)
	}
	assert.Equal(t, 5000.0, s.Faction(FactionA).Power)
}

func TestSkillCastChargesAndBoostsTally(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 1)
	a := f.mint(t, id, "alice", FactionB, 0)
	ctx := context.Background()

	_, err := f.engine.CastSkill(ctx, CastRequest{BattleID: id, User: "bob", SkillID: skill.Boost, TargetID: "ghost"})
	assert.T(t, errors.Is(err, ErrInvalidTarget))
	assert.Equal(t, int64(1000), f.balance("bob"))

	d, err := f.engine.CastSkill(ctx, CastRequest{BattleID: id, User: "bob", SkillID: skill.Boost, TargetID: a.ID})
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(skill.BoostAmount), d.Amount)
	assert.Equal(t, int64(800), f.balance("bob"))

	_, err = f.engine.CastSkill(ctx, CastRequest{BattleID: id, User: "bob", SkillID: skill.Boost, TargetID: a.ID})
	assert.T(t, errors.Is(err, ErrOnCooldown))
	assert.Equal(t, int64(800), f.balance("bob"))
	rem, _ := f.engine.CooldownRemaining("bob", skill.Boost)
	assert.Equal(t, 3*time.Minute, rem)

	_, err = f.engine.CastSkill(ctx, CastRequest{BattleID: id, User: "bob", SkillID: "SKILL_TELEPORT"})
	assert.T(t, errors.Is(err, ErrUnknownSkill))

	assert.Equal(t, 1, len(f.engine.ActiveEffects("bob", id)))
	s, _ := f.engine.End(id)
	assert.Equal(t, 5500.0, s.Results[0].PowerB)
	assert.Equal(t, []string{skill.Boost}, s.Results[0].Modifiers)
	assert.Equal(t, FactionB, s.Winner)
}

func TestSkillNeedsActiveBattle(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 3)
	_, err := f.engine.CastSkill(context.Background(), CastRequest{BattleID: id, User: "bob", SkillID: skill.Shield})
	assert.T(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, int64(1000), f.balance("bob"))
}

func TestFogConcealsFromOthersOnly(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 3)
	f.engine.Vote(id, "u1", FactionA)
	f.engine.Vote(id, "u2", FactionB)

	_, err := f.engine.CastSkill(context.Background(), CastRequest{BattleID: id, User: "alice", SkillID: skill.Fog, TargetID: "A"})
	assert.Equal(t, nil, err)

	rv, _ := f.engine.CurrentRoundVotes(id, "bob")
	assert.Equal(t, RoundVotes{Round: 1, VotesA: 0, VotesB: 1, ConcealedA: true}, rv)
	rv, _ = f.engine.CurrentRoundVotes(id, "alice")
	assert.Equal(t, RoundVotes{Round: 1, VotesA: 1, VotesB: 1}, rv)

	s, _ := f.engine.GetState(id)
	assert.Equal(t, 1, s.Scoreboard.VotesA)
}

func TestRogueAgentJoinsWeakerSide(t *testing.T) {
	f := newFixture(t, WithTreasury(economy.NewTreasury(100)))
	id := f.startBattle(t, 3)
	f.ledger.Set("whale", 20000)
	f.mint(t, id, "whale", FactionA, 10000)

	f.clock.Advance(time.Second)
	f.rec.round(t)

	s, _ := f.engine.GetState(id)
	b := s.Faction(FactionB)
	assert.Equal(t, 2, len(b.Assets))
	assert.Equal(t, economy.RoleRogueAgent, b.Assets[1].Role)
	assert.Equal(t, RogueAgentOwner, b.Assets[1].Owner)
	assert.Equal(t, 150.0, b.Assets[1].Power)
	assert.Equal(t, int64(0), f.engine.Treasury().Balance)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	id := f.startBattle(t, 3)
	f.engine.TriggerEvent(context.Background(), id, event.ChaosMode, nil)

	assert.Equal(t, nil, f.engine.Remove(id))
	_, err := f.engine.GetState(id)
	assert.T(t, errors.Is(err, ErrNotFound))
	assert.T(t, errors.Is(f.engine.Remove(id), ErrNotFound))
	assert.T(t, !f.engine.Store().Events.IsActive(id, event.ChaosMode))
	assert.Equal(t, 0, len(f.engine.List()))

	f.clock.Advance(time.Second)
	select {
	case <-f.rec.rounds:
		t.Fatal("removed battle kept its timer")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(CreateRequest{})
	assert.T(t, errors.Is(err, ErrValidation))
	_, err = f.engine.Create(CreateRequest{Topic: "t", TotalRounds: 21})
	assert.T(t, errors.Is(err, ErrValidation))

	s, err := f.engine.Create(CreateRequest{Topic: "t"})
	assert.Equal(t, nil, err)
	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, 3, s.TotalRounds)
	assert.Equal(t, time.Second, s.RoundDuration)
	assert.Equal(t, "Faction A", s.Faction(FactionA).Info.Name)
	assert.Equal(t, 1, len(f.engine.List()))
}

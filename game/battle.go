package game

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/event"
	"github.com/COAOX/timeline_wars/skill"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	genesisScore = 95
)

// lifecycle receives round and end notifications after the battle lock is released.
type lifecycle interface {
	roundClosed(b *Battle, s Snapshot, r RoundResult)
	ended(b *Battle, s Snapshot)
}

// Battle is one two-faction battle. Every field below mu is guarded by it.
type Battle struct {
	store *Store
	hooks lifecycle

	mu sync.Mutex

	ID          string
	Topic       string
	Description string

	status         Status
	round          int
	totalRounds    int
	roundDuration  time.Duration
	roundStartedAt time.Time
	deadline       time.Time

	factions     [2]*Faction
	assets       map[string]*Asset
	votes        map[int]map[string]FactionID
	participants map[string]struct{}

	results []RoundResult
	score   Scoreboard
	rewards *Rewards
	winner  FactionID
	final   *Snapshot

	startedAt time.Time
	endedAt   time.Time

	halted     bool
	haltReason string
	stopped    bool

	rnd    *rand.Rand
	cancel context.CancelFunc
	done   chan struct{}
}

func newBattle(store *Store, hooks lifecycle, id string, req CreateRequest, seed int64) *Battle {
	return &Battle{
		store:         store,
		hooks:         hooks,
		ID:            id,
		Topic:         req.Topic,
		Description:   req.Description,
		status:        StatusPending,
		totalRounds:   req.TotalRounds,
		roundDuration: req.RoundDuration,
		factions: [2]*Faction{
			{ID: FactionA, Info: req.FactionA},
			{ID: FactionB, Info: req.FactionB},
		},
		assets:       map[string]*Asset{},
		votes:        map[int]map[string]FactionID{},
		participants: map[string]struct{}{},
		rnd:          rand.New(rand.NewSource(seed)),
		done:         make(chan struct{}),
	}
}

// Done is closed once the battle has ended.
func (b *Battle) Done() <-chan struct{} {
	return b.done
}

func (b *Battle) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Battle) checkMutable(op string, allowed ...Status) error {
	if b.halted {
		return fail(ErrHalted, "battle %s halted: %s", b.ID, b.haltReason)
	}
	for _, s := range allowed {
		if b.status == s {
			return nil
		}
	}
	return fail(ErrInvalidState, "cannot %s: battle %s is %s", op, b.ID, b.status)
}

func (b *Battle) start() (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMutable("start", StatusPending); err != nil {
		return Snapshot{}, err
	}
	if b.stopped {
		return Snapshot{}, fail(ErrInvalidState, "cannot start: battle %s is stopped", b.ID)
	}
	now := b.store.Clock.Now()
	for _, f := range b.factions {
		if !f.hasGenesis() {
			b.addAssetLocked(&Asset{
				ID:              uuid.NewString(),
				Owner:           SystemOwner,
				Faction:         f.ID,
				Role:            economy.RoleGenesis,
				RelevanceScore:  genesisScore,
				StyleMatchScore: genesisScore,
				Media:           Media{Prompt: f.Info.Theme},
			}, now)
		}
	}
	b.status = StatusActive
	b.startedAt = now
	b.round = 1
	b.roundStartedAt = now
	b.deadline = now.Add(b.roundDuration)

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.run(ctx)

	zap.L().Info("battle started", zap.String("battle_id", b.ID), zap.Int("rounds", b.totalRounds),
		zap.Duration("round_duration", b.roundDuration))
	return b.snapshotLocked(), nil
}

func (b *Battle) vote(user string, f FactionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMutable("vote", StatusActive); err != nil {
		return err
	}
	if !b.store.Clock.Now().Before(b.deadline) {
		return fail(ErrRoundClosed, "round %d of battle %s is closed", b.round, b.ID)
	}
	votes, ok := b.votes[b.round]
	if !ok {
		votes = map[string]FactionID{}
		b.votes[b.round] = votes
	}
	if prev, ok := votes[user]; ok {
		return fail(ErrAlreadyVoted, "%s already voted %s in round %d", user, prev, b.round)
	}
	votes[user] = f
	if f == FactionA {
		b.score.VotesA++
	} else {
		b.score.VotesB++
	}
	b.participants[user] = struct{}{}
	return nil
}

func (b *Battle) currentRoundVotes(viewer string) RoundVotes {
	b.mu.Lock()
	defer b.mu.Unlock()
	rv := RoundVotes{Round: b.round}
	for _, f := range b.votes[b.round] {
		if f == FactionA {
			rv.VotesA++
		} else {
			rv.VotesB++
		}
	}
	for _, e := range b.store.Skills.BattleEffects(b.ID) {
		if e.Kind != skill.EffectConceal || e.Caster == viewer {
			continue
		}
		switch e.Faction {
		case ATag:
			rv.VotesA, rv.ConcealedA = 0, true
		case BTag:
			rv.VotesB, rv.ConcealedB = 0, true
		}
	}
	return rv
}

func (b *Battle) checkBet() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMutable("bet", StatusPending, StatusActive); err != nil {
		return err
	}
	if b.stopped {
		return fail(ErrInvalidState, "cannot bet: battle %s is stopped", b.ID)
	}
	return nil
}

// checkMint reports whether a mint could currently succeed, so callers avoid a needless debit.
func (b *Battle) checkMint(f FactionID, role economy.Role) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkMintLocked(f, role)
}

func (b *Battle) checkMintLocked(f FactionID, role economy.Role) error {
	if err := b.checkMutable("mint", StatusPending, StatusActive); err != nil {
		return err
	}
	if role == economy.RoleGenesis && b.factions[f.index()].hasGenesis() {
		return fail(ErrInvalidState, "faction %s of battle %s already has a genesis asset", f, b.ID)
	}
	return nil
}

func (b *Battle) mint(a *Asset) (AssetSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMintLocked(a.Faction, a.Role); err != nil {
		return AssetSnapshot{}, err
	}
	now := b.store.Clock.Now()
	b.addAssetLocked(a, now)
	return a.snapshot(now), nil
}

func (b *Battle) addAssetLocked(a *Asset, now time.Time) {
	a.BattleID = b.ID
	a.MintedAt = now
	a.Status = AssetPending
	f := b.factions[a.Faction.index()]
	f.Assets = append(f.Assets, a)
	b.assets[a.ID] = a
	if !systemOwned(a.Owner) {
		b.participants[a.Owner] = struct{}{}
	}
}

func (b *Battle) checkBack(assetID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMutable("back", StatusActive); err != nil {
		return err
	}
	_, err := b.assetLocked(assetID)
	return err
}

func (b *Battle) back(assetID, user string, amount int64) (BackResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMutable("back", StatusActive); err != nil {
		return BackResult{}, err
	}
	a, err := b.assetLocked(assetID)
	if err != nil {
		return BackResult{}, err
	}
	a.back(user, amount, b.store.Clock.Now())
	b.participants[user] = struct{}{}
	domA, domB := b.dominance()
	return BackResult{
		NewPower:     a.Power(),
		BackedAmount: a.BackedAmount,
		BackerCount:  len(a.Backers),
		DominanceA:   domA,
		DominanceB:   domB,
	}, nil
}

func (b *Battle) assetLocked(id string) (*Asset, error) {
	a, ok := b.assets[id]
	if !ok {
		return nil, fail(ErrNotFound, "asset %s not found in battle %s", id, b.ID)
	}
	return a, nil
}

// ownedAsset looks up an asset the user owns for a stake, freeze or accelerate.
func (b *Battle) ownedAsset(op, assetID, user string) (*Asset, error) {
	if err := b.checkMutable(op, StatusPending, StatusActive); err != nil {
		return nil, err
	}
	a, err := b.assetLocked(assetID)
	if err != nil {
		return nil, err
	}
	if a.Owner != user {
		return nil, fail(ErrValidation, "cannot %s asset %s: owned by %s", op, a.ID, a.Owner)
	}
	return a, nil
}

func (b *Battle) stake(assetID, user string) (AssetSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.ownedAsset("stake", assetID, user)
	if err != nil {
		return AssetSnapshot{}, err
	}
	if a.Staked {
		return AssetSnapshot{}, fail(ErrInvalidState, "asset %s is already staked", a.ID)
	}
	a.stake()
	return a.snapshot(b.store.Clock.Now()), nil
}

func (b *Battle) freeze(assetID, user string) (AssetSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.ownedAsset("freeze", assetID, user)
	if err != nil {
		return AssetSnapshot{}, err
	}
	if a.Frozen {
		return AssetSnapshot{}, fail(ErrInvalidState, "asset %s is already frozen", a.ID)
	}
	now := b.store.Clock.Now()
	a.freeze(now)
	return a.snapshot(now), nil
}

func (b *Battle) accelerate(assetID, user string, amount int) (AssetSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.ownedAsset("accelerate", assetID, user)
	if err != nil {
		return AssetSnapshot{}, err
	}
	if a.Frozen {
		return AssetSnapshot{}, fail(ErrInvalidState, "asset %s is frozen", a.ID)
	}
	a.accelerate(amount)
	return a.snapshot(b.store.Clock.Now()), nil
}

// battleArena exposes the battle to the skill resolver. The battle lock must be held.
type battleArena struct {
	b *Battle
}

func (a battleArena) BattleID() string {
	return a.b.ID
}

func (a battleArena) Asset(id string) (skill.AssetView, bool) {
	asset, ok := a.b.assets[id]
	if !ok {
		return skill.AssetView{}, false
	}
	return asset.skillView(), true
}

func (b *Battle) checkCast(req skill.Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMutable("cast a skill", StatusActive); err != nil {
		return err
	}
	_, err := b.store.Resolver.Check(battleArena{b}, req)
	return wrap(err)
}

func (b *Battle) cast(req skill.Request) (skill.Descriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMutable("cast a skill", StatusActive); err != nil {
		return skill.Descriptor{}, err
	}
	d, err := b.store.Resolver.Cast(battleArena{b}, req)
	if err != nil {
		return skill.Descriptor{}, wrap(err)
	}
	b.participants[req.User] = struct{}{}
	return d, nil
}

// trigger starts a system event. A blessing returns the users it pays.
func (b *Battle) trigger(t event.Type, metadata map[string]string) (event.Event, []string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkMutable("trigger an event", StatusPending, StatusActive); err != nil {
		return event.Event{}, nil, err
	}
	e, err := b.store.Events.Trigger(b.ID, t, metadata)
	if err != nil {
		return event.Event{}, nil, wrap(err)
	}
	var blessed []string
	switch t {
	case event.ThePurge:
		n := b.purgeLocked(e.AffectedCount())
		zap.L().Info("purge applied", zap.String("battle_id", b.ID), zap.Int("assets", n))
	case event.Blessing:
		for u := range b.participants {
			blessed = append(blessed, u)
		}
		sort.Strings(blessed)
	}
	return e, blessed, nil
}

func (b *Battle) dominance() (float64, float64) {
	return economy.Dominance(b.factions[0].Power(), b.factions[1].Power())
}

func (b *Battle) haltLocked(reason string) {
	if b.halted {
		return
	}
	b.halted = true
	b.haltReason = reason
	if b.cancel != nil {
		b.cancel()
	}
	zap.L().Error("battle halted", zap.String("battle_id", b.ID), zap.Int("round", b.round),
		zap.String("status", string(b.status)), zap.String("reason", reason))
}

// stop cancels the round timer without ending the battle.
func (b *Battle) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.cancel != nil {
		b.cancel()
	}
}

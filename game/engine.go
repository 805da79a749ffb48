package game

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/event"
	"github.com/COAOX/timeline_wars/skill"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store holds the process-wide state every battle shares. Create it once at startup
// and hand it to NewEngine.
type Store struct {
	Clock    Clock
	Ledger   economy.Ledger
	Treasury *economy.Treasury
	Skills   *skill.Ledger
	Resolver *skill.Resolver
	Events   *event.Controller
	Bets     *economy.Book
	Registry *Registry

	seed int64
	seq  int64
}

type StoreOption func(*Store)

func WithClock(c Clock) StoreOption {
	return func(s *Store) { s.Clock = c }
}

// WithSeed fixes the seed of every random draw (audit penalties, chaos jitter).
func WithSeed(seed int64) StoreOption {
	return func(s *Store) { s.seed = seed }
}

func WithTreasury(t *economy.Treasury) StoreOption {
	return func(s *Store) { s.Treasury = t }
}

func NewStore(ledger economy.Ledger, opts ...StoreOption) *Store {
	s := &Store{
		Clock:  RealClock(),
		Ledger: ledger,
		seed:   time.Now().UnixNano(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.Treasury == nil {
		s.Treasury = economy.NewTreasury(0)
	}
	s.Skills = skill.NewLedger(s.Clock.Now)
	s.Resolver = skill.NewResolver(s.Skills, s.seed)
	s.Events = event.NewController(s.Clock.Now)
	s.Bets = economy.NewBook(s.Clock.Now)
	s.Registry = NewRegistry()
	return s
}

// Prune reclaims expired cooldowns, effects and events until ctx is done.
func (s *Store) Prune(ctx context.Context, interval, retention time.Duration) {
	go s.Skills.Run(ctx, interval)
	s.Events.Run(ctx, interval, retention)
}

type Settings struct {
	RoundDuration time.Duration
	DefaultRounds int
	MaxRounds     int
}

func DefaultSettings() Settings {
	return Settings{
		RoundDuration: 90 * time.Second,
		DefaultRounds: 3,
		MaxRounds:     20,
	}
}

// Observer is told about battle lifecycle changes outside any battle lock.
type Observer interface {
	BattleStarted(s Snapshot)
	RoundClosed(s Snapshot, r RoundResult)
	BattleEnded(s Snapshot)
}

type Engine struct {
	store    *Store
	settings Settings

	mu        sync.RWMutex
	observers []Observer
}

func NewEngine(store *Store, settings Settings, observers ...Observer) *Engine {
	def := DefaultSettings()
	if settings.RoundDuration <= 0 {
		settings.RoundDuration = def.RoundDuration
	}
	if settings.DefaultRounds <= 0 {
		settings.DefaultRounds = def.DefaultRounds
	}
	if settings.MaxRounds <= 0 {
		settings.MaxRounds = def.MaxRounds
	}
	return &Engine{
		store:     store,
		settings:  settings,
		observers: observers,
	}
}

func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine) each(fn func(Observer)) {
	e.mu.RLock()
	obs := append([]Observer(nil), e.observers...)
	e.mu.RUnlock()
	for _, o := range obs {
		fn(o)
	}
}

func (e *Engine) roundClosed(b *Battle, s Snapshot, r RoundResult) {
	e.each(func(o Observer) { o.RoundClosed(s, r) })
}

func (e *Engine) ended(b *Battle, s Snapshot) {
	if s.Rewards != nil {
		for _, p := range s.Rewards.Payouts {
			if p.Amount <= 0 {
				continue
			}
			if _, err := e.store.Ledger.Credit(context.Background(), p.User, p.Amount, "battle reward: "+s.ID); err != nil {
				zap.L().Error("reward credit failed", zap.String("battle_id", s.ID), zap.String("user", p.User),
					zap.Int64("amount", p.Amount), zap.Error(err))
			}
		}
	}
	if s.Rewards != nil {
		e.payBets(s.ID, s.Rewards.Bets)
	}
	e.each(func(o Observer) { o.BattleEnded(s) })
}

func (e *Engine) payBets(battleID string, bets []economy.Bet) {
	for _, bet := range bets {
		if bet.Payout <= 0 {
			continue
		}
		memo := "bet won: " + battleID
		if bet.Status == economy.BetRefunded {
			memo = "bet refund: " + battleID
		}
		if _, err := e.store.Ledger.Credit(context.Background(), bet.User, bet.Payout, memo); err != nil {
			zap.L().Error("bet credit failed", zap.String("battle_id", battleID), zap.String("bet_id", bet.ID),
				zap.String("user", bet.User), zap.Int64("amount", bet.Payout), zap.Error(err))
		}
	}
}

// voidBets refunds the bets of a battle that will never end.
func (e *Engine) voidBets(b *Battle) {
	if b.Snapshot().Status == StatusEnded {
		return
	}
	if bets := e.store.Bets.Settle(b.ID, ""); len(bets) > 0 {
		zap.L().Info("bets voided", zap.String("battle_id", b.ID), zap.Int("bets", len(bets)))
		e.payBets(b.ID, bets)
	}
}

func (e *Engine) battle(id string) (*Battle, error) {
	b, ok := e.store.Registry.Get(id)
	if !ok {
		return nil, fail(ErrNotFound, "battle %s not found", id)
	}
	return b, nil
}

// charge debits the user and returns the compensating refund.
func (e *Engine) charge(ctx context.Context, user string, amount int64, memo string) (func(), error) {
	if amount <= 0 {
		return func() {}, nil
	}
	if _, err := e.store.Ledger.Debit(ctx, user, amount, memo); err != nil {
		return nil, wrap(err)
	}
	return func() {
		if _, err := e.store.Ledger.Credit(context.Background(), user, amount, "refund: "+memo); err != nil {
			zap.L().Error("refund failed", zap.String("user", user), zap.Int64("amount", amount),
				zap.String("memo", memo), zap.Error(err))
		}
	}, nil
}

type CreateRequest struct {
	Topic         string        `json:"topic"`
	Description   string        `json:"description"`
	FactionA      FactionInfo   `json:"faction_a"`
	FactionB      FactionInfo   `json:"faction_b"`
	TotalRounds   int           `json:"total_rounds"`
	RoundDuration time.Duration `json:"round_duration"`
}

func (e *Engine) Create(req CreateRequest) (Snapshot, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return Snapshot{}, fail(ErrValidation, "topic is required")
	}
	if req.TotalRounds == 0 {
		req.TotalRounds = e.settings.DefaultRounds
	}
	if req.TotalRounds < 1 || req.TotalRounds > e.settings.MaxRounds {
		return Snapshot{}, fail(ErrValidation, "total rounds must be within 1..%d, got %d", e.settings.MaxRounds, req.TotalRounds)
	}
	if req.RoundDuration == 0 {
		req.RoundDuration = e.settings.RoundDuration
	}
	if req.RoundDuration < 0 {
		return Snapshot{}, fail(ErrValidation, "round duration must be positive")
	}
	if req.FactionA.Name == "" {
		req.FactionA.Name = "Faction A"
	}
	if req.FactionB.Name == "" {
		req.FactionB.Name = "Faction B"
	}
	seed := e.store.seed + atomic.AddInt64(&e.store.seq, 1)
	b := newBattle(e.store, e, uuid.NewString(), req, seed)
	e.store.Registry.Add(b)
	zap.L().Info("battle created", zap.String("battle_id", b.ID), zap.String("topic", b.Topic))
	return b.Snapshot(), nil
}

func (e *Engine) Start(id string) (Snapshot, error) {
	b, err := e.battle(id)
	if err != nil {
		return Snapshot{}, err
	}
	s, err := b.start()
	if err != nil {
		return Snapshot{}, err
	}
	e.each(func(o Observer) { o.BattleStarted(s) })
	return s, nil
}

func (e *Engine) Vote(battleID, user string, f FactionID) error {
	if user == "" {
		return fail(ErrValidation, "user is required")
	}
	if !f.valid() {
		return fail(ErrValidation, "faction must be A or B")
	}
	b, err := e.battle(battleID)
	if err != nil {
		return err
	}
	return b.vote(user, f)
}

func (e *Engine) CurrentRoundVotes(battleID, viewer string) (RoundVotes, error) {
	b, err := e.battle(battleID)
	if err != nil {
		return RoundVotes{}, err
	}
	return b.currentRoundVotes(viewer), nil
}

type MintRequest struct {
	BattleID        string       `json:"battle_id"`
	User            string       `json:"user"`
	Faction         FactionID    `json:"faction"`
	Role            economy.Role `json:"role"`
	RelevanceScore  int          `json:"relevance_score"`
	StyleMatchScore int          `json:"style_match_score"`
	MintCost        int64        `json:"mint_cost"`
	Media           Media        `json:"media"`
}

// MintAsset debits the mint cost, then adds the asset. The debit is refunded if the
// battle rejects the asset.
func (e *Engine) MintAsset(ctx context.Context, req MintRequest) (AssetSnapshot, error) {
	if req.Role == "" {
		req.Role = economy.RoleUserSubmitted
	}
	switch {
	case req.User == "" || systemOwned(req.User):
		return AssetSnapshot{}, fail(ErrValidation, "invalid owner %q", req.User)
	case !req.Faction.valid():
		return AssetSnapshot{}, fail(ErrValidation, "faction must be A or B")
	case req.Role != economy.RoleGenesis && req.Role != economy.RoleUserSubmitted:
		return AssetSnapshot{}, fail(ErrValidation, "role %s cannot be minted", req.Role)
	case !economy.ValidScore(req.RelevanceScore) || !economy.ValidScore(req.StyleMatchScore):
		return AssetSnapshot{}, fail(ErrValidation, "scores must be within 0..%d", economy.MaxScore)
	case req.MintCost < 0:
		return AssetSnapshot{}, fail(ErrValidation, "mint cost must not be negative")
	}
	b, err := e.battle(req.BattleID)
	if err != nil {
		return AssetSnapshot{}, err
	}
	if err := b.checkMint(req.Faction, req.Role); err != nil {
		return AssetSnapshot{}, err
	}
	refund, err := e.charge(ctx, req.User, req.MintCost, "mint: "+req.BattleID)
	if err != nil {
		return AssetSnapshot{}, err
	}
	a, err := b.mint(&Asset{
		ID:              uuid.NewString(),
		Owner:           req.User,
		Faction:         req.Faction,
		Role:            req.Role,
		RelevanceScore:  req.RelevanceScore,
		StyleMatchScore: req.StyleMatchScore,
		MintCost:        req.MintCost,
		Media:           req.Media,
	})
	if err != nil {
		refund()
		return AssetSnapshot{}, err
	}
	return a, nil
}

type BackRequest struct {
	BattleID string `json:"battle_id"`
	AssetID  string `json:"asset_id"`
	User     string `json:"user"`
	Amount   int64  `json:"amount"`
}

func (e *Engine) BackAsset(ctx context.Context, req BackRequest) (BackResult, error) {
	if req.User == "" {
		return BackResult{}, fail(ErrValidation, "user is required")
	}
	if req.Amount <= 0 || req.Amount > MaxBackAmount {
		return BackResult{}, fail(ErrValidation, "amount must be within 1..%d, got %d", MaxBackAmount, req.Amount)
	}
	b, err := e.battle(req.BattleID)
	if err != nil {
		return BackResult{}, err
	}
	if err := b.checkBack(req.AssetID); err != nil {
		return BackResult{}, err
	}
	refund, err := e.charge(ctx, req.User, req.Amount, "back: "+req.AssetID)
	if err != nil {
		return BackResult{}, err
	}
	res, err := b.back(req.AssetID, req.User, req.Amount)
	if err != nil {
		refund()
		return BackResult{}, err
	}
	return res, nil
}

func (e *Engine) StakeAsset(battleID, assetID, user string) (AssetSnapshot, error) {
	b, err := e.battle(battleID)
	if err != nil {
		return AssetSnapshot{}, err
	}
	return b.stake(assetID, user)
}

func (e *Engine) FreezeAsset(battleID, assetID, user string) (AssetSnapshot, error) {
	b, err := e.battle(battleID)
	if err != nil {
		return AssetSnapshot{}, err
	}
	return b.freeze(assetID, user)
}

// AccelerateAsset ages an asset; amount <= 0 means the default step.
func (e *Engine) AccelerateAsset(battleID, assetID, user string, amount int) (AssetSnapshot, error) {
	if amount <= 0 {
		amount = economy.DefaultAcceleration
	}
	b, err := e.battle(battleID)
	if err != nil {
		return AssetSnapshot{}, err
	}
	return b.accelerate(assetID, user, amount)
}

type CastRequest struct {
	BattleID string `json:"battle_id"`
	User     string `json:"user"`
	SkillID  string `json:"skill_id"`
	TargetID string `json:"target_id,omitempty"`
}

// CastSkill debits the skill cost, then casts. The cost is refunded if the cast is rejected.
func (e *Engine) CastSkill(ctx context.Context, req CastRequest) (skill.Descriptor, error) {
	if req.User == "" {
		return skill.Descriptor{}, fail(ErrValidation, "user is required")
	}
	s, ok := skill.Lookup(req.SkillID)
	if !ok {
		return skill.Descriptor{}, fail(ErrUnknownSkill, "unknown skill %q", req.SkillID)
	}
	b, err := e.battle(req.BattleID)
	if err != nil {
		return skill.Descriptor{}, err
	}
	sr := skill.Request{User: req.User, SkillID: req.SkillID, TargetID: req.TargetID}
	if err := b.checkCast(sr); err != nil {
		return skill.Descriptor{}, err
	}
	refund, err := e.charge(ctx, req.User, s.Cost, "skill: "+s.Name)
	if err != nil {
		return skill.Descriptor{}, err
	}
	d, err := b.cast(sr)
	if err != nil {
		refund()
		return skill.Descriptor{}, err
	}
	return d, nil
}

// TriggerEvent starts a system event. Blessing bonuses are credited after the battle lock is released.
func (e *Engine) TriggerEvent(ctx context.Context, battleID string, t event.Type, metadata map[string]string) (event.Event, error) {
	if err := event.ValidateMetadata(metadata); err != nil {
		return event.Event{}, fail(ErrValidation, "%s", err)
	}
	b, err := e.battle(battleID)
	if err != nil {
		return event.Event{}, err
	}
	ev, blessed, err := b.trigger(t, metadata)
	if err != nil {
		return event.Event{}, err
	}
	bonus := ev.BonusAmount()
	for _, u := range blessed {
		if _, err := e.store.Ledger.Credit(ctx, u, bonus, "blessing: "+battleID); err != nil {
			zap.L().Error("blessing credit failed", zap.String("battle_id", battleID), zap.String("user", u), zap.Error(err))
		}
	}
	return ev, nil
}

type BetRequest struct {
	BattleID string    `json:"battle_id"`
	User     string    `json:"user"`
	Faction  FactionID `json:"faction"`
	Amount   int64     `json:"amount"`
}

// PlaceBet debits the stake and records the bet at the side's current odds. The stake is
// refunded if the pool closed meanwhile.
func (e *Engine) PlaceBet(ctx context.Context, req BetRequest) (economy.Bet, error) {
	switch {
	case req.User == "" || systemOwned(req.User):
		return economy.Bet{}, fail(ErrValidation, "invalid bettor %q", req.User)
	case !req.Faction.valid():
		return economy.Bet{}, fail(ErrValidation, "faction must be A or B")
	case req.Amount < economy.MinBet || req.Amount > economy.MaxBet:
		return economy.Bet{}, fail(ErrValidation, "bet must be within %d..%d, got %d", economy.MinBet, economy.MaxBet, req.Amount)
	}
	b, err := e.battle(req.BattleID)
	if err != nil {
		return economy.Bet{}, err
	}
	if err := b.checkBet(); err != nil {
		return economy.Bet{}, err
	}
	refund, err := e.charge(ctx, req.User, req.Amount, "bet: "+req.BattleID)
	if err != nil {
		return economy.Bet{}, err
	}
	bet, err := e.store.Bets.Place(req.BattleID, req.User, req.Faction.String(), req.Amount)
	if err != nil {
		refund()
		return economy.Bet{}, wrap(err)
	}
	zap.L().Info("bet placed", zap.String("battle_id", req.BattleID), zap.String("user", req.User),
		zap.Stringer("faction", req.Faction), zap.Int64("amount", req.Amount), zap.Float64("odds", bet.Odds))
	return bet, nil
}

func (e *Engine) Odds(battleID string) (economy.Odds, error) {
	if _, err := e.battle(battleID); err != nil {
		return economy.Odds{}, err
	}
	return e.store.Bets.Odds(battleID), nil
}

func (e *Engine) Bets(battleID string) ([]economy.Bet, error) {
	if _, err := e.battle(battleID); err != nil {
		return nil, err
	}
	return e.store.Bets.Bets(battleID), nil
}

// BetHistory lists the user's bets across battles, newest first.
func (e *Engine) BetHistory(user string) []economy.Bet {
	return e.store.Bets.History(user)
}

func (e *Engine) Events(battleID string) ([]event.Event, error) {
	if _, err := e.battle(battleID); err != nil {
		return nil, err
	}
	return e.store.Events.History(battleID), nil
}

// End closes the open round and ends the battle ahead of its timer. Ending an ended
// battle returns the same terminal snapshot.
func (e *Engine) End(battleID string) (Snapshot, error) {
	b, err := e.battle(battleID)
	if err != nil {
		return Snapshot{}, err
	}
	out, first, err := b.end()
	if err != nil {
		return Snapshot{}, err
	}
	if first {
		b.publish(out)
	}
	return out.snapshot, nil
}

func (e *Engine) GetState(battleID string) (Snapshot, error) {
	b, err := e.battle(battleID)
	if err != nil {
		return Snapshot{}, err
	}
	return b.Snapshot(), nil
}

// Count is the number of battles held in memory.
func (e *Engine) Count() int {
	return e.store.Registry.Len()
}

func (e *Engine) List() []Snapshot {
	battles := e.store.Registry.List()
	ret := make([]Snapshot, 0, len(battles))
	for _, b := range battles {
		ret = append(ret, b.Snapshot())
	}
	return ret
}

// Remove drops the battle with its assets, effects and events. Bets on a battle that has
// not ended are refunded.
func (e *Engine) Remove(battleID string) error {
	b, ok := e.store.Registry.Remove(battleID)
	if !ok {
		return fail(ErrNotFound, "battle %s not found", battleID)
	}
	e.voidBets(b)
	e.store.Skills.Forget(battleID)
	e.store.Events.Forget(battleID)
	return nil
}

func (e *Engine) CooldownRemaining(user, skillID string) (time.Duration, error) {
	if _, ok := skill.Lookup(skillID); !ok {
		return 0, fail(ErrUnknownSkill, "unknown skill %q", skillID)
	}
	return e.store.Skills.Remaining(user, skillID), nil
}

func (e *Engine) ActiveEffects(user, battleID string) []skill.Effect {
	return e.store.Skills.Effects(user, battleID)
}

func (e *Engine) Balance(ctx context.Context, user string) (int64, error) {
	bal, err := e.store.Ledger.Balance(ctx, user)
	return bal, wrap(err)
}

func (e *Engine) Treasury() economy.TreasuryState {
	return e.store.Treasury.State()
}

// Close stops every round timer and refunds the bets of unfinished battles. Battles stay readable.
func (e *Engine) Close() {
	e.store.Registry.Close()
	for _, b := range e.store.Registry.List() {
		e.voidBets(b)
	}
}

package arena

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/game"
	"github.com/COAOX/timeline_wars/skill"
	"github.com/bmizerany/assert"
	"github.com/topfreegames/pitaya/v2/constants"
	perrors "github.com/topfreegames/pitaya/v2/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type push struct {
	group string
	route string
	v     interface{}
}

type fakeGroups struct {
	mu      sync.Mutex
	groups  map[string]map[string]bool
	pushes  []push
	deleted []string
	// removeErr fails every GroupRemoveMember when set.
	removeErr error
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{groups: map[string]map[string]bool{}}
}

func (f *fakeGroups) GroupCreate(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[name]; ok {
		return constants.ErrGroupAlreadyExists
	}
	f.groups[name] = map[string]bool{}
	return nil
}

func (f *fakeGroups) GroupDelete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeGroups) GroupAddMember(_ context.Context, name, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[name]
	if !ok {
		return constants.ErrGroupNotFound
	}
	g[uid] = true
	return nil
}

func (f *fakeGroups) GroupRemoveMember(_ context.Context, name, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.groups[name], uid)
	return nil
}

func (f *fakeGroups) GroupBroadcast(_ context.Context, _, name, route string, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push{group: name, route: route, v: v})
	return nil
}

func (f *fakeGroups) routes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ret []string
	for _, p := range f.pushes {
		ret = append(ret, p.route)
	}
	return ret
}

type uidKey struct{}

// fakeIdentity reads the user from the context, or from the last Bind when the context carries none.
type fakeIdentity struct {
	bound   string
	onClose func()
}

func (f *fakeIdentity) UID(ctx context.Context) string {
	if u, ok := ctx.Value(uidKey{}).(string); ok {
		return u
	}
	return f.bound
}

func (f *fakeIdentity) Bind(_ context.Context, user string, onClose func()) error {
	f.bound = user
	f.onClose = onClose
	return nil
}

func as(user string) context.Context {
	return context.WithValue(context.Background(), uidKey{}, user)
}

func newTestRoom(t *testing.T) (*Room, *fakeGroups, *fakeIdentity) {
	engine := game.NewEngine(game.NewStore(economy.NewMemoryLedger(1000)), game.Settings{RoundDuration: time.Hour})
	t.Cleanup(engine.Close)
	g := newFakeGroups()
	ids := &fakeIdentity{}
	return newRoom(g, ids, engine, "arena"), g, ids
}

func errCode(t *testing.T, err error) (string, string) {
	var pe *perrors.Error
	assert.T(t, errors.As(err, &pe))
	return pe.Code, pe.Metadata["code"]
}

func TestJoinAndBroadcast(t *testing.T) {
	r, g, ids := newTestRoom(t)
	ctx := context.Background()
	s, err := r.Create(ctx, &CreateRequest{Topic: "cats vs dogs", TotalRounds: 2})
	assert.Equal(t, nil, err)

	resp, err := r.Join(ctx, &JoinRequest{BattleID: s.ID, User: "alice"})
	assert.Equal(t, nil, err)
	assert.Equal(t, "success", resp.Result)
	assert.Equal(t, "alice", ids.bound)
	assert.T(t, g.groups[groupName(s.ID)]["alice"])

	_, err = r.Start(ctx, &BattleRequest{BattleID: s.ID})
	assert.Equal(t, nil, err)
	v, err := r.Vote(ctx, &VoteRequest{BattleID: s.ID, Faction: game.FactionA})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, v.VotesA)

	_, err = r.End(ctx, &BattleRequest{BattleID: s.ID})
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{RouteBattleStart, RouteRoundEnd, RouteBattleEnd}, g.routes())
	assert.Equal(t, []string{groupName(s.ID)}, g.deleted)

	ids.onClose()
	assert.Equal(t, false, g.groups[groupName(s.ID)]["alice"])
}

func TestSessionCloseLogsGroupFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r, g, ids := newTestRoom(t)
	ctx := context.Background()
	s, _ := r.Create(ctx, &CreateRequest{Topic: "t"})
	_, err := r.Join(ctx, &JoinRequest{BattleID: s.ID, User: "alice"})
	assert.Equal(t, nil, err)

	g.removeErr = constants.ErrGroupNotFound
	ids.onClose()
	entries := logs.FilterMessage("remove closed session from group").All()
	assert.Equal(t, 1, len(entries))
	assert.Equal(t, "alice", entries[0].ContextMap()["user"])
	assert.Equal(t, groupName(s.ID), entries[0].ContextMap()["group"])
}

func TestJoinUnknownBattle(t *testing.T) {
	r, _, _ := newTestRoom(t)
	_, err := r.Join(context.Background(), &JoinRequest{BattleID: "nope", User: "alice"})
	code, gameCode := errCode(t, err)
	assert.Equal(t, "TW-404", code)
	assert.Equal(t, "NOT_FOUND", gameCode)
}

func TestRequiresJoin(t *testing.T) {
	r, _, _ := newTestRoom(t)
	_, err := r.Vote(context.Background(), &VoteRequest{BattleID: "x", Faction: game.FactionA})
	code, _ := errCode(t, err)
	assert.Equal(t, "TW-401", code)
}

func TestErrorCodes(t *testing.T) {
	r, _, _ := newTestRoom(t)
	ctx := context.Background()
	s, _ := r.Create(ctx, &CreateRequest{Topic: "t"})
	r.Start(ctx, &BattleRequest{BattleID: s.ID})

	_, err := r.Vote(as("bob"), &VoteRequest{BattleID: s.ID, Faction: game.FactionB})
	assert.Equal(t, nil, err)
	_, err = r.Vote(as("bob"), &VoteRequest{BattleID: s.ID, Faction: game.FactionB})
	code, gameCode := errCode(t, err)
	assert.Equal(t, "TW-409", code)
	assert.Equal(t, "ALREADY_VOTED", gameCode)

	_, err = r.Mint(as("bob"), &MintRequest{BattleID: s.ID, Faction: game.FactionA, MintCost: 5000, RelevanceScore: 50, StyleMatchScore: 50})
	code, gameCode = errCode(t, err)
	assert.Equal(t, "TW-402", code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", gameCode)

	_, err = r.Mint(as("bob"), &MintRequest{BattleID: s.ID, Faction: game.FactionA, Role: "WHALE"})
	code, _ = errCode(t, err)
	assert.Equal(t, "TW-400", code)

	_, err = r.Trigger(ctx, &TriggerRequest{BattleID: s.ID, Type: "earthquake"})
	code, gameCode = errCode(t, err)
	assert.Equal(t, "TW-400", code)
	assert.Equal(t, "UNKNOWN_EVENT", gameCode)
}

func TestMintBackCastBroadcast(t *testing.T) {
	r, g, _ := newTestRoom(t)
	ctx := context.Background()
	s, _ := r.Create(ctx, &CreateRequest{Topic: "t"})
	r.Start(ctx, &BattleRequest{BattleID: s.ID})

	a, err := r.Mint(as("alice"), &MintRequest{BattleID: s.ID, Faction: game.FactionA, MintCost: 100, RelevanceScore: 80, StyleMatchScore: 60})
	assert.Equal(t, nil, err)
	res, err := r.Back(as("bob"), &BackRequest{BattleID: s.ID, AssetID: a.ID, Amount: 50})
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(50), res.BackedAmount)

	d, err := r.Cast(as("bob"), &CastRequest{BattleID: s.ID, SkillID: skill.Scan, TargetID: a.ID})
	assert.Equal(t, nil, err)
	assert.T(t, d.Scan != nil)

	ev, err := r.Trigger(ctx, &TriggerRequest{BattleID: s.ID, Type: "market_crash"})
	assert.Equal(t, nil, err)
	assert.Equal(t, s.ID, ev.BattleID)

	bal, err := r.Balance(as("bob"), nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(1000-50-20), bal.Balance)

	assert.Equal(t, []string{RouteBattleStart, RouteMint, RouteBack, RouteSkill, RouteEvent}, g.routes())
}

func TestBetBroadcastsOdds(t *testing.T) {
	r, g, _ := newTestRoom(t)
	ctx := context.Background()
	s, _ := r.Create(ctx, &CreateRequest{Topic: "t"})
	r.Start(ctx, &BattleRequest{BattleID: s.ID})

	_, err := r.Bet(ctx, &BetRequest{BattleID: s.ID, Faction: game.FactionA, Amount: 100})
	code, _ := errCode(t, err)
	assert.Equal(t, "TW-401", code)

	bet, err := r.Bet(as("alice"), &BetRequest{BattleID: s.ID, Faction: game.FactionA, Amount: 100})
	assert.Equal(t, nil, err)
	assert.Equal(t, 2.0, bet.Odds)
	_, err = r.Bet(as("bob"), &BetRequest{BattleID: s.ID, Faction: game.FactionB, Amount: 2000})
	code, _ = errCode(t, err)
	assert.Equal(t, "TW-400", code)

	o, err := r.Odds(ctx, &BattleRequest{BattleID: s.ID})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1.01, o.A)
	assert.Equal(t, 10.0, o.B)
	assert.Equal(t, []string{RouteBattleStart, RouteOdds}, g.routes())

	h, err := r.Bets(as("alice"), nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(h.Bets))
	assert.Equal(t, bet.ID, h.Bets[0].ID)

	bal, _ := r.Balance(as("alice"), nil)
	assert.Equal(t, int64(900), bal.Balance)
}

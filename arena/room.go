// Package arena exposes the battle engine to websocket clients as a pitaya component.
package arena

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/COAOX/timeline_wars/config"
	"github.com/COAOX/timeline_wars/game"
	"github.com/topfreegames/pitaya/v2"
	"github.com/topfreegames/pitaya/v2/component"
	"github.com/topfreegames/pitaya/v2/constants"
	"go.uber.org/zap"
)

const (
	RouteBattleStart = "onBattleStart"
	RouteRoundEnd    = "onRoundEnd"
	RouteBattleEnd   = "onBattleEnd"
	RouteMint        = "onMint"
	RouteBack        = "onBack"
	RouteSkill       = "onSkill"
	RouteEvent       = "onEvent"
	RouteOdds        = "onOdds"
)

var (
	errNotJoined   = errors.New("join a battle first")
	errRebind      = errors.New("session is bound to another user")
	errInvalidRole = errors.New("unknown asset role")
)

// Room relays client requests to the engine and pushes battle updates to everyone who
// joined the battle's group.
type Room struct {
	component.Base
	groups       groupService
	ids          identity
	engine       *game.Engine
	frontendType string

	mu   sync.Mutex
	live map[string]bool
}

func RegistRoom(app pitaya.Pitaya, engine *game.Engine, cfg *config.Config) *Room {
	r := newRoom(app, sessionIdentity{app: app}, engine, cfg.FrontendType)
	app.Register(r,
		component.WithName(config.ArenaRoomName),
		component.WithNameFunc(strings.ToLower),
	)
	return r
}

func newRoom(groups groupService, ids identity, engine *game.Engine, frontendType string) *Room {
	r := &Room{
		groups:       groups,
		ids:          ids,
		engine:       engine,
		frontendType: frontendType,
		live:         map[string]bool{},
	}
	engine.Subscribe(r)
	return r
}

func groupName(battleID string) string {
	return "battle." + battleID
}

func (r *Room) ensureGroup(ctx context.Context, battleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[battleID] {
		return nil
	}
	err := r.groups.GroupCreate(ctx, groupName(battleID))
	if err != nil && !errors.Is(err, constants.ErrGroupAlreadyExists) {
		return err
	}
	r.live[battleID] = true
	return nil
}

func (r *Room) broadcast(battleID, route string, v interface{}) {
	r.mu.Lock()
	live := r.live[battleID]
	r.mu.Unlock()
	if !live {
		return
	}
	err := r.groups.GroupBroadcast(context.Background(), r.frontendType, groupName(battleID), route, v)
	if err != nil {
		zap.L().Error("broadcast failed", zap.String("battle_id", battleID), zap.String("route", route), zap.Error(err))
	}
}

func (r *Room) user(ctx context.Context) (string, error) {
	uid := r.ids.UID(ctx)
	if uid == "" {
		return "", pitaya.Error(errNotJoined, "TW-401", map[string]string{"code": "NOT_JOINED"})
	}
	return uid, nil
}

var kindCodes = map[game.Kind]string{
	game.KindValidation:    "TW-400",
	game.KindEconomic:      "TW-402",
	game.KindNotFound:      "TW-404",
	game.KindStateConflict: "TW-409",
	game.KindFatal:         "TW-500",
}

// toClient turns an engine error into a pitaya error carrying the engine's error code.
func toClient(err error) error {
	kind := game.KindOf(err)
	if kind == game.KindFatal {
		zap.L().Error("arena request failed", zap.Error(err))
	}
	return pitaya.Error(err, kindCodes[kind], map[string]string{
		"code": game.CodeOf(err),
		"kind": kind.String(),
	})
}

// BattleStarted, RoundClosed and BattleEnded make the room a game.Observer.

func (r *Room) BattleStarted(s game.Snapshot) {
	r.broadcast(s.ID, RouteBattleStart, &s)
}

func (r *Room) RoundClosed(s game.Snapshot, res game.RoundResult) {
	r.broadcast(s.ID, RouteRoundEnd, &RoundEnd{Result: res, Battle: s})
}

func (r *Room) BattleEnded(s game.Snapshot) {
	r.broadcast(s.ID, RouteBattleEnd, &s)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.live[s.ID] {
		return
	}
	delete(r.live, s.ID)
	if err := r.groups.GroupDelete(context.Background(), groupName(s.ID)); err != nil {
		zap.L().Warn("delete battle group", zap.String("battle_id", s.ID), zap.Error(err))
	}
}

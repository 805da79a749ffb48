package arena

import (
	"context"
	"time"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/event"
	"github.com/COAOX/timeline_wars/game"
	"github.com/COAOX/timeline_wars/skill"
	"github.com/topfreegames/pitaya/v2"
	"go.uber.org/zap"
)

type JoinRequest struct {
	BattleID string `json:"battle_id"`
	User     string `json:"user"`
}

type JoinResponse struct {
	Code   int              `json:"code"`
	Result string           `json:"result"`
	Battle *game.Snapshot   `json:"battle"`
	Votes  *game.RoundVotes `json:"votes,omitempty"`
}

type BattleRequest struct {
	BattleID string `json:"battle_id"`
}

type CreateRequest struct {
	Topic        string           `json:"topic"`
	Description  string           `json:"description"`
	FactionA     game.FactionInfo `json:"faction_a"`
	FactionB     game.FactionInfo `json:"faction_b"`
	TotalRounds  int              `json:"total_rounds"`
	RoundSeconds int              `json:"round_seconds"`
}

type VoteRequest struct {
	BattleID string         `json:"battle_id"`
	Faction  game.FactionID `json:"faction"`
}

type MintRequest struct {
	BattleID        string         `json:"battle_id"`
	Faction         game.FactionID `json:"faction"`
	Role            string         `json:"role"`
	RelevanceScore  int            `json:"relevance_score"`
	StyleMatchScore int            `json:"style_match_score"`
	MintCost        int64          `json:"mint_cost"`
	Media           game.Media     `json:"media"`
}

type BackRequest struct {
	BattleID string `json:"battle_id"`
	AssetID  string `json:"asset_id"`
	Amount   int64  `json:"amount"`
}

// AssetRequest serves stake, freeze and accelerate. Amount is only read by accelerate.
type AssetRequest struct {
	BattleID string `json:"battle_id"`
	AssetID  string `json:"asset_id"`
	Amount   int    `json:"amount,omitempty"`
}

type CastRequest struct {
	BattleID string `json:"battle_id"`
	SkillID  string `json:"skill_id"`
	TargetID string `json:"target_id,omitempty"`
}

type TriggerRequest struct {
	BattleID string            `json:"battle_id"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type BetRequest struct {
	BattleID string         `json:"battle_id"`
	Faction  game.FactionID `json:"faction"`
	Amount   int64          `json:"amount"`
}

type BetHistory struct {
	User string        `json:"user"`
	Bets []economy.Bet `json:"bets"`
}

type Ack struct {
	Code   int    `json:"code"`
	Result string `json:"result"`
}

type BalanceResponse struct {
	User    string `json:"user"`
	Balance int64  `json:"balance"`
}

type RoundEnd struct {
	Result game.RoundResult `json:"result"`
	Battle game.Snapshot    `json:"battle"`
}

type BackUpdate struct {
	AssetID string          `json:"asset_id"`
	User    string          `json:"user"`
	Result  game.BackResult `json:"result"`
}

// SkillCast is what the rest of the battle sees of a cast. Scan and snipe results stay with the caster.
type SkillCast struct {
	SkillID   string           `json:"skill_id"`
	Kind      skill.EffectKind `json:"kind"`
	Caster    string           `json:"caster"`
	TargetID  string           `json:"target_id,omitempty"`
	Faction   string           `json:"faction,omitempty"`
	Blocked   bool             `json:"blocked,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// dropMember takes a closed session's user out of the battle group.
func (r *Room) dropMember(group, user string) {
	if err := r.groups.GroupRemoveMember(context.Background(), group, user); err != nil {
		zap.L().Warn("remove closed session from group", zap.String("group", group), zap.String("user", user), zap.Error(err))
	}
}

// Join binds the session to a user and subscribes it to the battle's updates.
func (r *Room) Join(ctx context.Context, msg *JoinRequest) (*JoinResponse, error) {
	if msg.User == "" {
		return nil, pitaya.Error(errNotJoined, "TW-400", map[string]string{"code": "VALIDATION"})
	}
	s, err := r.engine.GetState(msg.BattleID)
	if err != nil {
		return nil, toClient(err)
	}
	if err := r.ensureGroup(ctx, msg.BattleID); err != nil {
		return nil, pitaya.Error(err, "TW-500", map[string]string{"failed": "group"})
	}
	group := groupName(msg.BattleID)
	err = r.ids.Bind(ctx, msg.User, func() { r.dropMember(group, msg.User) })
	if err != nil {
		return nil, pitaya.Error(err, "TW-401", map[string]string{"failed": "bind"})
	}
	if err := r.groups.GroupAddMember(ctx, group, msg.User); err != nil {
		return nil, pitaya.Error(err, "TW-500", map[string]string{"failed": "join"})
	}
	resp := &JoinResponse{Result: "success", Battle: &s}
	if s.Status == game.StatusActive {
		if v, err := r.engine.CurrentRoundVotes(msg.BattleID, msg.User); err == nil {
			resp.Votes = &v
		}
	}
	return resp, nil
}

func (r *Room) Leave(ctx context.Context, msg *BattleRequest) (*Ack, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.groups.GroupRemoveMember(ctx, groupName(msg.BattleID), uid); err != nil {
		return nil, pitaya.Error(err, "TW-404", map[string]string{"failed": "leave"})
	}
	return &Ack{Result: "success"}, nil
}

func (r *Room) Create(ctx context.Context, msg *CreateRequest) (*game.Snapshot, error) {
	s, err := r.engine.Create(game.CreateRequest{
		Topic:         msg.Topic,
		Description:   msg.Description,
		FactionA:      msg.FactionA,
		FactionB:      msg.FactionB,
		TotalRounds:   msg.TotalRounds,
		RoundDuration: time.Duration(msg.RoundSeconds) * time.Second,
	})
	if err != nil {
		return nil, toClient(err)
	}
	if err := r.ensureGroup(ctx, s.ID); err != nil {
		return nil, pitaya.Error(err, "TW-500", map[string]string{"failed": "group"})
	}
	return &s, nil
}

func (r *Room) Start(ctx context.Context, msg *BattleRequest) (*game.Snapshot, error) {
	if err := r.ensureGroup(ctx, msg.BattleID); err != nil {
		return nil, pitaya.Error(err, "TW-500", map[string]string{"failed": "group"})
	}
	s, err := r.engine.Start(msg.BattleID)
	if err != nil {
		return nil, toClient(err)
	}
	return &s, nil
}

func (r *Room) End(ctx context.Context, msg *BattleRequest) (*game.Snapshot, error) {
	s, err := r.engine.End(msg.BattleID)
	if err != nil {
		return nil, toClient(err)
	}
	return &s, nil
}

func (r *Room) State(ctx context.Context, msg *BattleRequest) (*game.Snapshot, error) {
	s, err := r.engine.GetState(msg.BattleID)
	if err != nil {
		return nil, toClient(err)
	}
	return &s, nil
}

// Votes returns the open round's tally as the caller may see it.
func (r *Room) Votes(ctx context.Context, msg *BattleRequest) (*game.RoundVotes, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	v, err := r.engine.CurrentRoundVotes(msg.BattleID, uid)
	if err != nil {
		return nil, toClient(err)
	}
	return &v, nil
}

func (r *Room) Vote(ctx context.Context, msg *VoteRequest) (*game.RoundVotes, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.engine.Vote(msg.BattleID, uid, msg.Faction); err != nil {
		return nil, toClient(err)
	}
	v, err := r.engine.CurrentRoundVotes(msg.BattleID, uid)
	if err != nil {
		return nil, toClient(err)
	}
	return &v, nil
}

func (r *Room) Mint(ctx context.Context, msg *MintRequest) (*game.AssetSnapshot, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	role, ok := economy.ParseRole(msg.Role)
	if !ok {
		return nil, pitaya.Error(errInvalidRole, "TW-400", map[string]string{"code": "VALIDATION"})
	}
	a, err := r.engine.MintAsset(ctx, game.MintRequest{
		BattleID:        msg.BattleID,
		User:            uid,
		Faction:         msg.Faction,
		Role:            role,
		RelevanceScore:  msg.RelevanceScore,
		StyleMatchScore: msg.StyleMatchScore,
		MintCost:        msg.MintCost,
		Media:           msg.Media,
	})
	if err != nil {
		return nil, toClient(err)
	}
	r.broadcast(msg.BattleID, RouteMint, &a)
	return &a, nil
}

func (r *Room) Back(ctx context.Context, msg *BackRequest) (*game.BackResult, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	res, err := r.engine.BackAsset(ctx, game.BackRequest{
		BattleID: msg.BattleID,
		AssetID:  msg.AssetID,
		User:     uid,
		Amount:   msg.Amount,
	})
	if err != nil {
		return nil, toClient(err)
	}
	r.broadcast(msg.BattleID, RouteBack, &BackUpdate{AssetID: msg.AssetID, User: uid, Result: res})
	return &res, nil
}

func (r *Room) Stake(ctx context.Context, msg *AssetRequest) (*game.AssetSnapshot, error) {
	return r.ownerOp(ctx, msg, r.engine.StakeAsset)
}

func (r *Room) Freeze(ctx context.Context, msg *AssetRequest) (*game.AssetSnapshot, error) {
	return r.ownerOp(ctx, msg, r.engine.FreezeAsset)
}

func (r *Room) Accelerate(ctx context.Context, msg *AssetRequest) (*game.AssetSnapshot, error) {
	return r.ownerOp(ctx, msg, func(battleID, assetID, user string) (game.AssetSnapshot, error) {
		return r.engine.AccelerateAsset(battleID, assetID, user, msg.Amount)
	})
}

func (r *Room) ownerOp(ctx context.Context, msg *AssetRequest, op func(battleID, assetID, user string) (game.AssetSnapshot, error)) (*game.AssetSnapshot, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	a, err := op(msg.BattleID, msg.AssetID, uid)
	if err != nil {
		return nil, toClient(err)
	}
	return &a, nil
}

func (r *Room) Cast(ctx context.Context, msg *CastRequest) (*skill.Descriptor, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	d, err := r.engine.CastSkill(ctx, game.CastRequest{
		BattleID: msg.BattleID,
		User:     uid,
		SkillID:  msg.SkillID,
		TargetID: msg.TargetID,
	})
	if err != nil {
		return nil, toClient(err)
	}
	sc := &SkillCast{
		SkillID:  d.SkillID,
		Kind:     d.Kind,
		Caster:   d.Caster,
		TargetID: d.TargetID,
		Faction:  d.Faction,
		Blocked:  d.Blocked,
	}
	if !d.ExpiresAt.IsZero() {
		t := d.ExpiresAt
		sc.ExpiresAt = &t
	}
	r.broadcast(msg.BattleID, RouteSkill, sc)
	return &d, nil
}

func (r *Room) Trigger(ctx context.Context, msg *TriggerRequest) (*event.Event, error) {
	t, err := event.ParseType(msg.Type)
	if err != nil {
		return nil, toClient(err)
	}
	ev, err := r.engine.TriggerEvent(ctx, msg.BattleID, t, msg.Metadata)
	if err != nil {
		return nil, toClient(err)
	}
	r.broadcast(msg.BattleID, RouteEvent, &ev)
	return &ev, nil
}

// Bet stakes tokens on a side and pushes the new odds to the battle.
func (r *Room) Bet(ctx context.Context, msg *BetRequest) (*economy.Bet, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	bet, err := r.engine.PlaceBet(ctx, game.BetRequest{
		BattleID: msg.BattleID,
		User:     uid,
		Faction:  msg.Faction,
		Amount:   msg.Amount,
	})
	if err != nil {
		return nil, toClient(err)
	}
	if o, err := r.engine.Odds(msg.BattleID); err == nil {
		r.broadcast(msg.BattleID, RouteOdds, &o)
	}
	return &bet, nil
}

func (r *Room) Odds(ctx context.Context, msg *BattleRequest) (*economy.Odds, error) {
	o, err := r.engine.Odds(msg.BattleID)
	if err != nil {
		return nil, toClient(err)
	}
	return &o, nil
}

func (r *Room) Bets(ctx context.Context, msg []byte) (*BetHistory, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	return &BetHistory{User: uid, Bets: r.engine.BetHistory(uid)}, nil
}

func (r *Room) Balance(ctx context.Context, msg []byte) (*BalanceResponse, error) {
	uid, err := r.user(ctx)
	if err != nil {
		return nil, err
	}
	bal, err := r.engine.Balance(ctx, uid)
	if err != nil {
		return nil, toClient(err)
	}
	return &BalanceResponse{User: uid, Balance: bal}, nil
}

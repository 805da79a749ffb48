package db

import (
	"encoding/json"

	"github.com/COAOX/timeline_wars/game"
	"github.com/COAOX/timeline_wars/model"
	"go.uber.org/zap"
)

// Archiver stores every battle as it starts and again once it ends, and bumps the
// score of each winning contributor.
type Archiver struct {
	client *Client
}

func NewArchiver(c *Client) *Archiver {
	return &Archiver{client: c}
}

func (a *Archiver) BattleStarted(s game.Snapshot) {
	if err := a.client.Battle.Save(ToModel(s)); err != nil {
		zap.L().Error("archive battle start", zap.String("battle_id", s.ID), zap.Error(err))
	}
}

func (a *Archiver) RoundClosed(game.Snapshot, game.RoundResult) {}

func (a *Archiver) BattleEnded(s game.Snapshot) {
	if err := a.client.Battle.Save(ToModel(s)); err != nil {
		zap.L().Error("archive battle end", zap.String("battle_id", s.ID), zap.Error(err))
		return
	}
	if err := a.client.Player.IncreaseScore(Winners(s)); err != nil {
		zap.L().Error("increase score", zap.String("battle_id", s.ID), zap.Error(err))
	}
}

// Player, Top, Battle, LastWinner and Payouts serve the archive read side.

func (a *Archiver) Player(playerID string) (model.Player, error) {
	return a.client.Player.Get(playerID)
}

func (a *Archiver) Top(limit int) ([]model.Player, error) {
	return a.client.Player.Top(limit)
}

func (a *Archiver) Battle(battleID string) (*model.Battle, error) {
	return a.client.Battle.Get(battleID)
}

func (a *Archiver) LastWinner() (*model.Battle, error) {
	return a.client.Battle.GetLastWinner()
}

func (a *Archiver) Payouts(playerID string, limit int) ([]model.Payout, error) {
	return a.client.Payout.ListByPlayer(playerID, limit)
}

// ToModel flattens a snapshot into its archive row.
func ToModel(s game.Snapshot) *model.Battle {
	m := &model.Battle{
		BattleID:    s.ID,
		Topic:       s.Topic,
		Description: s.Description,
		FactionA:    s.Faction(game.FactionA).Info.Name,
		FactionB:    s.Faction(game.FactionB).Info.Name,
		Status:      string(s.Status),
		Rounds:      s.TotalRounds,
		Winner:      s.Winner.String(),
		VotesA:      s.Scoreboard.VotesA,
		VotesB:      s.Scoreboard.VotesB,
		PowerA:      s.Faction(game.FactionA).Power,
		PowerB:      s.Faction(game.FactionB).Power,
	}
	if s.StartedAt != nil {
		m.StartTime = *s.StartedAt
	}
	if s.EndedAt != nil {
		m.EndTime = *s.EndedAt
	}
	if r := s.Rewards; r != nil {
		m.PoolTotal = r.Total
		m.WinnerShare = r.WinnerShare
		m.LoserShare = r.LoserShare
		m.SystemFee = r.SystemFee
		m.Burned = r.Burned
		for _, p := range r.Payouts {
			m.Payouts = append(m.Payouts, model.Payout{BattleID: s.ID, PlayerID: p.User, Amount: p.Amount, Winner: p.Winner})
		}
	}
	if b, err := json.Marshal(s); err == nil {
		m.Snapshot = string(b)
	}
	return m
}

// Winners lists the users paid from the winner share.
func Winners(s game.Snapshot) []string {
	if s.Rewards == nil {
		return nil
	}
	var ret []string
	for _, p := range s.Rewards.Payouts {
		if p.Winner {
			ret = append(ret, p.User)
		}
	}
	return ret
}

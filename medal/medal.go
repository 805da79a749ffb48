package medal

import (
	"fmt"
	"sort"

	"github.com/COAOX/timeline_wars/game"
	"go.uber.org/zap"
)

type minter interface {
	Prefix() string
	Mint(name, description string) error
}

// Awarder implements game.Observer; only BattleEnded does anything.
type Awarder struct {
	m     minter
	async bool
}

func NewAwarder(c *Client) *Awarder {
	return &Awarder{m: c, async: true}
}

func (a *Awarder) BattleStarted(game.Snapshot) {}

func (a *Awarder) RoundClosed(game.Snapshot, game.RoundResult) {}

func (a *Awarder) BattleEnded(s game.Snapshot) {
	user, ok := TopContributor(s)
	if !ok {
		return
	}
	name, desc := a.describe(s, user)
	mint := func() {
		if err := a.m.Mint(name, desc); err != nil {
			zap.L().Error("mint medal", zap.String("battle_id", s.ID), zap.String("user", user), zap.Error(err))
			return
		}
		zap.L().Info("medal minted", zap.String("battle_id", s.ID), zap.String("user", user))
	}
	if a.async {
		go mint()
		return
	}
	mint()
}

func (a *Awarder) describe(s game.Snapshot, user string) (string, string) {
	winner := s.Faction(s.Winner).Info.Name
	name := fmt.Sprintf("%s %s #%s", a.m.Prefix(), winner, s.ID)
	desc := fmt.Sprintf("%s led %s to victory in \"%s\" (%d:%d votes).",
		user, winner, s.Topic, s.Scoreboard.VotesA, s.Scoreboard.VotesB)
	return name, desc
}

// TopContributor picks the user who put the most tokens into the winning faction's assets.
// Ties go to the lexically smaller user name.
func TopContributor(s game.Snapshot) (string, bool) {
	if s.Status != game.StatusEnded || s.Winner == game.FactionNone {
		return "", false
	}
	totals := map[string]int64{}
	for _, a := range s.Faction(s.Winner).Assets {
		if a.Owner != game.SystemOwner && a.Owner != game.RogueAgentOwner {
			totals[a.Owner] += a.MintCost
		}
		for _, b := range a.Backers {
			totals[b.User] += b.Amount
		}
	}
	users := make([]string, 0, len(totals))
	for u, amt := range totals {
		if amt > 0 {
			users = append(users, u)
		}
	}
	if len(users) == 0 {
		return "", false
	}
	sort.Slice(users, func(i, j int) bool {
		if totals[users[i]] != totals[users[j]] {
			return totals[users[i]] > totals[users[j]]
		}
		return users[i] < users[j]
	})
	return users[0], true
}

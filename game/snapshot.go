package game

import (
	"time"

	"github.com/COAOX/timeline_wars/economy"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

type Scoreboard struct {
	VotesA     int `json:"votes_a"`
	VotesB     int `json:"votes_b"`
	RoundsWonA int `json:"rounds_won_a"`
	RoundsWonB int `json:"rounds_won_b"`
}

type RoundResult struct {
	Round     int       `json:"round"`
	VotesA    int       `json:"votes_a"`
	VotesB    int       `json:"votes_b"`
	PowerA    float64   `json:"power_a"`
	PowerB    float64   `json:"power_b"`
	Winner    FactionID `json:"winner"`
	Modifiers []string  `json:"modifiers,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Rewards is the settled pool of an ended battle.
type Rewards struct {
	economy.Pool
	// Burned is the part of the pool a market crash destroyed before the split.
	Burned   int64            `json:"burned"`
	Treasury int64            `json:"treasury"`
	Payouts  []economy.Payout `json:"payouts"`
	// Bets are the settled wagers. A battle nobody decided refunds them.
	Bets []economy.Bet `json:"bets,omitempty"`
}

type AssetSnapshot struct {
	ID              string       `json:"id"`
	Owner           string       `json:"owner"`
	BattleID        string       `json:"battle_id"`
	Faction         FactionID    `json:"faction"`
	Role            economy.Role `json:"role"`
	RelevanceScore  int          `json:"relevance_score"`
	StyleMatchScore int          `json:"style_match_score"`
	MintCost        int64        `json:"mint_cost"`
	Media           Media        `json:"media"`
	MintedAt        time.Time    `json:"minted_at"`
	Backers         []Backer     `json:"backers"`
	BackedAmount    int64        `json:"backed_amount"`
	Power           float64      `json:"power"`
	Staked          bool         `json:"staked"`
	PotentialReward int64        `json:"potential_reward"`
	Frozen          bool         `json:"frozen"`
	Entropy         int          `json:"entropy"`
	Purged          bool         `json:"purged,omitempty"`
	Status          AssetStatus  `json:"status"`
	Reward          int64        `json:"reward,omitempty"`
}

type FactionSnapshot struct {
	ID        FactionID       `json:"id"`
	Info      FactionInfo     `json:"info"`
	Power     float64         `json:"power"`
	Dominance float64         `json:"dominance"`
	Assets    []AssetSnapshot `json:"assets"`
}

// Snapshot is a deep copy of a battle, safe to hand out.
type Snapshot struct {
	ID            string             `json:"id"`
	Topic         string             `json:"topic"`
	Description   string             `json:"description"`
	Status        Status             `json:"status"`
	Round         int                `json:"round"`
	TotalRounds   int                `json:"total_rounds"`
	RoundDuration time.Duration      `json:"round_duration"`
	RoundDeadline *time.Time         `json:"round_deadline,omitempty"`
	Factions      [2]FactionSnapshot `json:"factions"`
	Results       []RoundResult      `json:"results"`
	Scoreboard    Scoreboard         `json:"scoreboard"`
	Rewards       *Rewards           `json:"rewards,omitempty"`
	Winner        FactionID          `json:"winner"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	EndedAt       *time.Time         `json:"ended_at,omitempty"`
	Halted        bool               `json:"halted,omitempty"`
	HaltReason    string             `json:"halt_reason,omitempty"`
}

// Faction returns the snapshot of one side.
func (s Snapshot) Faction(f FactionID) FactionSnapshot {
	return s.Factions[f.index()]
}

// Asset finds an asset in either faction.
func (s Snapshot) Asset(id string) (AssetSnapshot, bool) {
	for _, f := range s.Factions {
		for _, a := range f.Assets {
			if a.ID == id {
				return a, true
			}
		}
	}
	return AssetSnapshot{}, false
}

// RoundVotes is the in-progress round's tally as one viewer may see it.
type RoundVotes struct {
	Round      int  `json:"round"`
	VotesA     int  `json:"votes_a"`
	VotesB     int  `json:"votes_b"`
	ConcealedA bool `json:"concealed_a,omitempty"`
	ConcealedB bool `json:"concealed_b,omitempty"`
}

type BackResult struct {
	NewPower     float64 `json:"new_power"`
	BackedAmount int64   `json:"backed_amount"`
	BackerCount  int     `json:"backer_count"`
	DominanceA   float64 `json:"dominance_a"`
	DominanceB   float64 `json:"dominance_b"`
}

func (a *Asset) snapshot(now time.Time) AssetSnapshot {
	return AssetSnapshot{
		ID:              a.ID,
		Owner:           a.Owner,
		BattleID:        a.BattleID,
		Faction:         a.Faction,
		Role:            a.Role,
		RelevanceScore:  a.RelevanceScore,
		StyleMatchScore: a.StyleMatchScore,
		MintCost:        a.MintCost,
		Media:           a.Media,
		MintedAt:        a.MintedAt,
		Backers:         append([]Backer(nil), a.Backers...),
		BackedAmount:    a.BackedAmount,
		Power:           a.Power(),
		Staked:          a.Staked,
		PotentialReward: a.PotentialReward,
		Frozen:          a.Frozen,
		Entropy:         a.Entropy(now),
		Purged:          a.purged,
		Status:          a.Status,
		Reward:          a.Reward,
	}
}

func (b *Battle) snapshotLocked() Snapshot {
	now := b.store.Clock.Now()
	s := Snapshot{
		ID:            b.ID,
		Topic:         b.Topic,
		Description:   b.Description,
		Status:        b.status,
		Round:         b.round,
		TotalRounds:   b.totalRounds,
		RoundDuration: b.roundDuration,
		Results:       append([]RoundResult(nil), b.results...),
		Scoreboard:    b.score,
		Winner:        b.winner,
		Halted:        b.halted,
		HaltReason:    b.haltReason,
	}
	if b.status == StatusActive {
		d := b.deadline
		s.RoundDeadline = &d
	}
	if !b.startedAt.IsZero() {
		t := b.startedAt
		s.StartedAt = &t
	}
	if !b.endedAt.IsZero() {
		t := b.endedAt
		s.EndedAt = &t
	}
	if b.rewards != nil {
		r := *b.rewards
		r.Payouts = append([]economy.Payout(nil), b.rewards.Payouts...)
		r.Bets = append([]economy.Bet(nil), b.rewards.Bets...)
		s.Rewards = &r
	}
	domA, domB := b.dominance()
	dom := [2]float64{domA, domB}
	for i, f := range b.factions {
		fs := FactionSnapshot{
			ID:        f.ID,
			Info:      f.Info,
			Power:     f.Power(),
			Dominance: dom[i],
			Assets:    make([]AssetSnapshot, 0, len(f.Assets)),
		}
		for _, a := range f.Assets {
			fs.Assets = append(fs.Assets, a.snapshot(now))
		}
		s.Factions[i] = fs
	}
	return s
}

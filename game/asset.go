package game

import (
	"math"
	"time"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/skill"
)

const (
	SystemOwner     = "SYSTEM"
	RogueAgentOwner = "ROGUE_AGENT"

	MaxBackAmount       = 10000
	stakeRewardMultiple = 1.5
)

type AssetStatus string

const (
	AssetPending   AssetStatus = "PENDING"
	AssetCanonical AssetStatus = "CANONICAL"
	AssetParadox   AssetStatus = "PARADOX"
)

// Media is stored exactly as supplied at mint.
type Media struct {
	ImageURL  string `json:"image_url"`
	Prompt    string `json:"prompt"`
	EngineTag string `json:"engine_tag"`
}

type Backer struct {
	User   string    `json:"user"`
	Amount int64     `json:"amount"`
	At     time.Time `json:"at"`
}

type Asset struct {
	ID              string
	Owner           string
	BattleID        string
	Faction         FactionID
	Role            economy.Role
	RelevanceScore  int
	StyleMatchScore int
	MintCost        int64
	Media           Media
	MintedAt        time.Time

	Backers      []Backer
	BackedAmount int64

	Staked          bool
	PotentialReward int64

	Frozen        bool
	frozenEntropy int
	accelerated   int

	// purged assets stay in their faction but no longer count in round tallies
	purged bool
	Status AssetStatus
	// Reward is what the owner was paid from the settled pool.
	Reward int64
}

func (a *Asset) Genesis() bool {
	return a.Role == economy.RoleGenesis
}

func (a *Asset) Power() float64 {
	return economy.Power(economy.PowerInput{
		Role:            a.Role,
		RelevanceScore:  a.RelevanceScore,
		StyleMatchScore: a.StyleMatchScore,
		MintCost:        a.MintCost,
		BackedAmount:    a.BackedAmount,
	})
}

func (a *Asset) Entropy(now time.Time) int {
	if a.Frozen {
		return a.frozenEntropy
	}
	return economy.Entropy(a.MintedAt, now, a.accelerated)
}

func (a *Asset) back(user string, amount int64, now time.Time) {
	a.BackedAmount += amount
	for i := range a.Backers {
		if a.Backers[i].User == user {
			a.Backers[i].Amount += amount
			a.Backers[i].At = now
			return
		}
	}
	a.Backers = append(a.Backers, Backer{User: user, Amount: amount, At: now})
}

func (a *Asset) stake() {
	a.Staked = true
	a.PotentialReward = int64(math.Floor(stakeRewardMultiple * a.Power()))
}

func (a *Asset) freeze(now time.Time) {
	a.frozenEntropy = a.Entropy(now)
	a.Frozen = true
}

func (a *Asset) accelerate(amount int) {
	a.accelerated += amount
	if a.accelerated > economy.MaxEntropy {
		a.accelerated = economy.MaxEntropy
	}
}

func (a *Asset) skillView() skill.AssetView {
	return skill.AssetView{
		ID:              a.ID,
		Owner:           a.Owner,
		Faction:         a.Faction.String(),
		Genesis:         a.Genesis(),
		RelevanceScore:  a.RelevanceScore,
		StyleMatchScore: a.StyleMatchScore,
		Power:           a.Power(),
		Prompt:          a.Media.Prompt,
		EngineTag:       a.Media.EngineTag,
	}
}

func systemOwned(user string) bool {
	return user == SystemOwner || user == RogueAgentOwner
}

package economy

import (
	"math"
	"time"
)

type Role string

const (
	RoleGenesis       Role = "GENESIS"
	RoleUserSubmitted Role = "USER_SUBMITTED"
	RoleRogueAgent    Role = "ROGUE_AGENT"
)

const (
	// GenesisPower is fixed at mint; backing never moves it.
	GenesisPower = 5000

	MaxScore    = 100
	scoreWeight = 0.5

	MaxEntropy          = 100
	entropyPerDay       = 2
	DefaultAcceleration = 20
)

var roles = map[string]Role{
	string(RoleGenesis):       RoleGenesis,
	string(RoleUserSubmitted): RoleUserSubmitted,
	string(RoleRogueAgent):    RoleRogueAgent,
}

func ParseRole(s string) (Role, bool) {
	if s == "" {
		return RoleUserSubmitted, true
	}
	r, ok := roles[s]
	return r, ok
}

type PowerInput struct {
	Role            Role
	RelevanceScore  int
	StyleMatchScore int
	MintCost        int64
	BackedAmount    int64
}

// Power is a pure function of the asset's scores, mint cost and live backing.
func Power(in PowerInput) float64 {
	if in.Role == RoleGenesis {
		return GenesisPower
	}
	return scoreWeight*float64(in.RelevanceScore+in.StyleMatchScore) + float64(in.MintCost) + float64(in.BackedAmount)
}

// Dominance returns each side's share of the total power in percent, 50/50 when nothing is at stake.
func Dominance(powerA, powerB float64) (float64, float64) {
	total := powerA + powerB
	if total <= 0 {
		return 50, 50
	}
	a := 100 * powerA / total
	return a, 100 - a
}

// Entropy ages an asset by two points a day since mint plus any manual acceleration, capped at 100.
func Entropy(mintedAt, now time.Time, accelerated int) int {
	days := int(now.Sub(mintedAt) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	return int(math.Min(MaxEntropy, float64(days*entropyPerDay+accelerated)))
}

func ValidScore(score int) bool {
	return score >= 0 && score <= MaxScore
}

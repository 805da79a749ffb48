package skill

import (
	"sort"
	"time"
)

// Target describes what a skill may be aimed at.
type Target uint8

const (
	TargetSelf Target = iota + 1
	TargetAsset
	TargetOpponent
	TargetBattle
)

var targetTag = map[Target]string{
	TargetSelf:     "self",
	TargetAsset:    "asset",
	TargetOpponent: "opponent",
	TargetBattle:   "battle",
}

func (t Target) String() string {
	return targetTag[t]
}

func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

type EffectKind string

const (
	EffectScan         EffectKind = "scan"
	EffectSnipe        EffectKind = "snipe"
	EffectShield       EffectKind = "shield"
	EffectBoost        EffectKind = "boost"
	EffectDebuff       EffectKind = "debuff"
	EffectFactionBoost EffectKind = "faction_boost"
	EffectConceal      EffectKind = "conceal"
	EffectRewind       EffectKind = "rewind"
)

const (
	Scan      = "SKILL_SCAN"
	Snipe     = "SKILL_SNIPE"
	Shield    = "SKILL_SHIELD"
	Boost     = "SKILL_BOOST"
	Fog       = "SKILL_FOG"
	Liquidity = "SKILL_LIQUIDITY"
	Audit     = "SKILL_AUDIT"
	Rewind    = "SKILL_REWIND"
)

const (
	BoostAmount      = 500
	LiquidityPercent = 5
	auditPenaltyMin  = 10
	auditPenaltyMax  = 30
)

type Skill struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Cost           int64         `json:"cost"`
	Cooldown       time.Duration `json:"cooldown"`
	EffectDuration time.Duration `json:"effect_duration"`
	Target         Target        `json:"target"`
	Effect         EffectKind    `json:"effect"`
}

var catalog = map[string]Skill{
	Scan: {
		ID:          Scan,
		Name:        "Deep Scan",
		Description: "Evaluation report and prompt keywords of any asset",
		Cost:        20,
		Cooldown:    30 * time.Second,
		Target:      TargetAsset,
		Effect:      EffectScan,
	},
	Snipe: {
		ID:          Snipe,
		Name:        "Copy-Mint",
		Description: "Reveal an asset's prompt and engine for a derived mint",
		Cost:        150,
		Cooldown:    120 * time.Second,
		Target:      TargetAsset,
		Effect:      EffectSnipe,
	},
	Shield: {
		ID:             Shield,
		Name:           "Anti-Audit",
		Description:    "Immune to audit attacks",
		Cost:           100,
		Cooldown:       300 * time.Second,
		EffectDuration: 300 * time.Second,
		Target:         TargetSelf,
		Effect:         EffectShield,
	},
	Boost: {
		ID:             Boost,
		Name:           "Flash Pump",
		Description:    "+500 power to an asset",
		Cost:           200,
		Cooldown:       180 * time.Second,
		EffectDuration: 60 * time.Second,
		Target:         TargetAsset,
		Effect:         EffectBoost,
	},
	Fog: {
		ID:             Fog,
		Name:           "Fog Generator",
		Description:    "Hide a faction's vote count from everyone else",
		Cost:           200,
		Cooldown:       600 * time.Second,
		EffectDuration: 600 * time.Second,
		Target:         TargetBattle,
		Effect:         EffectConceal,
	},
	Liquidity: {
		ID:             Liquidity,
		Name:           "Liquidity Boost",
		Description:    "+5% power to every asset of a faction",
		Cost:           300,
		Cooldown:       600 * time.Second,
		EffectDuration: 300 * time.Second,
		Target:         TargetBattle,
		Effect:         EffectFactionBoost,
	},
	Audit: {
		ID:             Audit,
		Name:           "Audit Attack",
		Description:    "Force a re-evaluation of an enemy asset, lowering its power",
		Cost:           50,
		Cooldown:       60 * time.Second,
		EffectDuration: 300 * time.Second,
		Target:         TargetOpponent,
		Effect:         EffectDebuff,
	},
	Rewind: {
		ID:          Rewind,
		Name:        "Time Rewind",
		Description: "Reset the caster's other cooldowns",
		Cost:        250,
		Cooldown:    900 * time.Second,
		Target:      TargetSelf,
		Effect:      EffectRewind,
	},
}

func Lookup(id string) (Skill, bool) {
	s, ok := catalog[id]
	return s, ok
}

// All returns the catalog ordered by skill ID.
func All() []Skill {
	ret := make([]Skill, 0, len(catalog))
	for _, s := range catalog {
		ret = append(ret, s)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

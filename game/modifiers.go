package game

import (
	"sort"
	"strings"
	"unicode"

	"github.com/COAOX/timeline_wars/event"
	"github.com/COAOX/timeline_wars/skill"
)

const (
	distortionMultiplier = 2
	chaosJitter          = 0.25
)

// effectivePowerLocked tallies each faction's power for the round being closed with
// skill effects and system events folded in. Nothing here is written back to the assets.
func (b *Battle) effectivePowerLocked() (float64, float64, []string) {
	var mods []string
	seen := map[string]bool{}
	mod := func(name string) {
		if !seen[name] {
			seen[name] = true
			mods = append(mods, name)
		}
	}

	bonus := map[string]float64{}
	mul := [2]float64{1, 1}
	for _, e := range b.store.Skills.BattleEffects(b.ID) {
		switch e.Kind {
		case skill.EffectBoost:
			bonus[e.TargetID] += float64(e.Amount)
		case skill.EffectDebuff:
			bonus[e.TargetID] -= float64(e.Amount)
		case skill.EffectFactionBoost:
			f, ok := ParseFaction(e.Faction)
			if !ok {
				continue
			}
			mul[f.index()] *= 1 + float64(e.Amount)/100
		default:
			continue
		}
		mod(e.SkillID)
	}

	distortion, distorted := b.store.Events.Get(b.ID, event.TimelineDistortion)
	var keywords []string
	if distorted {
		keywords = distortion.Keywords()
		mod(string(event.TimelineDistortion))
	}
	chaos := b.store.Events.IsActive(b.ID, event.ChaosMode)
	if chaos {
		mod(string(event.ChaosMode))
	}
	crash := b.store.Events.IsActive(b.ID, event.MarketCrash)
	if crash {
		mod(string(event.MarketCrash))
	}

	var power [2]float64
	for i, f := range b.factions {
		for _, a := range f.Assets {
			if a.purged {
				mod(string(event.ThePurge))
				continue
			}
			p := a.Power()
			if crash && !a.Genesis() {
				p -= float64(a.BackedAmount / 2)
			}
			p = (p + bonus[a.ID]) * mul[i]
			if distorted && matchesKeyword(a.Media.Prompt, keywords) {
				p *= distortionMultiplier
			}
			if chaos {
				p *= 1 + (b.rnd.Float64()*2-1)*chaosJitter
			}
			if p > 0 {
				power[i] += p
			}
		}
	}
	return power[0], power[1], mods
}

// matchesKeyword reports whether a keyword is one of the prompt's words. Words are split
// on whitespace and commas and only those longer than three letters count.
func matchesKeyword(prompt string, keywords []string) bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	}) {
		if len(w) > 3 {
			words[w] = true
		}
	}
	for _, k := range keywords {
		if words[strings.ToLower(k)] {
			return true
		}
	}
	return false
}

// purgeLocked drops the n weakest non-genesis assets of each faction from every later tally.
func (b *Battle) purgeLocked(n int) int {
	purged := 0
	for _, f := range b.factions {
		var candidates []*Asset
		for _, a := range f.Assets {
			if !a.Genesis() && !a.purged {
				candidates = append(candidates, a)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Power() < candidates[j].Power() })
		for i := 0; i < n && i < len(candidates); i++ {
			candidates[i].purged = true
			purged++
		}
	}
	return purged
}

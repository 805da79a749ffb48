package skill

import (
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AssetView is the read-only part of an asset a skill needs to see.
type AssetView struct {
	ID              string
	Owner           string
	Faction         string
	Genesis         bool
	RelevanceScore  int
	StyleMatchScore int
	Power           float64
	Prompt          string
	EngineTag       string
}

// Arena is the battle a skill is cast into.
type Arena interface {
	BattleID() string
	Asset(id string) (AssetView, bool)
}

type Request struct {
	User     string `json:"user"`
	SkillID  string `json:"skill_id"`
	TargetID string `json:"target_id,omitempty"`
}

type ScanReport struct {
	RelevanceScore  int      `json:"relevance_score"`
	StyleMatchScore int      `json:"style_match_score"`
	Power           float64  `json:"power"`
	Keywords        []string `json:"keywords"`
}

type SnipeData struct {
	Prompt    string `json:"prompt"`
	EngineTag string `json:"engine_tag"`
}

// Descriptor reports what a cast did.
type Descriptor struct {
	SkillID   string        `json:"skill_id"`
	Kind      EffectKind    `json:"kind"`
	Caster    string        `json:"caster"`
	BattleID  string        `json:"battle_id"`
	TargetID  string        `json:"target_id,omitempty"`
	Faction   string        `json:"faction,omitempty"`
	Amount    int64         `json:"amount,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	ExpiresAt time.Time     `json:"expires_at,omitempty"`
	Blocked   bool          `json:"blocked,omitempty"`
	Scan      *ScanReport   `json:"scan,omitempty"`
	Snipe     *SnipeData    `json:"snipe,omitempty"`
	Reset     []string      `json:"reset,omitempty"`
}

type Resolver struct {
	ledger *Ledger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewResolver(ledger *Ledger, seed int64) *Resolver {
	return &Resolver{
		ledger: ledger,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

func (r *Resolver) Ledger() *Ledger {
	return r.ledger
}

// Check reports the errors a cast would fail with before anything is recorded.
func (r *Resolver) Check(a Arena, req Request) (Skill, error) {
	s, ok := Lookup(req.SkillID)
	if !ok {
		return Skill{}, ErrUnknownSkill
	}
	if rem := r.ledger.Remaining(req.User, s.ID); rem > 0 {
		return s, &CooldownError{SkillID: s.ID, Remaining: rem}
	}
	return s, r.validate(a, s, req)
}

// Cast validates the request, starts the cooldown and records the effect.
// The arena must not change while Cast runs.
func (r *Resolver) Cast(a Arena, req Request) (Descriptor, error) {
	s, err := r.Check(a, req)
	if err != nil {
		return Descriptor{}, err
	}
	if rem, ok := r.ledger.Reserve(req.User, s.ID, s.Cooldown); !ok {
		return Descriptor{}, &CooldownError{SkillID: s.ID, Remaining: rem}
	}

	now := r.ledger.Now()
	d := Descriptor{
		SkillID:  s.ID,
		Kind:     s.Effect,
		Caster:   req.User,
		BattleID: a.BattleID(),
		TargetID: req.TargetID,
		Duration: s.EffectDuration,
	}
	if s.EffectDuration > 0 {
		d.ExpiresAt = now.Add(s.EffectDuration)
	}

	switch s.Effect {
	case EffectScan:
		t, _ := a.Asset(req.TargetID)
		d.Scan = &ScanReport{
			RelevanceScore:  t.RelevanceScore,
			StyleMatchScore: t.StyleMatchScore,
			Power:           t.Power,
			Keywords:        Keywords(t.Prompt),
		}
	case EffectSnipe:
		t, _ := a.Asset(req.TargetID)
		d.Snipe = &SnipeData{Prompt: t.Prompt, EngineTag: t.EngineTag}
	case EffectShield:
		d.TargetID = req.User
	case EffectBoost:
		d.Amount = BoostAmount
	case EffectConceal:
		d.Faction = req.TargetID
		d.TargetID = ""
	case EffectFactionBoost:
		d.Faction = req.TargetID
		d.TargetID = ""
		d.Amount = LiquidityPercent
	case EffectDebuff:
		t, _ := a.Asset(req.TargetID)
		if r.ledger.HasEffect(t.Owner, a.BattleID(), EffectShield) {
			d.Blocked = true
			d.Duration = 0
			d.ExpiresAt = time.Time{}
			break
		}
		d.Amount = r.penalty()
	case EffectRewind:
		d.TargetID = req.User
		d.Reset = r.ledger.ResetCooldowns(req.User, s.ID)
	}

	if !d.ExpiresAt.IsZero() {
		r.ledger.AddEffect(Effect{
			SkillID:   s.ID,
			Kind:      s.Effect,
			Caster:    req.User,
			BattleID:  d.BattleID,
			TargetID:  d.TargetID,
			Faction:   d.Faction,
			Amount:    d.Amount,
			ExpiresAt: d.ExpiresAt,
		})
	}
	zap.L().Debug("skill cast", zap.String("battle_id", d.BattleID), zap.String("user", req.User),
		zap.String("skill", s.ID), zap.String("target", req.TargetID), zap.Bool("blocked", d.Blocked))
	return d, nil
}

func (r *Resolver) validate(a Arena, s Skill, req Request) error {
	fail := func(reason string) error {
		return &TargetError{SkillID: s.ID, TargetID: req.TargetID, Reason: reason}
	}
	switch s.Target {
	case TargetSelf:
		if req.TargetID != "" && req.TargetID != req.User {
			return fail("self-targeted skill")
		}
	case TargetAsset, TargetOpponent:
		if req.TargetID == "" {
			return fail("asset required")
		}
		t, ok := a.Asset(req.TargetID)
		if !ok {
			return fail("asset not in battle")
		}
		if s.Target == TargetOpponent && t.Owner == req.User {
			return fail("own asset")
		}
	case TargetBattle:
		if req.TargetID != "A" && req.TargetID != "B" {
			return fail("faction A or B required")
		}
	}
	return nil
}

func (r *Resolver) penalty() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(auditPenaltyMin + r.rnd.Intn(auditPenaltyMax-auditPenaltyMin+1))
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Keywords returns up to ten distinct lowercase words longer than three letters.
func Keywords(prompt string) []string {
	words := strings.Fields(nonWord.ReplaceAllString(strings.ToLower(prompt), " "))
	seen := map[string]bool{}
	ret := []string{}
	for _, w := range words {
		if len(w) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		ret = append(ret, w)
		if len(ret) == 10 {
			break
		}
	}
	return ret
}

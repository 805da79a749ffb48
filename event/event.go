package event

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Type string

const (
	MarketCrash        Type = "MARKET_CRASH"
	TimelineDistortion Type = "TIMELINE_DISTORTION"
	ThePurge           Type = "THE_PURGE"
	ChaosMode          Type = "CHAOS_MODE"
	Blessing           Type = "BLESSING"
)

var durations = map[Type]time.Duration{
	MarketCrash:        600 * time.Second,
	TimelineDistortion: 300 * time.Second,
	ThePurge:           0,
	ChaosMode:          300 * time.Second,
	Blessing:           0,
}

var (
	ErrDuplicateEvent = errors.New("duplicate system event")
	ErrUnknownType    = errors.New("unknown system event type")
)

func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(s))
	if _, ok := durations[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Duration is how long the event stays active. Zero means it applies once when triggered.
func (t Type) Duration() time.Duration {
	return durations[t]
}

func Types() []Type {
	return []Type{MarketCrash, TimelineDistortion, ThePurge, ChaosMode, Blessing}
}

type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	BattleID  string            `json:"battle_id"`
	StartedAt time.Time         `json:"started_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (e Event) Instant() bool {
	return !e.ExpiresAt.After(e.StartedAt)
}

func (e Event) Active(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

type DuplicateError struct {
	BattleID  string
	Type      Type
	ExpiresAt time.Time
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already active in battle %s until %s", e.Type, e.BattleID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateEvent
}

const (
	keyKeywords      = "keywords"
	keyAffectedCount = "affected_count"
	keyBonusAmount   = "bonus_amount"

	defaultAffectedCount = 3
	defaultBonusAmount   = 50
)

var defaultKeywords = []string{"fire", "water", "light", "shadow"}

// Keywords are the prompt words a timeline distortion amplifies.
func (e Event) Keywords() []string {
	raw, ok := e.Metadata[keyKeywords]
	if !ok {
		return defaultKeywords
	}
	var ret []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			ret = append(ret, k)
		}
	}
	return ret
}

// AffectedCount is how many of each faction's weakest assets a purge removes from the tally.
func (e Event) AffectedCount() int {
	return e.intMeta(keyAffectedCount, defaultAffectedCount)
}

// BonusAmount is the number of tokens a blessing credits to every participant.
func (e Event) BonusAmount() int64 {
	return int64(e.intMeta(keyBonusAmount, defaultBonusAmount))
}

func (e Event) intMeta(key string, def int) int {
	raw, ok := e.Metadata[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// ValidateMetadata rejects numeric metadata that does not parse.
func ValidateMetadata(md map[string]string) error {
	for _, key := range []string{keyAffectedCount, keyBonusAmount} {
		raw, ok := md[key]
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(raw); err != nil || n < 0 {
			return fmt.Errorf("metadata %s: %q is not a non-negative integer", key, raw)
		}
	}
	return nil
}

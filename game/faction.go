package game

import (
	"fmt"
	"strings"
)

type FactionID uint8

const (
	FactionNone FactionID = iota
	FactionA
	FactionB

	NoneTag = ""
	ATag    = "A"
	BTag    = "B"
)

var (
	FactionTagMap = map[FactionID]string{
		FactionNone: NoneTag,
		FactionA:    ATag,
		FactionB:    BTag,
	}

	FactionTagMapReverse = map[string]FactionID{
		NoneTag: FactionNone,
		ATag:    FactionA,
		BTag:    FactionB,
	}
)

// ParseFaction accepts "A" or "B" in any case.
func ParseFaction(s string) (FactionID, bool) {
	f, ok := FactionTagMapReverse[strings.ToUpper(strings.TrimSpace(s))]
	if !ok || f == FactionNone {
		return FactionNone, false
	}
	return f, true
}

func (f FactionID) String() string {
	return FactionTagMap[f]
}

func (f FactionID) Opponent() FactionID {
	switch f {
	case FactionA:
		return FactionB
	case FactionB:
		return FactionA
	default:
		return FactionNone
	}
}

func (f FactionID) valid() bool {
	return f == FactionA || f == FactionB
}

func (f FactionID) index() int {
	return int(f) - 1
}

func (f FactionID) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FactionID) UnmarshalText(b []byte) error {
	v, ok := FactionTagMapReverse[strings.ToUpper(string(b))]
	if !ok {
		return fmt.Errorf("unknown faction %q", b)
	}
	*f = v
	return nil
}

// FactionInfo is display metadata the engine never interprets.
type FactionInfo struct {
	Name  string `json:"name"`
	Theme string `json:"theme,omitempty"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

type Faction struct {
	ID     FactionID
	Info   FactionInfo
	Assets []*Asset
}

// Power is the sum of the member assets' base power.
func (f *Faction) Power() float64 {
	total := 0.0
	for _, a := range f.Assets {
		total += a.Power()
	}
	return total
}

func (f *Faction) hasGenesis() bool {
	for _, a := range f.Assets {
		if a.Genesis() {
			return true
		}
	}
	return false
}

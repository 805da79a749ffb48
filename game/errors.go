package game

import (
	"errors"
	"fmt"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/event"
	"github.com/COAOX/timeline_wars/skill"
)

type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindStateConflict
	KindNotFound
	KindEconomic
	KindFatal
)

var kindTag = map[Kind]string{
	KindValidation:    "validation",
	KindStateConflict: "state_conflict",
	KindNotFound:      "not_found",
	KindEconomic:      "economic",
	KindFatal:         "fatal",
}

func (k Kind) String() string {
	return kindTag[k]
}

var (
	ErrValidation   = errors.New("invalid request")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid battle state")
	ErrAlreadyVoted = errors.New("already voted this round")
	ErrRoundClosed  = errors.New("round closed")
	ErrHalted       = errors.New("battle halted")

	ErrDuplicateEvent    = event.ErrDuplicateEvent
	ErrInsufficientFunds = economy.ErrInsufficientFunds
	ErrBettingClosed     = economy.ErrBettingClosed
	ErrOnCooldown        = skill.ErrOnCooldown
	ErrUnknownSkill      = skill.ErrUnknownSkill
	ErrInvalidTarget     = skill.ErrInvalidTarget
)

type class struct {
	kind Kind
	code string
}

// checked in order; the first sentinel the error matches decides its class
var classes = []struct {
	sentinel error
	class
}{
	{ErrHalted, class{KindFatal, "HALTED"}},
	{ErrValidation, class{KindValidation, "VALIDATION"}},
	{event.ErrUnknownType, class{KindValidation, "UNKNOWN_EVENT"}},
	{ErrInvalidTarget, class{KindValidation, "INVALID_TARGET"}},
	{economy.ErrBetAmount, class{KindValidation, "VALIDATION"}},
	{economy.ErrBetSide, class{KindValidation, "VALIDATION"}},
	{ErrNotFound, class{KindNotFound, "NOT_FOUND"}},
	{ErrUnknownSkill, class{KindNotFound, "UNKNOWN_SKILL"}},
	{ErrInvalidState, class{KindStateConflict, "INVALID_STATE"}},
	{ErrAlreadyVoted, class{KindStateConflict, "ALREADY_VOTED"}},
	{ErrRoundClosed, class{KindStateConflict, "ROUND_CLOSED"}},
	{ErrDuplicateEvent, class{KindStateConflict, "DUPLICATE_EVENT"}},
	{ErrOnCooldown, class{KindStateConflict, "ON_COOLDOWN"}},
	{ErrBettingClosed, class{KindStateConflict, "BETTING_CLOSED"}},
	{ErrInsufficientFunds, class{KindEconomic, "INSUFFICIENT_FUNDS"}},
}

// Error is returned by every rejected engine operation.
type Error struct {
	Kind   Kind
	Code   string
	Reason string
	err    error
}

func (e *Error) Error() string {
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.err
}

func fail(sentinel error, format string, args ...interface{}) *Error {
	c := classify(sentinel)
	return &Error{Kind: c.kind, Code: c.code, Reason: fmt.Sprintf(format, args...), err: sentinel}
}

// wrap classifies an error coming from a collaborator package.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	c := classify(err)
	return &Error{Kind: c.kind, Code: c.code, Reason: err.Error(), err: err}
}

func classify(err error) class {
	for _, c := range classes {
		if errors.Is(err, c.sentinel) {
			return c.class
		}
	}
	return class{KindFatal, "INTERNAL"}
}

// KindOf returns the kind of an engine error, KindFatal for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return classify(err).kind
}

// CodeOf returns the stable code of an engine error, INTERNAL for anything unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return classify(err).code
}

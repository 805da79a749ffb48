package skill

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownSkill  = errors.New("unknown skill")
	ErrOnCooldown    = errors.New("skill on cooldown")
	ErrInvalidTarget = errors.New("invalid skill target")
)

type CooldownError struct {
	SkillID   string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s on cooldown, %s remaining", e.SkillID, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrOnCooldown
}

type TargetError struct {
	SkillID  string
	TargetID string
	Reason   string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s cannot target %q: %s", e.SkillID, e.TargetID, e.Reason)
}

func (e *TargetError) Is(target error) bool {
	return target == ErrInvalidTarget
}

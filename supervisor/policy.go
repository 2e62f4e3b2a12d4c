package supervisor

import (
	"fmt"

	"github.com/kiosk-next/kioskd/launcher"
)

// NextAction tells the controller what to do after a target terminates.
type NextAction int

const (
	// RestartSame relaunches the same target.
	RestartSame NextAction = iota
	// AdvanceToFallback moves to the rule at Rule.FallbackIndex.
	AdvanceToFallback
	// StopSupervision ends supervision for this slot.
	StopSupervision
)

func (a NextAction) String() string {
	switch a {
	case RestartSame:
		return "restart_same"
	case AdvanceToFallback:
		return "advance_to_fallback"
	case StopSupervision:
		return "stop_supervision"
	default:
		return fmt.Sprintf("next_action(%d)", int(a))
	}
}

// Rule pairs a launch spec with what happens once its process terminates.
type Rule struct {
	Spec   launcher.Spec
	OnExit NextAction
	// FallbackIndex is the rule to advance to when OnExit is
	// AdvanceToFallback.
	FallbackIndex int
}

// Policy is the ordered fallback chain for one supervision slot. Index 0 is
// the primary target. All restart and fallback decisions live in this table;
// there are no hidden retries elsewhere.
type Policy []Rule

func (p Policy) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("supervision policy is empty")
	}
	for i, rule := range p {
		if err := rule.Spec.Validate(); err != nil {
			return fmt.Errorf("policy rule %d: %w", i, err)
		}
		if rule.OnExit == AdvanceToFallback {
			if rule.FallbackIndex <= i || rule.FallbackIndex >= len(p) {
				return fmt.Errorf("policy rule %d: fallback index %d out of range", i, rule.FallbackIndex)
			}
		}
	}
	return nil
}

// Next returns the index of the target to run after the rule at i
// terminated. ok is false when supervision should stop.
func (p Policy) Next(i int) (next int, ok bool) {
	switch p[i].OnExit {
	case RestartSame:
		return i, true
	case AdvanceToFallback:
		return p[i].FallbackIndex, true
	default:
		return 0, false
	}
}

package review

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid transition")

type State string

type Event string

const (
	StateScanned              State = "scanned"
	StateAwaitingReplacements State = "awaiting_replacements"
	StateCleaned              State = "cleaned"
	StateVerified             State = "verified"
	StateQCFailed             State = "qc_failed"
)

const (
	EventFindings   Event = "findings"    // scan flagged something
	EventNoFindings Event = "no_findings" // scan came back clean
	EventClean      Event = "clean"       // replacements applied
	EventPass       Event = "pass"        // re-scan found nothing
	EventFail       Event = "fail"        // re-scan found survivors
	EventRetry      Event = "retry"       // operator resubmits after a failed QC
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateScanned:
		switch event {
		case EventFindings:
			return StateAwaitingReplacements, nil
		case EventNoFindings:
			return StateVerified, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAwaitingReplacements:
		switch event {
		case EventClean:
			return StateCleaned, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCleaned:
		switch event {
		case EventPass:
			return StateVerified, nil
		case EventFail:
			return StateQCFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateQCFailed:
		switch event {
		case EventRetry:
			return StateAwaitingReplacements, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateVerified:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, state, event)
}

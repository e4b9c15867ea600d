// Package review drives one scan → clean → verify cycle over a single file.
// A Session lives for the duration of one request; nothing is persisted.
package review

import (
	"fmt"
	"log/slog"

	"github.com/gonkalabs/subkit/internal/profanity"
)

// Session tracks one review cycle.
type Session struct {
	State     State
	Scan      profanity.Result
	Cleaned   *profanity.Content  // set once a clean pass ran
	Remaining []profanity.Finding // survivors of the last verify pass
}

// Begin starts a session from a scan result. A scan with no findings is
// verified immediately.
func Begin(res profanity.Result) (*Session, error) {
	s := &Session{State: StateScanned, Scan: res}
	event := EventFindings
	if len(res.Findings) == 0 {
		event = EventNoFindings
	}
	if err := s.fire(event); err != nil {
		return nil, err
	}
	return s, nil
}

// Resume rebuilds a session from what a client sent back. After a failed QC
// the content is the cleaned version and findings are the survivors.
func Resume(state State, content profanity.Content, findings []profanity.Finding) (*Session, error) {
	switch state {
	case "", StateScanned, StateAwaitingReplacements:
		return Begin(profanity.Result{Kind: content.Kind, Findings: findings, Content: content})
	case StateQCFailed:
		if len(findings) == 0 {
			return nil, fmt.Errorf("review: %s session without remaining findings: %w", state, ErrInvalidTransition)
		}
		cleaned := content
		return &Session{
			State:     StateQCFailed,
			Scan:      profanity.Result{Kind: content.Kind, Findings: findings, Content: content},
			Cleaned:   &cleaned,
			Remaining: findings,
		}, nil
	}
	return nil, fmt.Errorf("review: cannot resume from state %q: %w", state, ErrInvalidTransition)
}

// Pending returns the findings the next clean pass works on: the scan
// findings at first, the QC survivors after a failed verify.
func (s *Session) Pending() []profanity.Finding {
	if s.State == StateQCFailed {
		return s.Remaining
	}
	return s.Scan.Findings
}

// Content returns the latest version of the content.
func (s *Session) Content() profanity.Content {
	if s.Cleaned != nil {
		return *s.Cleaned
	}
	return s.Scan.Content
}

// Apply cleans with the given replacements and verifies the result. After a
// failed QC it works on the cleaned content and the remaining findings, so
// an operator can keep adding replacements until the content passes.
func (s *Session) Apply(sc *profanity.Scanner, replacements map[string]string) error {
	if s.State == StateQCFailed {
		if err := s.fire(EventRetry); err != nil {
			return err
		}
		findings, content := s.Remaining, *s.Cleaned
		return s.apply(sc, findings, content, replacements)
	}
	return s.apply(sc, s.Scan.Findings, s.Scan.Content, replacements)
}

func (s *Session) apply(sc *profanity.Scanner, findings []profanity.Finding, content profanity.Content, replacements map[string]string) error {
	if err := s.fire(EventClean); err != nil {
		return err
	}
	cleaned, err := sc.Clean(findings, content, replacements)
	if err != nil {
		return fmt.Errorf("review: clean: %w", err)
	}
	s.Cleaned = &cleaned

	remaining, err := sc.Verify(cleaned)
	if err != nil {
		return fmt.Errorf("review: verify: %w", err)
	}
	s.Remaining = remaining
	if len(remaining) > 0 {
		slog.Info("review: QC failed", "remaining", len(remaining))
		return s.fire(EventFail)
	}
	return s.fire(EventPass)
}

func (s *Session) fire(e Event) error {
	next, err := Transition(s.State, e)
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}
	s.State = next
	return nil
}

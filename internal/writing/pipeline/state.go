package pipeline

import (
	"errors"
	"time"

	"github.com/vietddude/autowriter/internal/core/domain"
)

// State is an alias for domain.ChapterState for internal use.
type State = domain.ChapterState

// State constants re-exported for convenience.
const (
	StateNotStarted      = domain.ChapterStateNotStarted
	StateDraftPending    = domain.ChapterStateDraftPending
	StateDraftDone       = domain.ChapterStateDraftDone
	StateEnrichPending   = domain.ChapterStateEnrichPending
	StateFinalizePending = domain.ChapterStateFinalizePending
	StateFinalizeDone    = domain.ChapterStateFinalizeDone
	StateFailed          = domain.ChapterStateFailed
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// A failed attempt returns the chapter to the state it started the attempt in.
var ValidTransitions = map[State][]State{
	StateNotStarted:   {StateDraftPending, StateFailed},
	StateDraftPending: {StateDraftDone, StateNotStarted, StateFailed},
	StateDraftDone: {
		StateEnrichPending,
		StateFinalizePending,
		StateFailed,
	},
	StateEnrichPending:   {StateFinalizePending, StateDraftDone, StateFailed},
	StateFinalizePending: {StateFinalizeDone, StateDraftDone, StateFailed},
	StateFailed:          {StateDraftPending},
	StateFinalizeDone:    {},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateNotStarted:
		return "Not started - no successful draft this run"
	case StateDraftPending:
		return "Drafting - generation service is writing the draft"
	case StateDraftDone:
		return "Drafted - draft artifact written, awaiting finalize"
	case StateEnrichPending:
		return "Enriching - draft below target length, expanding"
	case StateFinalizePending:
		return "Finalizing - updating long-term story state"
	case StateFinalizeDone:
		return "Finalized - chapter complete, checkpoint advanced"
	case StateFailed:
		return "Failed - retries exhausted, chapter skipped"
	default:
		return "Unknown state"
	}
}

package workflow

import "github.com/garyjia/deed-approval/internal/domain/entity"

// State represents a workflow state in the form lifecycle
type State string

const (
	StateDraft           State = State(entity.StatusDraft)
	StateSubmitted       State = State(entity.StatusSubmitted)
	StateInReview        State = State(entity.StatusInReview)
	StateVerified        State = State(entity.StatusVerified)
	StateCrossVerified   State = State(entity.StatusCrossVerified)
	StateNeedsCorrection State = State(entity.StatusNeedsCorrection)
	StateRejected        State = State(entity.StatusRejected)
	StateApproved        State = State(entity.StatusApproved)
	StateLocked          State = State(entity.StatusLocked)
)

var validStates = map[State]bool{
	StateDraft:           true,
	StateSubmitted:       true,
	StateInReview:        true,
	StateVerified:        true,
	StateCrossVerified:   true,
	StateNeedsCorrection: true,
	StateRejected:        true,
	StateApproved:        true,
	StateLocked:          true,
}

var terminalStates = map[State]bool{
	StateLocked: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// Status converts the state into the form status it mirrors
func (s State) Status() entity.Status {
	return entity.Status(s)
}

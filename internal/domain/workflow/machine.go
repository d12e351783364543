package workflow

// StateMachine tracks the lifecycle state of one form and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// Fire moves to the state the trigger leads to, or leaves the machine
	// unchanged and returns an error when the trigger is not permitted
	Fire(trigger Trigger) error
}

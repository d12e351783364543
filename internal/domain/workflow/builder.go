package workflow

import (
	"fmt"
	"maps"
)

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) (StateMachine, error)
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitReentry allows a trigger that keeps the current state
	PermitReentry(trigger Trigger) StateConfiguration
}

type stateConfig struct {
	fromState   State
	transitions map[Trigger]State
}

type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

type stateMachine struct {
	currentState State
	transitions  map[State]map[Trigger]State
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{configurations: make(map[State]*stateConfig)}
}

// Configure returns the configuration of state, creating it on first use.
// Configuration is static, so an invalid state panics.
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, ok := b.configurations[state]
	if !ok {
		config = &stateConfig{fromState: state, transitions: make(map[Trigger]State)}
		b.configurations[state] = config
	}
	return config
}

// Build creates a machine positioned at initialState. Stored statuses come
// from the database, so an unknown one is reported rather than panicking.
func (b *stateMachineBuilder) Build(initialState State) (StateMachine, error) {
	if !initialState.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, initialState)
	}

	table := make(map[State]map[Trigger]State, len(b.configurations))
	for state, config := range b.configurations {
		table[state] = maps.Clone(config.transitions)
	}
	return &stateMachine{currentState: initialState, transitions: table}, nil
}

// Permit panics on an invalid target or when trigger already leads elsewhere
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if existing, ok := c.transitions[trigger]; ok && existing != toState {
		panic(fmt.Sprintf("%s from %s already leads to %s", trigger, c.fromState, existing))
	}
	c.transitions[trigger] = toState
	return c
}

func (c *stateConfig) PermitReentry(trigger Trigger) StateConfiguration {
	return c.Permit(trigger, c.fromState)
}

func (m *stateMachine) State() State {
	return m.currentState
}

func (m *stateMachine) Fire(trigger Trigger) error {
	if m.currentState.IsTerminal() {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrTerminalState, trigger, m.currentState)
	}
	next, ok := m.transitions[m.currentState][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.currentState)
	}
	m.currentState = next
	return nil
}

package workflow

import (
	"errors"
	"testing"
)

func mustBuild(t *testing.T, b StateMachineBuilder, s State) StateMachine {
	t.Helper()
	m, err := b.Build(s)
	if err != nil {
		t.Fatalf("Build(%s) failed: %v", s, err)
	}
	return m
}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateDraft, false},
		{StateSubmitted, false},
		{StateInReview, false},
		{StateVerified, false},
		{StateCrossVerified, false},
		{StateNeedsCorrection, false},
		{StateRejected, false},
		{StateApproved, false},
		{StateLocked, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"draft", StateDraft, true},
		{"locked", StateLocked, true},
		{"in_progress is informational only", State("in_progress"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_Status(t *testing.T) {
	if got := StateCrossVerified.Status(); string(got) != "cross_verified" {
		t.Errorf("State.Status() = %v, want cross_verified", got)
	}
}

func TestBuilder_Configure(t *testing.T) {
	builder := NewBuilder()

	config := builder.Configure(StateDraft)
	if config == nil {
		t.Fatal("Configure() returned nil")
	}

	if config2 := builder.Configure(StateDraft); config != config2 {
		t.Error("Configure() should return same config for same state")
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	NewBuilder().Configure(State("INVALID"))
}

func TestBuilder_BuildRejectsInvalidInitialState(t *testing.T) {
	_, err := NewBuilder().Build(State("archived"))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Build() error = %v, want %v", err, ErrInvalidState)
	}
}

func TestStateConfiguration_Permit(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).Permit(TriggerSubmit, StateSubmitted)

	machine := mustBuild(t, builder, StateDraft)

	if err := machine.Fire(TriggerSubmit); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}
	if machine.State() != StateSubmitted {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StateSubmitted)
	}
}

func TestStateConfiguration_PermitReentry(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).PermitReentry(TriggerSave)

	machine := mustBuild(t, builder, StateDraft)
	if err := machine.Fire(TriggerSave); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine.State() != StateDraft {
		t.Errorf("State after reentry = %v, want %v", machine.State(), StateDraft)
	}
}

func TestStateConfiguration_PermitPanics(t *testing.T) {
	tests := []struct {
		name      string
		configure func(StateConfiguration)
	}{
		{"invalid target", func(c StateConfiguration) { c.Permit(TriggerSubmit, State("INVALID")) }},
		{"conflicting target", func(c StateConfiguration) {
			c.Permit(TriggerSubmit, StateSubmitted).Permit(TriggerSubmit, StateRejected)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("Permit() should panic")
				}
			}()
			tt.configure(NewBuilder().Configure(StateDraft))
		})
	}
}

func TestStateConfiguration_PermitSameTargetTwice(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateVerified).
		PermitReentry(TriggerVerify).
		Permit(TriggerVerify, StateVerified)

	machine := mustBuild(t, builder, StateVerified)
	if err := machine.Fire(TriggerVerify); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}
}

func TestStateMachine_Fire_InvalidTransition(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).Permit(TriggerSubmit, StateSubmitted)

	machine := mustBuild(t, builder, StateDraft)

	err := machine.Fire(TriggerFinalApprove)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}
	if machine.State() != StateDraft {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateDraft, machine.State())
	}
}

func TestStateMachine_Fire_NoConfiguration(t *testing.T) {
	machine := mustBuild(t, NewBuilder(), StateDraft)

	if err := machine.Fire(TriggerSubmit); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}
}

func TestStateMachine_Fire_TerminalState(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateLocked).PermitReentry(TriggerSave)

	machine := mustBuild(t, builder, StateLocked)

	if err := machine.Fire(TriggerSave); !errors.Is(err, ErrTerminalState) {
		t.Errorf("Fire() error = %v, want %v", err, ErrTerminalState)
	}
}

func TestBuilder_BuildCopiesConfiguration(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).Permit(TriggerSubmit, StateSubmitted)

	machine := mustBuild(t, builder, StateDraft)

	// Later configuration must not leak into machines already built
	builder.Configure(StateDraft).Permit(TriggerSave, StateDraft)

	if err := machine.Fire(TriggerSave); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("machine observed configuration added after Build(): Fire() error = %v", err)
	}
}

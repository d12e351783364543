package workflow

import (
	domainwf "github.com/garyjia/deed-approval/internal/domain/workflow"
)

// BuildFormStateMachine creates a state machine configured for the form lifecycle.
// It validates which trigger may fire from a status; the resulting status is
// then derived from the approval records by domainwf.DeriveStatus.
func BuildFormStateMachine(initialState domainwf.State) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder()

	// DRAFT: the submitter is still filling the form
	builder.Configure(domainwf.StateDraft).
		PermitReentry(domainwf.TriggerSave).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	// SUBMITTED: waiting for staff1
	builder.Configure(domainwf.StateSubmitted).
		PermitReentry(domainwf.TriggerSubmit).
		Permit(domainwf.TriggerStartReview, domainwf.StateInReview).
		Permit(domainwf.TriggerVerify, domainwf.StateVerified).
		Permit(domainwf.TriggerRequestCorrection, domainwf.StateNeedsCorrection).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// IN_REVIEW: staff1 has started editing
	builder.Configure(domainwf.StateInReview).
		PermitReentry(domainwf.TriggerStartReview).
		Permit(domainwf.TriggerVerify, domainwf.StateVerified).
		Permit(domainwf.TriggerRequestCorrection, domainwf.StateNeedsCorrection).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// VERIFIED: staff1 approved; staff2 and staff3 work in parallel, then staff4
	builder.Configure(domainwf.StateVerified).
		PermitReentry(domainwf.TriggerStartReview).
		PermitReentry(domainwf.TriggerVerify).
		Permit(domainwf.TriggerCrossVerify, domainwf.StateCrossVerified).
		Permit(domainwf.TriggerRequestCorrection, domainwf.StateNeedsCorrection).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// CROSS_VERIFIED: waiting for the final authority
	builder.Configure(domainwf.StateCrossVerified).
		PermitReentry(domainwf.TriggerStartReview).
		Permit(domainwf.TriggerFinalApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerFinalReject, domainwf.StateRejected).
		Permit(domainwf.TriggerRequestCorrection, domainwf.StateNeedsCorrection).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// NEEDS_CORRECTION: back with the submitter
	builder.Configure(domainwf.StateNeedsCorrection).
		PermitReentry(domainwf.TriggerSave).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	// REJECTED: the submitter may resubmit; staff5 may revise an unlocked decision
	builder.Configure(domainwf.StateRejected).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted).
		Permit(domainwf.TriggerFinalApprove, domainwf.StateApproved).
		PermitReentry(domainwf.TriggerFinalReject)

	// APPROVED: final decision recorded but not yet locked
	builder.Configure(domainwf.StateApproved).
		PermitReentry(domainwf.TriggerFinalApprove).
		Permit(domainwf.TriggerFinalReject, domainwf.StateRejected)

	// LOCKED is terminal - no outgoing transitions

	return builder.Build(initialState)
}

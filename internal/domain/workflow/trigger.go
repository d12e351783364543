package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSave              Trigger = "SAVE"
	TriggerSubmit            Trigger = "SUBMIT"
	TriggerStartReview       Trigger = "START_REVIEW"
	TriggerVerify            Trigger = "VERIFY"
	TriggerCrossVerify       Trigger = "CROSS_VERIFY"
	TriggerRequestCorrection Trigger = "REQUEST_CORRECTION"
	TriggerReject            Trigger = "REJECT"
	TriggerFinalApprove      Trigger = "FINAL_APPROVE"
	TriggerFinalReject       Trigger = "FINAL_REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

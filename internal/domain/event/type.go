package event

// Type identifies the type of domain event
type Type string

const (
	TypeFormSubmitted           Type = "form.submitted"
	TypeFormAssigned            Type = "form.assigned"
	TypeFormCorrectionRequested Type = "form.correction_requested"
	TypeFormVerified            Type = "form.verified"
	TypeFormRejected            Type = "form.rejected"
	TypeFormFinalized           Type = "form.finalized"
	TypeFormLocked              Type = "form.locked"
)

// Payload keys shared by producers and handlers
const (
	KeySubmitterID = "submitter_id"
	KeyAssignedTo  = "assigned_to"
	KeyStage       = "stage"
	KeyStatus      = "status"
	KeyDecision    = "decision"
	KeyNotes       = "notes"
	KeyTitle       = "form_title"
	KeyVersion     = "version"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeFormSubmitted,
		TypeFormAssigned,
		TypeFormCorrectionRequested,
		TypeFormVerified,
		TypeFormRejected,
		TypeFormFinalized,
		TypeFormLocked:
		return true
	default:
		return false
	}
}

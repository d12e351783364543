package entity

import "slices"

// Status is the canonical workflow status of a Form
type Status string

// Status constants for Form
const (
	StatusDraft           Status = "draft"
	StatusSubmitted       Status = "submitted"
	StatusInReview        Status = "in_review"
	StatusVerified        Status = "verified"
	StatusCrossVerified   Status = "cross_verified"
	StatusNeedsCorrection Status = "needs_correction"
	StatusRejected        Status = "rejected"
	StatusApproved        Status = "approved"
	StatusLocked          Status = "locked"
)

var validStatuses = map[Status]bool{
	StatusDraft:           true,
	StatusSubmitted:       true,
	StatusInReview:        true,
	StatusVerified:        true,
	StatusCrossVerified:   true,
	StatusNeedsCorrection: true,
	StatusRejected:        true,
	StatusApproved:        true,
	StatusLocked:          true,
}

// IsValid returns true if the status is a known workflow status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// AllStatuses returns every workflow status in lifecycle order
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusSubmitted, StatusInReview, StatusVerified, StatusCrossVerified,
		StatusNeedsCorrection, StatusRejected, StatusApproved, StatusLocked,
	}
}

// ServiceType identifies the kind of legal document a Form carries
type ServiceType string

// ServiceType constants
const (
	ServiceSaleDeed             ServiceType = "sale-deed"
	ServiceWillDeed             ServiceType = "will-deed"
	ServiceTrustDeed            ServiceType = "trust-deed"
	ServicePropertyRegistration ServiceType = "property-registration"
	ServicePowerOfAttorney      ServiceType = "power-of-attorney"
	ServiceAdoptionDeed         ServiceType = "adoption-deed"
)

var serviceTitles = map[ServiceType]string{
	ServiceSaleDeed:             "Sale Deed",
	ServiceWillDeed:             "Will Deed",
	ServiceTrustDeed:            "Trust Deed",
	ServicePropertyRegistration: "Property Registration",
	ServicePowerOfAttorney:      "Power of Attorney",
	ServiceAdoptionDeed:         "Adoption Deed",
}

// IsValid returns true if the service type is one of the supported document kinds
func (t ServiceType) IsValid() bool {
	_, ok := serviceTitles[t]
	return ok
}

// Title returns the display name of the service type
func (t ServiceType) Title() string {
	if title, ok := serviceTitles[t]; ok {
		return title
	}
	return string(t)
}

// AllServiceTypes returns the supported service types in a stable order
func AllServiceTypes() []ServiceType {
	return []ServiceType{
		ServiceSaleDeed, ServiceWillDeed, ServiceTrustDeed,
		ServicePropertyRegistration, ServicePowerOfAttorney, ServiceAdoptionDeed,
	}
}

// Role is the role an actor holds in the workflow
type Role string

// Role constants
const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleStaff1 Role = "staff1"
	RoleStaff2 Role = "staff2"
	RoleStaff3 Role = "staff3"
	RoleStaff4 Role = "staff4"
	RoleStaff5 Role = "staff5"
	RoleAdmin  Role = "admin"
)

var roleStages = map[Role]Stage{
	RoleStaff1: Stage1,
	RoleStaff2: Stage2,
	RoleStaff3: Stage3,
	RoleStaff4: Stage4,
	RoleStaff5: Stage5,
}

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	_, ok := roleStages[r]
	return ok
}

// IsStaff returns true for the five staff roles
func (r Role) IsStaff() bool {
	_, ok := roleStages[r]
	return ok
}

// Stage returns the review stage owned by a staff role
func (r Role) Stage() (Stage, bool) {
	s, ok := roleStages[r]
	return s, ok
}

// Stage is one of the five review stages
type Stage string

// Stage constants
const (
	Stage1 Stage = "staff1"
	Stage2 Stage = "staff2"
	Stage3 Stage = "staff3"
	Stage4 Stage = "staff4"
	Stage5 Stage = "staff5"
)

var stageLabels = map[Stage]string{
	Stage1: "Primary Details",
	Stage2: "Trustee Details",
	Stage3: "Land Details",
	Stage4: "Cross Verification",
	Stage5: "Final Authority",
}

// Stages returns all stages in review order
func Stages() []Stage {
	return []Stage{Stage1, Stage2, Stage3, Stage4, Stage5}
}

// IsValid returns true if the stage is one of staff1..staff5
func (s Stage) IsValid() bool {
	_, ok := stageLabels[s]
	return ok
}

// Label returns the human-readable name of the stage
func (s Stage) Label() string {
	return stageLabels[s]
}

// Role returns the staff role owning the stage
func (s Stage) Role() Role {
	return Role(s)
}

// Prerequisites returns the stages that must be approved before this one.
// staff2 and staff3 both depend only on staff1.
func (s Stage) Prerequisites() []Stage {
	switch s {
	case Stage2, Stage3:
		return []Stage{Stage1}
	case Stage4:
		return []Stage{Stage1, Stage2, Stage3}
	case Stage5:
		return []Stage{Stage1, Stage2, Stage3, Stage4}
	}
	return nil
}

// Dependents returns the stages that list s as a prerequisite, in review order
func (s Stage) Dependents() []Stage {
	var out []Stage
	for _, d := range Stages() {
		if slices.Contains(d.Prerequisites(), s) {
			out = append(out, d)
		}
	}
	return out
}

// Final decision constants for stage 5
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Progress state constants
const (
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
)

// Audit result constants
const (
	AuditResultSuccess = "success"
	AuditResultFailure = "failure"
)

// Audit action constants
const (
	ActionSaveDraft         = "form_save_draft"
	ActionSubmit            = "form_submit"
	ActionAssign            = "form_assign"
	ActionCorrect           = "form_correction"
	ActionVerify            = "form_verification"
	ActionReject            = "form_rejection"
	ActionRequestCorrection = "form_correction_request"
	ActionStampDuty         = "stamp_calculation"
	ActionFinalApproval     = "form_final_approval"
	ActionDelete            = "form_delete"
	ActionSubmitWorkReports = "work_report_submit"
)

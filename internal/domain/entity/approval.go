package entity

import "time"

// ApprovalRecord is the outcome of one review stage
type ApprovalRecord struct {
	Approved   bool       `json:"approved"`
	Rejected   bool       `json:"rejected,omitempty"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`

	// Stage 5 only
	Locked        bool       `json:"locked,omitempty"`
	LockedBy      string     `json:"locked_by,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	FinalDecision string     `json:"final_decision,omitempty"`
	FinalRemarks  string     `json:"final_remarks,omitempty"`
}

// Approvals maps each stage to its record
type Approvals map[Stage]ApprovalRecord

// Get returns the record for a stage, or the zero record when absent
func (a Approvals) Get(s Stage) ApprovalRecord {
	if a == nil {
		return ApprovalRecord{}
	}
	return a[s]
}

// Approved reports whether a stage has been approved
func (a Approvals) Approved(s Stage) bool {
	return a.Get(s).Approved
}

// AllApproved reports whether every given stage has been approved
func (a Approvals) AllApproved(stages ...Stage) bool {
	for _, s := range stages {
		if !a.Approved(s) {
			return false
		}
	}
	return true
}

// MissingPrerequisites lists the prerequisite stages of s not yet approved
func (a Approvals) MissingPrerequisites(s Stage) []Stage {
	var missing []Stage
	for _, p := range s.Prerequisites() {
		if !a.Approved(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// ApprovedDependents lists the stages built on s that are already approved
func (a Approvals) ApprovedDependents(s Stage) []Stage {
	var approved []Stage
	for _, d := range s.Dependents() {
		if a.Approved(d) {
			approved = append(approved, d)
		}
	}
	return approved
}

// AnyRejected reports whether a stage recorded a rejection
func (a Approvals) AnyRejected() bool {
	for _, r := range a {
		if r.Rejected {
			return true
		}
	}
	return false
}

// Clone copies the approvals map
func (a Approvals) Clone() Approvals {
	out := make(Approvals, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

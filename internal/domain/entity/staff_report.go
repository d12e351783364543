package entity

import (
	"reflect"
	"sort"
	"time"
)

// StaffReport is a staff member's working record for one form
type StaffReport struct {
	ID                 int64             `json:"id"`
	StaffID            string            `json:"staff_id"`
	FormID             string            `json:"form_id"`
	Stage              Stage             `json:"stage"`
	ServiceType        ServiceType       `json:"service_type"`
	OriginalData       map[string]any    `json:"original_data"`
	EditedData         map[string]any    `json:"edited_data"`
	ChangeSet          []FieldChange     `json:"change_set"`
	VerificationStatus string            `json:"verification_status"`
	StampCalculation   *StampCalculation `json:"stamp_calculation,omitempty"`
	Remarks            string            `json:"remarks,omitempty"`
	IsSubmitted        bool              `json:"is_submitted"`
	SubmittedAt        *time.Time        `json:"submitted_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Verification status constants for StaffReport
const (
	VerificationPending         = "pending"
	VerificationApproved        = "approved"
	VerificationRejected        = "rejected"
	VerificationNeedsCorrection = "needs_correction"
)

// Change kind constants
const (
	ChangeAdded    = "added"
	ChangeRemoved  = "removed"
	ChangeModified = "modified"
)

// FieldChange is one field-level difference between two documents
type FieldChange struct {
	Field  string `json:"field"`
	Kind   string `json:"kind"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// StampCalculation is the stamp duty computed by staff1
type StampCalculation struct {
	CalculatedAmount  float64   `json:"calculated_amount"`
	CalculationMethod string    `json:"calculation_method"`
	PropertyValue     float64   `json:"property_value"`
	PropertyType      string    `json:"property_type,omitempty"`
	Location          string    `json:"location,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CalculatedBy      string    `json:"calculated_by"`
	CalculatedAt      time.Time `json:"calculated_at"`
}

// ComputeChangeSet classifies every field that differs between original and edited, sorted by field name
func ComputeChangeSet(original, edited map[string]any) []FieldChange {
	changes := make([]FieldChange, 0)
	for k, before := range original {
		after, ok := edited[k]
		switch {
		case !ok:
			changes = append(changes, FieldChange{Field: k, Kind: ChangeRemoved, Before: before})
		case !reflect.DeepEqual(before, after):
			changes = append(changes, FieldChange{Field: k, Kind: ChangeModified, Before: before, After: after})
		}
	}
	for k, after := range edited {
		if _, ok := original[k]; !ok {
			changes = append(changes, FieldChange{Field: k, Kind: ChangeAdded, After: after})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

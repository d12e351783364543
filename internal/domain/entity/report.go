package entity

import "time"

// ReportArtifact is the immutable summary of a locked form
type ReportArtifact struct {
	ID            string         `json:"id"`
	FormID        string         `json:"form_id"`
	FormVersion   int            `json:"form_version"`
	ServiceType   ServiceType    `json:"service_type"`
	FormTitle     string         `json:"form_title"`
	SubmitterID   string         `json:"submitter_id"`
	Stages        []StageOutcome `json:"stages"`
	FinalDecision string         `json:"final_decision"`
	FinalRemarks  string         `json:"final_remarks,omitempty"`
	LockedBy      string         `json:"locked_by"`
	LockedAt      time.Time      `json:"locked_at"`
	Fields        []FieldEntry   `json:"fields"`
	Content       string         `json:"content"`
	ContentHash   string         `json:"content_hash"`
	GeneratedAt   time.Time      `json:"generated_at"`
	GeneratedBy   string         `json:"generated_by"`
	DocumentPath  string         `json:"document_path,omitempty"`
}

// StageOutcome is the verification result of one stage in a report
type StageOutcome struct {
	Stage      Stage      `json:"stage"`
	Label      string     `json:"label"`
	Approved   bool       `json:"approved"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// FieldEntry is one rendered field of the report snapshot
type FieldEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

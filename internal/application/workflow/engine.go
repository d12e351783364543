package workflow

import (
	"context"

	"github.com/garyjia/deed-approval/internal/application/service"
	"github.com/garyjia/deed-approval/internal/domain/entity"
)

// WorkflowEngine drives forms through submission, the five review stages and the final lock.
// Every operation takes the acting user and returns a typed errs.Error on failure.
type WorkflowEngine interface {
	// SaveDraft creates a draft when FormID is empty, otherwise merges a field patch
	SaveDraft(ctx context.Context, actor entity.Actor, in SaveDraftInput) (*Result, error)
	// Submit creates and submits a form when FormID is empty, otherwise resubmits it
	Submit(ctx context.Context, actor entity.Actor, in SubmitInput) (*Result, error)
	Assign(ctx context.Context, actor entity.Actor, in AssignInput) (*Result, error)
	Correct(ctx context.Context, actor entity.Actor, in CorrectInput) (*Result, error)
	Verify(ctx context.Context, actor entity.Actor, in VerifyInput) (*Result, error)
	RequestCorrection(ctx context.Context, actor entity.Actor, in RequestCorrectionInput) (*Result, error)
	CalculateStampDuty(ctx context.Context, actor entity.Actor, in StampDutyInput) (*Result, error)
	FinalApproval(ctx context.Context, actor entity.Actor, in FinalApprovalInput) (*Result, error)
	Delete(ctx context.Context, actor entity.Actor, formID string, expectedVersion int) (*Result, error)

	// SubmitWorkReports freezes every pending staff report of the actor and returns how many
	SubmitWorkReports(ctx context.Context, actor entity.Actor) (int64, error)

	GetForm(ctx context.Context, actor entity.Actor, formID string) (*entity.Form, error)
	ListUnified(ctx context.Context, actor entity.Actor, filter entity.FormFilter) ([]*entity.Form, error)
	GetAuditTrail(ctx context.Context, actor entity.Actor, formID string, afterSequence int64, limit int) ([]*entity.AuditEntry, error)
	ListStaffReports(ctx context.Context, actor entity.Actor, pendingOnly bool) ([]*entity.StaffReport, error)
	GetReport(ctx context.Context, actor entity.Actor, formID string) (*entity.ReportArtifact, error)
	RenderReport(ctx context.Context, actor entity.Actor, formID string) (*RenderedReport, error)
}

// Result is the outcome of a committed mutation. Warnings report side
// effects that failed after the form was already stored.
type Result struct {
	Form        *entity.Form           `json:"form,omitempty"`
	StaffReport *entity.StaffReport    `json:"staff_report,omitempty"`
	Report      *entity.ReportArtifact `json:"report,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
}

// Degraded reports whether the mutation succeeded with warnings
func (r *Result) Degraded() bool {
	return r != nil && len(r.Warnings) > 0
}

// RenderedReport is a downloadable final report document
type RenderedReport struct {
	FileName    string
	ContentType string
	Content     []byte
}

type SaveDraftInput struct {
	FormID          string             `json:"form_id,omitempty"`
	ServiceType     entity.ServiceType `json:"service_type,omitempty"`
	FormTitle       string             `json:"form_title,omitempty"`
	FormDescription string             `json:"form_description,omitempty"`
	Fields          map[string]any     `json:"fields"`
	// ExpectedFieldCount drives the informational progress percentage
	ExpectedFieldCount int `json:"expected_field_count,omitempty"`
	ExpectedVersion    int `json:"expected_version,omitempty"`
}

type SubmitInput struct {
	FormID          string             `json:"form_id,omitempty"`
	ServiceType     entity.ServiceType `json:"service_type,omitempty"`
	FormTitle       string             `json:"form_title,omitempty"`
	FormDescription string             `json:"form_description,omitempty"`
	// Fields replaces the stored fields; nil keeps them
	Fields          map[string]any `json:"fields"`
	ExpectedVersion int            `json:"expected_version,omitempty"`
	// LegacySourceID promotes a legacy record into a new native form.
	// Empty fields, title and service type are taken from the record.
	LegacySourceID string `json:"legacy_source_id,omitempty"`
}

type AssignInput struct {
	FormID          string `json:"form_id"`
	StaffID         string `json:"staff_id"`
	ExpectedVersion int    `json:"expected_version"`
}

// CorrectInput edits fields for a review stage. Stage is only read for admins.
type CorrectInput struct {
	FormID          string         `json:"form_id"`
	Stage           entity.Stage   `json:"stage,omitempty"`
	Fields          map[string]any `json:"fields"`
	Notes           string         `json:"notes,omitempty"`
	ExpectedVersion int            `json:"expected_version"`
}

type VerifyInput struct {
	FormID          string       `json:"form_id"`
	Stage           entity.Stage `json:"stage,omitempty"`
	Approved        bool         `json:"approved"`
	Notes           string       `json:"notes,omitempty"`
	ExpectedVersion int          `json:"expected_version"`
}

type RequestCorrectionInput struct {
	FormID          string       `json:"form_id"`
	Stage           entity.Stage `json:"stage,omitempty"`
	Notes           string       `json:"notes"`
	ExpectedVersion int          `json:"expected_version"`
}

type StampDutyInput struct {
	FormID string `json:"form_id"`
	service.StampDutyInput
}

type FinalApprovalInput struct {
	FormID          string `json:"form_id"`
	Decision        string `json:"decision"`
	FinalRemarks    string `json:"final_remarks,omitempty"`
	Lock            bool   `json:"lock"`
	ExpectedVersion int    `json:"expected_version"`
}

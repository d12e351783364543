package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/deed-approval/internal/application/service"
	"github.com/garyjia/deed-approval/internal/domain/access"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// GetForm returns a native or legacy form the actor may read
func (e *engineImpl) GetForm(ctx context.Context, actor entity.Actor, formID string) (*entity.Form, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	form, err := e.load(ctx, formID)
	if err != nil {
		return nil, err
	}
	if err := access.CanPerform(access.Request{Actor: actor, Form: form, Operation: access.OpRead}).Err(); err != nil {
		return nil, err
	}
	return form, nil
}

// ListUnified lists native and legacy forms. Submitters and agents only see
// forms of the submitter they act for.
func (e *engineImpl) ListUnified(ctx context.Context, actor entity.Actor, filter entity.FormFilter) ([]*entity.Form, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	switch actor.Role {
	case entity.RoleUser:
		filter.SubmitterID = actor.ID
	case entity.RoleAgent:
		if actor.OnBehalfOf == "" {
			return nil, errs.Unauthorized("agent %s must act on behalf of a submitter", actor.ID)
		}
		filter.SubmitterID = actor.OnBehalfOf
	case entity.RoleAdmin:
	default:
		if !actor.Role.IsStaff() {
			return nil, errs.Unauthorized("unknown role %q", actor.Role)
		}
	}

	forms, err := e.reconciler.ListUnified(ctx, filter)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return forms, nil
}

// GetAuditTrail returns the entries of one form in append order
func (e *engineImpl) GetAuditTrail(ctx context.Context, actor entity.Actor, formID string, afterSequence int64, limit int) ([]*entity.AuditEntry, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if formID == "" {
		return nil, errs.Validation("form_id is required")
	}
	if err := access.CanPerform(access.Request{Actor: actor, Operation: access.OpReadAudit}).Err(); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = defaultAuditLimit
	case limit > maxAuditLimit:
		limit = maxAuditLimit
	}

	entries, err := service.CollectAudit(e.audit.Query(ctx, entity.AuditFilter{
		ResourceID:    formID,
		AfterSequence: afterSequence,
	}), limit)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return entries, nil
}

// ListStaffReports returns the actor's own staff reports
func (e *engineImpl) ListStaffReports(ctx context.Context, actor entity.Actor, pendingOnly bool) ([]*entity.StaffReport, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if !actor.Role.IsStaff() {
		return nil, errs.Unauthorized("only staff members have work reports")
	}
	reports, err := e.staffReports.ListByStaff(ctx, actor.ID, pendingOnly)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return reports, nil
}

// GetReport returns the stored final report of a locked form, assembling and
// storing it first when none exists yet
func (e *engineImpl) GetReport(ctx context.Context, actor entity.Actor, formID string) (*entity.ReportArtifact, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	form, err := e.load(ctx, formID)
	if err != nil {
		return nil, err
	}
	if err := access.CanPerform(access.Request{Actor: actor, Form: form, Operation: access.OpReadReport}).Err(); err != nil {
		return nil, err
	}
	if !form.IsLocked() {
		return nil, errs.PreconditionFailed("form %s is not locked; final reports are only generated for locked forms", form.ID)
	}

	stored, err := e.finalReports.GetByFormID(ctx, form.ID)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if stored != nil {
		return stored, nil
	}

	report, err := e.assembler.Assemble(form, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := e.finalReports.Save(ctx, report); err != nil {
		e.logger.Warn("Failed to store reassembled final report", "error", err, "form_id", form.ID)
	}
	return report, nil
}

// RenderReport returns the final report as a downloadable document
func (e *engineImpl) RenderReport(ctx context.Context, actor entity.Actor, formID string) (*RenderedReport, error) {
	if e.renderer == nil {
		return nil, errs.PreconditionFailed("report rendering is not configured")
	}

	report, err := e.GetReport(ctx, actor, formID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var content []byte
	if report.DocumentPath != "" && e.storage != nil && e.storage.Exists(ctx, report.DocumentPath) {
		content, err = e.storage.Read(ctx, report.DocumentPath)
		if err != nil {
			e.logger.Warn("Stored report document unreadable, rendering again", "error", err, "path", report.DocumentPath)
			content = nil
		}
	}
	if content == nil {
		content, err = e.renderer.Render(ctx, report)
		if err != nil {
			return nil, errs.Wrap(errs.KindStorage, err, "failed to render final report")
		}
	}

	return &RenderedReport{
		FileName:    reportFileName(report.FormID, e.renderer.Extension()),
		ContentType: e.renderer.ContentType(),
		Content:     content,
	}, nil
}

// finalizeReport assembles, stores and renders the report of a freshly locked form
func (e *engineImpl) finalizeReport(ctx context.Context, actor entity.Actor, form *entity.Form, result *Result) {
	report, err := e.assembler.Assemble(form, actor.ID)
	if err != nil {
		e.logger.Error("Failed to assemble final report", "error", err, "form_id", form.ID)
		result.Warnings = append(result.Warnings, "the form is locked but its final report could not be assembled")
		return
	}
	result.Report = report

	ctx, cancel := e.detached(ctx)
	defer cancel()

	if err := e.finalReports.Save(ctx, report); err != nil {
		e.logger.Error("Failed to store final report", "error", err, "form_id", form.ID)
		result.Warnings = append(result.Warnings, "the form is locked but its final report could not be stored")
		return
	}

	if e.renderer == nil || e.storage == nil {
		return
	}
	content, err := e.renderer.Render(ctx, report)
	if err != nil {
		e.logger.Error("Failed to render final report", "error", err, "form_id", form.ID)
		result.Warnings = append(result.Warnings, "the final report document could not be rendered")
		return
	}
	path := "reports/" + reportFileName(form.ID, e.renderer.Extension())
	if err := e.storage.Save(ctx, path, content); err != nil {
		e.logger.Error("Failed to store final report document", "error", err, "form_id", form.ID, "path", path)
		result.Warnings = append(result.Warnings, "the final report document could not be stored")
		return
	}
	if err := e.finalReports.SetDocumentPath(ctx, form.ID, path); err != nil {
		e.logger.Warn("Failed to record final report document path", "error", err, "form_id", form.ID)
		return
	}
	report.DocumentPath = path

	e.logger.Info("Final report stored", "form_id", form.ID, "path", path, "content_hash", report.ContentHash)
}

func reportFileName(formID, ext string) string {
	safe := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(formID)
	return fmt.Sprintf("final-report-%s%s", safe, ext)
}

package workflow

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/garyjia/deed-approval/internal/application/service"
	"github.com/garyjia/deed-approval/internal/domain/access"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
	"github.com/garyjia/deed-approval/internal/domain/event"
	domainwf "github.com/garyjia/deed-approval/internal/domain/workflow"
	"github.com/google/uuid"
)

// newForm describes a form created by its submitter
type newForm struct {
	serviceType        entity.ServiceType
	title              string
	description        string
	fields             map[string]any
	status             entity.Status
	expectedFieldCount int
	legacySourceID     string
}

// SaveDraft creates a draft or merges a patch into an editable form
func (e *engineImpl) SaveDraft(ctx context.Context, actor entity.Actor, in SaveDraftInput) (*Result, error) {
	if in.FormID == "" {
		return e.create(ctx, actor, entity.ActionSaveDraft, access.OpSaveDraft, newForm{
			serviceType:        in.ServiceType,
			title:              in.FormTitle,
			description:        in.FormDescription,
			fields:             in.Fields,
			status:             entity.StatusDraft,
			expectedFieldCount: in.ExpectedFieldCount,
		})
	}

	return e.run(ctx, actor, mutation{
		action:   entity.ActionSaveDraft,
		op:       access.OpSaveDraft,
		formID:   in.FormID,
		expected: in.ExpectedVersion,
		validate: func(form *entity.Form) error {
			return sameServiceType(form, in.ServiceType)
		},
		apply: func(_ context.Context, form *entity.Form, _ entity.Stage, _ time.Time) (*effects, error) {
			form.MergeFields(in.Fields)
			setText(&form.FormTitle, in.FormTitle)
			setText(&form.FormDescription, in.FormDescription)
			if in.ExpectedFieldCount > 0 {
				form.Progress = entity.ComputeProgress(entity.CountFilled(form.Fields), in.ExpectedFieldCount)
			}
			return &effects{
				trigger: domainwf.TriggerSave,
				details: map[string]any{"patched_fields": sortedKeys(in.Fields)},
			}, nil
		},
	})
}

// Submit creates a submitted form or resubmits an existing one. Resubmitting
// after a correction request or rejection restarts review from staff1.
func (e *engineImpl) Submit(ctx context.Context, actor entity.Actor, in SubmitInput) (*Result, error) {
	if in.FormID == "" {
		return e.create(ctx, actor, entity.ActionSubmit, access.OpSubmit, newForm{
			serviceType:    in.ServiceType,
			title:          in.FormTitle,
			description:    in.FormDescription,
			fields:         in.Fields,
			status:         entity.StatusSubmitted,
			legacySourceID: strings.TrimSpace(in.LegacySourceID),
		})
	}

	return e.run(ctx, actor, mutation{
		action:   entity.ActionSubmit,
		op:       access.OpSubmit,
		formID:   in.FormID,
		expected: in.ExpectedVersion,
		validate: func(form *entity.Form) error {
			return sameServiceType(form, in.ServiceType)
		},
		apply: func(_ context.Context, form *entity.Form, _ entity.Stage, now time.Time) (*effects, error) {
			restart := form.Status == entity.StatusNeedsCorrection || form.Status == entity.StatusRejected

			form.History = append(form.History, form.Snapshot(now, actor.ID))
			if in.Fields != nil {
				form.Fields = entity.CloneFields(in.Fields)
			}
			setText(&form.FormTitle, in.FormTitle)
			setText(&form.FormDescription, in.FormDescription)
			if restart {
				form.Approvals = entity.Approvals{}
			}
			form.SubmittedAt = &now

			return &effects{
				trigger: domainwf.TriggerSubmit,
				notices: []notice{newNotice(event.TypeFormSubmitted, nil)},
				details: map[string]any{"resubmission": restart, "history_length": len(form.History)},
			}, nil
		},
	})
}

// create stores a new form at version 1
func (e *engineImpl) create(ctx context.Context, actor entity.Actor, action string, op access.Operation, nf newForm) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if nf.legacySourceID != "" {
		if err := e.promote(ctx, actor, &nf); err != nil {
			return e.fail(ctx, actor, action, nf.legacySourceID, nil, err)
		}
	}
	if !nf.serviceType.IsValid() {
		return e.fail(ctx, actor, action, "", nil, errs.Validation("unknown service type %q", nf.serviceType))
	}
	if err := access.CanPerform(access.Request{Actor: actor, Operation: op}).Err(); err != nil {
		return e.fail(ctx, actor, action, "", nil, err)
	}

	now := e.now()
	id := uuid.NewString()
	form := &entity.Form{
		ID:              id,
		ServiceType:     nf.serviceType,
		SubmitterID:     owner(actor),
		FormTitle:       strings.TrimSpace(nf.title),
		FormDescription: strings.TrimSpace(nf.description),
		Fields:          entity.CloneFields(nf.fields),
		Status:          nf.status,
		Approvals:       entity.Approvals{},
		Version:         1,
		History:         []entity.Snapshot{},
		Notes:           []entity.Note{},
		LegacySourceID:  nf.legacySourceID,
		CreatedAt:       now,
	}
	if form.FormTitle == "" {
		form.FormTitle = entity.DefaultTitle(nf.serviceType, id)
	}
	if nf.expectedFieldCount > 0 {
		form.Progress = entity.ComputeProgress(entity.CountFilled(form.Fields), nf.expectedFieldCount)
	}
	if nf.status == entity.StatusSubmitted {
		form.SubmittedAt = &now
	}
	form.Touch(now, actor.ID)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.forms.Create(txCtx, form)
	})
	if err != nil {
		return e.fail(ctx, actor, action, id, nil, err)
	}

	details := map[string]any{"created": true}
	if form.LegacySourceID != "" {
		details["legacy_source_id"] = form.LegacySourceID
	}
	result := &Result{Form: form}
	e.record(ctx, actor, action, id, now, nil, form, details, result)
	if nf.status == entity.StatusSubmitted {
		e.publish(ctx, actor, form, newNotice(event.TypeFormSubmitted, nil))
	}

	e.logger.Info("Form created", "form_id", id, "service_type", nf.serviceType, "status", nf.status, "actor_id", actor.ID)
	return result, nil
}

// promote fills a new form from the legacy record it replaces. The record
// must belong to the actor and may back at most one native form.
func (e *engineImpl) promote(ctx context.Context, actor entity.Actor, nf *newForm) error {
	if !entity.IsLegacyFormID(nf.legacySourceID) {
		return errs.Validation("legacy_source_id %q does not name a legacy record", nf.legacySourceID)
	}
	legacy, err := e.load(ctx, nf.legacySourceID)
	if err != nil {
		return err
	}
	if !actor.ActsFor(legacy.SubmitterID) {
		return errs.Unauthorized("%s %s is not the submitter of form %s", actor.Role, actor.ID, legacy.ID)
	}
	if nf.serviceType == "" {
		nf.serviceType = legacy.ServiceType
	} else if nf.serviceType != legacy.ServiceType {
		return errs.Validation("service_type %s does not match legacy collection %s", nf.serviceType, legacy.ServiceType)
	}

	linked, err := e.forms.LinkedLegacyIDs(ctx, []string{legacy.ID})
	if err != nil {
		return classify(ctx, err)
	}
	if linked[legacy.ID] {
		return errs.Conflict("form %s has already been promoted", legacy.ID)
	}

	if nf.fields == nil {
		nf.fields = legacy.Fields
	}
	if strings.TrimSpace(nf.title) == "" {
		nf.title = legacy.FormTitle
	}
	if strings.TrimSpace(nf.description) == "" {
		nf.description = legacy.FormDescription
	}
	return nil
}

// Assign hands the form to an active staff account
func (e *engineImpl) Assign(ctx context.Context, actor entity.Actor, in AssignInput) (*Result, error) {
	return e.run(ctx, actor, mutation{
		action:   entity.ActionAssign,
		op:       access.OpAssign,
		formID:   in.FormID,
		expected: in.ExpectedVersion,
		validate: func(*entity.Form) error {
			if strings.TrimSpace(in.StaffID) == "" {
				return errs.Validation("staff_id is required")
			}
			return nil
		},
		apply: func(ctx context.Context, form *entity.Form, _ entity.Stage, _ time.Time) (*effects, error) {
			account, err := e.accounts.Lookup(ctx, in.StaffID)
			if err != nil {
				return nil, err
			}
			if account == nil {
				return nil, errs.NotFound("account %s not found", in.StaffID)
			}
			if !account.Active || !account.Role.IsStaff() {
				return nil, errs.Validation("account %s is not an active staff account", in.StaffID)
			}

			previous := form.AssignedTo
			form.AssignedTo = account.ID
			return &effects{
				notices: []notice{newNotice(event.TypeFormAssigned, map[string]any{event.KeyAssignedTo: account.ID})},
				details: map[string]any{"assigned_to": account.ID, "previous_assignee": previous},
			}, nil
		},
	})
}

// Correct merges a staff edit and tracks it on the staff member's report
func (e *engineImpl) Correct(ctx context.Context, actor entity.Actor, in CorrectInput) (*Result, error) {
	return e.run(ctx, actor, mutation{
		action:   entity.ActionCorrect,
		op:       access.OpCorrect,
		formID:   in.FormID,
		stage:    in.Stage,
		expected: in.ExpectedVersion,
		validate: func(*entity.Form) error {
			if len(in.Fields) == 0 {
				return errs.Validation("fields patch is required")
			}
			return nil
		},
		apply: func(ctx context.Context, form *entity.Form, stage entity.Stage, now time.Time) (*effects, error) {
			original := entity.CloneFields(form.Fields)
			form.MergeFields(in.Fields)
			form.AddNote(in.Notes, actor.ID, actor.Role, now)
			if form.IsLegacy {
				markLegacyProcessed(form, actor.ID, in.Notes, now)
			}

			eff := &effects{
				trigger: domainwf.TriggerStartReview,
				details: map[string]any{"stage": string(stage), "patched_fields": sortedKeys(in.Fields)},
			}
			report, err := e.workReport(ctx, actor, form, stage, original, now)
			if err != nil {
				return nil, err
			}
			if report == nil {
				eff.warnings = append(eff.warnings, submittedReportWarning)
			}
			eff.staffReport = report
			return eff, nil
		},
	})
}

// Verify records a stage decision. Approval of stage N needs its prerequisite
// stages approved even for admins. Rejection needs notes and is refused once
// a stage that depends on N has approved.
func (e *engineImpl) Verify(ctx context.Context, actor entity.Actor, in VerifyInput) (*Result, error) {
	action := entity.ActionVerify
	if !in.Approved {
		action = entity.ActionReject
	}
	notes := strings.TrimSpace(in.Notes)

	return e.run(ctx, actor, mutation{
		action:   action,
		op:       access.OpVerify,
		formID:   in.FormID,
		stage:    in.Stage,
		expected: in.ExpectedVersion,
		validate: func(*entity.Form) error {
			if !in.Approved && notes == "" {
				return errs.Validation("notes are required when rejecting")
			}
			return nil
		},
		apply: func(ctx context.Context, form *entity.Form, stage entity.Stage, now time.Time) (*effects, error) {
			check := access.RejectionPreconditions
			if in.Approved {
				check = access.StagePreconditions
			}
			if err := check(stage, form.Approvals).Err(); err != nil {
				return nil, err
			}

			rec := form.Approvals.Get(stage)
			rec.Approved = in.Approved
			rec.Rejected = !in.Approved
			rec.ApprovedBy = actor.ID
			rec.ApprovedAt = &now
			rec.Notes = notes
			form.Approvals[stage] = rec
			form.AddNote(notes, actor.ID, actor.Role, now)

			eff := &effects{details: map[string]any{"stage": string(stage), "approved": in.Approved}}
			verification := entity.VerificationApproved
			switch {
			case !in.Approved:
				eff.trigger = domainwf.TriggerReject
				verification = entity.VerificationRejected
				eff.notices = []notice{newNotice(event.TypeFormRejected, map[string]any{
					event.KeyStage: string(stage), event.KeyNotes: notes,
				})}
			case stage == entity.Stage4:
				eff.trigger = domainwf.TriggerCrossVerify
			default:
				eff.trigger = domainwf.TriggerVerify
			}
			if in.Approved {
				eff.notices = []notice{newNotice(event.TypeFormVerified, map[string]any{event.KeyStage: string(stage)})}
			}

			report, err := e.workReport(ctx, actor, form, stage, form.Fields, now)
			if err != nil {
				return nil, err
			}
			if report == nil {
				eff.warnings = append(eff.warnings, submittedReportWarning)
			} else {
				report.VerificationStatus = verification
				setText(&report.Remarks, notes)
			}
			eff.staffReport = report
			return eff, nil
		},
	})
}

// RequestCorrection sends the form back to its submitter
func (e *engineImpl) RequestCorrection(ctx context.Context, actor entity.Actor, in RequestCorrectionInput) (*Result, error) {
	notes := strings.TrimSpace(in.Notes)

	return e.run(ctx, actor, mutation{
		action:   entity.ActionRequestCorrection,
		op:       access.OpRequestCorrection,
		formID:   in.FormID,
		stage:    in.Stage,
		expected: in.ExpectedVersion,
		validate: func(*entity.Form) error {
			if notes == "" {
				return errs.Validation("notes are required when requesting correction")
			}
			return nil
		},
		apply: func(ctx context.Context, form *entity.Form, stage entity.Stage, now time.Time) (*effects, error) {
			rec := form.Approvals.Get(stage)
			rec.Notes = notes
			form.Approvals[stage] = rec
			form.AddNote(notes, actor.ID, actor.Role, now)

			eff := &effects{
				trigger: domainwf.TriggerRequestCorrection,
				notices: []notice{newNotice(event.TypeFormCorrectionRequested, map[string]any{
					event.KeyStage: string(stage), event.KeyNotes: notes,
				})},
				details: map[string]any{"stage": string(stage)},
			}
			report, err := e.workReport(ctx, actor, form, stage, form.Fields, now)
			if err != nil {
				return nil, err
			}
			if report == nil {
				eff.warnings = append(eff.warnings, submittedReportWarning)
			} else {
				report.VerificationStatus = entity.VerificationNeedsCorrection
				report.Remarks = notes
			}
			eff.staffReport = report
			return eff, nil
		},
	})
}

// FinalApproval records the staff5 decision and optionally locks the form.
// Locking assembles and stores the final report; a failure there degrades
// the result but never undoes the lock.
func (e *engineImpl) FinalApproval(ctx context.Context, actor entity.Actor, in FinalApprovalInput) (*Result, error) {
	remarks := strings.TrimSpace(in.FinalRemarks)

	return e.run(ctx, actor, mutation{
		action:   entity.ActionFinalApproval,
		op:       access.OpFinalApproval,
		formID:   in.FormID,
		expected: in.ExpectedVersion,
		validate: func(*entity.Form) error {
			switch in.Decision {
			case entity.DecisionApproved:
			case entity.DecisionRejected:
				if remarks == "" {
					return errs.Validation("final remarks are required when rejecting")
				}
			default:
				return errs.Validation("decision must be %q or %q", entity.DecisionApproved, entity.DecisionRejected)
			}
			return nil
		},
		apply: func(_ context.Context, form *entity.Form, _ entity.Stage, now time.Time) (*effects, error) {
			if err := access.StagePreconditions(entity.Stage5, form.Approvals).Err(); err != nil {
				return nil, err
			}

			rec := form.Approvals.Get(entity.Stage5)
			rec.FinalDecision = in.Decision
			rec.FinalRemarks = remarks
			rec.Approved = in.Decision == entity.DecisionApproved
			rec.Rejected = false
			rec.ApprovedBy = actor.ID
			rec.ApprovedAt = &now
			if in.Lock {
				rec.Locked = true
				rec.LockedBy = actor.ID
				rec.LockedAt = &now
			}
			form.Approvals[entity.Stage5] = rec
			form.AddNote(remarks, actor.ID, actor.Role, now)

			eff := &effects{
				trigger: domainwf.TriggerFinalApprove,
				notices: []notice{newNotice(event.TypeFormFinalized, map[string]any{event.KeyDecision: in.Decision})},
				details: map[string]any{"decision": in.Decision, "lock": in.Lock, "outcome": "final_approved"},
			}
			if in.Decision == entity.DecisionRejected {
				eff.trigger = domainwf.TriggerFinalReject
				eff.details["outcome"] = "final_rejected"
			}
			if in.Lock {
				eff.notices = append(eff.notices, newNotice(event.TypeFormLocked, map[string]any{event.KeyDecision: in.Decision}))
				eff.afterCommit = func(ctx context.Context, locked *entity.Form, result *Result) {
					e.finalizeReport(ctx, actor, locked, result)
				}
			}
			return eff, nil
		},
	})
}

// CalculateStampDuty stores a stage 1 stamp duty calculation on the staff
// member's report. The form itself is not modified.
func (e *engineImpl) CalculateStampDuty(ctx context.Context, actor entity.Actor, in StampDutyInput) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	form, err := e.load(ctx, in.FormID)
	if err != nil {
		return e.fail(ctx, actor, entity.ActionStampDuty, in.FormID, nil, err)
	}
	if form.IsLocked() {
		return e.fail(ctx, actor, entity.ActionStampDuty, form.ID, form,
			errs.AlreadyLocked("form %s is locked and can no longer change", form.ID))
	}

	now := e.now()
	calc, err := service.CalculateStampDuty(form.ServiceType, in.StampDutyInput, actor.ID, now)
	if err != nil {
		return e.fail(ctx, actor, entity.ActionStampDuty, form.ID, form, err)
	}

	stage, err := actingStage(actor, access.OpStampDuty, "")
	if err != nil {
		return e.fail(ctx, actor, entity.ActionStampDuty, form.ID, form, err)
	}
	if err := access.CanPerform(access.Request{Actor: actor, Form: form, Operation: access.OpStampDuty, Stage: stage}).Err(); err != nil {
		return e.fail(ctx, actor, entity.ActionStampDuty, form.ID, form, err)
	}

	report, err := e.workReport(ctx, actor, form, stage, form.Fields, now)
	if err != nil {
		return e.fail(ctx, actor, entity.ActionStampDuty, form.ID, form, err)
	}
	if report == nil {
		return e.fail(ctx, actor, entity.ActionStampDuty, form.ID, form,
			errs.PreconditionFailed("staff report of %s for form %s is already submitted", actor.ID, form.ID))
	}
	report.StampCalculation = calc

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.staffReports.Upsert(txCtx, report)
	})
	if err != nil {
		return e.fail(ctx, actor, entity.ActionStampDuty, form.ID, form, err)
	}

	result := &Result{Form: form, StaffReport: report}
	e.record(ctx, actor, entity.ActionStampDuty, form.ID, now, form, form, map[string]any{
		"calculated_amount":  calc.CalculatedAmount,
		"calculation_method": calc.CalculationMethod,
		"property_value":     calc.PropertyValue,
	}, result)
	return result, nil
}

// Delete removes a native form. Locked and legacy forms cannot be deleted.
func (e *engineImpl) Delete(ctx context.Context, actor entity.Actor, formID string, expectedVersion int) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	form, err := e.load(ctx, formID)
	if err != nil {
		return e.fail(ctx, actor, entity.ActionDelete, formID, nil, err)
	}
	if form.IsLocked() {
		return e.fail(ctx, actor, entity.ActionDelete, form.ID, form,
			errs.AlreadyLocked("form %s is locked and cannot be deleted", form.ID))
	}
	if expectedVersion <= 0 {
		return e.fail(ctx, actor, entity.ActionDelete, form.ID, form, errs.Validation("expected_version is required"))
	}
	if err := access.CanPerform(access.Request{Actor: actor, Form: form, Operation: access.OpDelete}).Err(); err != nil {
		return e.fail(ctx, actor, entity.ActionDelete, form.ID, form, err)
	}
	if form.Version != expectedVersion {
		return e.fail(ctx, actor, entity.ActionDelete, form.ID, form,
			errs.Conflict("form %s is at version %d, expected %d", form.ID, form.Version, expectedVersion))
	}

	now := e.now()
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return e.forms.Delete(txCtx, form.ID, expectedVersion)
	})
	if err != nil {
		return e.fail(ctx, actor, entity.ActionDelete, form.ID, form, err)
	}

	result := &Result{}
	e.record(ctx, actor, entity.ActionDelete, form.ID, now, form, nil, nil, result)
	e.logger.Info("Form deleted", "form_id", form.ID, "actor_id", actor.ID)
	return result, nil
}

// SubmitWorkReports freezes the actor's pending staff reports
func (e *engineImpl) SubmitWorkReports(ctx context.Context, actor entity.Actor) (int64, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if !actor.Role.IsStaff() {
		_, err := e.fail(ctx, actor, entity.ActionSubmitWorkReports, actor.ID, nil,
			errs.Unauthorized("only staff members submit work reports"))
		return 0, err
	}

	now := e.now()
	n, err := e.staffReports.MarkSubmitted(ctx, actor.ID, now)
	if err != nil {
		_, err = e.fail(ctx, actor, entity.ActionSubmitWorkReports, actor.ID, nil, err)
		return 0, err
	}

	result := &Result{}
	e.record(ctx, actor, entity.ActionSubmitWorkReports, actor.ID, now, nil, nil, map[string]any{"submitted": n}, result)
	for _, w := range result.Warnings {
		e.logger.Warn("Work report submission degraded", "staff_id", actor.ID, "warning", w)
	}
	return n, nil
}

const submittedReportWarning = "your staff report for this form is already submitted and was not updated"

// workReport loads or starts the actor's report for the form with the
// current edit applied. It returns nil when the report is already submitted.
func (e *engineImpl) workReport(ctx context.Context, actor entity.Actor, form *entity.Form, stage entity.Stage, original map[string]any, now time.Time) (*entity.StaffReport, error) {
	report, err := e.staffReports.Get(ctx, actor.ID, form.ID)
	if err != nil {
		return nil, err
	}
	if report != nil && report.IsSubmitted {
		return nil, nil
	}
	if report == nil {
		report = &entity.StaffReport{
			StaffID:            actor.ID,
			FormID:             form.ID,
			Stage:              stage,
			ServiceType:        form.ServiceType,
			OriginalData:       entity.CloneFields(original),
			VerificationStatus: entity.VerificationPending,
			CreatedAt:          now,
		}
	}
	report.EditedData = entity.CloneFields(form.Fields)
	report.ChangeSet = entity.ComputeChangeSet(report.OriginalData, report.EditedData)
	report.UpdatedAt = now
	return report, nil
}

// markLegacyProcessed records stage 1 processing on a legacy-origin form,
// which the origin collection stores as its processedByStaff1 flag
func markLegacyProcessed(form *entity.Form, by, notes string, at time.Time) {
	rec := form.Approvals.Get(entity.Stage1)
	rec.Approved = true
	rec.ApprovedBy = by
	rec.ApprovedAt = &at
	if n := strings.TrimSpace(notes); n != "" {
		rec.Notes = n
	}
	form.Approvals[entity.Stage1] = rec
}

func sameServiceType(form *entity.Form, requested entity.ServiceType) error {
	if requested != "" && requested != form.ServiceType {
		return errs.Validation("form %s is a %s; its service type cannot change", form.ID, form.ServiceType)
	}
	return nil
}

func setText(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

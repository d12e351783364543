package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/deed-approval/internal/application/dispatcher"
	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/application/service"
	"github.com/garyjia/deed-approval/internal/domain/access"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
	"github.com/garyjia/deed-approval/internal/domain/event"
	domainwf "github.com/garyjia/deed-approval/internal/domain/workflow"
)

const (
	defaultStorageTimeout = 10 * time.Second
	defaultAuditTimeout   = 5 * time.Second
)

// Dependencies are the collaborators the engine cannot run without
type Dependencies struct {
	Forms        port.FormRepository
	Reconciler   service.LegacyFormReconciler
	StaffReports port.StaffReportRepository
	FinalReports port.FinalReportRepository
	Accounts     port.AccountDirectory
	Audit        service.AuditTrail
	Assembler    service.FinalReportAssembler
	TxManager    port.TransactionManager
}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	forms        port.FormRepository
	reconciler   service.LegacyFormReconciler
	staffReports port.StaffReportRepository
	finalReports port.FinalReportRepository
	accounts     port.AccountDirectory
	audit        service.AuditTrail
	assembler    service.FinalReportAssembler
	txManager    port.TransactionManager

	dispatcher dispatcher.Dispatcher
	renderer   port.ReportRenderer
	storage    port.FileStorage

	storageTimeout time.Duration
	auditTimeout   time.Duration
	now            func() time.Time
	logger         service.Logger
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithReportRenderer renders final reports into documents kept in storage
func WithReportRenderer(r port.ReportRenderer, storage port.FileStorage) EngineOption {
	return func(e *engineImpl) {
		e.renderer = r
		e.storage = storage
	}
}

// WithStorageTimeout bounds every operation. Zero leaves only the caller's deadline.
func WithStorageTimeout(d time.Duration) EngineOption {
	return func(e *engineImpl) {
		e.storageTimeout = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithLogger sets the engine logger
func WithLogger(l service.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// NewEngine creates a new workflow engine
func NewEngine(deps Dependencies, opts ...EngineOption) WorkflowEngine {
	e := &engineImpl{
		forms:          deps.Forms,
		reconciler:     deps.Reconciler,
		staffReports:   deps.StaffReports,
		finalReports:   deps.FinalReports,
		accounts:       deps.Accounts,
		audit:          deps.Audit,
		assembler:      deps.Assembler,
		txManager:      deps.TxManager,
		storageTimeout: defaultStorageTimeout,
		auditTimeout:   defaultAuditTimeout,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         service.NopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// mutation is one version-checked change to an existing form
type mutation struct {
	action   string
	op       access.Operation
	formID   string
	stage    entity.Stage
	expected int
	// validate checks the payload against the loaded form before the gate runs
	validate func(form *entity.Form) error
	// apply mutates a private copy of the form
	apply func(ctx context.Context, form *entity.Form, stage entity.Stage, now time.Time) (*effects, error)
}

// effects is what a mutation produces besides the new form
type effects struct {
	trigger     domainwf.Trigger
	staffReport *entity.StaffReport
	notices     []notice
	details     map[string]any
	warnings    []string
	// afterCommit runs once the form is stored; it may only add warnings
	afterCommit func(ctx context.Context, form *entity.Form, result *Result)
}

// run loads, checks, applies and stores a mutation. Checks run in a fixed
// order: existence, lock, payload, gate, version. Nothing is written unless
// all of them pass, and the write itself is conditional on the version.
func (e *engineImpl) run(ctx context.Context, actor entity.Actor, m mutation) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	form, err := e.load(ctx, m.formID)
	if err != nil {
		return e.fail(ctx, actor, m.action, m.formID, nil, err)
	}
	if err := e.superseded(ctx, form); err != nil {
		return e.fail(ctx, actor, m.action, form.ID, form, err)
	}
	if form.IsLocked() {
		return e.fail(ctx, actor, m.action, form.ID, form,
			errs.AlreadyLocked("form %s is locked and can no longer change", form.ID))
	}
	if m.expected <= 0 {
		return e.fail(ctx, actor, m.action, form.ID, form, errs.Validation("expected_version is required"))
	}
	if m.validate != nil {
		if err := m.validate(form); err != nil {
			return e.fail(ctx, actor, m.action, form.ID, form, err)
		}
	}

	stage, err := actingStage(actor, m.op, m.stage)
	if err != nil {
		return e.fail(ctx, actor, m.action, form.ID, form, err)
	}
	decision := access.CanPerform(access.Request{Actor: actor, Form: form, Operation: m.op, Stage: stage})
	if err := decision.Err(); err != nil {
		return e.fail(ctx, actor, m.action, form.ID, form, err)
	}
	if form.Version != m.expected {
		return e.fail(ctx, actor, m.action, form.ID, form,
			errs.Conflict("form %s is at version %d, expected %d", form.ID, form.Version, m.expected))
	}

	now := e.now()
	after := form.Clone()
	eff, err := m.apply(ctx, after, stage, now)
	if err != nil {
		return e.fail(ctx, actor, m.action, form.ID, form, err)
	}
	if eff.trigger != "" {
		next, err := transition(form, eff.trigger)
		if err != nil {
			return e.fail(ctx, actor, m.action, form.ID, form, err)
		}
		after.Status = domainwf.DeriveStatus(next.Status(), after.Approvals)
	}
	after.Version = m.expected + 1
	after.Touch(now, actor.ID)

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.reconciler.Persist(txCtx, after, m.expected); err != nil {
			return err
		}
		if eff.staffReport != nil {
			if err := e.staffReports.Upsert(txCtx, eff.staffReport); err != nil {
				return fmt.Errorf("save staff report: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return e.fail(ctx, actor, m.action, form.ID, form, err)
	}

	result := &Result{Form: after, StaffReport: eff.staffReport, Warnings: eff.warnings}
	e.record(ctx, actor, m.action, after.ID, now, form, after, eff.details, result)
	if eff.afterCommit != nil {
		eff.afterCommit(ctx, after, result)
	}
	e.publish(ctx, actor, after, eff.notices...)

	e.logger.Info("Workflow operation applied",
		"action", m.action,
		"form_id", after.ID,
		"actor_id", actor.ID,
		"status", after.Status,
		"version", after.Version,
	)
	return result, nil
}

// transition fires trigger on a machine positioned at the form's status
func transition(form *entity.Form, trigger domainwf.Trigger) (domainwf.State, error) {
	sm, err := BuildFormStateMachine(domainwf.State(form.Status))
	if err != nil {
		return "", errs.PreconditionFailed("form %s has unknown status %q", form.ID, form.Status)
	}
	if err := sm.Fire(trigger); err != nil {
		return "", errs.PreconditionFailed("%s is not allowed while form %s is %s",
			describeTrigger(trigger), form.ID, form.Status)
	}
	return sm.State(), nil
}

func describeTrigger(t domainwf.Trigger) string {
	switch t {
	case domainwf.TriggerSave:
		return "saving a draft"
	case domainwf.TriggerSubmit:
		return "submitting"
	case domainwf.TriggerStartReview:
		return "correcting"
	case domainwf.TriggerVerify, domainwf.TriggerCrossVerify:
		return "approving"
	case domainwf.TriggerReject:
		return "rejecting"
	case domainwf.TriggerRequestCorrection:
		return "requesting correction"
	case domainwf.TriggerFinalApprove, domainwf.TriggerFinalReject:
		return "a final decision"
	}
	return t.String()
}

// actingStage resolves the review stage an actor works for. Staff roles
// imply it; admins must name it except where only one stage applies.
func actingStage(actor entity.Actor, op access.Operation, requested entity.Stage) (entity.Stage, error) {
	switch op {
	case access.OpCorrect, access.OpVerify, access.OpRequestCorrection, access.OpStampDuty, access.OpFinalApproval:
	default:
		return "", nil
	}

	if stage, ok := actor.Role.Stage(); ok {
		return stage, nil
	}
	if actor.Role != entity.RoleAdmin {
		return "", nil
	}

	switch op {
	case access.OpFinalApproval:
		return entity.Stage5, nil
	case access.OpStampDuty:
		return entity.Stage1, nil
	}
	if !requested.IsValid() {
		return "", errs.Validation("admin must name the stage to act for")
	}
	if requested == entity.Stage5 {
		return "", errs.Validation("staff5 records a final decision; use final approval")
	}
	return requested, nil
}

func (e *engineImpl) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storageTimeout > 0 {
		return context.WithTimeout(ctx, e.storageTimeout)
	}
	return context.WithCancel(ctx)
}

// detached returns a bounded context that survives the caller's cancellation,
// for writes that must happen after the form is stored
func (e *engineImpl) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.auditTimeout)
}

// load resolves a form id through the reconciler
func (e *engineImpl) load(ctx context.Context, formID string) (*entity.Form, error) {
	if formID == "" {
		return nil, errs.Validation("form_id is required")
	}
	form, err := e.reconciler.Load(ctx, formID)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if form == nil {
		return nil, errs.NotFound("form %s not found", formID)
	}
	return form, nil
}

// superseded refuses writes to a legacy record that a native form has replaced
func (e *engineImpl) superseded(ctx context.Context, form *entity.Form) error {
	if !form.IsLegacy {
		return nil
	}
	linked, err := e.forms.LinkedLegacyIDs(ctx, []string{form.ID})
	if err != nil {
		return classify(ctx, err)
	}
	if linked[form.ID] {
		return errs.PreconditionFailed("form %s has been promoted to a native form", form.ID)
	}
	return nil
}

// classify turns untyped failures into storage or timeout errors
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, err, "storage did not respond in time")
	}
	return errs.Wrap(errs.KindStorage, err, "storage failure")
}

// fail records a rejected or failed operation and returns the typed error.
// The audit write is best effort and never replaces the original error.
func (e *engineImpl) fail(ctx context.Context, actor entity.Actor, action, resourceID string, before *entity.Form, err error) (*Result, error) {
	err = classify(ctx, err)
	kind := errs.KindOf(err)

	entry := &entity.AuditEntry{
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		Action:         action,
		ResourceID:     resourceID,
		BeforeSnapshot: before,
		Result:         entity.AuditResultFailure,
		ErrorKind:      string(kind),
		Reason:         errs.ReasonOf(err),
		ClientContext:  actor.Client,
		Timestamp:      e.now(),
		FormVersion:    versionOf(before),
	}

	auditCtx, cancel := e.detached(ctx)
	defer cancel()
	if _, aerr := e.audit.Append(auditCtx, entry); aerr != nil {
		e.logger.Warn("Failed to record failed operation", "error", aerr, "action", action, "resource_id", resourceID)
	}

	if kind == errs.KindStorage || kind == errs.KindTimeout {
		e.logger.Error("Workflow operation failed", "error", err, "action", action, "resource_id", resourceID, "actor_id", actor.ID)
	} else {
		e.logger.Info("Workflow operation rejected",
			"action", action,
			"resource_id", resourceID,
			"actor_id", actor.ID,
			"kind", kind,
			"reason", errs.ReasonOf(err),
		)
	}
	return nil, err
}

// record appends the success entry, stamped with the time the change took
// effect. A failed append leaves the stored change in place and degrades the
// result with a warning.
func (e *engineImpl) record(ctx context.Context, actor entity.Actor, action, resourceID string, at time.Time, before, after *entity.Form, details map[string]any, result *Result) {
	entry := &entity.AuditEntry{
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		Action:         action,
		ResourceID:     resourceID,
		BeforeSnapshot: before,
		AfterSnapshot:  after,
		Details:        details,
		Result:         entity.AuditResultSuccess,
		ClientContext:  actor.Client,
		Timestamp:      at,
		FormVersion:    versionOf(after, before),
	}

	auditCtx, cancel := e.detached(ctx)
	defer cancel()
	if _, err := e.audit.Append(auditCtx, entry); err != nil {
		e.logger.Error("Audit trail unavailable after committed change", "error", err, "action", action, "resource_id", resourceID)
		result.Warnings = append(result.Warnings, "the change was saved but could not be recorded in the audit trail")
	}
}

// versionOf returns the version of the first non-nil form
func versionOf(forms ...*entity.Form) int {
	for _, f := range forms {
		if f != nil {
			return f.Version
		}
	}
	return 0
}

// notice is an event to publish once the change is stored
type notice struct {
	typ   event.Type
	extra map[string]any
}

func newNotice(t event.Type, extra map[string]any) notice {
	return notice{typ: t, extra: extra}
}

// publish dispatches the notices of a stored form. Every event carries the
// fields a notification needs.
func (e *engineImpl) publish(ctx context.Context, actor entity.Actor, form *entity.Form, notices ...notice) {
	if e.dispatcher == nil {
		return
	}
	for _, n := range notices {
		payload := map[string]any{
			event.KeySubmitterID: form.SubmitterID,
			event.KeyTitle:       form.FormTitle,
			event.KeyStatus:      string(form.Status),
			event.KeyVersion:     form.Version,
		}
		for k, v := range n.extra {
			payload[k] = v
		}
		e.dispatcher.DispatchAsync(ctx, event.NewEvent(n.typ, form.ID, actor.ID, payload))
	}
}

// owner is the submitter a self-service actor creates forms for
func owner(actor entity.Actor) string {
	if actor.Role == entity.RoleAgent {
		return actor.OnBehalfOf
	}
	return actor.ID
}

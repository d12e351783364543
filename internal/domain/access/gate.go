// Package access decides which operations an actor may perform on a form.
// Decisions are pure: they depend only on the actor, the form snapshot and
// the requested operation.
package access

import (
	"fmt"
	"strings"

	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
)

// Operation is a workflow operation subject to the gate
type Operation string

const (
	OpRead              Operation = "read"
	OpReadReport        Operation = "read_report"
	OpReadAudit         Operation = "read_audit"
	OpSaveDraft         Operation = "save_draft"
	OpSubmit            Operation = "submit"
	OpAssign            Operation = "assign"
	OpCorrect           Operation = "correct"
	OpVerify            Operation = "verify"
	OpRequestCorrection Operation = "request_correction"
	OpStampDuty         Operation = "stamp_duty"
	OpFinalApproval     Operation = "final_approval"
	OpDelete            Operation = "delete"
)

// IsRead reports whether the operation leaves the form untouched
func (op Operation) IsRead() bool {
	switch op {
	case OpRead, OpReadReport, OpReadAudit:
		return true
	}
	return false
}

// Request is the input to the gate
type Request struct {
	Actor entity.Actor
	// Form is nil when the operation would create a new form
	Form      *entity.Form
	Operation Operation
	// Stage is the stage the actor acts for. Staff roles imply it; admins name it.
	Stage entity.Stage
}

// Decision is the outcome of a gate check
type Decision struct {
	Allowed bool
	Kind    errs.Kind
	Reason  string
}

// Err converts a denial into a typed error, or nil when allowed
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return errs.New(d.Kind, "%s", d.Reason)
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(kind errs.Kind, format string, args ...any) Decision {
	return Decision{Allowed: false, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// CanPerform evaluates a request. Checks run in a fixed order: lock,
// legacy capability, role, then stage preconditions.
func CanPerform(req Request) Decision {
	actor, form, op := req.Actor, req.Form, req.Operation

	if !actor.Role.IsValid() {
		return deny(errs.KindUnauthorized, "unknown role %q", actor.Role)
	}

	if form != nil && form.IsLocked() && !op.IsRead() {
		return deny(errs.KindAlreadyLocked, "form %s is locked; only reads and report generation are permitted", form.ID)
	}

	stage := req.Stage
	if stage == "" {
		stage, _ = actor.Role.Stage()
	}

	if form != nil && form.IsLegacy && !op.IsRead() && !legacySupports(op, stage) {
		return deny(errs.KindPreconditionFailed,
			"legacy %s records accept staff1 processing only; %s is not available", form.OriginCollection, op)
	}

	if actor.Role == entity.RoleAdmin {
		return allow()
	}

	switch op {
	case OpRead, OpReadReport:
		return canRead(actor, form)
	case OpReadAudit:
		if actor.Role.IsStaff() {
			return allow()
		}
		return deny(errs.KindUnauthorized, "role %s cannot read the audit trail", actor.Role)
	case OpSaveDraft, OpSubmit:
		return canSelfServe(actor, form, op)
	case OpAssign, OpDelete:
		return deny(errs.KindUnauthorized, "only admin can %s forms", op)
	case OpCorrect, OpVerify, OpRequestCorrection, OpStampDuty, OpFinalApproval:
		return canReview(actor, form, op)
	}

	return deny(errs.KindUnauthorized, "unknown operation %q", op)
}

func canRead(actor entity.Actor, form *entity.Form) Decision {
	if actor.Role.IsStaff() {
		return allow()
	}
	if form != nil && actor.ActsFor(form.SubmitterID) {
		return allow()
	}
	return deny(errs.KindUnauthorized, "%s %s does not own this form", actor.Role, actor.ID)
}

func canSelfServe(actor entity.Actor, form *entity.Form, op Operation) Decision {
	if actor.Role != entity.RoleUser && actor.Role != entity.RoleAgent {
		return deny(errs.KindUnauthorized, "role %s cannot %s; only the submitter may", actor.Role, op)
	}
	if form == nil {
		if actor.Role == entity.RoleAgent && actor.OnBehalfOf == "" {
			return deny(errs.KindUnauthorized, "agent %s must act on behalf of a submitter", actor.ID)
		}
		return allow()
	}
	if !actor.ActsFor(form.SubmitterID) {
		return deny(errs.KindUnauthorized, "%s %s is not the submitter of form %s", actor.Role, actor.ID, form.ID)
	}
	return allow()
}

func canReview(actor entity.Actor, form *entity.Form, op Operation) Decision {
	stage, ok := actor.Role.Stage()
	if !ok {
		return deny(errs.KindUnauthorized, "role %s cannot %s", actor.Role, op)
	}

	if d := stageMayPerform(stage, op); !d.Allowed {
		return d
	}

	if form == nil {
		return deny(errs.KindPreconditionFailed, "%s requires an existing form", op)
	}

	switch form.Status {
	case entity.StatusDraft:
		return deny(errs.KindPreconditionFailed, "form %s has not been submitted", form.ID)
	case entity.StatusNeedsCorrection:
		return deny(errs.KindPreconditionFailed, "form %s is awaiting correction by the submitter", form.ID)
	case entity.StatusRejected:
		if stage != entity.Stage5 || form.Approvals.Get(entity.Stage5).FinalDecision == "" {
			return deny(errs.KindPreconditionFailed, "form %s was rejected and awaits resubmission", form.ID)
		}
	}

	return StagePreconditions(stage, form.Approvals)
}

// stageMayPerform limits each stage to the operations it owns
func stageMayPerform(stage entity.Stage, op Operation) Decision {
	switch op {
	case OpFinalApproval:
		if stage != entity.Stage5 {
			return deny(errs.KindUnauthorized, "only staff5 can give final approval")
		}
	case OpStampDuty:
		if stage != entity.Stage1 {
			return deny(errs.KindUnauthorized, "only staff1 calculates stamp duty")
		}
	case OpCorrect, OpVerify, OpRequestCorrection:
		if stage == entity.Stage5 {
			return deny(errs.KindUnauthorized, "staff5 may only set the final decision and lock")
		}
	}
	return allow()
}

// StagePreconditions checks that a stage may still act given the approvals so far
func StagePreconditions(stage entity.Stage, approvals entity.Approvals) Decision {
	if missing := approvals.MissingPrerequisites(stage); len(missing) > 0 {
		return deny(errs.KindPreconditionFailed, "%s cannot act until %s %s approved",
			stage, joinStages(missing), plural(len(missing), "has", "have"))
	}

	rec := approvals.Get(stage)
	if stage == entity.Stage5 {
		if rec.Locked {
			return deny(errs.KindAlreadyLocked, "staff5 has already locked this form")
		}
		return allow()
	}
	if rec.Approved {
		return deny(errs.KindPreconditionFailed, "%s has already approved this form", stage)
	}
	return allow()
}

// RejectionPreconditions checks that rejecting stage would not leave a later
// approval standing on an unapproved prerequisite
func RejectionPreconditions(stage entity.Stage, approvals entity.Approvals) Decision {
	if later := approvals.ApprovedDependents(stage); len(later) > 0 {
		return deny(errs.KindPreconditionFailed, "%s cannot reject after %s %s approved",
			stage, joinStages(later), plural(len(later), "has", "have"))
	}
	return allow()
}

func legacySupports(op Operation, stage entity.Stage) bool {
	switch op {
	case OpCorrect, OpVerify:
		return stage == entity.Stage1 || stage == ""
	}
	return false
}

func joinStages(stages []entity.Stage) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	if len(names) <= 1 {
		return strings.Join(names, "")
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

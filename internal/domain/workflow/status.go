package workflow

import "github.com/garyjia/deed-approval/internal/domain/entity"

// DeriveStatus computes the canonical status of a form from the lifecycle
// state the submitter side last set (base) and the per-stage approval records.
//
// Precedence: a stage 5 decision, then any stage rejection, then the
// submitter-side states draft and needs_correction, then the furthest
// completed review milestone. The locked flag lives on the stage 5 record;
// the derived status of a locked form is its final decision.
func DeriveStatus(base entity.Status, approvals entity.Approvals) entity.Status {
	switch approvals.Get(entity.Stage5).FinalDecision {
	case entity.DecisionApproved:
		return entity.StatusApproved
	case entity.DecisionRejected:
		return entity.StatusRejected
	}

	if approvals.AnyRejected() {
		return entity.StatusRejected
	}

	switch base {
	case entity.StatusDraft, entity.StatusNeedsCorrection:
		return base
	}

	switch {
	case approvals.Approved(entity.Stage4):
		return entity.StatusCrossVerified
	case approvals.Approved(entity.Stage1):
		return entity.StatusVerified
	case base == entity.StatusInReview:
		return entity.StatusInReview
	}

	return entity.StatusSubmitted
}

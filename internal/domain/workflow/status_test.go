package workflow

import (
	"testing"

	"github.com/garyjia/deed-approval/internal/domain/entity"
)

// approvalsFromMask builds approvals where bit i marks stage i+1 approved
func approvalsFromMask(mask int, rejected bool, decision string) entity.Approvals {
	a := entity.Approvals{}
	for i, s := range []entity.Stage{entity.Stage1, entity.Stage2, entity.Stage3, entity.Stage4} {
		if mask&(1<<i) != 0 {
			a[s] = entity.ApprovalRecord{Approved: true, ApprovedBy: "u"}
		}
	}
	if rejected {
		a[entity.Stage2] = entity.ApprovalRecord{Rejected: true, Notes: "bad title"}
	}
	if decision != "" {
		a[entity.Stage5] = entity.ApprovalRecord{FinalDecision: decision}
	}
	return a
}

func TestDeriveStatus_Exhaustive(t *testing.T) {
	decisions := []string{"", entity.DecisionApproved, entity.DecisionRejected}

	for _, base := range entity.AllStatuses() {
		for mask := 0; mask < 16; mask++ {
			for _, rejected := range []bool{false, true} {
				for _, decision := range decisions {
					a := approvalsFromMask(mask, rejected, decision)
					got := DeriveStatus(base, a)

					if !got.IsValid() {
						t.Fatalf("DeriveStatus(%s, %04b, %v, %q) = invalid %q", base, mask, rejected, decision, got)
					}
					if got == entity.StatusLocked {
						t.Errorf("DeriveStatus(%s, %04b) returned locked; lock is a flag, not a status", base, mask)
					}

					var want entity.Status
					switch {
					case decision == entity.DecisionApproved:
						want = entity.StatusApproved
					case decision == entity.DecisionRejected, rejected:
						want = entity.StatusRejected
					case base == entity.StatusDraft || base == entity.StatusNeedsCorrection:
						want = base
					case a.Approved(entity.Stage4):
						want = entity.StatusCrossVerified
					case a.Approved(entity.Stage1):
						want = entity.StatusVerified
					case base == entity.StatusInReview:
						want = entity.StatusInReview
					default:
						want = entity.StatusSubmitted
					}
					if got != want {
						t.Errorf("DeriveStatus(%s, %04b, rejected=%v, %q) = %s, want %s", base, mask, rejected, decision, got, want)
					}
				}
			}
		}
	}
}

func TestDeriveStatus_StageOrderIndependence(t *testing.T) {
	// staff2 and staff3 complete in either order with the same result
	staff2First := entity.Approvals{
		entity.Stage1: {Approved: true},
		entity.Stage2: {Approved: true},
	}
	staff3First := entity.Approvals{
		entity.Stage1: {Approved: true},
		entity.Stage3: {Approved: true},
	}

	a := DeriveStatus(entity.StatusInReview, staff2First)
	b := DeriveStatus(entity.StatusInReview, staff3First)
	if a != b || a != entity.StatusVerified {
		t.Errorf("DeriveStatus() = %s and %s, want both %s", a, b, entity.StatusVerified)
	}
}

func TestDeriveStatus_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		base      entity.Status
		approvals entity.Approvals
		want      entity.Status
	}{
		{"fresh submission", entity.StatusSubmitted, nil, entity.StatusSubmitted},
		{"staff1 approved", entity.StatusInReview, entity.Approvals{entity.Stage1: {Approved: true}}, entity.StatusVerified},
		{"all four approved", entity.StatusVerified, approvalsFromMask(15, false, ""), entity.StatusCrossVerified},
		{"locked and approved", entity.StatusCrossVerified, entity.Approvals{
			entity.Stage5: {Locked: true, FinalDecision: entity.DecisionApproved},
		}, entity.StatusApproved},
		{"correction requested keeps approvals", entity.StatusNeedsCorrection, entity.Approvals{entity.Stage1: {Approved: true}}, entity.StatusNeedsCorrection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.base, tt.approvals); got != tt.want {
				t.Errorf("DeriveStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

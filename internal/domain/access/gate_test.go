package access

import (
	"testing"

	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
)

func submittedForm(approved ...entity.Stage) *entity.Form {
	a := entity.Approvals{}
	for _, s := range approved {
		a[s] = entity.ApprovalRecord{Approved: true, ApprovedBy: string(s) + "-user"}
	}
	return &entity.Form{
		ID:          "f1",
		ServiceType: entity.ServiceSaleDeed,
		SubmitterID: "u1",
		Status:      entity.StatusInReview,
		Approvals:   a,
		Version:     3,
	}
}

func lockedForm() *entity.Form {
	f := submittedForm(entity.Stage1, entity.Stage2, entity.Stage3, entity.Stage4)
	f.Status = entity.StatusApproved
	f.Approvals[entity.Stage5] = entity.ApprovalRecord{Locked: true, FinalDecision: entity.DecisionApproved}
	return f
}

func staff(role entity.Role) entity.Actor {
	return entity.Actor{ID: string(role) + "-user", Role: role}
}

func TestCanPerform(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		allowed  bool
		wantKind errs.Kind
	}{
		{"staff1 verifies fresh form", Request{Actor: staff(entity.RoleStaff1), Form: submittedForm(), Operation: OpVerify}, true, ""},
		{"staff1 cannot act twice", Request{Actor: staff(entity.RoleStaff1), Form: submittedForm(entity.Stage1), Operation: OpCorrect}, false, errs.KindPreconditionFailed},
		{"staff2 before staff1", Request{Actor: staff(entity.RoleStaff2), Form: submittedForm(), Operation: OpVerify}, false, errs.KindPreconditionFailed},
		{"staff2 after staff1", Request{Actor: staff(entity.RoleStaff2), Form: submittedForm(entity.Stage1), Operation: OpVerify}, true, ""},
		{"staff3 does not wait for staff2", Request{Actor: staff(entity.RoleStaff3), Form: submittedForm(entity.Stage1), Operation: OpCorrect}, true, ""},
		{"staff4 needs staff3", Request{Actor: staff(entity.RoleStaff4), Form: submittedForm(entity.Stage1, entity.Stage2), Operation: OpVerify}, false, errs.KindPreconditionFailed},
		{"staff4 after all three", Request{Actor: staff(entity.RoleStaff4), Form: submittedForm(entity.Stage1, entity.Stage2, entity.Stage3), Operation: OpCorrect}, true, ""},
		{"staff5 final approval", Request{Actor: staff(entity.RoleStaff5), Form: submittedForm(entity.Stage1, entity.Stage2, entity.Stage3, entity.Stage4), Operation: OpFinalApproval}, true, ""},
		{"staff5 cannot edit fields", Request{Actor: staff(entity.RoleStaff5), Form: submittedForm(entity.Stage1, entity.Stage2, entity.Stage3, entity.Stage4), Operation: OpCorrect}, false, errs.KindUnauthorized},
		{"staff4 cannot finalize", Request{Actor: staff(entity.RoleStaff4), Form: submittedForm(entity.Stage1, entity.Stage2, entity.Stage3), Operation: OpFinalApproval}, false, errs.KindUnauthorized},
		{"staff5 before staff4", Request{Actor: staff(entity.RoleStaff5), Form: submittedForm(entity.Stage1, entity.Stage2, entity.Stage3), Operation: OpFinalApproval}, false, errs.KindPreconditionFailed},
		{"stamp duty is staff1 only", Request{Actor: staff(entity.RoleStaff2), Form: submittedForm(entity.Stage1), Operation: OpStampDuty}, false, errs.KindUnauthorized},
		{"submitter saves own draft", Request{Actor: entity.Actor{ID: "u1", Role: entity.RoleUser}, Form: &entity.Form{ID: "f1", SubmitterID: "u1", Status: entity.StatusDraft}, Operation: OpSaveDraft}, true, ""},
		{"other user cannot submit", Request{Actor: entity.Actor{ID: "u2", Role: entity.RoleUser}, Form: &entity.Form{ID: "f1", SubmitterID: "u1", Status: entity.StatusDraft}, Operation: OpSubmit}, false, errs.KindUnauthorized},
		{"agent on behalf of submitter", Request{Actor: entity.Actor{ID: "a1", Role: entity.RoleAgent, OnBehalfOf: "u1"}, Form: &entity.Form{ID: "f1", SubmitterID: "u1", Status: entity.StatusDraft}, Operation: OpSubmit}, true, ""},
		{"agent without principal creates nothing", Request{Actor: entity.Actor{ID: "a1", Role: entity.RoleAgent}, Operation: OpSaveDraft}, false, errs.KindUnauthorized},
		{"staff cannot submit", Request{Actor: staff(entity.RoleStaff1), Form: &entity.Form{ID: "f1", SubmitterID: "u1", Status: entity.StatusDraft}, Operation: OpSubmit}, false, errs.KindUnauthorized},
		{"staff cannot assign", Request{Actor: staff(entity.RoleStaff1), Form: submittedForm(), Operation: OpAssign}, false, errs.KindUnauthorized},
		{"admin assigns", Request{Actor: staff(entity.RoleAdmin), Form: submittedForm(), Operation: OpAssign}, true, ""},
		{"admin ignores stage order", Request{Actor: staff(entity.RoleAdmin), Form: submittedForm(), Operation: OpVerify, Stage: entity.Stage4}, true, ""},
		{"admin cannot touch locked form", Request{Actor: staff(entity.RoleAdmin), Form: lockedForm(), Operation: OpCorrect}, false, errs.KindAlreadyLocked},
		{"locked form readable", Request{Actor: staff(entity.RoleStaff3), Form: lockedForm(), Operation: OpReadReport}, true, ""},
		{"user reads own form", Request{Actor: entity.Actor{ID: "u1", Role: entity.RoleUser}, Form: submittedForm(), Operation: OpRead}, true, ""},
		{"user reads foreign form", Request{Actor: entity.Actor{ID: "u9", Role: entity.RoleUser}, Form: submittedForm(), Operation: OpRead}, false, errs.KindUnauthorized},
		{"user cannot read audit", Request{Actor: entity.Actor{ID: "u1", Role: entity.RoleUser}, Form: submittedForm(), Operation: OpReadAudit}, false, errs.KindUnauthorized},
		{"draft not reviewable", Request{Actor: staff(entity.RoleStaff1), Form: &entity.Form{ID: "f1", SubmitterID: "u1", Status: entity.StatusDraft}, Operation: OpVerify}, false, errs.KindPreconditionFailed},
		{"unknown role", Request{Actor: entity.Actor{ID: "x", Role: "auditor"}, Form: submittedForm(), Operation: OpRead}, false, errs.KindUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanPerform(tt.req)
			if d.Allowed != tt.allowed {
				t.Fatalf("CanPerform() allowed = %v, want %v (reason: %s)", d.Allowed, tt.allowed, d.Reason)
			}
			if !tt.allowed {
				if d.Kind != tt.wantKind {
					t.Errorf("CanPerform() kind = %v, want %v", d.Kind, tt.wantKind)
				}
				if d.Reason == "" {
					t.Error("denial must carry a reason")
				}
				if d.Err() == nil {
					t.Error("Err() should be non-nil for a denial")
				}
			}
		})
	}
}

func TestCanPerform_LegacyScope(t *testing.T) {
	legacy := submittedForm()
	legacy.IsLegacy = true
	legacy.OriginCollection = entity.ServiceSaleDeed

	if d := CanPerform(Request{Actor: staff(entity.RoleStaff1), Form: legacy, Operation: OpCorrect}); !d.Allowed {
		t.Errorf("staff1 correction on legacy record denied: %s", d.Reason)
	}

	legacy.Approvals[entity.Stage1] = entity.ApprovalRecord{Approved: true}
	d := CanPerform(Request{Actor: staff(entity.RoleStaff2), Form: legacy, Operation: OpVerify})
	if d.Allowed || d.Kind != errs.KindPreconditionFailed {
		t.Errorf("staff2 on legacy record = %+v, want precondition_failed", d)
	}
}

func TestCanPerform_LockedDeniesEveryMutation(t *testing.T) {
	roles := []entity.Role{
		entity.RoleUser, entity.RoleAgent, entity.RoleStaff1, entity.RoleStaff2,
		entity.RoleStaff3, entity.RoleStaff4, entity.RoleStaff5, entity.RoleAdmin,
	}
	ops := []Operation{
		OpSaveDraft, OpSubmit, OpAssign, OpCorrect, OpVerify,
		OpRequestCorrection, OpStampDuty, OpFinalApproval, OpDelete,
	}

	for _, role := range roles {
		for _, op := range ops {
			actor := entity.Actor{ID: "u1", Role: role, OnBehalfOf: "u1"}
			d := CanPerform(Request{Actor: actor, Form: lockedForm(), Operation: op})
			if d.Allowed || d.Kind != errs.KindAlreadyLocked {
				t.Errorf("%s %s on locked form = %+v, want already_locked", role, op, d)
			}
		}
	}
}

func TestCanPerform_StageOrderExhaustive(t *testing.T) {
	stages := []entity.Stage{entity.Stage1, entity.Stage2, entity.Stage3, entity.Stage4}

	for mask := 0; mask < 16; mask++ {
		var approved []entity.Stage
		for i, s := range stages {
			if mask&(1<<i) != 0 {
				approved = append(approved, s)
			}
		}
		form := submittedForm(approved...)

		for _, s := range stages {
			d := CanPerform(Request{Actor: staff(s.Role()), Form: form, Operation: OpVerify})
			want := form.Approvals.AllApproved(s.Prerequisites()...) && !form.Approvals.Approved(s)
			if d.Allowed != want {
				t.Errorf("mask %04b: %s verify allowed = %v, want %v (%s)", mask, s, d.Allowed, want, d.Reason)
			}
			if !d.Allowed && d.Kind != errs.KindPreconditionFailed {
				t.Errorf("mask %04b: %s denial kind = %v, want precondition_failed", mask, s, d.Kind)
			}
		}
	}
}

func TestStagePreconditions_Reason(t *testing.T) {
	d := StagePreconditions(entity.Stage2, entity.Approvals{})
	if want := "staff2 cannot act until staff1 has approved"; d.Reason != want {
		t.Errorf("Reason = %q, want %q", d.Reason, want)
	}

	d = StagePreconditions(entity.Stage4, entity.Approvals{entity.Stage1: {Approved: true}})
	if want := "staff4 cannot act until staff2 and staff3 have approved"; d.Reason != want {
		t.Errorf("Reason = %q, want %q", d.Reason, want)
	}
}

func TestRejectionPreconditions(t *testing.T) {
	tests := []struct {
		name     string
		stage    entity.Stage
		approved []entity.Stage
		allowed  bool
		reason   string
	}{
		{"nothing after it", entity.Stage1, nil, true, ""},
		{"own approval only", entity.Stage1, []entity.Stage{entity.Stage1}, true, ""},
		{"staff2 after staff1", entity.Stage1, []entity.Stage{entity.Stage1, entity.Stage2}, false,
			"staff1 cannot reject after staff2 has approved"},
		{"cross verified", entity.Stage1, []entity.Stage{entity.Stage1, entity.Stage2, entity.Stage3, entity.Stage4}, false,
			"staff1 cannot reject after staff2, staff3 and staff4 have approved"},
		{"parallel branch is independent", entity.Stage2, []entity.Stage{entity.Stage1, entity.Stage3}, true, ""},
		{"staff3 under staff4", entity.Stage3, []entity.Stage{entity.Stage1, entity.Stage2, entity.Stage3, entity.Stage4}, false,
			"staff3 cannot reject after staff4 has approved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := RejectionPreconditions(tt.stage, submittedForm(tt.approved...).Approvals)
			if d.Allowed != tt.allowed {
				t.Fatalf("Allowed = %v, want %v (%s)", d.Allowed, tt.allowed, d.Reason)
			}
			if !tt.allowed {
				if d.Kind != errs.KindPreconditionFailed {
					t.Errorf("Kind = %v, want %v", d.Kind, errs.KindPreconditionFailed)
				}
				if d.Reason != tt.reason {
					t.Errorf("Reason = %q, want %q", d.Reason, tt.reason)
				}
			}
		})
	}
}

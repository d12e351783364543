package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
	"github.com/google/uuid"
)

const reportTimeLayout = "2006-01-02 15:04:05 UTC"

// FinalReportAssembler builds the summary artifact of a locked form
type FinalReportAssembler interface {
	Assemble(form *entity.Form, generatedBy string) (*entity.ReportArtifact, error)
}

type reportAssemblerImpl struct {
	now func() time.Time
}

// NewFinalReportAssembler creates a new FinalReportAssembler
func NewFinalReportAssembler(now func() time.Time) FinalReportAssembler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &reportAssemblerImpl{now: now}
}

// Assemble refuses forms that are not locked. Everything except GeneratedAt
// is a function of the form alone.
func (a *reportAssemblerImpl) Assemble(form *entity.Form, generatedBy string) (*entity.ReportArtifact, error) {
	if form == nil {
		return nil, errs.Validation("form is required")
	}
	if !form.IsLocked() {
		return nil, errs.PreconditionFailed("form %s is not locked; final reports are only generated for locked forms", form.ID)
	}

	final := form.Approvals.Get(entity.Stage5)
	report := &entity.ReportArtifact{
		ID:            uuid.NewSHA1(uuid.NameSpaceURL, []byte("final-report:"+form.ID)).String(),
		FormID:        form.ID,
		FormVersion:   form.Version,
		ServiceType:   form.ServiceType,
		FormTitle:     form.FormTitle,
		SubmitterID:   form.SubmitterID,
		FinalDecision: final.FinalDecision,
		FinalRemarks:  final.FinalRemarks,
		LockedBy:      final.LockedBy,
		GeneratedAt:   a.now(),
		GeneratedBy:   generatedBy,
	}
	if final.LockedAt != nil {
		report.LockedAt = final.LockedAt.UTC()
	}

	for _, stage := range entity.Stages() {
		rec := form.Approvals.Get(stage)
		outcome := entity.StageOutcome{
			Stage:      stage,
			Label:      stage.Label(),
			Approved:   rec.Approved,
			ApprovedBy: rec.ApprovedBy,
			Notes:      rec.Notes,
		}
		if stage == entity.Stage5 {
			outcome.Approved = final.FinalDecision == entity.DecisionApproved
			outcome.Notes = final.FinalRemarks
		}
		if rec.ApprovedAt != nil {
			t := rec.ApprovedAt.UTC()
			outcome.ApprovedAt = &t
		}
		report.Stages = append(report.Stages, outcome)
	}

	keys := make([]string, 0, len(form.Fields))
	for k := range form.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		report.Fields = append(report.Fields, entity.FieldEntry{Key: k, Value: FormatFieldValue(form.Fields[k])})
	}

	report.Content = renderContent(report)
	sum := sha256.Sum256([]byte(report.Content))
	report.ContentHash = hex.EncodeToString(sum[:])

	return report, nil
}

func renderContent(r *entity.ReportArtifact) string {
	var b strings.Builder

	fmt.Fprintf(&b, "FINAL REPORT\n")
	fmt.Fprintf(&b, "Form: %s\n", r.FormID)
	fmt.Fprintf(&b, "Title: %s\n", r.FormTitle)
	fmt.Fprintf(&b, "Service: %s\n", r.ServiceType.Title())
	fmt.Fprintf(&b, "Submitter: %s\n", r.SubmitterID)
	fmt.Fprintf(&b, "Version: %d\n", r.FormVersion)

	b.WriteString("\nSTAGES\n")
	for _, s := range r.Stages {
		outcome := "pending"
		if s.Approved {
			outcome = "approved"
		} else if s.ApprovedBy != "" {
			outcome = "not approved"
		}
		fmt.Fprintf(&b, "[%s] %s: %s", s.Stage, s.Label, outcome)
		if s.ApprovedBy != "" {
			fmt.Fprintf(&b, " by %s", s.ApprovedBy)
		}
		if s.ApprovedAt != nil {
			fmt.Fprintf(&b, " at %s", s.ApprovedAt.Format(reportTimeLayout))
		}
		b.WriteString("\n")
		if s.Notes != "" {
			fmt.Fprintf(&b, "    Notes: %s\n", s.Notes)
		}
	}

	b.WriteString("\nDECISION\n")
	fmt.Fprintf(&b, "Final decision: %s\n", r.FinalDecision)
	if r.FinalRemarks != "" {
		fmt.Fprintf(&b, "Remarks: %s\n", r.FinalRemarks)
	}
	fmt.Fprintf(&b, "Locked by %s", r.LockedBy)
	if !r.LockedAt.IsZero() {
		fmt.Fprintf(&b, " at %s", r.LockedAt.Format(reportTimeLayout))
	}
	b.WriteString("\n")

	b.WriteString("\nFIELDS\n")
	for _, f := range r.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Key, f.Value)
	}

	return b.String()
}

// FormatFieldValue renders an open-schema field value as stable text
func FormatFieldValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	}
	// encoding/json sorts map keys, which keeps nested values deterministic
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

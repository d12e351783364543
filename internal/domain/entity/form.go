package entity

import (
	"fmt"
	"strings"
	"time"
)

// Form is a legal document moving through the approval workflow
type Form struct {
	ID               string         `json:"id"`
	ServiceType      ServiceType    `json:"service_type"`
	SubmitterID      string         `json:"submitter_id"`
	FormTitle        string         `json:"form_title"`
	FormDescription  string         `json:"form_description,omitempty"`
	Fields           map[string]any `json:"fields"`
	Status           Status         `json:"status"`
	Approvals        Approvals      `json:"approvals"`
	AssignedTo       string         `json:"assigned_to,omitempty"`
	Version          int            `json:"version"`
	History          []Snapshot     `json:"history"`
	Notes            []Note         `json:"notes"`
	Progress         Progress       `json:"progress"`
	IsLegacy         bool           `json:"is_legacy"`
	OriginCollection ServiceType    `json:"origin_collection,omitempty"`
	LegacySourceID   string         `json:"legacy_source_id,omitempty"`
	SubmittedAt      *time.Time     `json:"submitted_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	LastActivityAt   time.Time      `json:"last_activity_at"`
	LastActivityBy   string         `json:"last_activity_by,omitempty"`
}

// Snapshot is an immutable prior state of a Form
type Snapshot struct {
	Fields  map[string]any `json:"fields"`
	Status  Status         `json:"status"`
	Version int            `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	SavedBy string         `json:"saved_by,omitempty"`
}

// Note is a free-text remark attached to a Form
type Note struct {
	Text    string    `json:"text"`
	AddedBy string    `json:"added_by"`
	Role    Role      `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

// Progress is the informational completion state computed on draft saves
type Progress struct {
	Percentage int    `json:"percentage"`
	State      string `json:"state,omitempty"`
}

// IsLocked reports whether stage 5 has frozen the Form
func (f *Form) IsLocked() bool {
	return f.Approvals.Get(Stage5).Locked || f.Status == StatusLocked
}

// Snapshot captures the current fields, status and version
func (f *Form) Snapshot(at time.Time, by string) Snapshot {
	return Snapshot{
		Fields:  CloneFields(f.Fields),
		Status:  f.Status,
		Version: f.Version,
		SavedAt: at,
		SavedBy: by,
	}
}

// Clone returns a copy of the Form that shares no mutable state with the original
func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	c := *f
	c.Fields = CloneFields(f.Fields)
	c.Approvals = f.Approvals.Clone()
	c.History = append([]Snapshot(nil), f.History...)
	c.Notes = append([]Note(nil), f.Notes...)
	if f.SubmittedAt != nil {
		t := *f.SubmittedAt
		c.SubmittedAt = &t
	}
	return &c
}

// Touch records the latest activity on the Form
func (f *Form) Touch(at time.Time, by string) {
	f.UpdatedAt = at
	f.LastActivityAt = at
	f.LastActivityBy = by
}

// MergeFields applies a shallow patch: patch keys replace existing keys
func (f *Form) MergeFields(patch map[string]any) {
	if f.Fields == nil {
		f.Fields = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		f.Fields[k] = v
	}
}

// AddNote appends a note when text is non-empty
func (f *Form) AddNote(text, by string, role Role, at time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	f.Notes = append(f.Notes, Note{Text: text, AddedBy: by, Role: role, AddedAt: at})
}

// DefaultTitle builds the display title for a Form without an explicit one
func DefaultTitle(serviceType ServiceType, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s - %s", serviceType.Title(), short)
}

// CloneFields copies the top level of an open field document
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// CountFilled returns how many fields hold a non-empty value
func CountFilled(fields map[string]any) int {
	n := 0
	for _, v := range fields {
		switch val := v.(type) {
		case nil:
		case string:
			if strings.TrimSpace(val) != "" {
				n++
			}
		case []any:
			if len(val) > 0 {
				n++
			}
		case map[string]any:
			if len(val) > 0 {
				n++
			}
		default:
			n++
		}
	}
	return n
}

// ComputeProgress derives the completion percentage from filled and expected field counts
func ComputeProgress(filled, expected int) Progress {
	if expected <= 0 {
		return Progress{}
	}
	pct := (filled*100 + expected/2) / expected
	if pct > 100 {
		pct = 100
	}
	p := Progress{Percentage: pct}
	switch {
	case pct >= 100:
		p.State = ProgressCompleted
	case pct > 0:
		p.State = ProgressInProgress
	}
	return p
}

// FormFilter narrows form listings
type FormFilter struct {
	ServiceType   ServiceType `json:"service_type,omitempty"`
	Status        Status      `json:"status,omitempty"`
	SubmitterID   string      `json:"submitter_id,omitempty"`
	AssignedTo    string      `json:"assigned_to,omitempty"`
	Search        string      `json:"search,omitempty"`
	Limit         int         `json:"limit,omitempty"`
	Offset        int         `json:"offset,omitempty"`
	IncludeLegacy bool        `json:"include_legacy"`
}

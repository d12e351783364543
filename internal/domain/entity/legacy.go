package entity

import (
	"fmt"
	"strings"
	"time"
)

// LegacyRecord is a form stored in a pre-unification per-type collection
type LegacyRecord struct {
	ID                string         `json:"id"`
	Collection        ServiceType    `json:"collection"`
	SubmitterID       string         `json:"submitter_id"`
	Data              map[string]any `json:"data"`
	Status            string         `json:"status"`
	ProcessedByStaff1 bool           `json:"processed_by_staff1"`
	Staff1ProcessedAt *time.Time     `json:"staff1_processed_at,omitempty"`
	Staff1ProcessedBy string         `json:"staff1_processed_by,omitempty"`
	Staff1Notes       []Note         `json:"staff1_notes,omitempty"`
	Revision          int            `json:"revision"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         *time.Time     `json:"updated_at,omitempty"`
}

// LastActivity returns the update time, falling back to creation time
func (r *LegacyRecord) LastActivity() time.Time {
	if r.UpdatedAt != nil && !r.UpdatedAt.IsZero() {
		return *r.UpdatedAt
	}
	return r.CreatedAt
}

const legacyIDPrefix = "legacy"

// LegacyFormID builds the unified id of a legacy record. It never collides with native ids.
func LegacyFormID(collection ServiceType, id string) string {
	return fmt.Sprintf("%s:%s:%s", legacyIDPrefix, collection, id)
}

// ParseLegacyFormID splits a unified legacy id into its collection and record id
func ParseLegacyFormID(formID string) (ServiceType, string, bool) {
	parts := strings.SplitN(formID, ":", 3)
	if len(parts) != 3 || parts[0] != legacyIDPrefix || parts[2] == "" {
		return "", "", false
	}
	collection := ServiceType(parts[1])
	if !collection.IsValid() {
		return "", "", false
	}
	return collection, parts[2], true
}

// IsLegacyFormID reports whether the id addresses a legacy record
func IsLegacyFormID(formID string) bool {
	_, _, ok := ParseLegacyFormID(formID)
	return ok
}

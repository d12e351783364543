package entity

import "time"

// AuditEntry is an immutable record of one state-changing action
type AuditEntry struct {
	ID             string         `json:"id"`
	Sequence       int64          `json:"sequence"`
	ActorID        string         `json:"actor_id"`
	ActorRole      Role           `json:"actor_role"`
	Action         string         `json:"action"`
	ResourceID     string         `json:"resource_id"`
	BeforeSnapshot *Form          `json:"before_snapshot,omitempty"`
	AfterSnapshot  *Form          `json:"after_snapshot,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Result         string         `json:"result"`
	ErrorKind      string         `json:"error_kind,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	ClientContext  ClientContext  `json:"client_context"`
	// Timestamp is when the change took effect, not when it was logged
	Timestamp time.Time `json:"timestamp"`
	// FormVersion is the version committed by a success, or the version
	// the form was at when an operation failed
	FormVersion int `json:"form_version,omitempty"`
}

// ClientContext describes where a request came from
type ClientContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// AuditFilter narrows audit queries. Zero values match everything.
type AuditFilter struct {
	ResourceID string     `json:"resource_id,omitempty"`
	ActorID    string     `json:"actor_id,omitempty"`
	Action     string     `json:"action,omitempty"`
	Result     string     `json:"result,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	// AfterSequence resumes a query after the given entry, in
	// (timestamp, sequence) order
	AfterSequence int64 `json:"after_sequence,omitempty"`
}

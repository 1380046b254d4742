package models

import "time"

// Audit actions form a closed set; Event is always
// "<collection>.<action>".
const (
	AuditActionCreated = "created"
	AuditActionUpdated = "updated"
	AuditActionDeleted = "deleted"
)

// AuditLogEntry is one append-only record of a mutation. Entries are
// never updated or deleted; the trail is advisory and never
// authoritative for access control.
type AuditLogEntry struct {
	ID             string    `json:"doc_id"`
	Event          string    `json:"event"`
	CollectionName string    `json:"collection_name"`
	Action         string    `json:"action"`
	RecordID       string    `json:"record_id"`
	Actor          string    `json:"actor"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	WorkspaceID    string    `json:"workspace_id"`
	ProjectID      string    `json:"project_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ActivityRecord is the per-project recent-activity feed entry fanned
// out from the same outbox that feeds the audit trail.
type ActivityRecord struct {
	ID         string    `json:"doc_id"`
	ProjectID  string    `json:"project_id"`
	SecretType string    `json:"secret_type"`
	RecordID   string    `json:"record_id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	CreatedAt  time.Time `json:"created_at"`
}

// OutboxEntry is an audit intent written in the same transaction as the
// primary mutation and drained asynchronously, giving at-least-once
// delivery into audit_logs and project_activity.
type OutboxEntry struct {
	ID             int64
	Event          string
	CollectionName string
	Action         string
	RecordID       string
	Actor          string
	IPAddress      string
	UserAgent      string
	WorkspaceID    string
	ProjectID      string
	CreatedAt      time.Time
}

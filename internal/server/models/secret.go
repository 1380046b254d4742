// Package models defines the persistent data model of the vault:
// secrets and their typed payloads, wrapped project keys, per-user key
// material, and the append-only audit trail.
package models

import (
	"strings"
	"time"
)

// Secret is a typed secret scoped to a workspace/project. Payload holds
// the type-specific fields; values on the type's encrypted-field
// allow-list are stored as fieldcipher blobs, everything else stays
// plaintext so it remains searchable and sortable.
type Secret struct {
	ID          string         `json:"doc_id"`
	Seq         int64          `json:"-"`
	WorkspaceID string         `json:"workspace_id"`
	ProjectID   string         `json:"project_id"`
	SecretType  SecretType     `json:"secret_type"`
	Title       string         `json:"title"`
	LowerTitle  string         `json:"lower_title"`
	Tags        []string       `json:"tags"`
	Payload     map[string]any `json:"payload"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedBy   string         `json:"updated_by,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Access      bool           `json:"-"`
}

// NormalizeTitle derives the lower_title value kept in sync with Title:
// trimmed and lowercased.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Actor identifies the authenticated caller of a vault operation along
// with the request metadata recorded in the audit trail.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// SecretFilters narrows List results. All filters are conjunctive:
// Tags matches records having any overlap with the given set, Title is
// a case-insensitive substring match against lower_title.
type SecretFilters struct {
	Tags  []string
	Title string
}

// SortField is a whitelisted sortable column.
type SortField string

const (
	SortByTitle     SortField = "title"
	SortByCreatedAt SortField = "created_at"
)

// SecretSort selects an explicit ordering for List. The zero value means
// insertion order.
type SecretSort struct {
	Field      SortField
	Descending bool
}

// Page is 1-based pagination. Limit caps the returned slice; the total
// matching count is always reported separately.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the number of records to skip.
func (p Page) Offset() int {
	n := p.Number
	if n < 1 {
		n = 1
	}
	return (n - 1) * p.Limit
}

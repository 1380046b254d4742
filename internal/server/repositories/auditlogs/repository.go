// Package auditlogs persists the append-only audit trail and the
// per-project recent-activity feed. Rows are immutable once written;
// no update or delete operations exist.
package auditlogs

import (
	"context"

	"github.com/zecrypt/vault/internal/server/models"
)

type Repository interface {
	// Insert appends one audit entry.
	Insert(ctx context.Context, e *models.AuditLogEntry) error

	// Query returns a workspace's entries newest-first plus the total
	// count.
	Query(ctx context.Context, workspaceID string, page models.Page) ([]*models.AuditLogEntry, int, error)

	// InsertActivity appends one recent-activity record.
	InsertActivity(ctx context.Context, a *models.ActivityRecord) error

	// RecentActivity returns a project's newest activity records.
	RecentActivity(ctx context.Context, projectID string, limit int) ([]*models.ActivityRecord, error)
}

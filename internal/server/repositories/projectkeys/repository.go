// Package projectkeys persists envelope-wrapped per-project symmetric
// keys. Records are immutable: issuance is an idempotent upsert on
// (project_id, user_id) and no delete path exists.
package projectkeys

import (
	"context"

	"github.com/zecrypt/vault/internal/server/models"
)

type Repository interface {
	// Upsert stores the wrapped key for (project, user). When a record
	// already exists the existing one wins and is returned unchanged,
	// making duplicate issuance harmless.
	Upsert(ctx context.Context, rec *models.ProjectKeyRecord) (*models.ProjectKeyRecord, error)

	// Get returns the record for (project, user) or common.ErrNotFound.
	Get(ctx context.Context, projectID, userID string) (*models.ProjectKeyRecord, error)

	// ListByUser returns all wrapped keys issued to the user within a
	// workspace.
	ListByUser(ctx context.Context, userID, workspaceID string) ([]*models.ProjectKeyRecord, error)
}

// Package secrets persists typed secret documents. The repository keeps
// the document-store semantics of the vault engine: query-by-example
// listing, $set-style partial updates, flag-flip soft deletes, and
// distinct tag aggregation.
package secrets

import (
	"context"
	"time"

	"github.com/zecrypt/vault/internal/server/models"
)

// ListQuery describes one List call: the mandatory project/type scope,
// optional conjunctive filters, ordering, and pagination.
type ListQuery struct {
	WorkspaceID string
	ProjectID   string
	SecretType  models.SecretType
	Filters     models.SecretFilters
	Sort        models.SecretSort
	Page        models.Page
}

type Repository interface {
	// Insert stores a new active secret. A duplicate active
	// (created_by, project_id, secret_type, lower_title) yields
	// common.ErrConflict via the partial unique index.
	Insert(ctx context.Context, s *models.Secret) error

	// GetActive returns the secret when it exists and is not
	// soft-deleted; otherwise common.ErrNotFound.
	GetActive(ctx context.Context, id string) (*models.Secret, error)

	// GetAny resolves an id regardless of the access flag. Used for
	// audit-log record references, which must keep resolving after a
	// soft delete.
	GetAny(ctx context.Context, id string) (*models.Secret, error)

	// List returns one page of matching active secrets plus the total
	// count of the full filtered set.
	List(ctx context.Context, q ListQuery) ([]*models.Secret, int, error)

	// Update applies a partial column update to an active secret and
	// returns the updated row. common.ErrNotFound when absent or
	// soft-deleted, common.ErrConflict when a title change collides.
	Update(ctx context.Context, id string, set map[string]any) (*models.Secret, error)

	// SoftDelete flips access to false. common.ErrNotFound when the
	// record is absent or already soft-deleted.
	SoftDelete(ctx context.Context, id, actor string, at time.Time) error

	// DistinctTags aggregates distinct non-empty tags across all
	// active secrets of a project, sorted.
	DistinctTags(ctx context.Context, projectID string) ([]string, error)
}

// Package outbox persists audit intents. Intents are appended inside
// the same transaction as the primary mutation and drained by a
// background worker, so audit delivery is at-least-once rather than
// fire-and-forget.
package outbox

import (
	"context"

	"github.com/zecrypt/vault/internal/server/models"
)

type Repository interface {
	// Append stores one intent. Callers pass the transactional handle
	// of the primary mutation.
	Append(ctx context.Context, e *models.OutboxEntry) error

	// NextBatch returns up to limit of the oldest pending intents.
	NextBatch(ctx context.Context, limit int) ([]*models.OutboxEntry, error)

	// Delete removes a drained intent.
	Delete(ctx context.Context, id int64) error
}

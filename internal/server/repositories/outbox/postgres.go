package outbox

import (
	"context"
	"fmt"

	"github.com/zecrypt/vault/internal/dbx"
	"github.com/zecrypt/vault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.OutboxEntry) error {
	query := `
		INSERT INTO audit_outbox (event, collection_name, action, record_id, actor,
			ip_address, user_agent, workspace_id, project_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.Event, e.CollectionName, e.Action, e.RecordID, e.Actor,
		e.IPAddress, e.UserAgent, e.WorkspaceID, e.ProjectID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) NextBatch(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	query := `
		SELECT id, event, collection_name, action, record_id, actor,
			ip_address, user_agent, workspace_id, project_id, created_at
		FROM audit_outbox
		ORDER BY id
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.OutboxEntry
	for rows.Next() {
		e := &models.OutboxEntry{}
		if err := rows.Scan(&e.ID, &e.Event, &e.CollectionName, &e.Action, &e.RecordID, &e.Actor,
			&e.IPAddress, &e.UserAgent, &e.WorkspaceID, &e.ProjectID, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM audit_outbox WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

package projectkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/dbx"
	"github.com/zecrypt/vault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.ProjectKeyRecord) (*models.ProjectKeyRecord, error) {
	// ON CONFLICT DO NOTHING returns no row when the record already
	// exists, so the existing record is fetched instead of overwritten.
	query := `
		INSERT INTO project_keys (id, project_id, user_id, workspace_id, wrapped_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, user_id) DO NOTHING
		RETURNING id, project_id, user_id, workspace_id, wrapped_key, created_at
	`
	out := &models.ProjectKeyRecord{}
	err := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.ProjectID, rec.UserID, rec.WorkspaceID, rec.WrappedKey, rec.CreatedAt).
		Scan(&out.ID, &out.ProjectID, &out.UserID, &out.WorkspaceID, &out.WrappedKey, &out.CreatedAt)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r.Get(ctx, rec.ProjectID, rec.UserID)
}

func (r *PostgresRepository) Get(ctx context.Context, projectID, userID string) (*models.ProjectKeyRecord, error) {
	query := `
		SELECT id, project_id, user_id, workspace_id, wrapped_key, created_at
		FROM project_keys
		WHERE project_id = $1 AND user_id = $2
	`
	rec := &models.ProjectKeyRecord{}
	err := r.db.QueryRowContext(ctx, query, projectID, userID).
		Scan(&rec.ID, &rec.ProjectID, &rec.UserID, &rec.WorkspaceID, &rec.WrappedKey, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID, workspaceID string) ([]*models.ProjectKeyRecord, error) {
	query := `
		SELECT id, project_id, user_id, workspace_id, wrapped_key, created_at
		FROM project_keys
		WHERE user_id = $1 AND workspace_id = $2
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ProjectKeyRecord
	for rows.Next() {
		rec := &models.ProjectKeyRecord{}
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.UserID, &rec.WorkspaceID, &rec.WrappedKey, &rec.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

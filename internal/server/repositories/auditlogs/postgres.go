package auditlogs

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

func (r *PostgresRepository) Insert(ctx context.Context, e *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_logs (id, event, collection_name, action, record_id, actor,
			ip_address, user_agent, workspace_id, project_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Event, e.CollectionName, e.Action, e.RecordID, e.Actor,
		e.IPAddress, e.UserAgent, e.WorkspaceID, e.ProjectID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Query(ctx context.Context, workspaceID string, page models.Page) ([]*models.AuditLogEntry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM audit_logs WHERE workspace_id = $1`, workspaceID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	query := `
		SELECT id, event, collection_name, action, record_id, actor,
			ip_address, user_agent, workspace_id, project_id, created_at
		FROM audit_logs
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, workspaceID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditLogEntry
	for rows.Next() {
		e := &models.AuditLogEntry{}
		if err := rows.Scan(&e.ID, &e.Event, &e.CollectionName, &e.Action, &e.RecordID, &e.Actor,
			&e.IPAddress, &e.UserAgent, &e.WorkspaceID, &e.ProjectID, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *PostgresRepository) InsertActivity(ctx context.Context, a *models.ActivityRecord) error {
	query := `
		INSERT INTO project_activity (id, project_id, secret_type, record_id, actor, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.ProjectID, a.SecretType, a.RecordID, a.Actor, a.Action, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecentActivity(ctx context.Context, projectID string, limit int) ([]*models.ActivityRecord, error) {
	query := `
		SELECT id, project_id, secret_type, record_id, actor, action, created_at
		FROM project_activity
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ActivityRecord
	for rows.Next() {
		a := &models.ActivityRecord{}
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.SecretType, &a.RecordID, &a.Actor, &a.Action, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

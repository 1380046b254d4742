package secrets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/dbx"
	"github.com/zecrypt/vault/internal/server/models"
)

// PostgresRepository implements secret storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const secretColumns = `id, seq, workspace_id, project_id, secret_type, title, lower_title,
	to_jsonb(tags), payload, created_by, created_at, updated_by, updated_at, access`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSecret(row rowScanner) (*models.Secret, error) {
	var (
		s           models.Secret
		tagsJSON    []byte
		payloadJSON []byte
	)
	err := row.Scan(
		&s.ID, &s.Seq, &s.WorkspaceID, &s.ProjectID, &s.SecretType,
		&s.Title, &s.LowerTitle, &tagsJSON, &payloadJSON,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedBy, &s.UpdatedAt, &s.Access,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tagsJSON, &s.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if err := json.Unmarshal(payloadJSON, &s.Payload); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, s *models.Secret) error {
	payloadJSON, err := json.Marshal(s.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	query := `
		INSERT INTO secrets (id, workspace_id, project_id, secret_type, title, lower_title,
			tags, payload, created_by, created_at, updated_by, updated_at, access)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE)
	`
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.WorkspaceID, s.ProjectID, s.SecretType, s.Title, s.LowerTitle,
		tags, payloadJSON, s.CreatedBy, s.CreatedAt, s.UpdatedBy, s.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetActive(ctx context.Context, id string) (*models.Secret, error) {
	query := `SELECT ` + secretColumns + ` FROM secrets WHERE id = $1 AND access`
	s, err := scanSecret(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetAny(ctx context.Context, id string) (*models.Secret, error) {
	query := `SELECT ` + secretColumns + ` FROM secrets WHERE id = $1`
	s, err := scanSecret(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// buildListWhere renders the conjunctive filter set shared by the page
// and count queries.
func buildListWhere(q ListQuery) (string, []any) {
	conds := []string{"access", "project_id = $1", "secret_type = $2"}
	args := []any{q.ProjectID, q.SecretType}

	if q.WorkspaceID != "" {
		args = append(args, q.WorkspaceID)
		conds = append(conds, fmt.Sprintf("workspace_id = $%d", len(args)))
	}
	if len(q.Filters.Tags) > 0 {
		args = append(args, q.Filters.Tags)
		conds = append(conds, fmt.Sprintf("tags && $%d", len(args)))
	}
	if q.Filters.Title != "" {
		args = append(args, models.NormalizeTitle(q.Filters.Title))
		conds = append(conds, fmt.Sprintf("lower_title LIKE '%%' || $%d || '%%'", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func orderClause(s models.SecretSort) string {
	dir := "ASC"
	if s.Descending {
		dir = "DESC"
	}
	switch s.Field {
	case models.SortByTitle:
		return "lower_title " + dir
	case models.SortByCreatedAt:
		return "created_at " + dir
	default:
		// insertion order
		return "seq ASC"
	}
}

func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]*models.Secret, int, error) {
	where, args := buildListWhere(q)

	var total int
	countQuery := "SELECT count(*) FROM secrets WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	pageArgs := append(args, q.Page.Limit, q.Page.Offset())
	pageQuery := fmt.Sprintf("SELECT %s FROM secrets WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		secretColumns, where, orderClause(q.Sort), len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Secret
	for rows.Next() {
		s, err := scanSecret(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// updatableColumns whitelists the $set targets accepted by Update.
var updatableColumns = map[string]struct{}{
	"title":       {},
	"lower_title": {},
	"tags":        {},
	"payload":     {},
	"updated_by":  {},
	"updated_at":  {},
}

func (r *PostgresRepository) Update(ctx context.Context, id string, set map[string]any) (*models.Secret, error) {
	assignments := make([]string, 0, len(set))
	args := make([]any, 0, len(set)+1)

	for col, val := range set {
		if _, ok := updatableColumns[col]; !ok {
			return nil, fmt.Errorf("column %q is not updatable", col)
		}
		if col == "payload" {
			buf, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("encoding payload: %w", err)
			}
			val = buf
		}
		args = append(args, val)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if len(assignments) == 0 {
		return r.GetActive(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE secrets SET %s WHERE id = $%d AND access RETURNING %s",
		strings.Join(assignments, ", "), len(args), secretColumns)

	s, err := scanSecret(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id, actor string, at time.Time) error {
	query := `UPDATE secrets SET access = FALSE, updated_by = $2, updated_at = $3 WHERE id = $1 AND access`
	res, err := r.db.ExecContext(ctx, query, id, actor, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DistinctTags(ctx context.Context, projectID string) ([]string, error) {
	query := `
		SELECT DISTINCT t
		FROM secrets, unnest(tags) AS t
		WHERE project_id = $1 AND access AND btrim(t) <> ''
		ORDER BY t
	`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tags, nil
}

package secrets

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/server/models"
)

// textArrayConverter lets the mock accept []string the way the pgx
// stdlib driver does, by rendering it as a text-array literal.
type textArrayConverter struct{}

func (textArrayConverter) ConvertValue(v any) (driver.Value, error) {
	if arr, ok := v.([]string); ok {
		return "{" + strings.Join(arr, ",") + "}", nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.ValueConverterOption(textArrayConverter{}),
	)
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func secretRowColumns() []string {
	return []string{
		"id", "seq", "workspace_id", "project_id", "secret_type", "title", "lower_title",
		"to_jsonb", "payload", "created_by", "created_at", "updated_by", "updated_at", "access",
	}
}

func sampleSecretRow(id string) []driver.Value {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, int64(1), "w1", "p1", "login", "GitHub", "github",
		[]byte(`["ci","dev"]`), []byte(`{"username":"octo","password":"blob"}`),
		"u1", now, "", now, true,
	}
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO secrets`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), &models.Secret{
		ID:          "s1",
		WorkspaceID: "w1",
		ProjectID:   "p1",
		SecretType:  models.SecretTypeLogin,
		Title:       "GitHub",
		LowerTitle:  "github",
		Tags:        []string{"ci"},
		Payload:     map[string]any{"username": "octo", "password": "blob"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_DuplicateActiveTitle(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO secrets`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "secrets_active_identity"})

	err := repo.Insert(context.Background(), &models.Secret{
		ID: "s2", SecretType: models.SecretTypeLogin, Title: "GitHub", LowerTitle: "github",
	})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestGetActive_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM secrets WHERE id = \$1 AND access`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetActive(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetActive_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM secrets WHERE id = \$1 AND access`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(secretRowColumns()).AddRow(sampleSecretRow("s1")...))

	s, err := repo.GetActive(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Title != "GitHub" || s.SecretType != models.SecretTypeLogin {
		t.Fatalf("unexpected secret: %+v", s)
	}
	if len(s.Tags) != 2 || s.Tags[0] != "ci" {
		t.Fatalf("unexpected tags: %v", s.Tags)
	}
	if s.Payload["password"] != "blob" {
		t.Fatalf("unexpected payload: %v", s.Payload)
	}
}

func TestList_CountAndPage(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM secrets WHERE access AND project_id = \$1 AND secret_type = \$2 AND workspace_id = \$3`).
		WithArgs("p1", "login", "w1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	mock.ExpectQuery(`FROM secrets WHERE access AND project_id = \$1 AND secret_type = \$2 AND workspace_id = \$3 ORDER BY seq ASC LIMIT \$4 OFFSET \$5`).
		WithArgs("p1", "login", "w1", 2, 2).
		WillReturnRows(sqlmock.NewRows(secretRowColumns()).
			AddRow(sampleSecretRow("s1")...).
			AddRow(sampleSecretRow("s2")...))

	items, total, err := repo.List(context.Background(), ListQuery{
		WorkspaceID: "w1",
		ProjectID:   "p1",
		SecretType:  models.SecretTypeLogin,
		Page:        models.Page{Number: 2, Limit: 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 7 {
		t.Fatalf("want total 7, got %d", total)
	}
	if len(items) != 2 || items[0].ID != "s1" || items[1].ID != "s2" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestList_TagAndTitleFilters(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM secrets WHERE access AND project_id = \$1 AND secret_type = \$2 AND tags && \$3 AND lower_title LIKE '%' \|\| \$4 \|\| '%'`).
		WithArgs("p1", "login", "{ci}", "git").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery(`FROM secrets WHERE access AND project_id = \$1 AND secret_type = \$2 AND tags && \$3 AND lower_title LIKE '%' \|\| \$4 \|\| '%' ORDER BY lower_title DESC LIMIT \$5 OFFSET \$6`).
		WithArgs("p1", "login", "{ci}", "git", 20, 0).
		WillReturnRows(sqlmock.NewRows(secretRowColumns()).AddRow(sampleSecretRow("s1")...))

	items, total, err := repo.List(context.Background(), ListQuery{
		ProjectID:  "p1",
		SecretType: models.SecretTypeLogin,
		Filters:    models.SecretFilters{Tags: []string{"ci"}, Title: "Git"},
		Sort:       models.SecretSort{Field: models.SortByTitle, Descending: true},
		Page:       models.Page{Number: 1, Limit: 20},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("unexpected result: total=%d items=%d", total, len(items))
	}
}

func TestUpdate_RejectsUnknownColumn(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	_, err := repo.Update(context.Background(), "s1", map[string]any{"access": false})
	if err == nil || !strings.Contains(err.Error(), "not updatable") {
		t.Fatalf("want whitelist error, got %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE secrets SET .+ WHERE id = \$\d+ AND access RETURNING`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Update(context.Background(), "gone", map[string]any{"title": "X"})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdate_TitleCollision(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE secrets SET .+ WHERE id = \$\d+ AND access RETURNING`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Update(context.Background(), "s1", map[string]any{"lower_title": "github"})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestSoftDelete_FlipsFlagOnce(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE secrets SET access = FALSE, updated_by = \$2, updated_at = \$3 WHERE id = \$1 AND access`).
		WithArgs("s1", "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SoftDelete(context.Background(), "s1", "u1", at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The second delete matches no active row.
	mock.ExpectExec(`UPDATE secrets SET access = FALSE`).
		WithArgs("s1", "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SoftDelete(context.Background(), "s1", "u1", at); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDistinctTags(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT DISTINCT t\s+FROM secrets, unnest\(tags\) AS t`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"t"}).AddRow("ci").AddRow("dev"))

	tags, err := repo.DistinctTags(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tags) != 2 || tags[0] != "ci" || tags[1] != "dev" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

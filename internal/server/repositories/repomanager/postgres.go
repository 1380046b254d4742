package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/zecrypt/vault/internal/dbx"
	"github.com/zecrypt/vault/internal/server/migrations"
	"github.com/zecrypt/vault/internal/server/repositories/auditlogs"
	"github.com/zecrypt/vault/internal/server/repositories/outbox"
	"github.com/zecrypt/vault/internal/server/repositories/projectkeys"
	"github.com/zecrypt/vault/internal/server/repositories/secrets"
	"github.com/zecrypt/vault/internal/server/repositories/userkeys"
)

type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	return goose.UpContext(ctx, db, ".")
}

func (m *PostgresRepositoryManager) Secrets(db dbx.DBTX) secrets.Repository {
	return secrets.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ProjectKeys(db dbx.DBTX) projectkeys.Repository {
	return projectkeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) UserKeys(db dbx.DBTX) userkeys.Repository {
	return userkeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) AuditLogs(db dbx.DBTX) auditlogs.Repository {
	return auditlogs.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Outbox(db dbx.DBTX) outbox.Repository {
	return outbox.NewPostgresRepository(db)
}

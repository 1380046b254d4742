// Package repomanager wires the per-aggregate repositories behind a
// single factory interface. Factories accept a dbx.DBTX so services can
// run repository operations against the pool or inside a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/zecrypt/vault/internal/dbx"
	"github.com/zecrypt/vault/internal/server/repositories/auditlogs"
	"github.com/zecrypt/vault/internal/server/repositories/outbox"
	"github.com/zecrypt/vault/internal/server/repositories/projectkeys"
	"github.com/zecrypt/vault/internal/server/repositories/secrets"
	"github.com/zecrypt/vault/internal/server/repositories/userkeys"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Secrets(db dbx.DBTX) secrets.Repository
	ProjectKeys(db dbx.DBTX) projectkeys.Repository
	UserKeys(db dbx.DBTX) userkeys.Repository
	AuditLogs(db dbx.DBTX) auditlogs.Repository
	Outbox(db dbx.DBTX) outbox.Repository
}

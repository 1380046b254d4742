// Package services implements the secret-vault core: the typed-secret
// engine, envelope project-key issuance, two-factor management, and the
// audit trail.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zecrypt/vault/internal/dbx"
	"github.com/zecrypt/vault/internal/logging"
	"github.com/zecrypt/vault/internal/server/metrics"
	"github.com/zecrypt/vault/internal/server/models"
	"github.com/zecrypt/vault/internal/server/repositories/repomanager"
)

// AuditTrail records every vault mutation. Writes go through an outbox:
// the caller appends an intent inside its own transaction, and the
// drain worker moves intents into the append-only audit log plus the
// per-project recent-activity feed. Delivery is at-least-once; the
// trail is advisory and never authoritative for access control.
type AuditTrail struct {
	db      *sql.DB
	rm      repomanager.RepositoryManager
	logger  logging.Logger
	metrics *metrics.Metrics

	pollInterval time.Duration
	batchSize    int
}

func NewAuditTrail(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger, m *metrics.Metrics, pollInterval time.Duration, batchSize int) *AuditTrail {
	return &AuditTrail{
		db:           db,
		rm:           rm,
		logger:       logger,
		metrics:      m,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// Intent builds the outbox entry for one mutation.
func Intent(collection, action, recordID string, actor models.Actor, workspaceID, projectID string, at time.Time) *models.OutboxEntry {
	return &models.OutboxEntry{
		Event:          fmt.Sprintf("%s.%s", collection, action),
		CollectionName: collection,
		Action:         action,
		RecordID:       recordID,
		Actor:          actor.UserID,
		IPAddress:      actor.IPAddress,
		UserAgent:      actor.UserAgent,
		WorkspaceID:    workspaceID,
		ProjectID:      projectID,
		CreatedAt:      at,
	}
}

// Append writes an intent using the caller's transactional handle, so
// the intent commits or rolls back together with the primary mutation.
func (a *AuditTrail) Append(ctx context.Context, tx dbx.DBTX, e *models.OutboxEntry) error {
	return a.rm.Outbox(tx).Append(ctx, e)
}

// Query returns a workspace's audit entries, newest first, plus the
// total count.
func (a *AuditTrail) Query(ctx context.Context, workspaceID string, page models.Page) ([]*models.AuditLogEntry, int, error) {
	return a.rm.AuditLogs(a.db).Query(ctx, workspaceID, page)
}

// Activity returns a project's recent-activity feed, newest first.
func (a *AuditTrail) Activity(ctx context.Context, projectID string, limit int) ([]*models.ActivityRecord, error) {
	return a.rm.AuditLogs(a.db).RecentActivity(ctx, projectID, limit)
}

// RunDrainWorker drains the outbox until ctx is cancelled. Failures are
// logged and retried on the next tick; an intent is only deleted after
// its audit row landed.
func (a *AuditTrail) RunDrainWorker(ctx context.Context) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.drainOnce(ctx); err != nil {
				a.logger.Warn(ctx, "audit outbox drain failed", "error", err)
			}
		}
	}
}

func (a *AuditTrail) drainOnce(ctx context.Context) error {
	outboxRepo := a.rm.Outbox(a.db)

	batch, err := outboxRepo.NextBatch(ctx, a.batchSize)
	if err != nil {
		return err
	}

	for _, intent := range batch {
		if err := a.deliver(ctx, intent); err != nil {
			a.metrics.OutboxFailures.Inc()
			a.logger.Warn(ctx, "audit intent delivery failed",
				"outbox_id", intent.ID, "event", intent.Event, "error", err)
			continue
		}
		if err := outboxRepo.Delete(ctx, intent.ID); err != nil {
			// The intent will be delivered again next tick; duplicates
			// are acceptable under at-least-once.
			a.logger.Warn(ctx, "audit intent cleanup failed", "outbox_id", intent.ID, "error", err)
			continue
		}
		a.metrics.OutboxDrained.Inc()
	}
	return nil
}

func (a *AuditTrail) deliver(ctx context.Context, intent *models.OutboxEntry) error {
	auditRepo := a.rm.AuditLogs(a.db)

	entry := &models.AuditLogEntry{
		ID:             uuid.NewString(),
		Event:          intent.Event,
		CollectionName: intent.CollectionName,
		Action:         intent.Action,
		RecordID:       intent.RecordID,
		Actor:          intent.Actor,
		IPAddress:      intent.IPAddress,
		UserAgent:      intent.UserAgent,
		WorkspaceID:    intent.WorkspaceID,
		ProjectID:      intent.ProjectID,
		CreatedAt:      intent.CreatedAt,
	}
	if err := auditRepo.Insert(ctx, entry); err != nil {
		return err
	}

	if intent.ProjectID == "" {
		return nil
	}
	activity := &models.ActivityRecord{
		ID:         uuid.NewString(),
		ProjectID:  intent.ProjectID,
		SecretType: intent.CollectionName,
		RecordID:   intent.RecordID,
		Actor:      intent.Actor,
		Action:     intent.Action,
		CreatedAt:  intent.CreatedAt,
	}
	return auditRepo.InsertActivity(ctx, activity)
}

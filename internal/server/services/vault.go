package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/dbx"
	"github.com/zecrypt/vault/internal/fieldcipher"
	"github.com/zecrypt/vault/internal/logging"
	"github.com/zecrypt/vault/internal/server/cache"
	"github.com/zecrypt/vault/internal/server/metrics"
	"github.com/zecrypt/vault/internal/server/models"
	"github.com/zecrypt/vault/internal/server/repositories/repomanager"
	"github.com/zecrypt/vault/internal/server/repositories/secrets"
)

// ListCache is the read-side cache for list queries. *cache.Cache
// satisfies it; tests substitute fakes.
type ListCache interface {
	GetList(ctx context.Context, projectID string, secretType models.SecretType, digest string) ([]*models.Secret, int, bool, error)
	SetList(ctx context.Context, projectID string, secretType models.SecretType, digest string, items []*models.Secret, total int) error
	InvalidateList(ctx context.Context, projectID string, secretType models.SecretType) error
}

// Scope pins an operation to one workspace/project.
type Scope struct {
	WorkspaceID string
	ProjectID   string
}

func (s Scope) validate() error {
	if s.WorkspaceID == "" {
		return fmt.Errorf("%w: workspace_id is required", common.ErrValidation)
	}
	if s.ProjectID == "" {
		return fmt.Errorf("%w: project_id is required", common.ErrValidation)
	}
	return nil
}

// CreateSecretInput carries the caller-supplied fields of a new secret.
type CreateSecretInput struct {
	SecretType string
	Title      string
	Tags       []string
	Payload    map[string]any
}

// UpdateSecretInput is a partial patch. Empty values mean "leave
// unchanged": a blank Title, nil/empty Tags, or nil/empty Payload are
// dropped before the patch is applied, so a sparse client form never
// wipes stored data. A present Payload replaces the stored payload
// wholesale after re-validation.
type UpdateSecretInput struct {
	Title   string
	Tags    []string
	Payload map[string]any
}

// SecretVault is the typed-secret engine: field-level encryption on the
// way in, decryption on the way out, store-level uniqueness of active
// titles, soft deletes, tag aggregation, and an audit intent bundled
// into every mutation's transaction.
type SecretVault struct {
	db      *sql.DB
	rm      repomanager.RepositoryManager
	cipher  *fieldcipher.Cipher
	cache   ListCache
	audit   *AuditTrail
	logger  logging.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

func NewSecretVault(db *sql.DB, rm repomanager.RepositoryManager, cipher *fieldcipher.Cipher, listCache ListCache, audit *AuditTrail, logger logging.Logger, m *metrics.Metrics) *SecretVault {
	return &SecretVault{
		db:      db,
		rm:      rm,
		cipher:  cipher,
		cache:   listCache,
		audit:   audit,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (v *SecretVault) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	v.metrics.VaultOps.WithLabelValues(op, outcome).Inc()
	v.metrics.VaultOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Create validates, encrypts, and stores a new secret. The returned
// record carries the plaintext payload; ciphertext never leaves the
// store through this path.
func (v *SecretVault) Create(ctx context.Context, scope Scope, in CreateSecretInput, actor models.Actor) (secret *models.Secret, err error) {
	start := v.now()
	defer func() { v.observe("create", start, err) }()

	if err = scope.validate(); err != nil {
		return nil, err
	}
	secretType, err := models.ParseSecretType(in.SecretType)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrValidation)
	}

	payload, err := models.DecodePayload(secretType, in.Payload)
	if err != nil {
		return nil, err
	}
	plainFields, err := models.PayloadFields(payload)
	if err != nil {
		return nil, err
	}
	storedFields, err := v.encryptFields(plainFields, payload.EncryptedFields())
	if err != nil {
		return nil, err
	}

	now := v.now().UTC()
	secret = &models.Secret{
		ID:          uuid.NewString(),
		WorkspaceID: scope.WorkspaceID,
		ProjectID:   scope.ProjectID,
		SecretType:  secretType,
		Title:       title,
		LowerTitle:  models.NormalizeTitle(title),
		Tags:        normalizeTags(in.Tags),
		Payload:     storedFields,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Access:      true,
	}

	err = dbx.WithTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := v.rm.Secrets(tx).Insert(ctx, secret); err != nil {
			return err
		}
		intent := Intent(string(secretType), models.AuditActionCreated, secret.ID, actor, scope.WorkspaceID, scope.ProjectID, now)
		return v.audit.Append(ctx, tx, intent)
	})
	if err != nil {
		return nil, err
	}

	v.invalidate(ctx, scope.ProjectID, secretType)

	secret.Payload = plainFields
	return secret, nil
}

// Get returns an active secret with its encrypted fields decrypted.
func (v *SecretVault) Get(ctx context.Context, id string) (secret *models.Secret, err error) {
	start := v.now()
	defer func() { v.observe("get", start, err) }()

	secret, err = v.rm.Secrets(v.db).GetActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = v.decryptSecret(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// Resolve looks an id up regardless of the soft-delete flag so audit
// record references keep working after deletion. Encrypted fields are
// decrypted like Get.
func (v *SecretVault) Resolve(ctx context.Context, id string) (secret *models.Secret, err error) {
	start := v.now()
	defer func() { v.observe("resolve", start, err) }()

	secret, err = v.rm.Secrets(v.db).GetAny(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = v.decryptSecret(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// List returns one page of active secrets in scope plus the total count
// of the filtered set. Pages are served from the cache when possible;
// cache failures fall through to the store.
func (v *SecretVault) List(ctx context.Context, scope Scope, secretType models.SecretType, filters models.SecretFilters, sort models.SecretSort, page models.Page) (items []*models.Secret, total int, err error) {
	start := v.now()
	defer func() { v.observe("list", start, err) }()

	if err = scope.validate(); err != nil {
		return nil, 0, err
	}
	if _, err = models.ParseSecretType(string(secretType)); err != nil {
		return nil, 0, err
	}

	q := secrets.ListQuery{
		WorkspaceID: scope.WorkspaceID,
		ProjectID:   scope.ProjectID,
		SecretType:  secretType,
		Filters:     filters,
		Sort:        sort,
		Page:        page,
	}

	digest, err := cache.QueryDigest(q)
	if err != nil {
		return nil, 0, err
	}

	items, total, hit, cacheErr := v.cache.GetList(ctx, scope.ProjectID, secretType, digest)
	if cacheErr != nil {
		v.logger.Warn(ctx, "list cache read failed", "project_id", scope.ProjectID, "error", cacheErr)
	}
	if hit {
		v.metrics.CacheHits.WithLabelValues("hit").Inc()
	} else {
		v.metrics.CacheHits.WithLabelValues("miss").Inc()

		items, total, err = v.rm.Secrets(v.db).List(ctx, q)
		if err != nil {
			return nil, 0, err
		}
		if cacheErr := v.cache.SetList(ctx, scope.ProjectID, secretType, digest, items, total); cacheErr != nil {
			v.logger.Warn(ctx, "list cache write failed", "project_id", scope.ProjectID, "error", cacheErr)
		}
	}

	// The cache stores records as persisted, ciphertext included, so a
	// poisoned or stale cache can never leak more than the store itself.
	for _, s := range items {
		if err = v.decryptSecret(s); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

// Update applies a partial patch to an active secret and returns the
// updated record with plaintext payload.
func (v *SecretVault) Update(ctx context.Context, id string, in UpdateSecretInput, actor models.Actor) (secret *models.Secret, err error) {
	start := v.now()
	defer func() { v.observe("update", start, err) }()

	existing, err := v.rm.Secrets(v.db).GetActive(ctx, id)
	if err != nil {
		return nil, err
	}

	now := v.now().UTC()
	set := map[string]any{
		"updated_by": actor.UserID,
		"updated_at": now,
	}

	if title := strings.TrimSpace(in.Title); title != "" {
		set["title"] = title
		set["lower_title"] = models.NormalizeTitle(title)
	}
	if len(in.Tags) > 0 {
		set["tags"] = normalizeTags(in.Tags)
	}
	if len(in.Payload) > 0 {
		payload, err := models.DecodePayload(existing.SecretType, in.Payload)
		if err != nil {
			return nil, err
		}
		plainFields, err := models.PayloadFields(payload)
		if err != nil {
			return nil, err
		}
		storedFields, err := v.encryptFields(plainFields, payload.EncryptedFields())
		if err != nil {
			return nil, err
		}
		set["payload"] = storedFields
	}

	err = dbx.WithTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		updated, err := v.rm.Secrets(tx).Update(ctx, id, set)
		if err != nil {
			return err
		}
		secret = updated
		intent := Intent(string(existing.SecretType), models.AuditActionUpdated, id, actor, existing.WorkspaceID, existing.ProjectID, now)
		return v.audit.Append(ctx, tx, intent)
	})
	if err != nil {
		return nil, err
	}

	v.invalidate(ctx, existing.ProjectID, existing.SecretType)

	if err = v.decryptSecret(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// Delete soft-deletes an active secret. The record stays resolvable via
// Resolve; its title immediately becomes reusable for new secrets.
func (v *SecretVault) Delete(ctx context.Context, id string, actor models.Actor) (err error) {
	start := v.now()
	defer func() { v.observe("delete", start, err) }()

	existing, err := v.rm.Secrets(v.db).GetActive(ctx, id)
	if err != nil {
		return err
	}

	now := v.now().UTC()
	err = dbx.WithTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := v.rm.Secrets(tx).SoftDelete(ctx, id, actor.UserID, now); err != nil {
			return err
		}
		intent := Intent(string(existing.SecretType), models.AuditActionDeleted, id, actor, existing.WorkspaceID, existing.ProjectID, now)
		return v.audit.Append(ctx, tx, intent)
	})
	if err != nil {
		return err
	}

	v.invalidate(ctx, existing.ProjectID, existing.SecretType)
	return nil
}

// Tags returns the sorted distinct tags across a project's active
// secrets.
func (v *SecretVault) Tags(ctx context.Context, projectID string) (tags []string, err error) {
	start := v.now()
	defer func() { v.observe("tags", start, err) }()

	if projectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", common.ErrValidation)
	}
	return v.rm.Secrets(v.db).DistinctTags(ctx, projectID)
}

func (v *SecretVault) encryptFields(fields map[string]any, encrypted []string) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, val := range fields {
		out[k] = val
	}
	for _, name := range encrypted {
		val, ok := out[name]
		if !ok {
			continue
		}
		s, ok := val.(string)
		if !ok || s == "" {
			continue
		}
		blob, err := v.cipher.EncryptString(s)
		if err != nil {
			return nil, err
		}
		out[name] = blob
	}
	return out, nil
}

func (v *SecretVault) decryptSecret(s *models.Secret) error {
	encrypted, err := models.EncryptedFieldsFor(s.SecretType)
	if err != nil {
		return err
	}
	for _, name := range encrypted {
		val, ok := s.Payload[name]
		if !ok {
			continue
		}
		blob, ok := val.(string)
		if !ok || blob == "" {
			continue
		}
		plain, err := v.cipher.DecryptString(blob)
		if err != nil {
			return fmt.Errorf("decrypt %s field %q of %s: %w", s.SecretType, name, s.ID, err)
		}
		s.Payload[name] = plain
	}
	return nil
}

func (v *SecretVault) invalidate(ctx context.Context, projectID string, secretType models.SecretType) {
	if err := v.cache.InvalidateList(ctx, projectID, secretType); err != nil {
		v.logger.Warn(ctx, "list cache invalidation failed",
			"project_id", projectID, "secret_type", secretType, "error", err)
	}
}

// normalizeTags trims whitespace and drops blanks and duplicates while
// keeping first-seen order.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

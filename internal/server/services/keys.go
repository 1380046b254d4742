package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/fieldcipher"
	"github.com/zecrypt/vault/internal/logging"
	"github.com/zecrypt/vault/internal/server/models"
	"github.com/zecrypt/vault/internal/server/repositories/repomanager"
)

// IdentityKeyStore manages per-user asymmetric key material. Keys are
// generated client-side; the server stores the PEM public key for
// wrapping project keys and holds the client's private-key blob as an
// opaque value it never interprets.
type IdentityKeyStore struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	logger logging.Logger

	now func() time.Time
}

func NewIdentityKeyStore(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *IdentityKeyStore {
	return &IdentityKeyStore{db: db, rm: rm, logger: logger, now: time.Now}
}

// Register stores a user's key material at signup. The public key must
// be a PEM-encoded RSA key usable for OAEP wrapping; re-registering an
// existing user yields common.ErrConflict.
func (s *IdentityKeyStore) Register(ctx context.Context, userID, publicKeyPEM, privateKey string) (*models.UserKeyMaterial, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", common.ErrValidation)
	}
	if _, err := parseRSAPublicKey(publicKeyPEM); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	km := &models.UserKeyMaterial{
		UserID:     userID,
		PublicKey:  publicKeyPEM,
		PrivateKey: privateKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.rm.UserKeys(s.db).Register(ctx, km); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user key material registered", "user_id", userID)
	return km, nil
}

// Material returns the stored key material for a user.
func (s *IdentityKeyStore) Material(ctx context.Context, userID string) (*models.UserKeyMaterial, error) {
	return s.rm.UserKeys(s.db).Get(ctx, userID)
}

// PublicKey returns the user's PEM public key.
func (s *IdentityKeyStore) PublicKey(ctx context.Context, userID string) (string, error) {
	return s.rm.UserKeys(s.db).GetPublicKey(ctx, userID)
}

// ProjectKeyManager issues envelope-wrapped symmetric project keys. A
// fresh 256-bit key is generated per issuance, wrapped with the user's
// RSA public key via OAEP-SHA256, and the plaintext key is wiped before
// the call returns. The server never persists an unwrapped key.
type ProjectKeyManager struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	keys   *IdentityKeyStore
	logger logging.Logger

	now func() time.Time
}

func NewProjectKeyManager(db *sql.DB, rm repomanager.RepositoryManager, keys *IdentityKeyStore, logger logging.Logger) *ProjectKeyManager {
	return &ProjectKeyManager{db: db, rm: rm, keys: keys, logger: logger, now: time.Now}
}

// Issue creates (or returns) the wrapped project key for (project,
// user). Issuance is idempotent: when a record already exists the
// stored one wins, so concurrent calls converge on one key.
func (m *ProjectKeyManager) Issue(ctx context.Context, projectID, userID, workspaceID string) (*models.ProjectKeyRecord, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", common.ErrValidation)
	}
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace_id is required", common.ErrValidation)
	}

	publicKeyPEM, err := m.keys.PublicKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	pub, err := parseRSAPublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	key := common.GenerateRandByteArray(fieldcipher.KeySize)
	defer common.WipeByteArray(key)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap project key: %w", err)
	}

	rec := &models.ProjectKeyRecord{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		UserID:      userID,
		WorkspaceID: workspaceID,
		WrappedKey:  wrapped,
		CreatedAt:   m.now().UTC(),
	}

	stored, err := m.rm.ProjectKeys(m.db).Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	if stored.ID == rec.ID {
		m.logger.Info(ctx, "project key issued", "project_id", projectID, "user_id", userID)
	}
	return stored, nil
}

// Get returns the wrapped key for (project, user).
func (m *ProjectKeyManager) Get(ctx context.Context, projectID, userID string) (*models.ProjectKeyRecord, error) {
	return m.rm.ProjectKeys(m.db).Get(ctx, projectID, userID)
}

// ListByUser returns every wrapped key issued to the user in a
// workspace.
func (m *ProjectKeyManager) ListByUser(ctx context.Context, userID, workspaceID string) ([]*models.ProjectKeyRecord, error) {
	return m.rm.ProjectKeys(m.db).ListByUser(ctx, userID, workspaceID)
}

// parseRSAPublicKey decodes a PEM block holding either a PKIX
// ("PUBLIC KEY") or PKCS#1 ("RSA PUBLIC KEY") RSA public key.
func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemData)))
	if block == nil {
		return nil, fmt.Errorf("%w: public key is not valid PEM", common.ErrValidation)
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		return pub, nil
	default:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: public key is not RSA", common.ErrValidation)
		}
		return pub, nil
	}
}

package userkeys

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Register(ctx context.Context, km *models.UserKeyMaterial) error {
	query := `
		INSERT INTO user_keys (user_id, public_key, private_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`
	_, err := r.db.ExecContext(ctx, query, km.UserID, km.PublicKey, km.PrivateKey, km.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.UserKeyMaterial, error) {
	query := `
		SELECT user_id, public_key, private_key, totp_secret_ciphertext, totp_enabled,
			to_jsonb(recovery_code_hashes), created_at, updated_at
		FROM user_keys
		WHERE user_id = $1
	`
	km := &models.UserKeyMaterial{}
	var hashesJSON []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&km.UserID, &km.PublicKey, &km.PrivateKey, &km.TOTPSecretCiphertext,
		&km.TOTPEnabled, &hashesJSON, &km.CreatedAt, &km.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(hashesJSON, &km.RecoveryCodeHashes); err != nil {
		return nil, fmt.Errorf("decoding recovery codes: %w", err)
	}
	return km, nil
}

func (r *PostgresRepository) GetPublicKey(ctx context.Context, userID string) (string, error) {
	var pem string
	err := r.db.QueryRowContext(ctx,
		`SELECT public_key FROM user_keys WHERE user_id = $1`, userID).Scan(&pem)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return pem, nil
}

func (r *PostgresRepository) EnableTOTP(ctx context.Context, userID, secretCiphertext string, recoveryHashes []string, at time.Time) error {
	query := `
		UPDATE user_keys
		SET totp_secret_ciphertext = $2, totp_enabled = TRUE,
			recovery_code_hashes = $3, updated_at = $4
		WHERE user_id = $1
	`
	if recoveryHashes == nil {
		recoveryHashes = []string{}
	}
	res, err := r.db.ExecContext(ctx, query, userID, secretCiphertext, recoveryHashes, at)
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

func (r *PostgresRepository) ConsumeRecoveryCode(ctx context.Context, userID, hash string, at time.Time) error {
	query := `
		UPDATE user_keys
		SET recovery_code_hashes = array_remove(recovery_code_hashes, $2), updated_at = $3
		WHERE user_id = $1 AND $2 = ANY(recovery_code_hashes)
	`
	res, err := r.db.ExecContext(ctx, query, userID, hash, at)
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

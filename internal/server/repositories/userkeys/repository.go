// Package userkeys persists per-user asymmetric key material and the
// two-factor enrollment state. Key generation and rotation are
// client-driven; the server only stores what the client registers.
package userkeys

import (
	"context"
	"time"

	"github.com/zecrypt/vault/internal/server/models"
)

type Repository interface {
	// Register stores key material at signup. Registering an existing
	// user returns common.ErrConflict.
	Register(ctx context.Context, km *models.UserKeyMaterial) error

	// Get returns the full key material row or common.ErrNotFound.
	Get(ctx context.Context, userID string) (*models.UserKeyMaterial, error)

	// GetPublicKey returns the PEM public key or common.ErrNotFound.
	GetPublicKey(ctx context.Context, userID string) (string, error)

	// EnableTOTP persists the encrypted TOTP secret, flips the enabled
	// flag, and stores the recovery-code hashes in one write.
	EnableTOTP(ctx context.Context, userID, secretCiphertext string, recoveryHashes []string, at time.Time) error

	// ConsumeRecoveryCode removes one stored hash, making the code
	// single-use.
	ConsumeRecoveryCode(ctx context.Context, userID, hash string, at time.Time) error
}

package models

import "time"

// ProjectKeyRecord is an envelope-wrapped symmetric project key issued
// to a single user. The wrapped bytes are only ever produced by
// RSA-OAEP encryption against the user's public key; the server never
// stores or observes the unwrapped key. Records are created once per
// (project, user) and never mutated.
type ProjectKeyRecord struct {
	ID          string    `json:"doc_id"`
	ProjectID   string    `json:"project_id"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	WrappedKey  []byte    `json:"project_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserKeyMaterial holds a user's asymmetric key material and the
// two-factor enrollment state. PrivateKey is an opaque client-supplied
// blob held client-side by convention; the server never interprets it.
type UserKeyMaterial struct {
	UserID               string    `json:"user_id"`
	PublicKey            string    `json:"public_key"`
	PrivateKey           string    `json:"private_key,omitempty"`
	TOTPSecretCiphertext string    `json:"-"`
	TOTPEnabled          bool      `json:"totp_enabled"`
	RecoveryCodeHashes   []string  `json:"-"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

package services

import (
	"context"
	"database/sql"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/fieldcipher"
	"github.com/zecrypt/vault/internal/logging"
	"github.com/zecrypt/vault/internal/server/auth"
	"github.com/zecrypt/vault/internal/server/repositories/repomanager"
)

// PendingTOTPStore parks provisioning secrets between Provision and the
// confirming Verify. *cache.Cache satisfies it.
type PendingTOTPStore interface {
	PutPendingTOTP(ctx context.Context, userID, secret string, ttl time.Duration) (string, error)
	GetPendingTOTP(ctx context.Context, userID string) (string, bool, error)
	DeletePendingTOTP(ctx context.Context, userID string) error
}

const (
	totpSecretBytes = 20
	totpPeriod      = 30
	// Codes from the adjacent time step are accepted to absorb clock
	// drift between server and authenticator.
	totpSkew = 1

	recoveryCodeCount = 10
	recoveryCodeBytes = 5
)

// Enrollment is handed to the client once during provisioning. The
// shared secret appears here and nowhere else in plaintext.
type Enrollment struct {
	Secret string
	URI    string
}

// VerifyResult is returned by a successful code verification. Recovery
// codes are only present on the verification that completes enrollment
// and are never shown again.
type VerifyResult struct {
	AccessToken   string
	RecoveryCodes []string
}

// SessionStart is the two-step handshake state after primary
// authentication.
type SessionStart struct {
	Token       string
	TOTPEnabled bool
}

// TwoFactorAuthManager runs TOTP enrollment and verification. The
// shared secret lives encrypted at rest under the field cipher;
// enrollment is confirmed by a first successful code, with the
// unconfirmed secret parked in Redis so it expires on abandonment and
// concurrent provisioning calls converge on one secret.
type TwoFactorAuthManager struct {
	db      *sql.DB
	rm      repomanager.RepositoryManager
	cipher  *fieldcipher.Cipher
	pending PendingTOTPStore
	logger  logging.Logger

	issuer           string
	jwtSecret        []byte
	twoStepValidity  time.Duration
	accessValidity   time.Duration
	pendingSecretTTL time.Duration

	now func() time.Time
}

func NewTwoFactorAuthManager(db *sql.DB, rm repomanager.RepositoryManager, cipher *fieldcipher.Cipher, pending PendingTOTPStore, logger logging.Logger, issuer string, jwtSecret []byte, twoStepValidity, accessValidity, pendingSecretTTL time.Duration) *TwoFactorAuthManager {
	return &TwoFactorAuthManager{
		db:               db,
		rm:               rm,
		cipher:           cipher,
		pending:          pending,
		logger:           logger,
		issuer:           issuer,
		jwtSecret:        jwtSecret,
		twoStepValidity:  twoStepValidity,
		accessValidity:   accessValidity,
		pendingSecretTTL: pendingSecretTTL,
		now:              time.Now,
	}
}

// StartSession mints the short-lived two-step token for an already
// authenticated user. Primary credential validation happens upstream;
// this token is only good for the two-factor endpoints.
func (m *TwoFactorAuthManager) StartSession(ctx context.Context, userID string) (*SessionStart, error) {
	km, err := m.rm.UserKeys(m.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := auth.GenerateToken(userID, auth.ScopeTwoStep, m.jwtSecret, m.twoStepValidity)
	if err != nil {
		return nil, err
	}
	return &SessionStart{Token: token, TOTPEnabled: km.TOTPEnabled}, nil
}

// Provision starts enrollment: it generates a fresh shared secret,
// parks it with a TTL, and returns the secret plus the otpauth URI for
// the authenticator app. Calling again before confirmation returns the
// same parked secret; calling after enrollment yields
// common.ErrAlreadyEnrolled.
func (m *TwoFactorAuthManager) Provision(ctx context.Context, userID, accountName string) (*Enrollment, error) {
	km, err := m.rm.UserKeys(m.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if km.TOTPEnabled {
		return nil, common.ErrAlreadyEnrolled
	}
	if strings.TrimSpace(accountName) == "" {
		accountName = userID
	}

	secret := base32.StdEncoding.WithPadding(base32.NoPadding).
		EncodeToString(common.GenerateRandByteArray(totpSecretBytes))

	// SETNX semantics: whichever concurrent call lands first wins and
	// everyone receives that secret.
	winner, err := m.pending.PutPendingTOTP(ctx, userID, secret, m.pendingSecretTTL)
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret: winner,
		URI:    m.provisioningURI(accountName, winner),
	}, nil
}

// Verify checks a one-time code. During enrollment a valid code
// completes it: the secret is encrypted and persisted, recovery codes
// are generated, and the parked secret is cleared. For enrolled users
// it validates against the stored secret. Either way success mints a
// full-scope access token; a wrong code yields common.ErrCodeInvalid.
func (m *TwoFactorAuthManager) Verify(ctx context.Context, userID, code string) (*VerifyResult, error) {
	km, err := m.rm.UserKeys(m.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if km.TOTPEnabled {
		secret, err := m.cipher.DecryptString(km.TOTPSecretCiphertext)
		if err != nil {
			return nil, err
		}
		if !m.validateCode(code, secret) {
			return nil, common.ErrCodeInvalid
		}
		token, err := auth.GenerateToken(userID, auth.ScopeFull, m.jwtSecret, m.accessValidity)
		if err != nil {
			return nil, err
		}
		return &VerifyResult{AccessToken: token}, nil
	}

	secret, ok, err := m.pending.GetPendingTOTP(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no pending enrollment", common.ErrNotFound)
	}
	if !m.validateCode(code, secret) {
		return nil, common.ErrCodeInvalid
	}

	ciphertext, err := m.cipher.EncryptString(secret)
	if err != nil {
		return nil, err
	}
	codes, hashes, err := generateRecoveryCodes()
	if err != nil {
		return nil, err
	}
	if err := m.rm.UserKeys(m.db).EnableTOTP(ctx, userID, ciphertext, hashes, m.now().UTC()); err != nil {
		return nil, err
	}
	if err := m.pending.DeletePendingTOTP(ctx, userID); err != nil {
		// Harmless leftover; the TTL will clear it.
		m.logger.Warn(ctx, "pending TOTP cleanup failed", "user_id", userID, "error", err)
	}
	m.logger.Info(ctx, "two-factor enrollment completed", "user_id", userID)

	token, err := auth.GenerateToken(userID, auth.ScopeFull, m.jwtSecret, m.accessValidity)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{AccessToken: token, RecoveryCodes: codes}, nil
}

// VerifyRecovery redeems a single-use recovery code in place of a TOTP
// code. The matched code is consumed; remaining codes stay valid.
func (m *TwoFactorAuthManager) VerifyRecovery(ctx context.Context, userID, code string) (*VerifyResult, error) {
	km, err := m.rm.UserKeys(m.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !km.TOTPEnabled {
		return nil, common.ErrCodeInvalid
	}

	code = strings.TrimSpace(code)
	var matched string
	for _, hash := range km.RecoveryCodeHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			matched = hash
			break
		}
	}
	if matched == "" {
		return nil, common.ErrCodeInvalid
	}

	if err := m.rm.UserKeys(m.db).ConsumeRecoveryCode(ctx, userID, matched, m.now().UTC()); err != nil {
		return nil, err
	}
	m.logger.Info(ctx, "recovery code redeemed", "user_id", userID)

	token, err := auth.GenerateToken(userID, auth.ScopeFull, m.jwtSecret, m.accessValidity)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{AccessToken: token}, nil
}

func (m *TwoFactorAuthManager) validateCode(code, secret string) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, m.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (m *TwoFactorAuthManager) provisioningURI(accountName, secret string) string {
	params := url.Values{}
	params.Set("secret", secret)
	params.Set("issuer", m.issuer)
	params.Set("algorithm", otp.AlgorithmSHA1.String())
	params.Set("digits", otp.DigitsSix.String())
	params.Set("period", fmt.Sprintf("%d", totpPeriod))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + m.issuer + ":" + accountName,
		RawQuery: params.Encode(),
	}
	return u.String()
}

func generateRecoveryCodes() (codes []string, hashes []string, err error) {
	codes = make([]string, 0, recoveryCodeCount)
	hashes = make([]string, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		code, err := common.MakeRandHexString(recoveryCodeBytes)
		if err != nil {
			return nil, nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, string(hash))
	}
	return codes, hashes, nil
}

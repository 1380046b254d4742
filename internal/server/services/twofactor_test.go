package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/server/auth"
	"github.com/zecrypt/vault/internal/server/models"
)

type fakePendingStore struct {
	secret string
	putErr error

	deleted bool
}

func (f *fakePendingStore) PutPendingTOTP(ctx context.Context, userID, secret string, ttl time.Duration) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	if f.secret == "" {
		f.secret = secret
	}
	return f.secret, nil
}

func (f *fakePendingStore) GetPendingTOTP(ctx context.Context, userID string) (string, bool, error) {
	if f.secret == "" {
		return "", false, nil
	}
	return f.secret, true, nil
}

func (f *fakePendingStore) DeletePendingTOTP(ctx context.Context, userID string) error {
	f.deleted = true
	f.secret = ""
	return nil
}

func newTwoFactor(t *testing.T, uk *fakeUserKeysRepo, pending *fakePendingStore) *TwoFactorAuthManager {
	t.Helper()
	db, _ := newSQLMockDB(t)
	t.Cleanup(func() { db.Close() })

	rm := &fakeRepoManager{uk: uk}
	return NewTwoFactorAuthManager(db, rm, testCipher(t), pending, testLogger(),
		"Zecrypt", []byte("k"), 5*time.Minute, 15*time.Minute, 10*time.Minute)
}

func validCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("GenerateCode error: %v", err)
	}
	return code
}

func TestStartSession_MintsTwoStepToken(t *testing.T) {
	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1", TOTPEnabled: true},
	}}
	m := newTwoFactor(t, uk, &fakePendingStore{})

	session, err := m.StartSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("StartSession error: %v", err)
	}
	if !session.TOTPEnabled {
		t.Fatal("enrollment state must be reported")
	}

	claims, err := auth.ParseToken(session.Token, []byte("k"))
	if err != nil {
		t.Fatalf("token must parse: %v", err)
	}
	if claims.Scope != auth.ScopeTwoStep || claims.UserID != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestProvision_AlreadyEnrolled(t *testing.T) {
	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1", TOTPEnabled: true},
	}}
	m := newTwoFactor(t, uk, &fakePendingStore{})

	_, err := m.Provision(context.Background(), "u1", "u1@example.com")
	if !errors.Is(err, common.ErrAlreadyEnrolled) {
		t.Fatalf("want ErrAlreadyEnrolled, got %v", err)
	}
}

func TestProvision_ConcurrentCallsConverge(t *testing.T) {
	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1"},
	}}
	pending := &fakePendingStore{}
	m := newTwoFactor(t, uk, pending)

	first, err := m.Provision(context.Background(), "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("Provision error: %v", err)
	}
	second, err := m.Provision(context.Background(), "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("Provision error: %v", err)
	}

	if first.Secret != second.Secret {
		t.Fatal("concurrent provisioning must converge on one secret")
	}
	if !strings.HasPrefix(first.URI, "otpauth://totp/Zecrypt:u1@example.com?") {
		t.Fatalf("unexpected URI: %s", first.URI)
	}
	if !strings.Contains(first.URI, "secret="+first.Secret) {
		t.Fatalf("URI must carry the secret: %s", first.URI)
	}
}

func TestVerify_CompletesEnrollment(t *testing.T) {
	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1"},
	}}
	pending := &fakePendingStore{}
	m := newTwoFactor(t, uk, pending)

	enrollment, err := m.Provision(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Provision error: %v", err)
	}

	result, err := m.Verify(context.Background(), "u1", validCode(t, enrollment.Secret))
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}

	if len(result.RecoveryCodes) != recoveryCodeCount {
		t.Fatalf("want %d recovery codes, got %d", recoveryCodeCount, len(result.RecoveryCodes))
	}
	claims, err := auth.ParseToken(result.AccessToken, []byte("k"))
	if err != nil || claims.Scope != auth.ScopeFull {
		t.Fatalf("want full-scope token, got %+v (%v)", claims, err)
	}

	if uk.enabledCiphertext == "" || uk.enabledCiphertext == enrollment.Secret {
		t.Fatal("stored secret must be encrypted")
	}
	plain, err := testCipher(t).DecryptString(uk.enabledCiphertext)
	if err != nil || plain != enrollment.Secret {
		t.Fatalf("ciphertext must decrypt to the secret: %q (%v)", plain, err)
	}
	if len(uk.enabledHashes) != recoveryCodeCount {
		t.Fatalf("want %d stored hashes, got %d", recoveryCodeCount, len(uk.enabledHashes))
	}
	if !pending.deleted {
		t.Fatal("pending secret must be cleared after enrollment")
	}
}

func TestVerify_WrongCodeDuringEnrollment(t *testing.T) {
	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1"},
	}}
	m := newTwoFactor(t, uk, &fakePendingStore{secret: "JBSWY3DPEHPK3PXP"})

	_, err := m.Verify(context.Background(), "u1", "000000")
	if !errors.Is(err, common.ErrCodeInvalid) {
		t.Fatalf("want ErrCodeInvalid, got %v", err)
	}
	if uk.enabledCiphertext != "" {
		t.Fatal("enrollment must not complete on a wrong code")
	}
}

func TestVerify_NoPendingEnrollment(t *testing.T) {
	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1"},
	}}
	m := newTwoFactor(t, uk, &fakePendingStore{})

	_, err := m.Verify(context.Background(), "u1", "123456")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestVerify_EnrolledUser(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	ciphertext, err := testCipher(t).EncryptString(secret)
	if err != nil {
		t.Fatal(err)
	}

	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1", TOTPEnabled: true, TOTPSecretCiphertext: ciphertext},
	}}
	m := newTwoFactor(t, uk, &fakePendingStore{})

	result, err := m.Verify(context.Background(), "u1", validCode(t, secret))
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if len(result.RecoveryCodes) != 0 {
		t.Fatal("recovery codes are only issued at enrollment")
	}

	if _, err := m.Verify(context.Background(), "u1", "000000"); !errors.Is(err, common.ErrCodeInvalid) {
		t.Fatalf("want ErrCodeInvalid, got %v", err)
	}
}

func TestVerify_AcceptsPreviousTimeStep(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	ciphertext, err := testCipher(t).EncryptString(secret)
	if err != nil {
		t.Fatal(err)
	}

	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1", TOTPEnabled: true, TOTPSecretCiphertext: ciphertext},
	}}
	m := newTwoFactor(t, uk, &fakePendingStore{})

	// One period of clock drift stays within the accepted skew.
	stale, err := totp.GenerateCode(secret, time.Now().UTC().Add(-totpPeriod*time.Second))
	if err != nil {
		t.Fatalf("GenerateCode error: %v", err)
	}
	if _, err := m.Verify(context.Background(), "u1", stale); err != nil {
		t.Fatalf("Verify error: %v", err)
	}

	// Two periods back is outside the window.
	old, err := totp.GenerateCode(secret, time.Now().UTC().Add(-2*totpPeriod*time.Second))
	if err != nil {
		t.Fatalf("GenerateCode error: %v", err)
	}
	if _, err := m.Verify(context.Background(), "u1", old); !errors.Is(err, common.ErrCodeInvalid) {
		t.Fatalf("want ErrCodeInvalid, got %v", err)
	}
}

func TestVerifyRecovery_ConsumesSingleCode(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("abcdef1234"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	otherHash, err := bcrypt.GenerateFromPassword([]byte("zzzzzz9999"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1", TOTPEnabled: true,
			RecoveryCodeHashes: []string{string(otherHash), string(hash)}},
	}}
	m := newTwoFactor(t, uk, &fakePendingStore{})

	result, err := m.VerifyRecovery(context.Background(), "u1", "abcdef1234")
	if err != nil {
		t.Fatalf("VerifyRecovery error: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("want access token")
	}
	if len(uk.consumedHashes) != 1 || uk.consumedHashes[0] != string(hash) {
		t.Fatalf("want matched hash consumed, got %v", uk.consumedHashes)
	}
}

func TestVerifyRecovery_WrongCode(t *testing.T) {
	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1", TOTPEnabled: true, RecoveryCodeHashes: []string{"$2a$04$invalid"}},
	}}
	m := newTwoFactor(t, uk, &fakePendingStore{})

	_, err := m.VerifyRecovery(context.Background(), "u1", "nope")
	if !errors.Is(err, common.ErrCodeInvalid) {
		t.Fatalf("want ErrCodeInvalid, got %v", err)
	}

	// Not enrolled at all.
	uk2 := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u2": {UserID: "u2"},
	}}
	m2 := newTwoFactor(t, uk2, &fakePendingStore{})
	if _, err := m2.VerifyRecovery(context.Background(), "u2", "abc"); !errors.Is(err, common.ErrCodeInvalid) {
		t.Fatalf("want ErrCodeInvalid, got %v", err)
	}
}

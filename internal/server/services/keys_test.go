package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/fieldcipher"
	"github.com/zecrypt/vault/internal/server/models"
)

func testKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey error: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey error: %v", err)
	}
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	return priv, pemStr
}

func TestRegister_ValidatesPublicKey(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	uk := &fakeUserKeysRepo{}
	s := NewIdentityKeyStore(db, &fakeRepoManager{uk: uk}, testLogger())

	_, publicPEM := testKeyPair(t)

	km, err := s.Register(context.Background(), "u1", publicPEM, "client-blob")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if km.UserID != "u1" || km.PublicKey != publicPEM {
		t.Fatalf("unexpected material: %+v", km)
	}

	// Same user again.
	if _, err := s.Register(context.Background(), "u1", publicPEM, "x"); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	// Garbage key.
	if _, err := s.Register(context.Background(), "u2", "not a key", "x"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}

	if _, err := s.Register(context.Background(), "", publicPEM, "x"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation for empty user, got %v", err)
	}
}

func TestIssue_WrapsFreshKeyForUser(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	priv, publicPEM := testKeyPair(t)

	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1", PublicKey: publicPEM},
	}}
	pk := &fakeProjectKeysRepo{}
	rm := &fakeRepoManager{uk: uk, pk: pk}

	keys := NewIdentityKeyStore(db, rm, testLogger())
	m := NewProjectKeyManager(db, rm, keys, testLogger())

	rec, err := m.Issue(context.Background(), "p1", "u1", "w1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if rec.ProjectID != "p1" || rec.UserID != "u1" || rec.WorkspaceID != "w1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// The wrapped blob must unwrap with the user's private key into a
	// symmetric key of the right size.
	unwrapped, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, rec.WrappedKey, nil)
	if err != nil {
		t.Fatalf("unwrap error: %v", err)
	}
	if len(unwrapped) != fieldcipher.KeySize {
		t.Fatalf("want %d-byte project key, got %d", fieldcipher.KeySize, len(unwrapped))
	}
}

func TestIssue_ExistingRecordWins(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	_, publicPEM := testKeyPair(t)

	existing := &models.ProjectKeyRecord{ID: "stored", ProjectID: "p1", UserID: "u1"}
	uk := &fakeUserKeysRepo{material: map[string]*models.UserKeyMaterial{
		"u1": {UserID: "u1", PublicKey: publicPEM},
	}}
	pk := &fakeProjectKeysRepo{existing: existing}
	rm := &fakeRepoManager{uk: uk, pk: pk}

	keys := NewIdentityKeyStore(db, rm, testLogger())
	m := NewProjectKeyManager(db, rm, keys, testLogger())

	rec, err := m.Issue(context.Background(), "p1", "u1", "w1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if rec.ID != "stored" {
		t.Fatalf("want stored record, got %+v", rec)
	}
}

func TestIssue_UnknownUser(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{uk: &fakeUserKeysRepo{}, pk: &fakeProjectKeysRepo{}}
	keys := NewIdentityKeyStore(db, rm, testLogger())
	m := NewProjectKeyManager(db, rm, keys, testLogger())

	_, err := m.Issue(context.Background(), "p1", "stranger", "w1")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestIssue_ValidatesScope(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{uk: &fakeUserKeysRepo{}, pk: &fakeProjectKeysRepo{}}
	keys := NewIdentityKeyStore(db, rm, testLogger())
	m := NewProjectKeyManager(db, rm, keys, testLogger())

	if _, err := m.Issue(context.Background(), "", "u1", "w1"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if _, err := m.Issue(context.Background(), "p1", "u1", ""); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

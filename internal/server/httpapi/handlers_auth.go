package httpapi

import (
	"net/http"

	"github.com/zecrypt/vault/internal/common"
)

type signupBody struct {
	UserID     string `json:"user_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// handleSignup registers a user's key material. The identity provider
// in front of the vault has already authenticated the caller; user_id
// is its subject.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body signupBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	km, err := s.keys.Register(r.Context(), body.UserID, body.PublicKey, body.PrivateKey)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, "keys registered", km)
}

type sessionBody struct {
	UserID string `json:"user_id"`
}

// handleStartSession exchanges an upstream-authenticated user id for
// the short-lived two-step token.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}
	if body.UserID == "" {
		respondError(w, common.ErrValidation)
		return
	}

	session, err := s.twoFactor.StartSession(r.Context(), body.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "ok", map[string]any{
		"two_step_token": session.Token,
		"totp_enabled":   session.TOTPEnabled,
	})
}

type provisionBody struct {
	AccountName string `json:"account_name"`
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var body provisionBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	actor := actorFrom(r.Context())
	enrollment, err := s.twoFactor.Provision(r.Context(), actor.UserID, body.AccountName)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "enrollment started", map[string]any{
		"secret":           enrollment.Secret,
		"provisioning_uri": enrollment.URI,
	})
}

type codeBody struct {
	Code string `json:"code"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body codeBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	actor := actorFrom(r.Context())
	result, err := s.twoFactor.Verify(r.Context(), actor.UserID, body.Code)
	if err != nil {
		respondError(w, err)
		return
	}

	data := map[string]any{"access_token": result.AccessToken}
	if len(result.RecoveryCodes) > 0 {
		data["recovery_codes"] = result.RecoveryCodes
	}
	respond(w, http.StatusOK, "ok", data)
}

func (s *Server) handleVerifyRecovery(w http.ResponseWriter, r *http.Request) {
	var body codeBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	actor := actorFrom(r.Context())
	result, err := s.twoFactor.VerifyRecovery(r.Context(), actor.UserID, body.Code)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "ok", map[string]any{"access_token": result.AccessToken})
}

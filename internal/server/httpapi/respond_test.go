package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zecrypt/vault/internal/common"
	"github.com/zecrypt/vault/internal/server/models"
)

func TestRespondError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{common.ErrValidation, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: title is required", common.ErrValidation), http.StatusUnprocessableEntity},
		{common.ErrConflict, http.StatusBadRequest},
		{common.ErrAlreadyEnrolled, http.StatusBadRequest},
		{common.ErrNotFound, http.StatusNotFound},
		{common.ErrCodeInvalid, http.StatusUnauthorized},
		{common.ErrUnauthorized, http.StatusUnauthorized},
		{common.ErrInvalidToken, http.StatusUnauthorized},
		{common.ErrTokenExpired, http.StatusUnauthorized},
		{common.ErrIntegrity, http.StatusInternalServerError},
		{fmt.Errorf("db is down"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		respondError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: want %d, got %d", tc.err, tc.status, rec.Code)
		}
	}
}

func TestRespondError_InternalDetailIsHidden(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, fmt.Errorf("pq: connection to 10.1.2.3 refused"))

	var body envelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if body.Message != "internal error" {
		t.Fatalf("internal detail leaked: %q", body.Message)
	}
}

func TestRespondPage_CarriesPagination(t *testing.T) {
	rec := httptest.NewRecorder()
	respondPage(rec, "ok", []*models.Secret{{ID: "s1"}}, 42, 3, 20)

	var body envelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if body.Count == nil || *body.Count != 42 {
		t.Fatalf("want count 42, got %+v", body.Count)
	}
	if body.Page == nil || *body.Page != 3 || body.Limit == nil || *body.Limit != 20 {
		t.Fatalf("unexpected pagination: %+v", body)
	}
}

func TestParsePage_Bounds(t *testing.T) {
	cases := []struct {
		pageStr, limitStr string
		page, limit       int
	}{
		{"", "", 1, defaultPageLimit},
		{"3", "50", 3, 50},
		{"0", "-1", 1, defaultPageLimit},
		{"2", "9999", 2, maxPageLimit},
		{"junk", "junk", 1, defaultPageLimit},
	}
	for _, tc := range cases {
		got := parsePage(tc.pageStr, tc.limitStr)
		if got.Number != tc.page || got.Limit != tc.limit {
			t.Fatalf("parsePage(%q, %q) = %+v", tc.pageStr, tc.limitStr, got)
		}
	}
}

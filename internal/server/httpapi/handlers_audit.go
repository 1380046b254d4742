package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleIssueProjectKey(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	rec, err := s.projKeys.Issue(r.Context(),
		chi.URLParam(r, "projectID"), actor.UserID, chi.URLParam(r, "workspaceID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "project key issued", rec)
}

func (s *Server) handleListProjectKeys(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	recs, err := s.projKeys.ListByUser(r.Context(), actor.UserID, chi.URLParam(r, "workspaceID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "ok", recs)
}

func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := parsePage(q.Get("page"), q.Get("limit"))

	entries, total, err := s.audit.Query(r.Context(), chi.URLParam(r, "workspaceID"), page)
	if err != nil {
		respondError(w, err)
		return
	}
	respondPage(w, "ok", entries, total, page.Number, page.Limit)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= maxPageLimit {
		limit = n
	}

	records, err := s.audit.Activity(r.Context(), chi.URLParam(r, "projectID"), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "ok", records)
}

package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zecrypt/vault/internal/server/models"
	"github.com/zecrypt/vault/internal/server/services"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type secretBody struct {
	Title   string         `json:"title"`
	Tags    []string       `json:"tags"`
	Payload map[string]any `json:"payload"`
}

func scopeFrom(r *http.Request) services.Scope {
	return services.Scope{
		WorkspaceID: chi.URLParam(r, "workspaceID"),
		ProjectID:   chi.URLParam(r, "projectID"),
	}
}

func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var body secretBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	secret, err := s.vault.Create(r.Context(), scopeFrom(r), services.CreateSecretInput{
		SecretType: chi.URLParam(r, "secretType"),
		Title:      body.Title,
		Tags:       body.Tags,
		Payload:    body.Payload,
	}, actorFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, "secret created", secret)
}

func (s *Server) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := s.vault.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "ok", secret)
}

func (s *Server) handleResolveSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := s.vault.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "ok", secret)
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := parsePage(q.Get("page"), q.Get("limit"))

	var sort models.SecretSort
	switch q.Get("sort_by") {
	case "title":
		sort.Field = models.SortByTitle
	case "created_at":
		sort.Field = models.SortByCreatedAt
	}
	sort.Descending = q.Get("order") == "desc"

	filters := models.SecretFilters{Title: q.Get("title")}
	if tags := q.Get("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filters.Tags = append(filters.Tags, t)
			}
		}
	}

	items, total, err := s.vault.List(r.Context(), scopeFrom(r),
		models.SecretType(chi.URLParam(r, "secretType")), filters, sort, page)
	if err != nil {
		respondError(w, err)
		return
	}
	respondPage(w, "ok", items, total, page.Number, page.Limit)
}

func (s *Server) handleUpdateSecret(w http.ResponseWriter, r *http.Request) {
	var body secretBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	secret, err := s.vault.Update(r.Context(), chi.URLParam(r, "id"), services.UpdateSecretInput{
		Title:   body.Title,
		Tags:    body.Tags,
		Payload: body.Payload,
	}, actorFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "secret updated", secret)
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Delete(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "secret deleted", nil)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.vault.Tags(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, "ok", tags)
}

func parsePage(pageStr, limitStr string) models.Page {
	page := models.Page{Number: 1, Limit: defaultPageLimit}
	if n, err := strconv.Atoi(pageStr); err == nil && n > 0 {
		page.Number = n
	}
	if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
		if n > maxPageLimit {
			n = maxPageLimit
		}
		page.Limit = n
	}
	return page
}

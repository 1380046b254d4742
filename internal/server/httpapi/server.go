package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zecrypt/vault/internal/logging"
	"github.com/zecrypt/vault/internal/server/auth"
	"github.com/zecrypt/vault/internal/server/metrics"
	"github.com/zecrypt/vault/internal/server/services"
)

// Server bundles the handlers with their service dependencies.
type Server struct {
	vault     *services.SecretVault
	keys      *services.IdentityKeyStore
	projKeys  *services.ProjectKeyManager
	twoFactor *services.TwoFactorAuthManager
	audit     *services.AuditTrail
	metrics   *metrics.Metrics
	logger    logging.Logger
	jwtSecret []byte
}

func NewServer(vault *services.SecretVault, keys *services.IdentityKeyStore, projKeys *services.ProjectKeyManager, twoFactor *services.TwoFactorAuthManager, audit *services.AuditTrail, m *metrics.Metrics, logger logging.Logger, jwtSecret []byte) *Server {
	return &Server{
		vault:     vault,
		keys:      keys,
		projKeys:  projKeys,
		twoFactor: twoFactor,
		audit:     audit,
		metrics:   m,
		logger:    logger,
		jwtSecret: jwtSecret,
	}
}

// Routes builds the router. Session bootstrap and signup are open (the
// upstream identity provider authenticates them before they reach us);
// two-factor endpoints take a two-step token; everything else needs a
// full token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/session", s.handleStartSession)

		r.Group(func(r chi.Router) {
			r.Use(s.requireScope(auth.ScopeTwoStep))
			r.Post("/2fa/provision", s.handleProvision)
			r.Post("/2fa/verify", s.handleVerify)
			r.Post("/2fa/recovery", s.handleVerifyRecovery)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireScope(auth.ScopeFull))

			r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
				r.Route("/projects/{projectID}", func(r chi.Router) {
					r.Post("/secrets/{secretType}", s.handleCreateSecret)
					r.Get("/secrets/{secretType}", s.handleListSecrets)
					r.Get("/tags", s.handleTags)
					r.Post("/key", s.handleIssueProjectKey)
					r.Get("/activity", s.handleActivity)
				})
				r.Get("/keys", s.handleListProjectKeys)
				r.Get("/audit", s.handleAuditQuery)
			})

			r.Route("/secrets/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSecret)
				r.Put("/", s.handleUpdateSecret)
				r.Delete("/", s.handleDeleteSecret)
				// Record lookup for audit references: also finds
				// soft-deleted rows.
				r.Get("/record", s.handleResolveSecret)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, "ok", nil)
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appAsset "github.com/agentchain/agentchain/internal/application/asset"
	appAuth "github.com/agentchain/agentchain/internal/application/auth"
	"github.com/agentchain/agentchain/internal/domain/registration"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	authSvc             *appAuth.Service
	assetSvc            *appAsset.Service
	refreshCookieName   string
	refreshCookieSecure bool
	refreshTTL          time.Duration
	maxUploadBytes      int64
}

func NewServer(
	authSvc *appAuth.Service,
	assetSvc *appAsset.Service,
	refreshCookieName string,
	refreshCookieSecure bool,
	refreshTTL time.Duration,
	maxUploadBytes int64,
) *Server {
	return &Server{
		authSvc:             authSvc,
		assetSvc:            assetSvc,
		refreshCookieName:   refreshCookieName,
		refreshCookieSecure: refreshCookieSecure,
		refreshTTL:          refreshTTL,
		maxUploadBytes:      maxUploadBytes,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/login", func(r chi.Router) {
		r.Get("/nonce", s.loginNonce)
		r.Post("/verify", s.loginVerify)
		r.Post("/refresh", s.loginRefresh)
		r.Post("/logout", s.loginLogout)
	})

	r.Route("/{kind}", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/upload", s.uploadBundle)
		r.Post("/transaction", s.buildTransaction)
		r.Post("/complete", s.completeRegistration)
		r.Get("/assets", s.listAssets)
		r.Get("/assets/{signature}", s.getAsset)
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func kindFromRequest(r *http.Request) (registration.Kind, error) {
	return registration.ParseKind(chi.URLParam(r, "kind"))
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

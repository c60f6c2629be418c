package httpapi

import (
	"errors"
	"net/http"
	"time"

	appAuth "github.com/agentchain/agentchain/internal/application/auth"
)

type verifyRequest struct {
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
}

func (s *Server) loginNonce(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	nonce, err := s.authSvc.IssueNonce(r.Context(), wallet)
	if err != nil {
		respondError(w, http.StatusBadRequest, "NONCE_UNAVAILABLE", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

func (s *Server) loginVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	result, err := s.authSvc.VerifyLogin(r.Context(), req.Wallet, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, appAuth.ErrNonceExpired):
			respondError(w, http.StatusUnauthorized, "NONCE_EXPIRED", err.Error())
		case errors.Is(err, appAuth.ErrInvalidSignature):
			respondError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", err.Error())
		case errors.Is(err, appAuth.ErrWalletRequired):
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}

	s.setRefreshCookie(w, result.RefreshToken)
	respondJSON(w, http.StatusOK, map[string]string{"token": result.Token})
}

func (s *Server) loginRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.authSvc.Refresh(r.Context(), s.refreshTokenFromRequest(r))
	if err != nil {
		if errors.Is(err, appAuth.ErrRefreshInvalid) {
			s.clearRefreshCookie(w)
			respondError(w, http.StatusUnauthorized, "REFRESH_INVALID", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	// Rotation: the old refresh token is already dead server-side.
	s.setRefreshCookie(w, result.RefreshToken)
	respondJSON(w, http.StatusOK, map[string]string{"token": result.Token})
}

func (s *Server) loginLogout(w http.ResponseWriter, r *http.Request) {
	_ = s.authSvc.Logout(r.Context(), s.refreshTokenFromRequest(r))
	s.clearRefreshCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) refreshTokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    token,
		Path:     "/login",
		Expires:  time.Now().Add(s.refreshTTL),
		HttpOnly: true,
		Secure:   s.refreshCookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     "/login",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.refreshCookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

package registrar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/wallet"
)

// Session owns the client-local access token and performs challenge-response
// login against the backend. Exactly one access token slot exists per
// Session; all mutation goes through this type. The long-lived refresh
// credential is an httpOnly cookie held in the client's jar, never in
// application state.
type Session struct {
	backendURL string
	wallet     wallet.Wallet
	logger     zerolog.Logger
	jar        http.CookieJar
	client     *http.Client

	mu      sync.Mutex
	address string
	token   string
	refresh *refreshCall
}

// refreshCall is the shared in-flight refresh operation. Concurrent 401
// observers await the same result instead of issuing duplicate refreshes.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// NewSession creates an unauthenticated session bound to a wallet agent.
func NewSession(backendURL string, w wallet.Wallet, logger zerolog.Logger) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	s := &Session{
		backendURL: strings.TrimRight(backendURL, "/"),
		wallet:     w,
		logger:     logger.With().Str("service", "session").Logger(),
		jar:        jar,
	}
	s.client = &http.Client{
		Transport: &authTransport{session: s},
		Jar:       jar,
		Timeout:   60 * time.Second,
	}
	return s, nil
}

// Client returns the HTTP client whose transport attaches the bearer token
// and performs the single-shot refresh-and-replay on 401 responses.
func (s *Session) Client() *http.Client {
	return s.client
}

// BackendURL returns the backend base URL.
func (s *Session) BackendURL() string {
	return s.backendURL
}

// WalletAddress returns the authenticated wallet, empty when logged out.
func (s *Session) WalletAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Token returns the current access token, empty when logged out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Authenticated reports whether a session is live.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Login performs the challenge-response flow: connect the wallet, fetch a
// fresh nonce, sign it, and exchange the signature for an access token. Any
// previously cached token is discarded on failure.
func (s *Session) Login(ctx context.Context) error {
	if s.wallet == nil {
		return wallet.ErrUnavailable
	}
	address, err := s.wallet.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", wallet.ErrUnavailable, err)
	}

	nonce, err := s.fetchNonce(ctx, address)
	if err != nil {
		return err
	}

	sig, err := s.wallet.SignMessage(ctx, []byte(nonce))
	if err != nil {
		if errors.Is(err, wallet.ErrRejected) {
			return err
		}
		return fmt.Errorf("sign nonce: %w", err)
	}

	token, err := s.verifyLogin(ctx, address, base64.StdEncoding.EncodeToString(sig))
	if err != nil {
		s.clear()
		return err
	}

	s.mu.Lock()
	s.address = address
	s.token = token
	s.mu.Unlock()
	s.logger.Info().Str("wallet", address).Msg("session established")
	return nil
}

// Logout revokes the refresh credential server-side (best effort) and
// destroys the client-local session state.
func (s *Session) Logout(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.backendURL+"/login/logout", nil)
	if err == nil {
		if resp, err := s.bareClient().Do(req); err == nil {
			drainBody(resp)
		}
	}
	s.clear()
	s.logger.Info().Msg("session destroyed")
}

func (s *Session) fetchNonce(ctx context.Context, address string) (string, error) {
	u := s.backendURL + "/login/nonce?wallet=" + url.QueryEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.bareClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNonceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp)
		return "", fmt.Errorf("%w: %v", ErrNonceUnavailable, apiErr)
	}
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Nonce == "" {
		return "", fmt.Errorf("%w: malformed nonce response", ErrNonceUnavailable)
	}
	return out.Nonce, nil
}

func (s *Session) verifyLogin(ctx context.Context, address, signature string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"wallet":    address,
		"signature": signature,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.backendURL+"/login/verify", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.bareClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("login verify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp)
		switch apiErr.Code {
		case "NONCE_EXPIRED":
			return "", fmt.Errorf("%w: %s", ErrNonceExpiredOrConsumed, apiErr.Message)
		case "INVALID_SIGNATURE":
			return "", fmt.Errorf("%w: %s", ErrInvalidSignature, apiErr.Message)
		default:
			return "", fmt.Errorf("login verify: %v", apiErr)
		}
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Token == "" {
		return "", errors.New("login verify: malformed token response")
	}
	return out.Token, nil
}

// refreshToken obtains a fresh access token after a 401. Refreshes are
// coalesced: if the stored token already differs from the one the failing
// request used, another refresh has completed and its token is returned; if
// a refresh is in flight, the caller awaits it. A failed refresh destroys
// the session.
func (s *Session) refreshToken(ctx context.Context, staleToken string) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.token != staleToken {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	if s.refresh != nil {
		call := s.refresh
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	s.refresh = call
	s.mu.Unlock()

	// Detached from the originating request so one cancelled waiter does
	// not fail the refresh for everyone awaiting it.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	token, err := s.doRefresh(rctx)
	cancel()

	s.mu.Lock()
	if err != nil {
		s.clearLocked()
	} else {
		s.token = token
	}
	s.refresh = nil
	s.mu.Unlock()

	call.token, call.err = token, err
	close(call.done)

	if err != nil {
		s.logger.Warn().Err(err).Msg("session destroyed after refresh failure")
	} else {
		s.logger.Debug().Msg("access token refreshed")
	}
	return token, err
}

func (s *Session) doRefresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.backendURL+"/login/refresh", nil)
	if err != nil {
		return "", err
	}
	resp, err := s.bareClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp)
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, apiErr)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Token == "" {
		return "", fmt.Errorf("%w: malformed refresh response", ErrRefreshFailed)
	}
	return out.Token, nil
}

// bareClient shares the cookie jar but bypasses the auth transport, so the
// refresh call itself can never recurse into another refresh.
func (s *Session) bareClient() *http.Client {
	return &http.Client{Jar: s.jar, Timeout: 15 * time.Second}
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.token = ""
	s.address = ""
}

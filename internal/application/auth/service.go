package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/domain/authn"
)

// Authentication failures surfaced to the API layer.
var (
	ErrWalletRequired = errors.New("wallet is required")
	// ErrNonceExpired covers both a timed-out nonce and one that was already
	// consumed; a nonce is single-use.
	ErrNonceExpired     = errors.New("nonce expired or consumed")
	ErrInvalidSignature = errors.New("signature does not verify")
	ErrRefreshInvalid   = errors.New("refresh token invalid or expired")
	ErrTokenInvalid     = errors.New("access token invalid or expired")
)

const jwtIssuer = "agentchain"

type nonceEntry struct {
	nonce     string
	expiresAt time.Time
}

// Service handles wallet-based authentication: nonce challenges, signature
// verification, JWT access tokens, and rotating refresh tokens. Nonces are
// held in memory only; a restart invalidates outstanding challenges, which is
// harmless because a client just fetches a new one.
type Service struct {
	secret      []byte
	refreshRepo authn.RefreshTokenRepository
	accessTTL   time.Duration
	refreshTTL  time.Duration
	nonceTTL    time.Duration
	logger      zerolog.Logger

	mu     sync.Mutex
	nonces map[string]nonceEntry
}

// NewService creates an auth service.
func NewService(secret []byte, refreshRepo authn.RefreshTokenRepository, accessTTL, refreshTTL, nonceTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		secret:      secret,
		refreshRepo: refreshRepo,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		nonceTTL:    nonceTTL,
		logger:      logger.With().Str("service", "auth").Logger(),
		nonces:      make(map[string]nonceEntry),
	}
}

// LoginResult contains the issued credentials. The refresh token travels to
// the client exactly once, as an httpOnly cookie; only its hash is stored.
type LoginResult struct {
	Wallet       string
	Token        string
	RefreshToken string
}

// IssueNonce creates a fresh single-use login challenge for a wallet,
// replacing any outstanding one.
func (s *Service) IssueNonce(_ context.Context, wallet string) (string, error) {
	if _, err := decodeWallet(wallet); err != nil {
		return "", err
	}
	nonce, err := randomToken()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	for k, e := range s.nonces {
		if now.After(e.expiresAt) {
			delete(s.nonces, k)
		}
	}
	s.nonces[wallet] = nonceEntry{nonce: nonce, expiresAt: now.Add(s.nonceTTL)}
	s.mu.Unlock()

	return nonce, nil
}

// VerifyLogin consumes the wallet's outstanding nonce and checks the ed25519
// signature over it. On success it issues an access token and a refresh
// token.
func (s *Service) VerifyLogin(ctx context.Context, wallet, signature string) (*LoginResult, error) {
	pub, err := decodeWallet(wallet)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	entry, ok := s.nonces[wallet]
	delete(s.nonces, wallet)
	s.mu.Unlock()
	if !ok || now.After(entry.expiresAt) {
		return nil, ErrNonceExpired
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, ErrInvalidSignature
	}
	if !ed25519.Verify(pub, []byte(entry.nonce), sig) {
		return nil, ErrInvalidSignature
	}

	result, err := s.issueCredentials(ctx, wallet)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("wallet", wallet).Msg("wallet login")
	return result, nil
}

// Refresh rotates the refresh token and issues a fresh access token. The
// presented token is invalidated whether or not rotation succeeds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, ErrRefreshInvalid
	}
	tokenHash := hashToken(refreshToken)
	stored, err := s.refreshRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrRefreshInvalid
	}
	if err := s.refreshRepo.DeleteByTokenHash(ctx, tokenHash); err != nil {
		return nil, err
	}
	if stored.IsExpired(time.Now().UTC()) {
		return nil, ErrRefreshInvalid
	}

	result, err := s.issueCredentials(ctx, stored.Wallet)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("wallet", stored.Wallet).Msg("access token refreshed")
	return result, nil
}

// Logout revokes every refresh token held by the wallet that owns the
// presented one, so a logout ends all of the wallet's sessions.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	tokenHash := hashToken(refreshToken)
	stored, err := s.refreshRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}
	if err := s.refreshRepo.DeleteByWallet(ctx, stored.Wallet); err != nil {
		return err
	}
	s.logger.Info().Str("wallet", stored.Wallet).Msg("wallet logout")
	return nil
}

// Authenticate validates an access token and returns the wallet it names.
func (s *Service) Authenticate(token string) (string, error) {
	if token == "" {
		return "", ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(jwtIssuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// PurgeExpired removes expired refresh tokens.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	return s.refreshRepo.DeleteExpired(ctx)
}

func (s *Service) issueCredentials(ctx context.Context, wallet string) (*LoginResult, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    jwtIssuer,
		Subject:   wallet,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}
	if err := s.refreshRepo.Create(ctx, &authn.RefreshToken{
		TokenHash: hashToken(refresh),
		Wallet:    wallet,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}); err != nil {
		return nil, err
	}

	return &LoginResult{Wallet: wallet, Token: access, RefreshToken: refresh}, nil
}

func decodeWallet(wallet string) (ed25519.PublicKey, error) {
	if wallet == "" {
		return nil, ErrWalletRequired
	}
	raw, err := base64.StdEncoding.DecodeString(wallet)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: not a valid ed25519 public key", ErrWalletRequired)
	}
	return ed25519.PublicKey(raw), nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchain/agentchain/internal/domain/authn"
)

type memoryRefreshRepo struct {
	mu     sync.Mutex
	nextID int64
	byHash map[string]*authn.RefreshToken
}

func newMemoryRefreshRepo() *memoryRefreshRepo {
	return &memoryRefreshRepo{byHash: make(map[string]*authn.RefreshToken)}
}

func (r *memoryRefreshRepo) Create(_ context.Context, t *authn.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	cp := *t
	r.byHash[t.TokenHash] = &cp
	return nil
}

func (r *memoryRefreshRepo) GetByTokenHash(_ context.Context, tokenHash string) (*authn.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[tokenHash]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memoryRefreshRepo) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byHash, tokenHash)
	return nil
}

func (r *memoryRefreshRepo) DeleteByWallet(_ context.Context, wallet string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, t := range r.byHash {
		if t.Wallet == wallet {
			delete(r.byHash, h)
		}
	}
	return nil
}

func (r *memoryRefreshRepo) DeleteExpired(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for h, t := range r.byHash {
		if t.IsExpired(now) {
			delete(r.byHash, h)
			n++
		}
	}
	return n, nil
}

func newTestService(t *testing.T, nonceTTL, refreshTTL time.Duration) *Service {
	t.Helper()
	return NewService([]byte("test-secret"), newMemoryRefreshRepo(), 15*time.Minute, refreshTTL, nonceTTL, zerolog.Nop())
}

func testWallet(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(pub), priv
}

func signNonce(priv ed25519.PrivateKey, nonce string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(nonce)))
}

func TestIssueNonceRejectsBadWallet(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)

	_, err := svc.IssueNonce(context.Background(), "")
	assert.ErrorIs(t, err, ErrWalletRequired)

	_, err = svc.IssueNonce(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, ErrWalletRequired)

	// Right base64, wrong length.
	_, err = svc.IssueNonce(context.Background(), base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrWalletRequired)
}

func TestVerifyLoginIssuesCredentials(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)
	walletAddr, priv := testWallet(t)

	nonce, err := svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	result, err := svc.VerifyLogin(context.Background(), walletAddr, signNonce(priv, nonce))
	require.NoError(t, err)
	assert.Equal(t, walletAddr, result.Wallet)
	assert.NotEmpty(t, result.RefreshToken)

	subject, err := svc.Authenticate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, walletAddr, subject)
}

func TestNonceIsSingleUse(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)
	walletAddr, priv := testWallet(t)

	nonce, err := svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)
	sig := signNonce(priv, nonce)

	_, err = svc.VerifyLogin(context.Background(), walletAddr, sig)
	require.NoError(t, err)

	_, err = svc.VerifyLogin(context.Background(), walletAddr, sig)
	assert.ErrorIs(t, err, ErrNonceExpired)
}

func TestExpiredNonceRejected(t *testing.T) {
	svc := newTestService(t, -time.Second, time.Hour)
	walletAddr, priv := testWallet(t)

	nonce, err := svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)

	_, err = svc.VerifyLogin(context.Background(), walletAddr, signNonce(priv, nonce))
	assert.ErrorIs(t, err, ErrNonceExpired)
}

func TestVerifyLoginRejectsWrongSignature(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)
	walletAddr, priv := testWallet(t)

	_, err := svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)

	_, err = svc.VerifyLogin(context.Background(), walletAddr, signNonce(priv, "some other message"))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)
	walletAddr, priv := testWallet(t)

	nonce, err := svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)
	login, err := svc.VerifyLogin(context.Background(), walletAddr, signNonce(priv, nonce))
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, walletAddr, rotated.Wallet)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	// The consumed refresh token is dead even though it never expired.
	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	// The rotated one still works.
	_, err = svc.Refresh(context.Background(), rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	svc := newTestService(t, time.Minute, -time.Minute)
	walletAddr, priv := testWallet(t)

	nonce, err := svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)
	login, err := svc.VerifyLogin(context.Background(), walletAddr, signNonce(priv, nonce))
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)
	walletAddr, priv := testWallet(t)

	nonce, err := svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)
	login, err := svc.VerifyLogin(context.Background(), walletAddr, signNonce(priv, nonce))
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken))
	_, err = svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestLogoutRevokesAllWalletSessions(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)
	walletAddr, priv := testWallet(t)

	nonce, err := svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)
	first, err := svc.VerifyLogin(context.Background(), walletAddr, signNonce(priv, nonce))
	require.NoError(t, err)

	nonce, err = svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)
	second, err := svc.VerifyLogin(context.Background(), walletAddr, signNonce(priv, nonce))
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), second.RefreshToken))

	// Both sessions are gone, not just the one that logged out.
	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
	_, err = svc.Refresh(context.Background(), second.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestLogoutIgnoresUnknownToken(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)
	require.NoError(t, svc.Logout(context.Background(), "never-issued"))
}

func TestAuthenticateRejectsTamperedToken(t *testing.T) {
	svc := newTestService(t, time.Minute, time.Hour)
	walletAddr, priv := testWallet(t)

	nonce, err := svc.IssueNonce(context.Background(), walletAddr)
	require.NoError(t, err)
	login, err := svc.VerifyLogin(context.Background(), walletAddr, signNonce(priv, nonce))
	require.NoError(t, err)

	_, err = svc.Authenticate(login.Token + "x")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.Authenticate("")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	other := NewService([]byte("other-secret"), newMemoryRefreshRepo(), 15*time.Minute, time.Hour, time.Minute, zerolog.Nop())
	_, err = other.Authenticate(login.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

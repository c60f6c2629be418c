package authn

import (
	"context"
	"time"
)

// RefreshToken is the long-lived credential backing transparent access-token
// refresh. Only its hash is stored.
type RefreshToken struct {
	ID        int64     `json:"id"`
	TokenHash string    `json:"-"`
	Wallet    string    `json:"wallet"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RefreshTokenRepository persists refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, t *RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteByWallet(ctx context.Context, wallet string) error
	DeleteExpired(ctx context.Context) (int, error)
}

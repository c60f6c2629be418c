package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentchain/agentchain/internal/domain/authn"
)

// RefreshTokenRepository implements authn.RefreshTokenRepository.
type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepository(pool *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *authn.RefreshToken) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO refresh_tokens (token_hash, wallet, created_at, expires_at)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, t.TokenHash, t.Wallet, t.CreatedAt, t.ExpiresAt).Scan(&t.ID)
}

func (r *RefreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*authn.RefreshToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, token_hash, wallet, created_at, expires_at
		FROM refresh_tokens WHERE token_hash=$1
	`, tokenHash)
	var t authn.RefreshToken
	if err := row.Scan(&t.ID, &t.TokenHash, &t.Wallet, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *RefreshTokenRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash=$1`, tokenHash)
	return err
}

func (r *RefreshTokenRepository) DeleteByWallet(ctx context.Context, wallet string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE wallet=$1`, wallet)
	return err
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

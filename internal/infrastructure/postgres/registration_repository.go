package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentchain/agentchain/internal/domain/registration"
)

// RegistrationRepository implements registration.Repository.
type RegistrationRepository struct {
	pool *pgxpool.Pool
}

func NewRegistrationRepository(pool *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{pool: pool}
}

func (r *RegistrationRepository) Create(ctx context.Context, rec *registration.Record) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO registrations
		(record_id, kind, name, description, royalty_bps, is_derivative, content_ref, content_hash, owner, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, rec.RecordID, rec.Kind, rec.Name, rec.Description, rec.RoyaltyBps, rec.IsDerivative,
		rec.ContentRef, rec.ContentHash, rec.Owner, rec.Signature, rec.CreatedAt).Scan(&rec.ID)
}

func (r *RegistrationRepository) GetBySignature(ctx context.Context, signature string) (*registration.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, record_id, kind, name, description, royalty_bps, is_derivative, content_ref, content_hash, owner, signature, created_at
		FROM registrations WHERE signature=$1
	`, signature)
	return scanRegistration(row)
}

func (r *RegistrationRepository) GetByContentRef(ctx context.Context, contentRef string) (*registration.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, record_id, kind, name, description, royalty_bps, is_derivative, content_ref, content_hash, owner, signature, created_at
		FROM registrations WHERE content_ref=$1
	`, contentRef)
	return scanRegistration(row)
}

func (r *RegistrationRepository) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*registration.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, record_id, kind, name, description, royalty_bps, is_derivative, content_ref, content_hash, owner, signature, created_at
		FROM registrations WHERE owner=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*registration.Record, 0)
	for rows.Next() {
		rec, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRegistration(row pgx.Row) (*registration.Record, error) {
	var rec registration.Record
	if err := row.Scan(&rec.ID, &rec.RecordID, &rec.Kind, &rec.Name, &rec.Description, &rec.RoyaltyBps,
		&rec.IsDerivative, &rec.ContentRef, &rec.ContentHash, &rec.Owner, &rec.Signature, &rec.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

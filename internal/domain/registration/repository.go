package registration

import "context"

// Repository persists registration records.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetBySignature(ctx context.Context, signature string) (*Record, error)
	GetByContentRef(ctx context.Context, contentRef string) (*Record, error)
	ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*Record, error)
}

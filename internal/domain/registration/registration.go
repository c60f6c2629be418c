package registration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the asset families that can be registered.
type Kind string

const (
	KindModel   Kind = "model"
	KindDataset Kind = "dataset"
)

// ParseKind validates an asset kind from the wire.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindModel:
		return KindModel, nil
	case KindDataset:
		return KindDataset, nil
	default:
		return "", fmt.Errorf("unsupported asset kind: %s", raw)
	}
}

// SupportsDerivative reports whether the kind carries a derivative flag.
// Datasets do not.
func (k Kind) SupportsDerivative() bool {
	return k == KindModel
}

// Terms are the economic terms bound to a registration.
type Terms struct {
	RoyaltyBps   int   `json:"royaltyBps"`
	IsDerivative *bool `json:"isDerivative,omitempty"`
}

// Validate checks terms against the given kind.
func (t Terms) Validate(kind Kind) error {
	if t.RoyaltyBps < 0 || t.RoyaltyBps > 10000 {
		return fmt.Errorf("royalty basis points out of range: %d", t.RoyaltyBps)
	}
	if t.IsDerivative != nil && !kind.SupportsDerivative() {
		return fmt.Errorf("derivative flag not supported for kind %s", kind)
	}
	return nil
}

// Derivative resolves the optional flag to its effective value.
func (t Terms) Derivative() bool {
	return t.IsDerivative != nil && *t.IsDerivative
}

// Record is the durable backend identity of a registered asset, created
// only after on-chain finality is confirmed. The chain signature is the
// correlation key between the record and chain state.
type Record struct {
	ID           int64     `json:"id,omitempty"`
	RecordID     uuid.UUID `json:"recordId"`
	Kind         Kind      `json:"kind"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	RoyaltyBps   int       `json:"royaltyBps"`
	IsDerivative bool      `json:"isDerivative"`
	ContentRef   string    `json:"contentRef"`
	ContentHash  string    `json:"contentHash,omitempty"`
	Owner        string    `json:"owner"`
	Signature    string    `json:"signature"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate checks required record fields before persistence.
func (r *Record) Validate() error {
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(r.ContentRef) == "" {
		return errors.New("content ref is required")
	}
	if strings.TrimSpace(r.Owner) == "" {
		return errors.New("owner is required")
	}
	if strings.TrimSpace(r.Signature) == "" {
		return errors.New("signature is required")
	}
	if r.RoyaltyBps < 0 || r.RoyaltyBps > 10000 {
		return fmt.Errorf("royalty basis points out of range: %d", r.RoyaltyBps)
	}
	return nil
}

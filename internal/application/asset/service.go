package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/chain/protocol"
	"github.com/agentchain/agentchain/internal/chain/rpcclient"
	"github.com/agentchain/agentchain/internal/domain/content"
	"github.com/agentchain/agentchain/internal/domain/registration"
)

var (
	// ErrTermsRejected: the terms policy expression evaluated to false.
	ErrTermsRejected = errors.New("terms rejected by policy")
	// ErrContentNotFound: the content ref has no stored bundle.
	ErrContentNotFound = errors.New("content not found")
	// ErrNotFinalized: the signature is not finalized on chain, so no record
	// may be created for it.
	ErrNotFinalized = errors.New("transaction not finalized on chain")
	// ErrAlreadyRegistered: the content ref is already bound to a different
	// signature.
	ErrAlreadyRegistered = errors.New("content already registered")
)

// ChainVerifier reports finality for a signature. Satisfied by the chain RPC
// client.
type ChainVerifier interface {
	SignatureStatus(ctx context.Context, signature string) (rpcclient.TxStatus, error)
}

// Service handles the backend half of asset registration: content intake,
// unsigned transaction construction, and post-finality record persistence.
type Service struct {
	records     registration.Repository
	store       content.Store
	chain       ChainVerifier
	termsPolicy string
	logger      zerolog.Logger
}

// NewService creates an asset service. termsPolicy is an optional boolean
// expression over royalty_bps, is_derivative and kind (plus file_count and
// total_bytes at upload time); empty means all terms are accepted.
func NewService(records registration.Repository, store content.Store, chain ChainVerifier, termsPolicy string, logger zerolog.Logger) *Service {
	return &Service{
		records:     records,
		store:       store,
		chain:       chain,
		termsPolicy: termsPolicy,
		logger:      logger.With().Str("service", "asset").Logger(),
	}
}

// UploadInput is a validated intake request.
type UploadInput struct {
	Kind        registration.Kind
	Name        string
	Description string
	Terms       registration.Terms
	Files       []content.File
}

// UploadResult reports where the bundle was stored.
type UploadResult struct {
	ContentRef    string
	ContentHash   string
	UploadedCount int
}

// Upload validates the bundle against the terms policy and stores it under a
// fresh content ref.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if _, err := registration.ParseKind(string(in.Kind)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.New("name is required")
	}
	if err := in.Terms.Validate(in.Kind); err != nil {
		return nil, err
	}
	if len(in.Files) == 0 {
		return nil, errors.New("at least one file is required")
	}

	var totalBytes int64
	for _, f := range in.Files {
		totalBytes += int64(len(f.Data))
	}
	params := s.policyParams(in.Kind, in.Terms)
	params["file_count"] = len(in.Files)
	params["total_bytes"] = totalBytes
	if err := s.checkPolicy(params); err != nil {
		return nil, err
	}

	ref := string(in.Kind) + "/" + uuid.NewString()
	result, err := s.store.Put(ctx, ref, in.Files)
	if err != nil {
		return nil, fmt.Errorf("store bundle: %w", err)
	}

	s.logger.Info().
		Str("content_ref", ref).
		Str("kind", string(in.Kind)).
		Int("files", result.Files).
		Int64("bytes", result.Bytes).
		Msg("bundle uploaded")
	return &UploadResult{
		ContentRef:    ref,
		ContentHash:   result.Digest,
		UploadedCount: result.Files,
	}, nil
}

// BuildInput names the content and terms an unsigned transaction binds.
type BuildInput struct {
	Kind       registration.Kind
	Owner      string
	ContentRef string
	Terms      registration.Terms
}

// BuildTransaction builds the unsigned registration envelope: the register
// instruction the client signs, plus an informational memo. Fee payer, anchor
// and signature are left for the client.
func (s *Service) BuildTransaction(ctx context.Context, in BuildInput) (string, error) {
	if _, err := registration.ParseKind(string(in.Kind)); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Owner) == "" {
		return "", errors.New("owner is required")
	}
	if err := in.Terms.Validate(in.Kind); err != nil {
		return "", err
	}
	if err := s.checkPolicy(s.policyParams(in.Kind, in.Terms)); err != nil {
		return "", err
	}

	exists, err := s.store.Exists(ctx, in.ContentRef)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrContentNotFound, in.ContentRef)
	}
	digest, err := s.store.Digest(ctx, in.ContentRef)
	if err != nil {
		return "", err
	}

	register, err := protocol.NewRegisterInstruction(protocol.RegisterAssetPayload{
		AssetKind:    string(in.Kind),
		ContentRef:   in.ContentRef,
		ContentHash:  digest,
		Owner:        in.Owner,
		RoyaltyBps:   in.Terms.RoyaltyBps,
		IsDerivative: in.Terms.Derivative(),
	})
	if err != nil {
		return "", err
	}
	memo, err := protocol.NewMemoInstruction("agentchain asset registration")
	if err != nil {
		return "", err
	}

	encoded, err := protocol.Transaction{
		Instructions: []protocol.Instruction{register, memo},
	}.Encode()
	if err != nil {
		return "", err
	}
	s.logger.Info().
		Str("content_ref", in.ContentRef).
		Str("owner", in.Owner).
		Msg("transaction envelope built")
	return encoded, nil
}

// CompleteInput finalizes a registration after chain finality.
type CompleteInput struct {
	Kind        registration.Kind
	Owner       string
	Name        string
	Description string
	Terms       registration.Terms
	ContentRef  string
	Signature   string
}

// Complete verifies on-chain finality for the signature and persists the
// registration record. Completing an already-recorded signature returns the
// existing record, so a client retry after a lost response is safe.
func (s *Service) Complete(ctx context.Context, in CompleteInput) (*registration.Record, error) {
	if strings.TrimSpace(in.Signature) == "" {
		return nil, errors.New("signature is required")
	}

	if existing, err := s.records.GetBySignature(ctx, in.Signature); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	status, err := s.chain.SignatureStatus(ctx, in.Signature)
	if err != nil {
		return nil, fmt.Errorf("verify finality: %w", err)
	}
	if !status.Finalized {
		return nil, fmt.Errorf("%w: %s", ErrNotFinalized, in.Signature)
	}

	if other, err := s.records.GetByContentRef(ctx, in.ContentRef); err != nil {
		return nil, err
	} else if other != nil {
		return nil, fmt.Errorf("%w: %s is held by %s", ErrAlreadyRegistered, in.ContentRef, other.Signature)
	}

	digest, err := s.store.Digest(ctx, in.ContentRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, in.ContentRef)
	}

	record := &registration.Record{
		RecordID:     uuid.New(),
		Kind:         in.Kind,
		Name:         in.Name,
		Description:  in.Description,
		RoyaltyBps:   in.Terms.RoyaltyBps,
		IsDerivative: in.Terms.Derivative(),
		ContentRef:   in.ContentRef,
		ContentHash:  digest,
		Owner:        in.Owner,
		Signature:    in.Signature,
		CreatedAt:    time.Now().UTC(),
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("signature", in.Signature).
		Str("record_id", record.RecordID.String()).
		Msg("registration recorded")
	return record, nil
}

// Get returns the record for a chain signature.
func (s *Service) Get(ctx context.Context, signature string) (*registration.Record, error) {
	return s.records.GetBySignature(ctx, signature)
}

// ListByOwner returns records owned by a wallet, newest first.
func (s *Service) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*registration.Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.records.ListByOwner(ctx, owner, limit, offset)
}

func (s *Service) policyParams(kind registration.Kind, terms registration.Terms) map[string]interface{} {
	return map[string]interface{}{
		"kind":          string(kind),
		"royalty_bps":   terms.RoyaltyBps,
		"is_derivative": terms.Derivative(),
	}
}

func (s *Service) checkPolicy(params map[string]interface{}) error {
	policy := strings.TrimSpace(s.termsPolicy)
	if policy == "" {
		return nil
	}
	expr, err := govaluate.NewEvaluableExpression(policy)
	if err != nil {
		return fmt.Errorf("invalid terms policy: %w", err)
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		return fmt.Errorf("evaluate terms policy: %w", err)
	}
	ok, isBool := result.(bool)
	if !isBool {
		return errors.New("terms policy did not evaluate to boolean")
	}
	if !ok {
		return ErrTermsRejected
	}
	return nil
}

package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/domain/registration"
)

// Finalizer persists the completed registration in the backend ledger. It
// runs only after a finality-confirmed receipt. A failure here leaves the
// asset registered on-chain and stored off-chain with no backend record; the
// error is surfaced, never swallowed.
type Finalizer struct {
	session *Session
	logger  zerolog.Logger
}

func NewFinalizer(session *Session, logger zerolog.Logger) *Finalizer {
	return &Finalizer{
		session: session,
		logger:  logger.With().Str("service", "finalizer").Logger(),
	}
}

// Finalize records the completed registration.
func (f *Finalizer) Finalize(ctx context.Context, bundle Bundle, contentRef string, receipt *Receipt) (*registration.Record, error) {
	if receipt == nil || !receipt.Finalized || receipt.Signature == "" {
		return nil, errors.New("finalize requires a finality-confirmed receipt")
	}

	payload := map[string]any{
		"name":        bundle.Name,
		"description": bundle.Description,
		"royalty_bps": bundle.Terms.RoyaltyBps,
		"s3_key":      contentRef,
		"signature":   receipt.Signature,
	}
	if bundle.Terms.IsDerivative != nil {
		payload["is_derivative"] = *bundle.Terms.IsDerivative
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &PersistenceError{Signature: receipt.Signature, err: err}
	}

	url := f.session.BackendURL() + "/" + string(bundle.Kind) + "/complete"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &PersistenceError{Signature: receipt.Signature, err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.session.Client().Do(req)
	if err != nil {
		return nil, &PersistenceError{Signature: receipt.Signature, err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &PersistenceError{Signature: receipt.Signature, err: decodeAPIError(resp)}
	}

	var record registration.Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, &PersistenceError{Signature: receipt.Signature, err: fmt.Errorf("malformed record response: %w", err)}
	}
	f.logger.Info().
		Str("signature", receipt.Signature).
		Str("content_ref", contentRef).
		Msg("registration persisted")
	return &record, nil
}

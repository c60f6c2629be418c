package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/chain/protocol"
	"github.com/agentchain/agentchain/internal/domain/registration"
)

// TransactionBuilder asks the backend for an unsigned transaction envelope
// bound to a content ref and economic terms.
type TransactionBuilder struct {
	session *Session
	logger  zerolog.Logger
}

func NewTransactionBuilder(session *Session, logger zerolog.Logger) *TransactionBuilder {
	return &TransactionBuilder{
		session: session,
		logger:  logger.With().Str("service", "txbuilder").Logger(),
	}
}

// Build returns the backend-built envelope. The saga consumes only the first
// instruction of the envelope; any additional instructions are part of the
// backend contract but intentionally unused here.
func (b *TransactionBuilder) Build(ctx context.Context, kind registration.Kind, contentRef string, terms registration.Terms) (protocol.Transaction, error) {
	payload := map[string]any{
		"s3_key":      contentRef,
		"royalty_bps": terms.RoyaltyBps,
	}
	if terms.IsDerivative != nil {
		payload["is_derivative"] = *terms.IsDerivative
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return protocol.Transaction{}, &BuildError{err: err}
	}

	url := b.session.BackendURL() + "/" + string(kind) + "/transaction"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return protocol.Transaction{}, &BuildError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.session.Client().Do(req)
	if err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			return protocol.Transaction{}, err
		}
		return protocol.Transaction{}, &BuildError{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return protocol.Transaction{}, &BuildError{err: decodeAPIError(resp)}
	}

	var out struct {
		Transaction string `json:"transaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return protocol.Transaction{}, &BuildError{err: fmt.Errorf("malformed transaction response: %w", err)}
	}
	envelope, err := protocol.Decode(out.Transaction)
	if err != nil {
		return protocol.Transaction{}, &BuildError{err: err}
	}
	if len(envelope.Instructions) == 0 {
		return protocol.Transaction{}, &BuildError{err: errors.New("envelope contains no instructions")}
	}
	b.logger.Info().
		Str("content_ref", contentRef).
		Int("instructions", len(envelope.Instructions)).
		Msg("transaction envelope built")
	return envelope, nil
}

package registrar

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/chain/protocol"
	"github.com/agentchain/agentchain/internal/chain/rpcclient"
)

// Receipt correlates chain state with the backend registration record. The
// signature is the durable cross-system key.
type Receipt struct {
	Signature string
	Finalized bool
}

// ChainSubmitter broadcasts a signed transaction and waits for finality. The
// confirmation wait is bounded: a confirm timeout is mandatory and expiry
// surfaces as a ConfirmationError rather than blocking forever.
type ChainSubmitter struct {
	chain          *rpcclient.Client
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         zerolog.Logger
}

func NewChainSubmitter(chain *rpcclient.Client, confirmTimeout, pollInterval time.Duration, logger zerolog.Logger) *ChainSubmitter {
	return &ChainSubmitter{
		chain:          chain,
		confirmTimeout: confirmTimeout,
		pollInterval:   pollInterval,
		logger:         logger.With().Str("service", "submitter").Logger(),
	}
}

// Submit broadcasts the raw transaction and blocks until finality is
// observed or the confirm timeout elapses.
func (s *ChainSubmitter) Submit(ctx context.Context, tx protocol.Transaction) (*Receipt, error) {
	signature, err := s.chain.Broadcast(ctx, tx)
	if err != nil {
		return nil, &SubmissionError{err: err}
	}
	s.logger.Info().Str("signature", signature).Msg("transaction broadcast")

	if err := s.chain.WaitForFinality(ctx, signature, s.confirmTimeout, s.pollInterval); err != nil {
		return nil, &ConfirmationError{Signature: signature, err: err}
	}
	s.logger.Info().Str("signature", signature).Msg("finality confirmed")
	return &Receipt{Signature: signature, Finalized: true}, nil
}

package registrar

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/chain/protocol"
	"github.com/agentchain/agentchain/internal/chain/rpcclient"
	"github.com/agentchain/agentchain/internal/wallet"
)

// SigningAdapter mediates between the saga and the injected wallet agent.
// The wallet capability is resolved explicitly; absence is detected before
// any chain RPC or backend call is made.
type SigningAdapter struct {
	wallet  wallet.Wallet
	chain   *rpcclient.Client
	session *Session
	logger  zerolog.Logger
}

func NewSigningAdapter(w wallet.Wallet, chain *rpcclient.Client, session *Session, logger zerolog.Logger) *SigningAdapter {
	return &SigningAdapter{
		wallet:  w,
		chain:   chain,
		session: session,
		logger:  logger.With().Str("service", "signer").Logger(),
	}
}

// Detect resolves the wallet agent and returns its address. It fails with
// wallet.ErrUnavailable before any network call when the agent is missing,
// and rejects a wallet that does not match the authenticated session.
func (a *SigningAdapter) Detect(ctx context.Context) (string, error) {
	if a.wallet == nil {
		return "", wallet.ErrUnavailable
	}
	address, err := a.wallet.Connect(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", wallet.ErrUnavailable, err)
	}
	if sessionWallet := a.session.WalletAddress(); sessionWallet != "" && sessionWallet != address {
		return "", fmt.Errorf("wallet %s does not match authenticated session %s", address, sessionWallet)
	}
	return address, nil
}

// Sign rebuilds the transaction for the user's wallet and requests a
// signature. The chain anchor is fetched fresh at call time so the signed
// transaction can never carry a stale anchor; only the envelope's first
// instruction is used. A user decline surfaces as wallet.ErrRejected and is
// never retried.
func (a *SigningAdapter) Sign(ctx context.Context, envelope protocol.Transaction) (protocol.Transaction, error) {
	address, err := a.Detect(ctx)
	if err != nil {
		return protocol.Transaction{}, err
	}
	if len(envelope.Instructions) == 0 {
		return protocol.Transaction{}, errors.New("envelope contains no instructions")
	}

	anchor, err := a.chain.LatestAnchor(ctx)
	if err != nil {
		return protocol.Transaction{}, fmt.Errorf("fetch chain anchor: %w", err)
	}

	tx := protocol.Transaction{
		FeePayer:     address,
		RecentAnchor: anchor.Anchor,
		Instructions: envelope.Instructions[:1],
	}

	signed, err := a.wallet.SignTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, wallet.ErrRejected) {
			return protocol.Transaction{}, err
		}
		return protocol.Transaction{}, fmt.Errorf("sign transaction: %w", err)
	}
	if signed.FeePayer != address {
		return protocol.Transaction{}, fmt.Errorf("signed fee payer %s does not match wallet %s", signed.FeePayer, address)
	}
	if err := signed.Verify(); err != nil {
		return protocol.Transaction{}, fmt.Errorf("signed transaction invalid: %w", err)
	}
	a.logger.Info().
		Str("wallet", address).
		Uint64("anchor_height", anchor.Height).
		Msg("transaction signed")
	return signed, nil
}

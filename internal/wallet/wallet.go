package wallet

import (
	"context"
	"errors"

	"github.com/agentchain/agentchain/internal/chain/protocol"
)

// ErrUnavailable reports that no wallet agent is present or it failed to
// connect. It is raised before any network call is made.
var ErrUnavailable = errors.New("wallet agent unavailable")

// ErrRejected reports that the user declined a signing request. It is never
// retried automatically.
var ErrRejected = errors.New("user rejected signing request")

// Wallet is the injected signing capability. It holds private key material
// and never exposes it; callers receive addresses and signatures only.
type Wallet interface {
	// Connect returns the wallet address (base64 raw ed25519 public key).
	Connect(ctx context.Context) (string, error)
	// SignMessage signs an arbitrary message, e.g. a login nonce.
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	// SignTransaction signs a chain transaction naming the wallet as fee payer.
	SignTransaction(ctx context.Context, tx protocol.Transaction) (protocol.Transaction, error)
}

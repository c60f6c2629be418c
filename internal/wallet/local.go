package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/agentchain/agentchain/internal/chain/protocol"
)

// LocalWallet signs with an in-process ed25519 key. It stands in for the
// browser wallet agent in the CLI and in tests.
type LocalWallet struct {
	priv    ed25519.PrivateKey
	address string
}

// NewLocalWallet wraps an existing private key.
func NewLocalWallet(priv ed25519.PrivateKey) (*LocalWallet, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &LocalWallet{
		priv:    priv,
		address: base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// Generate creates a wallet with a fresh random key.
func Generate() (*LocalWallet, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewLocalWallet(priv)
}

// NewFromEnv loads the wallet key from WALLET_SEED (hex-encoded 32-byte
// ed25519 seed).
func NewFromEnv() (*LocalWallet, error) {
	raw := strings.TrimSpace(os.Getenv("WALLET_SEED"))
	if raw == "" {
		return nil, errors.New("WALLET_SEED is required")
	}
	return NewFromSeedHex(raw)
}

// NewFromSeedHex builds a wallet from a hex-encoded ed25519 seed.
func NewFromSeedHex(seedHex string) (*LocalWallet, error) {
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet seed must be %d bytes", ed25519.SeedSize)
	}
	return NewLocalWallet(ed25519.NewKeyFromSeed(seed))
}

// Address returns the wallet address without connecting.
func (w *LocalWallet) Address() string {
	return w.address
}

func (w *LocalWallet) Connect(_ context.Context) (string, error) {
	return w.address, nil
}

func (w *LocalWallet) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	return ed25519.Sign(w.priv, message), nil
}

func (w *LocalWallet) SignTransaction(_ context.Context, tx protocol.Transaction) (protocol.Transaction, error) {
	if err := tx.Sign(w.priv); err != nil {
		return protocol.Transaction{}, err
	}
	return tx, nil
}

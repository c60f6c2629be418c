package protocol

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// InstructionKind defines supported on-chain instruction types.
type InstructionKind string

const (
	InstructionAssetRegister InstructionKind = "ASSET_REGISTER"
	InstructionMemo          InstructionKind = "MEMO"
)

var validKinds = map[InstructionKind]struct{}{
	InstructionAssetRegister: {},
	InstructionMemo:          {},
}

// Instruction is one state change carried by a transaction.
type Instruction struct {
	Kind    InstructionKind `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// RegisterAssetPayload binds stored content to on-chain ownership terms.
type RegisterAssetPayload struct {
	AssetKind    string `json:"asset_kind"`
	ContentRef   string `json:"content_ref"`
	ContentHash  string `json:"content_hash,omitempty"`
	Owner        string `json:"owner"` // base64 raw ed25519 public key
	RoyaltyBps   int    `json:"royalty_bps"`
	IsDerivative bool   `json:"is_derivative,omitempty"`
}

// MemoPayload is an informational instruction with no state effect.
type MemoPayload struct {
	Text string `json:"text"`
}

// Transaction is the signed command envelope replicated by the chain.
// An unsigned envelope (as built by the backend) carries instructions only;
// fee payer, recent anchor and signature are filled in client-side.
type Transaction struct {
	FeePayer     string        `json:"fee_payer,omitempty"`     // base64 raw ed25519 public key
	RecentAnchor string        `json:"recent_anchor,omitempty"` // anchor observed at signing time
	Instructions []Instruction `json:"instructions"`
	Signature    string        `json:"signature,omitempty"` // base64url raw signature
}

type txSignable struct {
	FeePayer     string        `json:"fee_payer"`
	RecentAnchor string        `json:"recent_anchor"`
	Instructions []Instruction `json:"instructions"`
}

// CanonicalBytes returns the deterministic signing payload.
func (t Transaction) CanonicalBytes() ([]byte, error) {
	signable := txSignable{
		FeePayer:     strings.TrimSpace(t.FeePayer),
		RecentAnchor: strings.TrimSpace(t.RecentAnchor),
		Instructions: t.Instructions,
	}
	return json.Marshal(signable)
}

// ValidateBasic checks required fields of a fully formed transaction.
func (t Transaction) ValidateBasic() error {
	if strings.TrimSpace(t.FeePayer) == "" {
		return errors.New("fee_payer is required")
	}
	if strings.TrimSpace(t.RecentAnchor) == "" {
		return errors.New("recent_anchor is required")
	}
	if len(t.Instructions) == 0 {
		return errors.New("at least one instruction is required")
	}
	for i, ix := range t.Instructions {
		if _, ok := validKinds[ix.Kind]; !ok {
			return fmt.Errorf("instruction %d: unsupported kind: %s", i, ix.Kind)
		}
		if len(ix.Payload) == 0 {
			return fmt.Errorf("instruction %d: payload is required", i)
		}
	}
	if strings.TrimSpace(t.Signature) == "" {
		return errors.New("signature is required")
	}
	return nil
}

// Sign sets the transaction signature for the given private key. The fee
// payer must already name the key's public half.
func (t *Transaction) Sign(privateKey ed25519.PrivateKey) error {
	if len(privateKey) != ed25519.PrivateKeySize {
		return errors.New("invalid private key")
	}
	pub := base64.StdEncoding.EncodeToString(privateKey.Public().(ed25519.PublicKey))
	if strings.TrimSpace(t.FeePayer) == "" {
		t.FeePayer = pub
	} else if t.FeePayer != pub {
		return errors.New("fee_payer does not match signing key")
	}
	payload, err := t.CanonicalBytes()
	if err != nil {
		return err
	}
	sig := ed25519.Sign(privateKey, payload)
	// Signatures travel in RPC URL paths, so the URL-safe alphabet is required.
	t.Signature = base64.RawURLEncoding.EncodeToString(sig)
	return nil
}

// Verify validates the transaction signature against the fee payer key.
func (t Transaction) Verify() error {
	if err := t.ValidateBasic(); err != nil {
		return err
	}
	pubRaw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(t.FeePayer))
	if err != nil {
		return fmt.Errorf("invalid fee_payer: %w", err)
	}
	if len(pubRaw) != ed25519.PublicKeySize {
		return errors.New("invalid fee_payer size")
	}
	sigRaw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(t.Signature))
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	if len(sigRaw) != ed25519.SignatureSize {
		return errors.New("invalid signature size")
	}
	payload, err := t.CanonicalBytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pubRaw), payload, sigRaw) {
		return errors.New("signature verification failed")
	}
	return nil
}

// Encode serializes the transaction to base64 for wire transfer.
func (t Transaction) Encode() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses a base64 wire transaction.
func Decode(encoded string) (Transaction, error) {
	var t Transaction
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return t, fmt.Errorf("invalid transaction encoding: %w", err)
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("invalid transaction payload: %w", err)
	}
	return t, nil
}

// DecodePayload decodes instruction payloads.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// NewRegisterInstruction builds an ASSET_REGISTER instruction.
func NewRegisterInstruction(p RegisterAssetPayload) (Instruction, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Kind: InstructionAssetRegister, Payload: data}, nil
}

// NewMemoInstruction builds a MEMO instruction.
func NewMemoInstruction(text string) (Instruction, error) {
	data, err := json.Marshal(MemoPayload{Text: text})
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Kind: InstructionMemo, Payload: data}, nil
}

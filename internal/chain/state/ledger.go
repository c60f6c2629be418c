package state

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/agentchain/agentchain/internal/chain/protocol"
)

// AnchorWindow is how many recent anchors remain valid for new transactions.
const AnchorWindow = 32

const genesisSeed = "agentchain-genesis"

// AssetEntry is a finalized on-chain asset registration.
type AssetEntry struct {
	Signature    string `json:"signature"`
	AssetKind    string `json:"assetKind"`
	ContentRef   string `json:"contentRef"`
	ContentHash  string `json:"contentHash,omitempty"`
	Owner        string `json:"owner"`
	RoyaltyBps   int    `json:"royaltyBps"`
	IsDerivative bool   `json:"isDerivative,omitempty"`
	Height       uint64 `json:"height"`
}

// TxStatus reports whether a signature has been finalized.
type TxStatus struct {
	Signature string `json:"signature"`
	Finalized bool   `json:"finalized"`
	Height    uint64 `json:"height,omitempty"`
}

// Ledger is the deterministic chain state machine. All transactions reaching
// Apply have been committed through consensus, so an applied transaction is
// final.
type Ledger struct {
	mu        sync.RWMutex
	height    uint64
	anchors   []string
	assets    map[string]*AssetEntry
	byContent map[string]string
	txHeights map[string]uint64
}

// NewLedger creates an empty ledger at the genesis anchor.
func NewLedger() *Ledger {
	l := &Ledger{
		assets:    make(map[string]*AssetEntry),
		byContent: make(map[string]string),
		txHeights: make(map[string]uint64),
	}
	l.anchors = []string{deriveAnchor(0, genesisSeed)}
	return l
}

// LatestAnchor returns the current anchor and chain height.
func (l *Ledger) LatestAnchor() (string, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.anchors[len(l.anchors)-1], l.height
}

// Status reports finality for one transaction signature.
func (l *Ledger) Status(signature string) TxStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	height, ok := l.txHeights[signature]
	return TxStatus{Signature: signature, Finalized: ok, Height: height}
}

// Asset returns the registered entry for a signature, or nil.
func (l *Ledger) Asset(signature string) *AssetEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.assets[signature]; ok {
		copied := *e
		return &copied
	}
	return nil
}

// AssetByContentRef returns the entry owning a content ref, or nil.
func (l *Ledger) AssetByContentRef(contentRef string) *AssetEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if sig, ok := l.byContent[contentRef]; ok {
		if e, ok := l.assets[sig]; ok {
			copied := *e
			return &copied
		}
	}
	return nil
}

// Height returns the number of applied transactions.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// Apply validates and applies one signed transaction. Validation happens
// before any mutation so a rejected transaction leaves no partial state.
func (l *Ledger) Apply(tx protocol.Transaction) error {
	if err := tx.Verify(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.txHeights[tx.Signature]; ok {
		return fmt.Errorf("duplicate transaction: %s", tx.Signature)
	}
	if !l.anchorValidLocked(tx.RecentAnchor) {
		return errors.New("recent_anchor expired or unknown")
	}

	entries := make([]*AssetEntry, 0, len(tx.Instructions))
	for i, ix := range tx.Instructions {
		switch ix.Kind {
		case protocol.InstructionAssetRegister:
			entry, err := l.validateRegisterLocked(tx, ix)
			if err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			entries = append(entries, entry)
		case protocol.InstructionMemo:
			// no state effect
		default:
			return fmt.Errorf("instruction %d: unsupported kind: %s", i, ix.Kind)
		}
	}

	l.height++
	l.txHeights[tx.Signature] = l.height
	for _, e := range entries {
		e.Height = l.height
		l.assets[e.Signature] = e
		l.byContent[e.ContentRef] = e.Signature
	}
	l.advanceAnchorLocked()
	return nil
}

func (l *Ledger) validateRegisterLocked(tx protocol.Transaction, ix protocol.Instruction) (*AssetEntry, error) {
	payload, err := protocol.DecodePayload[protocol.RegisterAssetPayload](ix.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid register payload: %w", err)
	}
	if strings.TrimSpace(payload.ContentRef) == "" {
		return nil, errors.New("content_ref is required")
	}
	if payload.Owner != tx.FeePayer {
		return nil, errors.New("owner must match fee payer")
	}
	if payload.RoyaltyBps < 0 || payload.RoyaltyBps > 10000 {
		return nil, fmt.Errorf("royalty_bps out of range: %d", payload.RoyaltyBps)
	}
	if _, ok := l.byContent[payload.ContentRef]; ok {
		return nil, fmt.Errorf("content already registered: %s", payload.ContentRef)
	}
	return &AssetEntry{
		Signature:    tx.Signature,
		AssetKind:    payload.AssetKind,
		ContentRef:   payload.ContentRef,
		ContentHash:  payload.ContentHash,
		Owner:        payload.Owner,
		RoyaltyBps:   payload.RoyaltyBps,
		IsDerivative: payload.IsDerivative,
	}, nil
}

func (l *Ledger) anchorValidLocked(anchor string) bool {
	for _, a := range l.anchors {
		if a == anchor {
			return true
		}
	}
	return false
}

func (l *Ledger) advanceAnchorLocked() {
	prev := l.anchors[len(l.anchors)-1]
	l.anchors = append(l.anchors, deriveAnchor(l.height, prev))
	if len(l.anchors) > AnchorWindow {
		l.anchors = l.anchors[len(l.anchors)-AnchorWindow:]
	}
}

func deriveAnchor(height uint64, prev string) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	sum := blake2b.Sum256(append(buf[:], []byte(prev)...))
	return base64.StdEncoding.EncodeToString(sum[:])
}

type snapshot struct {
	Height    uint64                 `json:"height"`
	Anchors   []string               `json:"anchors"`
	Assets    map[string]*AssetEntry `json:"assets"`
	ByContent map[string]string      `json:"byContent"`
	TxHeights map[string]uint64      `json:"txHeights"`
}

// Marshal serializes ledger state for consensus snapshots.
func (l *Ledger) Marshal() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.Marshal(snapshot{
		Height:    l.height,
		Anchors:   l.anchors,
		Assets:    l.assets,
		ByContent: l.byContent,
		TxHeights: l.txHeights,
	})
}

// Unmarshal restores ledger state from a consensus snapshot.
func (l *Ledger) Unmarshal(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height = snap.Height
	l.anchors = snap.Anchors
	if len(l.anchors) == 0 {
		l.anchors = []string{deriveAnchor(0, genesisSeed)}
	}
	l.assets = snap.Assets
	if l.assets == nil {
		l.assets = make(map[string]*AssetEntry)
	}
	l.byContent = snap.ByContent
	if l.byContent == nil {
		l.byContent = make(map[string]string)
	}
	l.txHeights = snap.TxHeights
	if l.txHeights == nil {
		l.txHeights = make(map[string]uint64)
	}
	return nil
}

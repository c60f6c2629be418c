package state

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/agentchain/agentchain/internal/chain/protocol"
)

func signedRegisterTx(t *testing.T, l *Ledger, priv ed25519.PrivateKey, contentRef string) protocol.Transaction {
	t.Helper()
	anchor, _ := l.LatestAnchor()
	ix, err := protocol.NewRegisterInstruction(protocol.RegisterAssetPayload{
		AssetKind:  "model",
		ContentRef: contentRef,
		Owner:      encodeKey(priv),
		RoyaltyBps: 500,
	})
	if err != nil {
		t.Fatalf("build instruction: %v", err)
	}
	tx := protocol.Transaction{RecentAnchor: anchor, Instructions: []protocol.Instruction{ix}}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}

func encodeKey(priv ed25519.PrivateKey) string {
	pub := priv.Public().(ed25519.PublicKey)
	return base64.StdEncoding.EncodeToString(pub)
}

func TestApplyRegistersAsset(t *testing.T) {
	l := NewLedger()
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	tx := signedRegisterTx(t, l, priv, "model/k1")

	if err := l.Apply(tx); err != nil {
		t.Fatalf("apply: %v", err)
	}

	status := l.Status(tx.Signature)
	if !status.Finalized || status.Height != 1 {
		t.Fatalf("expected finalized at height 1, got %+v", status)
	}
	entry := l.Asset(tx.Signature)
	if entry == nil || entry.ContentRef != "model/k1" || entry.RoyaltyBps != 500 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if l.AssetByContentRef("model/k1") == nil {
		t.Fatal("expected lookup by content ref")
	}
}

func TestApplyRejectsDuplicateSignature(t *testing.T) {
	l := NewLedger()
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	tx := signedRegisterTx(t, l, priv, "model/k1")

	if err := l.Apply(tx); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := l.Apply(tx); err == nil {
		t.Fatal("expected duplicate rejection")
	}
	if l.Height() != 1 {
		t.Fatalf("duplicate must not advance height, got %d", l.Height())
	}
}

func TestApplyRejectsDuplicateContentRef(t *testing.T) {
	l := NewLedger()
	_, priv, _ := ed25519.GenerateKey(rand.Reader)

	if err := l.Apply(signedRegisterTx(t, l, priv, "model/k1")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := l.Apply(signedRegisterTx(t, l, priv, "model/k1")); err == nil {
		t.Fatal("expected content ref conflict")
	}
}

func TestApplyRejectsUnknownAnchor(t *testing.T) {
	l := NewLedger()
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	tx := signedRegisterTx(t, l, priv, "model/k1")
	tx.RecentAnchor = deriveAnchor(99, "elsewhere")
	tx.Signature = ""
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("re-sign: %v", err)
	}

	if err := l.Apply(tx); err == nil {
		t.Fatal("expected anchor rejection")
	}
}

func TestApplyRejectsForeignOwner(t *testing.T) {
	l := NewLedger()
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	_, other, _ := ed25519.GenerateKey(rand.Reader)

	anchor, _ := l.LatestAnchor()
	ix, err := protocol.NewRegisterInstruction(protocol.RegisterAssetPayload{
		AssetKind:  "model",
		ContentRef: "model/k1",
		Owner:      encodeKey(other),
		RoyaltyBps: 100,
	})
	if err != nil {
		t.Fatalf("build instruction: %v", err)
	}
	tx := protocol.Transaction{RecentAnchor: anchor, Instructions: []protocol.Instruction{ix}}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := l.Apply(tx); err == nil {
		t.Fatal("expected owner mismatch rejection")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := NewLedger()
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	tx := signedRegisterTx(t, l, priv, "model/k1")
	if err := l.Apply(tx); err != nil {
		t.Fatalf("apply: %v", err)
	}

	data, err := l.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored := NewLedger()
	if err := restored.Unmarshal(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.Height() != 1 {
		t.Fatalf("expected height 1, got %d", restored.Height())
	}
	if !restored.Status(tx.Signature).Finalized {
		t.Fatal("expected restored finality")
	}
	a1, _ := l.LatestAnchor()
	a2, _ := restored.LatestAnchor()
	if a1 != a2 {
		t.Fatal("expected matching anchors after restore")
	}
}

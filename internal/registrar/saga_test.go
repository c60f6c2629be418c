package registrar

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchain/agentchain/internal/chain/protocol"
	"github.com/agentchain/agentchain/internal/domain/registration"
	"github.com/agentchain/agentchain/internal/wallet"
)

// sagaHarness runs an in-process backend and chain node covering the whole
// registration pipeline.
type sagaHarness struct {
	backend *httptest.Server
	chain   *httptest.Server

	uploads    atomic.Int64
	broadcasts atomic.Int64
	completes  atomic.Int64

	failComplete atomic.Bool

	mu        sync.Mutex
	finalized map[string]bool
}

func newSagaHarness(t *testing.T) *sagaHarness {
	t.Helper()
	h := &sagaHarness{finalized: make(map[string]bool)}

	backend := http.NewServeMux()
	backend.HandleFunc("GET /login/nonce", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"nonce": "nonce-7"})
	})
	backend.HandleFunc("POST /login/verify", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Wallet    string `json:"wallet"`
			Signature string `json:"signature"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		pub, err := base64.StdEncoding.DecodeString(body.Wallet)
		require.NoError(t, err)
		sig, err := base64.StdEncoding.DecodeString(body.Signature)
		require.NoError(t, err)
		if !ed25519.Verify(ed25519.PublicKey(pub), []byte("nonce-7"), sig) {
			writeAPIError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature does not verify")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "tok-1"})
	})
	backend.HandleFunc("POST /model/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			writeAPIError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "missing or stale token")
			return
		}
		h.uploads.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"s3_key": "model/k2", "uploadedCount": 1})
	})
	backend.HandleFunc("POST /model/transaction", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			S3Key      string `json:"s3_key"`
			RoyaltyBps int    `json:"royalty_bps"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		register, err := protocol.NewRegisterInstruction(protocol.RegisterAssetPayload{
			AssetKind:  "model",
			ContentRef: body.S3Key,
			RoyaltyBps: body.RoyaltyBps,
		})
		require.NoError(t, err)
		memo, err := protocol.NewMemoInstruction("asset registration")
		require.NoError(t, err)
		encoded, err := protocol.Transaction{Instructions: []protocol.Instruction{register, memo}}.Encode()
		require.NoError(t, err)
		writeJSON(w, http.StatusOK, map[string]string{"transaction": encoded})
	})
	backend.HandleFunc("POST /model/complete", func(w http.ResponseWriter, r *http.Request) {
		h.completes.Add(1)
		if h.failComplete.Load() {
			writeAPIError(w, http.StatusInternalServerError, "DB_UNAVAILABLE", "records database unreachable")
			return
		}
		var body struct {
			Name       string `json:"name"`
			S3Key      string `json:"s3_key"`
			Signature  string `json:"signature"`
			RoyaltyBps int    `json:"royalty_bps"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, registration.Record{
			RecordID:   uuid.New(),
			Kind:       registration.KindModel,
			Name:       body.Name,
			RoyaltyBps: body.RoyaltyBps,
			ContentRef: body.S3Key,
			Owner:      "owner",
			Signature:  body.Signature,
			CreatedAt:  time.Now().UTC(),
		})
	})
	h.backend = httptest.NewServer(backend)
	t.Cleanup(h.backend.Close)

	chain := http.NewServeMux()
	chain.HandleFunc("GET /v1/chain/anchor", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"anchor": "a-1", "height": 1})
	})
	chain.HandleFunc("POST /v1/chain/transactions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Transaction string `json:"transaction"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		tx, err := protocol.Decode(body.Transaction)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
			return
		}
		if err := tx.Verify(); err != nil {
			writeAPIError(w, http.StatusBadRequest, "TX_REJECTED", err.Error())
			return
		}
		h.broadcasts.Add(1)
		h.mu.Lock()
		h.finalized[tx.Signature] = true
		h.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"signature": tx.Signature, "finalized": true, "height": 2})
	})
	chain.HandleFunc("GET /v1/chain/transactions/", func(w http.ResponseWriter, r *http.Request) {
		sig := r.URL.Path[len("/v1/chain/transactions/"):]
		h.mu.Lock()
		final := h.finalized[sig]
		h.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"signature": sig, "finalized": final})
	})
	h.chain = httptest.NewServer(chain)
	t.Cleanup(h.chain.Close)

	return h
}

func (h *sagaHarness) config(w wallet.Wallet, observer Observer) Config {
	return Config{
		BackendURL:     h.backend.URL,
		ChainRPCURL:    h.chain.URL,
		Wallet:         w,
		ConfirmTimeout: 2 * time.Second,
		PollInterval:   10 * time.Millisecond,
		Logger:         zerolog.Nop(),
		Observer:       observer,
	}
}

// decliningWallet simulates a user rejecting the signature prompt.
type decliningWallet struct {
	*wallet.LocalWallet
}

func (decliningWallet) SignTransaction(context.Context, protocol.Transaction) (protocol.Transaction, error) {
	return protocol.Transaction{}, wallet.ErrRejected
}

func TestRegisterEndToEnd(t *testing.T) {
	h := newSagaHarness(t)
	w, err := wallet.Generate()
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []State
	r, err := New(h.config(w, func(state State, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		seen = append(seen, state)
	}))
	require.NoError(t, err)
	require.NoError(t, r.Session().Login(context.Background()))

	record, err := r.Register(context.Background(), testBundle())
	require.NoError(t, err)

	assert.Equal(t, StateDone, r.Status())
	assert.Equal(t, "model/k2", record.ContentRef)
	assert.NotEmpty(t, record.Signature)
	h.mu.Lock()
	assert.True(t, h.finalized[record.Signature], "record signature must match the finalized transaction")
	h.mu.Unlock()

	mu.Lock()
	assert.Equal(t, []State{StateUploading, StateGeneratingTx, StateSigning, StateSubmitting, StateDone}, seen)
	mu.Unlock()

	r.Acknowledge()
	assert.Equal(t, StateIdle, r.Status())
}

func TestRegisterWithoutWalletAgent(t *testing.T) {
	h := newSagaHarness(t)
	r, err := New(h.config(nil, nil))
	require.NoError(t, err)

	_, err = r.Register(context.Background(), testBundle())
	assert.ErrorIs(t, err, wallet.ErrUnavailable)
	assert.Equal(t, StateIdle, r.Status())
	assert.Equal(t, int64(0), h.uploads.Load(), "no side effect before the wallet check")
	assert.Equal(t, int64(0), h.broadcasts.Load())
}

func TestRegisterRequiresSession(t *testing.T) {
	h := newSagaHarness(t)
	w, err := wallet.Generate()
	require.NoError(t, err)
	r, err := New(h.config(w, nil))
	require.NoError(t, err)

	_, err = r.Register(context.Background(), testBundle())
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, int64(0), h.uploads.Load())
}

func TestRegisterUserDeclinesSignature(t *testing.T) {
	h := newSagaHarness(t)
	lw, err := wallet.Generate()
	require.NoError(t, err)
	w := decliningWallet{lw}

	r, err := New(h.config(w, nil))
	require.NoError(t, err)
	require.NoError(t, r.Session().Login(context.Background()))

	_, err = r.Register(context.Background(), testBundle())
	assert.ErrorIs(t, err, wallet.ErrRejected)

	assert.Equal(t, StateIdle, r.Status())
	assert.Equal(t, int64(0), h.broadcasts.Load(), "a declined signature never reaches the chain")
	assert.Equal(t, int64(1), h.uploads.Load(), "uploaded content stays behind; nothing compensates it")
}

func TestRegisterFinalizeFailure(t *testing.T) {
	h := newSagaHarness(t)
	h.failComplete.Store(true)
	w, err := wallet.Generate()
	require.NoError(t, err)

	r, err := New(h.config(w, nil))
	require.NoError(t, err)
	require.NoError(t, r.Session().Login(context.Background()))

	_, err = r.Register(context.Background(), testBundle())

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.NotEmpty(t, persistErr.Signature)

	// The asset is finalized on-chain even though the backend has no record.
	h.mu.Lock()
	assert.True(t, h.finalized[persistErr.Signature])
	h.mu.Unlock()
	assert.Equal(t, int64(1), h.broadcasts.Load())
	assert.NotEqual(t, StateDone, r.Status())
	assert.Equal(t, StateIdle, r.Status())
}

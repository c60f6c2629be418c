package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatestAnchor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chain/anchor", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"anchor": "a1", "height": 7})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	anchor, err := c.LatestAnchor(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a1", anchor.Anchor)
	require.Equal(t, uint64(7), anchor.Height)
}

func TestBroadcastRejectionReturnsRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "TX_REJECTED", "message": "duplicate transaction"})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.SignatureStatus(context.Background(), "sig")
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, "TX_REJECTED", rpcErr.Code)
	require.Equal(t, http.StatusBadRequest, rpcErr.StatusCode)
}

func TestWaitForFinalityEventuallyFinalized(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		finalized := calls.Add(1) >= 3
		_ = json.NewEncoder(w).Encode(map[string]any{"signature": "sig", "finalized": finalized})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	err := c.WaitForFinality(context.Background(), "sig", 2*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	require.GreaterOrEqual(t, calls.Load(), int64(3))
}

func TestWaitForFinalityTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"signature": "sig", "finalized": false})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	err := c.WaitForFinality(context.Background(), "sig", 60*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForFinalityRequiresTimeout(t *testing.T) {
	c := New("http://localhost:0", nil)
	err := c.WaitForFinality(context.Background(), "sig", 0, 10*time.Millisecond)
	require.Error(t, err)
}

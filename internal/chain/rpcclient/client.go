package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentchain/agentchain/internal/chain/protocol"
)

// Client talks to a chain node's RPC surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a chain RPC client. A nil httpClient falls back to a default
// client with a 15s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Anchor is the chain's current anchor point.
type Anchor struct {
	Anchor string `json:"anchor"`
	Height uint64 `json:"height"`
}

// TxStatus is the finality report for one signature.
type TxStatus struct {
	Signature string `json:"signature"`
	Finalized bool   `json:"finalized"`
	Height    uint64 `json:"height,omitempty"`
}

// RPCError is a structured error response from the chain node.
type RPCError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain rpc: %s: %s", e.Code, e.Message)
}

// LatestAnchor fetches the current anchor. Callers sign against a fresh
// anchor fetched at signing time, never a cached one.
func (c *Client) LatestAnchor(ctx context.Context) (Anchor, error) {
	var out Anchor
	if err := c.get(ctx, "/v1/chain/anchor", &out); err != nil {
		return Anchor{}, err
	}
	return out, nil
}

// Broadcast submits one signed transaction and returns its signature. The
// node replicates through consensus before responding, so a successful
// broadcast response already carries commitment, but callers still confirm
// finality through SignatureStatus.
func (c *Client) Broadcast(ctx context.Context, tx protocol.Transaction) (string, error) {
	encoded, err := tx.Encode()
	if err != nil {
		return "", err
	}
	var out TxStatus
	if err := c.post(ctx, "/v1/chain/transactions", map[string]string{"transaction": encoded}, &out); err != nil {
		return "", err
	}
	if out.Signature == "" {
		return "", fmt.Errorf("chain rpc: broadcast response missing signature")
	}
	return out.Signature, nil
}

// SignatureStatus reports finality for one signature.
func (c *Client) SignatureStatus(ctx context.Context, signature string) (TxStatus, error) {
	var out TxStatus
	if err := c.get(ctx, "/v1/chain/transactions/"+signature, &out); err != nil {
		return TxStatus{}, err
	}
	return out, nil
}

// WaitForFinality polls until the signature is finalized or the timeout
// elapses. The timeout is required: a non-positive value is rejected rather
// than waiting forever.
func (c *Client) WaitForFinality(ctx context.Context, signature string, timeout, pollInterval time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("chain rpc: confirmation timeout is required")
	}
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		status, err := c.SignatureStatus(ctx, signature)
		if err == nil && status.Finalized {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("finality not observed for %s: %w", signature, err)
			}
			return fmt.Errorf("finality not observed for %s within %s: %w", signature, timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var rpcErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(data, &rpcErr); err != nil || rpcErr.Error == "" {
			return &RPCError{StatusCode: resp.StatusCode, Code: "UNKNOWN", Message: strings.TrimSpace(string(data))}
		}
		return &RPCError{StatusCode: resp.StatusCode, Code: rpcErr.Error, Message: rpcErr.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/raft"

	"github.com/agentchain/agentchain/internal/chain/consensus"
	"github.com/agentchain/agentchain/internal/chain/protocol"
)

// Server provides the chain RPC consumed by clients: latest anchor,
// transaction broadcast and finality lookup.
type Server struct {
	node *consensus.Node
}

func NewServer(node *consensus.Node) *Server {
	return &Server{node: node}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Route("/v1/chain", func(r chi.Router) {
		r.Get("/anchor", s.latestAnchor)
		r.Post("/transactions", s.broadcast)
		r.Get("/transactions/{signature}", s.txStatus)
		r.Get("/assets/{signature}", s.getAsset)
		r.Post("/raft/join", s.raftJoin)
		r.Post("/raft/remove", s.raftRemove)
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"nodeId":   s.node.ID(),
		"state":    s.node.State(),
		"leader":   s.node.LeaderAddr(),
		"leaderId": s.node.LeaderNodeID(),
		"height":   s.node.Ledger().Height(),
	})
}

func (s *Server) latestAnchor(w http.ResponseWriter, _ *http.Request) {
	anchor, height := s.node.Ledger().LatestAnchor()
	respondJSON(w, http.StatusOK, map[string]any{
		"anchor": anchor,
		"height": height,
	})
}

type broadcastRequest struct {
	Transaction string `json:"transaction"` // base64 wire transaction
}

func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	if !s.node.IsLeader() {
		respondError(w, http.StatusConflict, "NOT_LEADER", "submit to leader", map[string]any{
			"leader":    s.node.LeaderAddr(),
			"leader_id": s.node.LeaderNodeID(),
		})
		return
	}
	var req broadcastRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	tx, err := protocol.Decode(req.Transaction)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	if err := s.node.BroadcastTx(r.Context(), tx); err != nil {
		if isLeadershipErr(err) {
			respondError(w, http.StatusConflict, "NOT_LEADER", err.Error(), map[string]any{
				"leader":    s.node.LeaderAddr(),
				"leader_id": s.node.LeaderNodeID(),
			})
			return
		}
		respondError(w, http.StatusBadRequest, "TX_REJECTED", err.Error(), nil)
		return
	}
	status := s.node.Ledger().Status(tx.Signature)
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) txStatus(w http.ResponseWriter, r *http.Request) {
	signature := chi.URLParam(r, "signature")
	if signature == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "signature is required", nil)
		return
	}
	respondJSON(w, http.StatusOK, s.node.Ledger().Status(signature))
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	signature := chi.URLParam(r, "signature")
	entry := s.node.Ledger().Asset(signature)
	if entry == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "asset not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

type raftJoinRequest struct {
	NodeID   string `json:"node_id"`
	RaftAddr string `json:"raft_addr"`
}

func (s *Server) raftJoin(w http.ResponseWriter, r *http.Request) {
	var req raftJoinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	if err := s.node.AddVoter(r.Context(), req.NodeID, req.RaftAddr); err != nil {
		respondError(w, http.StatusBadRequest, "JOIN_FAILED", err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

type raftRemoveRequest struct {
	NodeID string `json:"node_id"`
}

func (s *Server) raftRemove(w http.ResponseWriter, r *http.Request) {
	var req raftRemoveRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	if err := s.node.RemoveServer(r.Context(), req.NodeID); err != nil {
		respondError(w, http.StatusBadRequest, "REMOVE_FAILED", err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func isLeadershipErr(err error) bool {
	return errors.Is(err, raft.ErrNotLeader) ||
		errors.Is(err, raft.ErrLeadershipLost) ||
		errors.Is(err, raft.ErrLeadershipTransferInProgress)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := map[string]any{
		"error":   code,
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	respondJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

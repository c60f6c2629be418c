package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/chain/consensus"
	chainrpc "github.com/agentchain/agentchain/internal/chain/rpc"
	"github.com/agentchain/agentchain/internal/config"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "chainnode").Logger()

	cfg, err := config.LoadChain()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("data dir error")
	}

	node, err := consensus.NewNode(consensus.Config{
		NodeID:         cfg.NodeID,
		RaftAddr:       cfg.RaftAddr,
		DataDir:        cfg.DataDir,
		Bootstrap:      cfg.Bootstrap,
		SnapshotRetain: 2,
		ApplyTimeout:   cfg.ApplyTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("chain node startup failed")
	}
	defer func() {
		_ = node.Shutdown()
	}()

	if !cfg.Bootstrap && cfg.JoinEndpoint != "" {
		if err := joinCluster(cfg); err != nil {
			logger.Warn().Err(err).Str("endpoint", cfg.JoinEndpoint).Msg("cluster join failed")
		} else {
			logger.Info().Str("endpoint", cfg.JoinEndpoint).Msg("joined cluster")
		}
	}

	if cfg.StartupWaitLeader > 0 {
		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.StartupWaitLeader)
		if leader, err := node.WaitForLeader(waitCtx, 150*time.Millisecond); err == nil {
			logger.Info().Str("leader", leader).Msg("leader elected")
		}
		cancel()
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      chainrpc.NewServer(node).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.HTTPAddr).
			Str("node_id", cfg.NodeID).
			Str("raft_addr", cfg.RaftAddr).
			Bool("bootstrap", cfg.Bootstrap).
			Msg("chain rpc started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = node.Shutdown()
}

// joinCluster asks an existing node to add this one as a voter, retrying
// while the cluster comes up.
func joinCluster(cfg *config.ChainConfig) error {
	body, err := json.Marshal(map[string]string{
		"node_id":   cfg.NodeID,
		"raft_addr": cfg.RaftAddr,
	})
	if err != nil {
		return err
	}
	endpoint := cfg.JoinEndpoint + "/v1/chain/raft/join"

	client := &http.Client{Timeout: 5 * time.Second}
	var lastErr error
	for attempt := 0; attempt < cfg.JoinRetries; attempt++ {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err == nil {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("join returned status %d", resp.StatusCode)
		}
		lastErr = err
		time.Sleep(cfg.JoinRetryDelay)
	}
	if lastErr == nil {
		lastErr = errors.New("join failed")
	}
	return lastErr
}

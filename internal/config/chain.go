package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ChainConfig holds devnet chain node configuration, loaded from environment.
type ChainConfig struct {
	NodeID            string        `env:"CHAIN_NODE_ID"`
	RaftAddr          string        `env:"CHAIN_RAFT_ADDR" envDefault:"127.0.0.1:17000"`
	HTTPAddr          string        `env:"CHAIN_HTTP_ADDR" envDefault:"0.0.0.0:18080"`
	DataDir           string        `env:"CHAIN_DATA_DIR"`
	Bootstrap         bool          `env:"CHAIN_BOOTSTRAP" envDefault:"false"`
	ApplyTimeout      time.Duration `env:"CHAIN_APPLY_TIMEOUT" envDefault:"5s"`
	JoinEndpoint      string        `env:"CHAIN_JOIN_ENDPOINT"`
	JoinRetries       int           `env:"CHAIN_JOIN_RETRIES" envDefault:"30"`
	JoinRetryDelay    time.Duration `env:"CHAIN_JOIN_RETRY_DELAY" envDefault:"1s"`
	StartupWaitLeader time.Duration `env:"CHAIN_STARTUP_WAIT_LEADER" envDefault:"4s"`
}

// LoadChain reads chain node configuration from environment. The node ID
// falls back to the hostname and the data directory derives from the node ID.
func LoadChain() (*ChainConfig, error) {
	var cfg ChainConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.NodeID == "" {
		hostname, _ := os.Hostname()
		cfg.NodeID = strings.TrimSpace(hostname)
	}
	if cfg.NodeID == "" {
		cfg.NodeID = "node-1"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join("tmp", "chainnode", cfg.NodeID)
	}
	cfg.JoinEndpoint = strings.TrimRight(strings.TrimSpace(cfg.JoinEndpoint), "/")
	return &cfg, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/domain/registration"
	"github.com/agentchain/agentchain/internal/registrar"
	"github.com/agentchain/agentchain/internal/wallet"
)

func main() {
	var (
		backendURL     = flag.String("backend", "http://127.0.0.1:8080", "backend base URL")
		chainURL       = flag.String("chain", "http://127.0.0.1:18080", "chain RPC base URL")
		kindRaw        = flag.String("kind", "model", "asset kind: model or dataset")
		name           = flag.String("name", "", "asset name")
		description    = flag.String("description", "", "asset description")
		royaltyBps     = flag.Int("royalty-bps", 0, "royalty in basis points (0-10000)")
		derivative     = flag.Bool("derivative", false, "mark the asset as a derivative (models only)")
		confirmTimeout = flag.Duration("confirm-timeout", 90*time.Second, "how long to wait for chain finality")
		verbose        = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}

	if flag.NArg() == 0 {
		log.Fatal("usage: register [flags] FILE...")
	}
	if *name == "" {
		log.Fatal("-name is required")
	}

	kind, err := registration.ParseKind(*kindRaw)
	if err != nil {
		log.Fatalf("invalid kind: %v", err)
	}

	files := make([]registrar.File, 0, flag.NArg())
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		files = append(files, registrar.File{RelativePath: filepath.Base(path), Data: data})
	}

	w, err := wallet.NewFromEnv()
	if err != nil {
		log.Fatalf("wallet error: %v (set WALLET_SEED to a hex-encoded ed25519 seed)", err)
	}

	terms := registration.Terms{RoyaltyBps: *royaltyBps}
	if kind.SupportsDerivative() {
		terms.IsDerivative = derivative
	}

	r, err := registrar.New(registrar.Config{
		BackendURL:     *backendURL,
		ChainRPCURL:    *chainURL,
		Wallet:         w,
		ConfirmTimeout: *confirmTimeout,
		Logger:         logger,
		Observer: func(state registrar.State, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "-> %s (%v)\n", state, err)
				return
			}
			fmt.Fprintf(os.Stderr, "-> %s\n", state)
		},
	})
	if err != nil {
		log.Fatalf("registrar error: %v", err)
	}

	ctx := context.Background()
	if err := r.Session().Login(ctx); err != nil {
		log.Fatalf("login failed: %v", err)
	}
	defer r.Session().Logout(ctx)

	record, err := r.Register(ctx, registrar.Bundle{
		Kind:        kind,
		Name:        *name,
		Description: *description,
		Terms:       terms,
		Files:       files,
	})
	if err != nil {
		log.Fatalf("registration failed: %v", err)
	}

	fmt.Printf("registered %s %q\n", record.Kind, record.Name)
	fmt.Printf("  record:     %s\n", record.RecordID)
	fmt.Printf("  signature:  %s\n", record.Signature)
	fmt.Printf("  content:    %s\n", record.ContentRef)
	fmt.Printf("  owner:      %s\n", record.Owner)
}

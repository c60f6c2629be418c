package registrar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentchain/agentchain/internal/chain/rpcclient"
	"github.com/agentchain/agentchain/internal/domain/registration"
	"github.com/agentchain/agentchain/internal/wallet"
)

const defaultPollInterval = 500 * time.Millisecond

// Config wires a Registrar. ConfirmTimeout is mandatory: an unbounded
// finality wait is a configuration error, not a default.
type Config struct {
	BackendURL     string
	ChainRPCURL    string
	Wallet         wallet.Wallet
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Logger         zerolog.Logger
	Observer       Observer
}

// Registrar drives the asset registration pipeline end to end: upload,
// transaction build, wallet signature, chain submission, finality wait,
// backend record. Stages run strictly in order and share no compensation
// logic; a stage failure resets the status to idle and surfaces the error.
type Registrar struct {
	session   *Session
	uploader  *Uploader
	builder   *TransactionBuilder
	signer    *SigningAdapter
	submitter *ChainSubmitter
	finalizer *Finalizer
	tracker   *StatusTracker
	logger    zerolog.Logger
}

func New(cfg Config) (*Registrar, error) {
	if cfg.BackendURL == "" {
		return nil, errors.New("backend URL is required")
	}
	if cfg.ChainRPCURL == "" {
		return nil, errors.New("chain RPC URL is required")
	}
	if cfg.ConfirmTimeout <= 0 {
		return nil, errors.New("confirm timeout is required")
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	session, err := NewSession(cfg.BackendURL, cfg.Wallet, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	chain := rpcclient.New(cfg.ChainRPCURL, nil)

	return &Registrar{
		session:   session,
		uploader:  NewUploader(session, cfg.Logger),
		builder:   NewTransactionBuilder(session, cfg.Logger),
		signer:    NewSigningAdapter(cfg.Wallet, chain, session, cfg.Logger),
		submitter: NewChainSubmitter(chain, cfg.ConfirmTimeout, pollInterval, cfg.Logger),
		finalizer: NewFinalizer(session, cfg.Logger),
		tracker:   NewStatusTracker(cfg.Observer),
		logger:    cfg.Logger.With().Str("service", "registrar").Logger(),
	}, nil
}

// Session exposes the authentication session for login and logout.
func (r *Registrar) Session() *Session { return r.session }

// Status reports the current saga state.
func (r *Registrar) Status() State { return r.tracker.State() }

// Acknowledge returns a completed saga to idle.
func (r *Registrar) Acknowledge() { r.tracker.Acknowledge() }

// Register runs the full registration saga for one bundle. Preconditions
// (wallet present, session authenticated, bundle valid) are checked before
// any side effect; after the first side effect a failure leaves partial state
// behind by design of the pipeline, and the returned error says how far it
// got.
func (r *Registrar) Register(ctx context.Context, bundle Bundle) (*registration.Record, error) {
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.signer.Detect(ctx); err != nil {
		return nil, err
	}
	if !r.session.Authenticated() {
		return nil, ErrNoSession
	}

	if err := r.tracker.Advance(StateUploading); err != nil {
		return nil, err
	}
	contentRef, err := r.uploader.Upload(ctx, bundle)
	if err != nil {
		r.tracker.Fail(err)
		return nil, err
	}

	if err := r.tracker.Advance(StateGeneratingTx); err != nil {
		return nil, err
	}
	envelope, err := r.builder.Build(ctx, bundle.Kind, contentRef, bundle.Terms)
	if err != nil {
		r.tracker.Fail(err)
		return nil, err
	}

	if err := r.tracker.Advance(StateSigning); err != nil {
		return nil, err
	}
	signed, err := r.signer.Sign(ctx, envelope)
	if err != nil {
		r.tracker.Fail(err)
		return nil, err
	}

	if err := r.tracker.Advance(StateSubmitting); err != nil {
		return nil, err
	}
	receipt, err := r.submitter.Submit(ctx, signed)
	if err != nil {
		r.tracker.Fail(err)
		return nil, err
	}

	record, err := r.finalizer.Finalize(ctx, bundle, contentRef, receipt)
	if err != nil {
		r.tracker.Fail(err)
		return nil, err
	}

	if err := r.tracker.Advance(StateDone); err != nil {
		return nil, err
	}
	r.logger.Info().
		Str("signature", receipt.Signature).
		Str("content_ref", contentRef).
		Str("kind", string(bundle.Kind)).
		Msg("registration complete")
	return record, nil
}

package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"tokenfeed/internal/metrics"
	"tokenfeed/internal/provider/jupiter"
)

// Status is the phase an Execution is in. Transitions are strictly
// forward; Confirmed and Failed are terminal.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusBuilding   Status = "building"
	StatusSimulating Status = "simulating"
	StatusSigning    Status = "signing"
	StatusSubmitting Status = "submitting"
	StatusConfirming Status = "confirming"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
)

// FailReason classifies which stage a failed execution died in.
type FailReason string

const (
	ReasonPrecondition        FailReason = "precondition"
	ReasonBuild               FailReason = "build"
	ReasonSimulation          FailReason = "simulation"
	ReasonUserRejected        FailReason = "user_rejected"
	ReasonSubmit              FailReason = "submit"
	ReasonConfirmationTimeout FailReason = "confirmation_timeout"
	ReasonChainFailure        FailReason = "chain_failure"
)

// FailedError is the terminal error of a failed execution. Signature is
// set when the transaction made it on the wire before the failure, so an
// ambiguous confirmation timeout can still be investigated by hand.
type FailedError struct {
	Reason    FailReason
	Signature solana.Signature
	Err       error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("swap execution failed (%s): %v", e.Reason, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// TransactionService builds the unsigned transaction for an accepted
// quote; *jupiter.Client satisfies it.
type TransactionService interface {
	SwapTransaction(ctx context.Context, quote *jupiter.Quote, userPublicKey string) ([]byte, error)
}

type ExecutionConfig struct {
	SubmitAttempts int
	SubmitBackoff  time.Duration
	ConfirmTimeout time.Duration
}

func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		SubmitAttempts: 3,
		SubmitBackoff:  500 * time.Millisecond,
		ConfirmTimeout: 60 * time.Second,
	}
}

// Execution runs one accepted quote through build, simulate, sign, submit
// and confirm. An instance is single-use: once it leaves Idle it can never
// be restarted, a retry is a fresh Execution from a fresh quote.
type Execution struct {
	quote  *jupiter.Quote
	wallet Wallet
	ledger Ledger
	txs    TransactionService
	cfg    ExecutionConfig
	log    *zap.Logger

	mu      sync.Mutex
	status  Status
	sig     solana.Signature
	failure *FailedError
}

func NewExecution(quote *jupiter.Quote, wallet Wallet, ledger Ledger, txs TransactionService, cfg ExecutionConfig, log *zap.Logger) *Execution {
	if cfg.SubmitAttempts < 1 {
		cfg.SubmitAttempts = 1
	}
	return &Execution{
		quote:  quote,
		wallet: wallet,
		ledger: ledger,
		txs:    txs,
		cfg:    cfg,
		log:    log,
		status: StatusIdle,
	}
}

func (e *Execution) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Signature returns the submitted transaction signature, zero until the
// transaction hits the wire.
func (e *Execution) Signature() solana.Signature {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sig
}

// Failure returns the terminal error of a failed execution, nil otherwise.
func (e *Execution) Failure() *FailedError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

// Run drives the execution to a terminal state and returns the confirmed
// signature. The returned error, if any, is a *FailedError.
func (e *Execution) Run(ctx context.Context) (solana.Signature, error) {
	e.mu.Lock()
	if e.status != StatusIdle {
		st := e.status
		e.mu.Unlock()
		return solana.Signature{}, &FailedError{
			Reason: ReasonPrecondition,
			Err:    fmt.Errorf("execution already started (status %s)", st),
		}
	}
	// Preconditions gate the Idle->Building transition itself: a rejected
	// execution goes straight to Failed without ever entering Building.
	if err := e.checkPreconditions(); err != nil {
		f := e.failLocked(ReasonPrecondition, err)
		e.mu.Unlock()
		e.report(f)
		return solana.Signature{}, f
	}
	e.status = StatusBuilding
	e.mu.Unlock()

	tx, err := e.build(ctx)
	if err != nil {
		return solana.Signature{}, e.fail(ReasonBuild, err)
	}

	e.setStatus(StatusSimulating)
	if err := e.ledger.SimulateTransaction(ctx, tx); err != nil {
		// A failed simulation never reaches the signer.
		return solana.Signature{}, e.fail(ReasonSimulation, err)
	}

	e.setStatus(StatusSigning)
	signed, err := e.wallet.SignTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, e.fail(ReasonUserRejected, err)
	}

	e.setStatus(StatusSubmitting)
	sig, err := e.submit(ctx, signed)
	if err != nil {
		return solana.Signature{}, e.fail(ReasonSubmit, err)
	}
	e.mu.Lock()
	e.sig = sig
	e.status = StatusConfirming
	e.mu.Unlock()
	e.log.Info("transaction submitted", zap.Stringer("signature", sig))

	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()
	if err := e.ledger.ConfirmTransaction(confirmCtx, sig); err != nil {
		// A chain-reported failure is a verdict; everything else is the
		// ambiguous wait-expired case the caller may want to investigate.
		reason := ReasonConfirmationTimeout
		if errors.Is(err, ErrTxFailed) {
			reason = ReasonChainFailure
		}
		return sig, e.fail(reason, err)
	}

	e.setStatus(StatusConfirmed)
	metrics.SwapExecutions.WithLabelValues("confirmed").Inc()
	e.log.Info("transaction confirmed", zap.Stringer("signature", sig))
	return sig, nil
}

func (e *Execution) checkPreconditions() error {
	if e.quote == nil {
		return errors.New("no quote accepted")
	}
	if e.wallet == nil || !e.wallet.Connected() {
		return errors.New("wallet not connected")
	}
	return nil
}

func (e *Execution) build(ctx context.Context) (*solana.Transaction, error) {
	raw, err := e.txs.SwapTransaction(ctx, e.quote, e.wallet.PublicKey().String())
	if err != nil {
		return nil, err
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// submit sends the signed transaction, retrying only transient failures
// with exponential backoff. An explicit rejection aborts immediately.
func (e *Execution) submit(ctx context.Context, signed *solana.Transaction) (solana.Signature, error) {
	raw, err := signed.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("encode transaction: %w", err)
	}

	backoff := e.cfg.SubmitBackoff
	var lastErr error
	for attempt := 1; attempt <= e.cfg.SubmitAttempts; attempt++ {
		sig, err := e.ledger.SendRawTransaction(ctx, raw)
		if err == nil {
			return sig, nil
		}
		if !errors.Is(err, ErrTransientSubmit) {
			return solana.Signature{}, err
		}
		lastErr = err
		e.log.Warn("submission failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.cfg.SubmitAttempts),
			zap.Error(err))
		if attempt == e.cfg.SubmitAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return solana.Signature{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return solana.Signature{}, fmt.Errorf("submission failed after %d attempts: %w", e.cfg.SubmitAttempts, lastErr)
}

func (e *Execution) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Execution) fail(reason FailReason, err error) error {
	e.mu.Lock()
	f := e.failLocked(reason, err)
	e.mu.Unlock()
	e.report(f)
	return f
}

func (e *Execution) failLocked(reason FailReason, err error) *FailedError {
	f := &FailedError{Reason: reason, Signature: e.sig, Err: err}
	e.status = StatusFailed
	e.failure = f
	return f
}

func (e *Execution) report(f *FailedError) {
	metrics.SwapExecutions.WithLabelValues(string(f.Reason)).Inc()
	e.log.Error("execution failed", zap.String("reason", string(f.Reason)), zap.Error(f.Err))
}

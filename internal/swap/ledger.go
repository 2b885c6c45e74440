package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	tokenprog "github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
)

// ErrTransientSubmit marks a submission failure that is worth retrying:
// network trouble or a node that did not accept the request. An explicit
// on-chain rejection is never wrapped in it.
var ErrTransientSubmit = errors.New("swap: transient submission failure")

// ErrTxFailed marks a transaction the cluster executed and rejected. It is
// a definitive verdict, unlike a confirmation timeout where the outcome is
// unknown.
var ErrTxFailed = errors.New("swap: transaction failed on chain")

// Ledger is the chain-facing collaborator of an Execution.
type Ledger interface {
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) error
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
	GetBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
}

// RPCLedger implements Ledger and DecimalsSource over a Solana JSON-RPC node.
type RPCLedger struct {
	rpc          *rpc.Client
	log          *zap.Logger
	pollInterval time.Duration
}

func NewRPCLedger(endpoint string, log *zap.Logger) *RPCLedger {
	return &RPCLedger{
		rpc:          rpc.New(endpoint),
		log:          log,
		pollInterval: 1500 * time.Millisecond,
	}
}

func (l *RPCLedger) SimulateTransaction(ctx context.Context, tx *solana.Transaction) error {
	out, err := l.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		ReplaceRecentBlockhash: true,
		Commitment:             rpc.CommitmentConfirmed,
	})
	if err != nil {
		return fmt.Errorf("swap: simulate: %w", err)
	}
	if out.Value.Err != nil {
		logs := out.Value.Logs
		if len(logs) > 4 {
			logs = logs[len(logs)-4:]
		}
		return fmt.Errorf("swap: simulation failed: %v (logs: %v)", out.Value.Err, logs)
	}
	return nil
}

func (l *RPCLedger) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	sig, err := l.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight: true,
	})
	if err != nil {
		// An RPC-level error means the cluster looked at the transaction and
		// said no; anything else is connectivity and may succeed on retry.
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return solana.Signature{}, fmt.Errorf("swap: submit rejected: %w", err)
		}
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrTransientSubmit, err)
	}
	return sig, nil
}

func (l *RPCLedger) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		out, err := l.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			l.log.Debug("signature status poll failed", zap.Error(err))
		} else if len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %v", ErrTxFailed, st.Err)
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RPCLedger) GetBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	out, err := l.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("swap: get balance: %w", err)
	}
	return out.Value, nil
}

// Decimals reads the mint account and returns its decimal count.
func (l *RPCLedger) Decimals(ctx context.Context, mint string) (uint8, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("swap: parse mint %q: %w", mint, err)
	}
	out, err := l.rpc.GetAccountInfo(ctx, pk)
	if err != nil {
		return 0, fmt.Errorf("swap: mint account %s: %w", mint, err)
	}
	data := out.Value.Data.GetBinary()
	var m tokenprog.Mint
	if err := m.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return 0, fmt.Errorf("swap: decode mint %s: %w", mint, err)
	}
	return m.Decimals, nil
}

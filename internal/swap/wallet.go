package swap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrUserRejected is returned by a Wallet when the user declines to sign.
var ErrUserRejected = errors.New("swap: signing rejected by user")

// Wallet is the signing collaborator. Implementations are expected to be
// wallet adapters; LocalWallet is the in-process stand-in used by the CLI.
type Wallet interface {
	Connected() bool
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// LocalWallet signs with an in-process private key.
type LocalWallet struct {
	key solana.PrivateKey
}

func NewLocalWallet(base58Key string) (*LocalWallet, error) {
	key, err := solana.PrivateKeyFromBase58(base58Key)
	if err != nil {
		return nil, fmt.Errorf("swap: parse wallet key: %w", err)
	}
	return &LocalWallet{key: key}, nil
}

func (w *LocalWallet) Connected() bool { return len(w.key) > 0 }

func (w *LocalWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w *LocalWallet) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("swap: sign transaction: %w", err)
	}
	return tx, nil
}

package backend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/nestwatch/payments/config"
	"github.com/nestwatch/payments/settlement/domain"
)

// Simulated settles payments without a chain so demo and trial flows work
// end to end with no funded wallet. It refuses any request carrying a wallet
// context: a real wallet must never be "settled" here.
type Simulated struct {
	holder *config.SettlementHolder
}

func NewSimulated(holder *config.SettlementHolder) *Simulated {
	return &Simulated{holder: holder}
}

func (s *Simulated) Name() string {
	return config.BackendSimulated
}

func (s *Simulated) Settle(ctx context.Context, req domain.SettleRequest) (domain.SettleOutcome, error) {
	if req.Wallet != nil || req.FromAddress != "" {
		return domain.SettleOutcome{}, domain.ErrWalletOnSimulated
	}

	cfg := s.holder.Get()
	if cfg.Simulated.DelayMs > 0 {
		select {
		case <-time.After(time.Duration(cfg.Simulated.DelayMs) * time.Millisecond):
		case <-ctx.Done():
			return domain.SettleOutcome{}, ctx.Err()
		}
	}

	roll, err := randomFloat()
	if err != nil {
		return domain.SettleOutcome{}, err
	}
	if roll >= cfg.Simulated.SuccessRate {
		return domain.SettleOutcome{
			Success:       false,
			FailureReason: "insufficient funds",
		}, nil
	}

	hash, err := randomTxHash()
	if err != nil {
		return domain.SettleOutcome{}, err
	}
	return domain.SettleOutcome{
		Success: true,
		Chain: &domain.ChainMetadata{
			ToAddress: cfg.TreasuryAddress,
			TxHash:    hash,
		},
	}, nil
}

// randomTxHash yields a pseudo-random 32-byte hex hash.
func randomTxHash() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(buf[:]), nil
}

// randomFloat draws a uniform value in [0,1) from crypto/rand.
func randomFloat() (float64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0, err
	}
	return float64(n.Int64()) / float64(1<<53), nil
}

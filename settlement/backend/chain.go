package backend

import (
	"context"
	"encoding/json"

	"github.com/nestwatch/payments/config"
	"github.com/nestwatch/payments/settlement/domain"
)

// Chain settles payments through the caller-supplied wallet connector. The
// connector is a per-request capability; nothing is cached between calls.
type Chain struct{}

func NewChain() *Chain {
	return &Chain{}
}

func (c *Chain) Name() string {
	return config.BackendChain
}

// txPayload is embedded in the transaction data field so the charge stays
// traceable on chain.
type txPayload struct {
	Type           string `json:"type"`
	SubscriptionID string `json:"subscription_id"`
	TenantID       string `json:"tenant_id"`
}

func (c *Chain) Settle(ctx context.Context, req domain.SettleRequest) (domain.SettleOutcome, error) {
	if req.Wallet == nil || !req.Wallet.IsConnected() {
		return domain.SettleOutcome{}, domain.ErrWalletNotConnected
	}

	tx := req.Transaction
	data, err := json.Marshal(txPayload{
		Type:           string(tx.Type),
		SubscriptionID: tx.SubscriptionID,
		TenantID:       tx.TenantID,
	})
	if err != nil {
		return domain.SettleOutcome{}, err
	}

	txReq := domain.TxRequest{
		From:     req.FromAddress,
		To:       req.TreasuryAddress,
		ValueWei: tx.AmountWei,
		Data:     data,
	}

	if _, err := req.Wallet.EstimateGas(ctx, txReq); err != nil {
		return domain.SettleOutcome{
			Success:       false,
			FailureReason: "gas estimation failed: " + err.Error(),
		}, nil
	}

	gasPrice, err := req.Wallet.GetGasPrice(ctx)
	if err != nil {
		return domain.SettleOutcome{
			Success:       false,
			FailureReason: "gas price fetch failed: " + err.Error(),
		}, nil
	}

	pending, err := req.Wallet.SendTransaction(ctx, txReq)
	if err != nil {
		return domain.SettleOutcome{
			Success:       false,
			FailureReason: "transaction rejected: " + err.Error(),
		}, nil
	}

	// One confirmation. A transaction that never confirms blocks here until
	// the caller's context imposes a deadline.
	receipt, err := pending.Wait(ctx)
	if err != nil {
		return domain.SettleOutcome{}, err
	}

	meta := &domain.ChainMetadata{
		FromAddress: req.FromAddress,
		ToAddress:   req.TreasuryAddress,
		TxHash:      pending.Hash(),
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		GasPriceWei: gasPrice,
	}

	if !receipt.Success {
		return domain.SettleOutcome{
			Success:       false,
			FailureReason: "transaction reverted",
			Chain:         meta,
		}, nil
	}

	return domain.SettleOutcome{Success: true, Chain: meta}, nil
}

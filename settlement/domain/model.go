// Package domain defines payment transactions and the settlement backend
// contract.
package domain

import (
	"context"
	"errors"
	"time"
)

// SchemaVersion tags persisted transaction records; the store validates it
// on read.
const SchemaVersion = 1

// TransactionType classifies what a settlement pays for.
type TransactionType string

const (
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypeUpgrade      TransactionType = "upgrade"
	TransactionTypeOverage      TransactionType = "overage"
)

// TransactionStatus is the per-transaction state machine:
// pending → processing → confirmed | failed.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusConfirmed  TransactionStatus = "confirmed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

// ChainMetadata is populated when a settlement touched the chain.
type ChainMetadata struct {
	FromAddress string `json:"from_address,omitempty"`
	ToAddress   string `json:"to_address,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	GasPriceWei string `json:"gas_price_wei,omitempty"`
}

// PaymentTransaction is one attempted settlement. AmountWei is always a
// non-negative decimal integer string. Once confirmed or terminally failed
// the record is immutable except for retry bookkeeping.
type PaymentTransaction struct {
	SchemaVersion  int               `json:"schema_version"`
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	SubscriptionID string            `json:"subscription_id"`
	Type           TransactionType   `json:"type"`
	AmountWei      string            `json:"amount_wei"`
	Currency       string            `json:"currency"`
	Status         TransactionStatus `json:"status"`
	Chain          *ChainMetadata    `json:"chain,omitempty"`
	Description    string            `json:"description,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	RetryCount     int               `json:"retry_count"`
	NextRetryAt    *time.Time        `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ConfirmedAt    *time.Time        `json:"confirmed_at,omitempty"`
	FailedAt       *time.Time        `json:"failed_at,omitempty"`
}

// TxRequest is the chain transaction a backend submits.
type TxRequest struct {
	From     string
	To       string
	ValueWei string
	// Data is an opaque payload encoding type/subscription/tenant for
	// on-chain traceability.
	Data []byte
}

// Receipt is the confirmation result of a broadcast transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}

// PendingTx is a broadcast transaction awaiting confirmation.
type PendingTx interface {
	Hash() string
	Wait(ctx context.Context) (*Receipt, error)
}

// WalletConnector is the per-call wallet capability supplied by the caller.
// The engine never caches a connector across requests.
type WalletConnector interface {
	IsConnected() bool
	EstimateGas(ctx context.Context, req TxRequest) (uint64, error)
	GetGasPrice(ctx context.Context) (string, error)
	SendTransaction(ctx context.Context, req TxRequest) (PendingTx, error)
}

// SettleRequest is handed to a backend after the pending record is durable.
type SettleRequest struct {
	Transaction     *PaymentTransaction
	TreasuryAddress string
	// FromAddress and Wallet are only set for wallet-path settlements.
	FromAddress string
	Wallet      WalletConnector
}

// SettleOutcome reports how a settlement attempt resolved. A failed attempt
// is a normal outcome, not an error; errors are reserved for infrastructure
// faults.
type SettleOutcome struct {
	Success       bool
	FailureReason string
	Chain         *ChainMetadata
}

// Backend executes one settlement attempt. Implementations: chain, simulated.
type Backend interface {
	Name() string
	Settle(ctx context.Context, req SettleRequest) (SettleOutcome, error)
}

// Repository persists transactions. Put also appends the id to the
// per-tenant ordered list with the configured retention TTL.
type Repository interface {
	Put(ctx context.Context, tx *PaymentTransaction) error
	GetByID(ctx context.Context, id string) (*PaymentTransaction, error)
	Update(ctx context.Context, tx *PaymentTransaction) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]PaymentTransaction, error)
}

// CreatePaymentRequest initiates one charge.
type CreatePaymentRequest struct {
	TenantID       string
	SubscriptionID string
	Type           TransactionType
	AmountWei      string
	Description    string
	// FromAddress plus Wallet select the wallet settlement path; both must
	// come from the calling request, never from shared state.
	FromAddress string
	Wallet      WalletConnector
}

// Service is the payment settlement engine.
type Service interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentTransaction, error)
	// ApplyConfirmed replays the confirmation side effects of an already
	// confirmed transaction; safe to call more than once.
	ApplyConfirmed(ctx context.Context, transactionID string) error
	GetTransaction(ctx context.Context, id string) (*PaymentTransaction, error)
	ListTransactions(ctx context.Context, tenantID string, limit int) ([]PaymentTransaction, error)
	// MarkRetryScheduled records retry bookkeeping for an external scheduler;
	// the engine itself never retries.
	MarkRetryScheduled(ctx context.Context, transactionID string, at time.Time) error
}

var (
	ErrTransactionNotFound  = errors.New("transaction_not_found")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidTransaction   = errors.New("invalid_transaction")
	ErrBackendNotFound      = errors.New("backend_not_found")
	ErrWalletNotConnected   = errors.New("wallet_not_connected")
	ErrWalletOnSimulated    = errors.New("wallet_supplied_on_simulated_backend")
	ErrTransactionImmutable = errors.New("transaction_immutable")
)

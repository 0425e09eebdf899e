package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states reported by the provider.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or settlement.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the provider reports the payment as settled.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the provider reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been reversed by the provider.
	StatusRefunded Status = "refunded"
)

// ErrTransactionNotFound is returned when the provider has no record of the
// transaction identifier.
var ErrTransactionNotFound = errors.New("payments: transaction not found")

// CheckoutRequest captures the payload required to open a hosted checkout page.
type CheckoutRequest struct {
	TransactionID string
	Amount        int64
	Currency      string
	Description   string
	CustomerID    string
	ReturnURL     string
	NotifyURL     string
	Channels      string
	Metadata      map[string]string
}

// CheckoutSession is the provider handle returned to the storefront.
type CheckoutSession struct {
	TransactionID string
	Provider      string
	PaymentURL    string
	PaymentToken  string
	Amount        int64
	Currency      string
	CreatedAt     time.Time
	Raw           map[string]any
}

// TransactionDetails normalises what the provider reports for one transaction.
// Reconciliation trusts only this, never the callback payload.
type TransactionDetails struct {
	Provider       string
	TransactionID  string
	Status         Status
	ProviderStatus string
	Amount         int64
	Currency       string
	Method         string
	OperatorID     string
	SettledAt      *time.Time
	Raw            map[string]any
}

// Provider defines the contract payment gateway adapters implement.
type Provider interface {
	// CreateCheckout opens a hosted payment page for the transaction.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	// CheckTransaction fetches the authoritative status from the provider.
	CheckTransaction(ctx context.Context, transactionID string) (TransactionDetails, error)
}

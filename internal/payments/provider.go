package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrInvalidRequest is returned when a payment request cannot be sent to the PSP.
var ErrInvalidRequest = errors.New("payments: invalid request")

// PaymentIntentRequest asks the PSP to prepare a charge for an order's grand total.
type PaymentIntentRequest struct {
	Amount         int64
	Currency       string
	OrderID        string
	CustomerRef    string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentIntent is the PSP handle the storefront confirms client-side.
type PaymentIntent struct {
	ID           string
	Provider     string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       Status
	CreatedAt    time.Time
}

// Gateway creates and looks up payment intents.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	LookupPaymentIntent(ctx context.Context, intentID string) (PaymentIntent, error)
}

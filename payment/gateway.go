// Package payment talks to the card payment gateway used at checkout.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrRequestRejected    = errors.New("payment request rejected")
	ErrVerificationFailed = errors.New("payment verification failed")
)

// Request describes a payment to open. Amount is in rials.
type Request struct {
	Amount      decimal.Decimal
	Description string
	Mobile      string
	Reference   string
}

// Session is an opened payment the customer is redirected to.
type Session struct {
	Authority   string
	RedirectURL string
}

// Verification is the result of a successful verify call.
type Verification struct {
	RefID      string
	CardPan    string
	AlreadyMet bool
}

// Gateway opens and verifies payments.
type Gateway interface {
	Open(ctx context.Context, req Request) (*Session, error)
	Verify(ctx context.Context, authority string, amount decimal.Decimal) (*Verification, error)
}

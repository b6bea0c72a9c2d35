// Package license tracks the IGN license entitlement bought through the store
// billing service.
//
// The billing service is reached through the Billing interface, which returns
// typed results instead of callbacks. The purchase date is also persisted
// locally: the store cache can be cleared by the user, and the persisted record
// is then the only way to check the license while offline.
package license

import (
	"context"
	"errors"
	"time"
)

// Status of the license entitlement.
type Status int

// Statuses, in purchase order.
const (
	NotPurchased Status = iota
	Pending
	Purchased
)

func (s Status) String() string {
	switch s {
	case NotPurchased:
		return "NOT_PURCHASED"
	case Pending:
		return "PENDING"
	case Purchased:
		return "PURCHASED"
	}
	return "UNKNOWN"
}

// Errors reported by Billing implementations.
var (
	// ErrProductNotFound means the store does not know the license product.
	ErrProductNotFound = errors.New("license product not found")
	// ErrNotSupported means billing is not available on this device.
	ErrNotSupported = errors.New("billing not supported")
	// ErrUnavailable means the billing service could not be reached.
	ErrUnavailable = errors.New("billing service unavailable")
	// ErrNoDetails is returned by Purchase before details were fetched.
	ErrNoDetails = errors.New("license details not fetched")
)

// Details are the priceable product metadata shown before a purchase.
type Details struct {
	ProductID string
	Title     string
	Price     string
}

// Purchase is a purchase record of the store.
type Purchase struct {
	ProductID    string
	Token        string
	Time         time.Time
	Acknowledged bool
}

// PurchaseResult is the outcome of a purchase flow.
type PurchaseResult int

// Purchase flow outcomes.
const (
	// Acknowledged purchases are complete.
	Acknowledged PurchaseResult = iota
	// PendingPayment purchases wait for a deferred payment method; they are
	// acknowledged by a later CheckStatus.
	PendingPayment
)

// Billing is the store billing service.
type Billing interface {
	// AcknowledgePurchase acknowledges a purchase not acknowledged yet and
	// reports whether there was one.
	AcknowledgePurchase(ctx context.Context) (bool, error)
	// GetPurchase returns the license purchase, nil when there is none.
	GetPurchase(ctx context.Context) (*Purchase, error)
	// GetLicenseDetails returns the license product metadata.
	GetLicenseDetails(ctx context.Context) (Details, error)
	// LaunchPurchase runs the purchase flow for the product.
	LaunchPurchase(ctx context.Context, d Details) (PurchaseResult, error)
}

// Info is the locally persisted proof of purchase.
type Info struct {
	PurchaseTimestamp time.Time
}

// Persister stores Info records.
type Persister interface {
	Persist(ctx context.Context, info Info) error
}

// Store persists and reloads Info records.
type Store interface {
	Persister
	// Load returns the persisted record, nil when there is none.
	Load(ctx context.Context) (*Info, error)
}

// Observer receives the machine emissions. The screen owning the machine
// decides on which goroutine they are applied.
type Observer interface {
	OnStatus(Status)
	OnDetails(Details)
	OnError(error)
}

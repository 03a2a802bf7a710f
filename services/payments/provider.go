// Package payments is the boundary with the payment provider: outbound calls used by the
// checkout orchestrator and the normalized inbound events consumed by the reconciler.
package payments

import (
	"context"
	"time"
)

// Metadata keys attached to checkout sessions. The reconciler rebuilds the purchase from
// them.
const (
	MetaType       = "type"
	MetaUserID     = "user_id"
	MetaCreatorID  = "creator_id"
	MetaPostID     = "post_id"
	MetaMessage    = "message"
	MetaPriceCents = "price_cents"
)

// PurchaseKind is the value stored under MetaType.
type PurchaseKind string

const (
	KindSubscription PurchaseKind = "subscription"
	KindPPV          PurchaseKind = "ppv"
	KindTip          PurchaseKind = "tip"
)

type Provider interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CustomerExists(ctx context.Context, customerID string) (bool, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	EnsureProduct(ctx context.Context, productID, name string) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	ScheduleCancellation(ctx context.Context, subscriptionID string) error
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	Refund(ctx context.Context, paymentIntentID string) error
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type CustomerParams struct {
	UserID string
	Email  string
	Name   string
}

type CheckoutParams struct {
	CustomerID  string
	Kind        PurchaseKind
	ProductName string
	AmountCents int64
	Currency    string
	Recurring   bool
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type SubscriptionParams struct {
	CustomerID      string
	PaymentMethodID string
	ProductID       string
	AmountCents     int64
	Currency        string
	Metadata        map[string]string
}

// ProviderSubscription is what the direct-charge path needs back from the provider.
type ProviderSubscription struct {
	ID              string
	Status          string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	LatestInvoiceID string
	AmountPaidCents int64
	// LatestPaymentIntentID is the payment intent that paid the latest invoice, if any.
	LatestPaymentIntentID string
}

// Active reports whether the first charge succeeded.
func (s *ProviderSubscription) Active() bool {
	return s.Status == "active" || s.Status == "trialing"
}

package payments

import (
	"encoding/json"
	"strconv"
	"time"
)

type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout_completed"
	EventSubscriptionUpdated  EventType = "subscription_updated"
	EventSubscriptionDeleted  EventType = "subscription_deleted"
	EventInvoicePaid          EventType = "invoice_paid"
	EventInvoicePaymentFailed EventType = "invoice_payment_failed"
	EventUnhandled            EventType = "unhandled"
)

// BillingReasonSubscriptionCreate marks the first invoice of a subscription. Its charge is
// already booked when the subscription is created.
const BillingReasonSubscriptionCreate = "subscription_create"

// Event is a verified provider event reduced to what the reconciler needs. Exactly one of
// the payload pointers is set for handled types.
type Event struct {
	ID           string
	Type         EventType
	ProviderType string
	Raw          json.RawMessage

	Checkout     *CheckoutCompleted
	Subscription *SubscriptionChange
	Invoice      *InvoiceEvent
}

type CheckoutCompleted struct {
	SessionID              string
	CustomerID             string
	PaymentIntentID        string
	ProviderSubscriptionID string
	AmountTotalCents       int64
	Currency               string
	PaymentStatus          string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	Metadata               map[string]string
}

// PaymentRef is the idempotency key for the ledger row of this checkout.
func (c *CheckoutCompleted) PaymentRef() string {
	return "cs:" + c.SessionID
}

func (c *CheckoutCompleted) Kind() PurchaseKind {
	return PurchaseKind(c.Metadata[MetaType])
}

// PriceCents returns the price locked into the session, or the charged amount when the
// metadata does not carry one.
func (c *CheckoutCompleted) PriceCents() int64 {
	if v, err := strconv.ParseInt(c.Metadata[MetaPriceCents], 10, 64); err == nil && v > 0 {
		return v
	}
	return c.AmountTotalCents
}

type SubscriptionChange struct {
	ProviderSubscriptionID string
	Status                 string
	PeriodStart            time.Time
	PeriodEnd              time.Time
}

type InvoiceEvent struct {
	InvoiceID              string
	ProviderSubscriptionID string
	AmountPaidCents        int64
	Currency               string
	BillingReason          string
	PeriodStart            time.Time
	PeriodEnd              time.Time
}

// PaymentRef is the idempotency key for the ledger row of this invoice.
func (i *InvoiceEvent) PaymentRef() string {
	return "in:" + i.InvoiceID
}

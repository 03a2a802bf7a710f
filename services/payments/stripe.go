package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	session "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentmethod"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/refund"
	stripeSubscription "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrSignature is returned by ParseWebhook when the payload is not authentic.
var ErrSignature = errors.New("invalid webhook signature")

// Stripe implements Provider with the stripe-go package level API.
type Stripe struct {
	webhookSecret string
	tolerance     time.Duration
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	stripe.Key = secretKey
	return &Stripe{
		webhookSecret: webhookSecret,
		tolerance:     webhook.DefaultTolerance,
	}
}

func (s *Stripe) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(p.Name),
		Email: stripe.String(p.Email),
	}
	params.Context = ctx
	params.AddMetadata(MetaUserID, p.UserID)
	params.SetIdempotencyKey("customer-" + p.UserID)

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe customer.New: %w", err)
	}
	return cust.ID, nil
}

func (s *Stripe) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := customer.Get(customerID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return false, nil
		}
		return false, fmt.Errorf("stripe customer.Get: %w", err)
	}
	return !cust.Deleted, nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(p.AmountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(p.ProductName),
		},
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(p.CustomerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(p.Metadata[MetaUserID]),
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	if p.Recurring {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String("month"),
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: p.Metadata,
		}
	} else {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: p.Metadata,
		}
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session.New: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) EnsureProduct(ctx context.Context, productID, name string) (string, error) {
	if productID != "" {
		return productID, nil
	}
	params := &stripe.ProductParams{Name: stripe.String(name)}
	params.Context = ctx
	prod, err := product.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe product.New: %w", err)
	}
	return prod.ID, nil
}

func (s *Stripe) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	if _, err := paymentmethod.Attach(paymentMethodID, params); err != nil {
		return fmt.Errorf("stripe paymentmethod.Attach: %w", err)
	}
	return nil
}

// subscriptionParams charges the saved card immediately for a monthly price on the
// creator's product. The call fails instead of leaving an incomplete subscription.
func subscriptionParams(p SubscriptionParams) *stripe.SubscriptionParams {
	params := &stripe.SubscriptionParams{
		Customer:             stripe.String(p.CustomerID),
		DefaultPaymentMethod: stripe.String(p.PaymentMethodID),
		PaymentBehavior:      stripe.String("error_if_incomplete"),
		Items: []*stripe.SubscriptionItemsParams{
			{
				PriceData: &stripe.SubscriptionItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					Product:    stripe.String(p.ProductID),
					UnitAmount: stripe.Int64(p.AmountCents),
					Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
						Interval: stripe.String("month"),
					},
				},
			},
		},
	}
	params.AddExpand("latest_invoice")
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func (s *Stripe) CreateSubscription(ctx context.Context, p SubscriptionParams) (*ProviderSubscription, error) {
	params := subscriptionParams(p)
	params.Context = ctx
	sub, err := stripeSubscription.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe subscription.New: %w", err)
	}

	out := &ProviderSubscription{
		ID:              sub.ID,
		Status:          string(sub.Status),
		AmountPaidCents: p.AmountCents,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		out.PeriodStart = unixTime(sub.Items.Data[0].CurrentPeriodStart)
		out.PeriodEnd = unixTime(sub.Items.Data[0].CurrentPeriodEnd)
	}
	if sub.LatestInvoice != nil {
		out.LatestInvoiceID = sub.LatestInvoice.ID
		if sub.LatestInvoice.AmountPaid > 0 {
			out.AmountPaidCents = sub.LatestInvoice.AmountPaid
		}
	}
	return out, nil
}

func (s *Stripe) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := stripeSubscription.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("stripe subscription.Cancel: %w", err)
	}
	return nil
}

// GetSubscription reads the current status and billing period of a provider subscription.
func (s *Stripe) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice.payments")
	sub, err := stripeSubscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe subscription.Get: %w", err)
	}
	out := &ProviderSubscription{ID: sub.ID, Status: string(sub.Status)}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		out.PeriodStart = unixTime(sub.Items.Data[0].CurrentPeriodStart)
		out.PeriodEnd = unixTime(sub.Items.Data[0].CurrentPeriodEnd)
	}
	if inv := sub.LatestInvoice; inv != nil {
		out.LatestInvoiceID = inv.ID
		out.AmountPaidCents = inv.AmountPaid
		if inv.Payments != nil {
			for _, p := range inv.Payments.Data {
				if p.Status == "paid" && p.Payment != nil && p.Payment.PaymentIntent != nil {
					out.LatestPaymentIntentID = p.Payment.PaymentIntent.ID
					break
				}
			}
		}
	}
	return out, nil
}

// Refund returns the full amount of a payment intent to the buyer. The idempotency key
// makes a redelivered event refund once.
func (s *Stripe) Refund(ctx context.Context, paymentIntentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonDuplicate)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + paymentIntentID)
	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("stripe refund.New: %w", err)
	}
	return nil
}

// ScheduleCancellation stops renewal; the subscription stays active until its period end
// and the provider then emits customer.subscription.deleted.
func (s *Stripe) ScheduleCancellation(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	if _, err := stripeSubscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("stripe subscription.Update: %w", err)
	}
	return nil
}

// ParseWebhook verifies the Stripe-Signature header against the raw body and maps the
// event onto the reconciler's event types.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	if evt.Data == nil {
		return nil, fmt.Errorf("event %s has no data", evt.ID)
	}
	return mapStripeEvent(evt.ID, string(evt.Type), evt.Data.Raw)
}

func mapStripeEvent(id, providerType string, raw json.RawMessage) (*Event, error) {
	ev := &Event{ID: id, ProviderType: providerType, Raw: raw, Type: EventUnhandled}

	switch providerType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var cs stripeCheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("decoding checkout session: %w", err)
		}
		// Delayed methods (boleto, pix) complete the session unpaid; the money moves with
		// async_payment_succeeded.
		if cs.PaymentStatus != "paid" && cs.PaymentStatus != "no_payment_required" {
			return ev, nil
		}
		ev.Type = EventCheckoutCompleted
		ev.Checkout = &CheckoutCompleted{
			SessionID:              cs.ID,
			CustomerID:             string(cs.Customer),
			PaymentIntentID:        string(cs.PaymentIntent),
			ProviderSubscriptionID: string(cs.Subscription),
			AmountTotalCents:       cs.AmountTotal,
			Currency:               cs.Currency,
			PaymentStatus:          cs.PaymentStatus,
			Metadata:               cs.Metadata,
		}
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeSubscriptionObject
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("decoding subscription: %w", err)
		}
		start, end := sub.period()
		ev.Type = EventSubscriptionUpdated
		if providerType == "customer.subscription.deleted" {
			ev.Type = EventSubscriptionDeleted
		}
		ev.Subscription = &SubscriptionChange{
			ProviderSubscriptionID: sub.ID,
			Status:                 sub.Status,
			PeriodStart:            start,
			PeriodEnd:              end,
		}
	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripeInvoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("decoding invoice: %w", err)
		}
		ev.Type = EventInvoicePaid
		if providerType == "invoice.payment_failed" {
			ev.Type = EventInvoicePaymentFailed
		}
		start, end := inv.period()
		ev.Invoice = &InvoiceEvent{
			InvoiceID:              inv.ID,
			ProviderSubscriptionID: inv.subscriptionID(),
			AmountPaidCents:        inv.AmountPaid,
			Currency:               inv.Currency,
			BillingReason:          inv.BillingReason,
			PeriodStart:            start,
			PeriodEnd:              end,
		}
	}
	return ev, nil
}

// expandableID decodes a Stripe field that is either an id string or an expanded object.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type stripeCheckoutSession struct {
	ID            string            `json:"id"`
	Customer      expandableID      `json:"customer"`
	PaymentIntent expandableID      `json:"payment_intent"`
	Subscription  expandableID      `json:"subscription"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type stripePeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type stripeSubscriptionObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// Older API versions carry the period on the subscription, newer ones on the items.
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (s stripeSubscriptionObject) period() (time.Time, time.Time) {
	if len(s.Items.Data) > 0 && s.Items.Data[0].CurrentPeriodEnd > 0 {
		return unixTime(s.Items.Data[0].CurrentPeriodStart), unixTime(s.Items.Data[0].CurrentPeriodEnd)
	}
	return unixTime(s.CurrentPeriodStart), unixTime(s.CurrentPeriodEnd)
}

type stripeInvoice struct {
	ID            string       `json:"id"`
	AmountPaid    int64        `json:"amount_paid"`
	Currency      string       `json:"currency"`
	BillingReason string       `json:"billing_reason"`
	Subscription  expandableID `json:"subscription"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period stripePeriod `json:"period"`
		} `json:"data"`
	} `json:"lines"`
	PeriodStart int64 `json:"period_start"`
	PeriodEnd   int64 `json:"period_end"`
}

func (i stripeInvoice) subscriptionID() string {
	if id := string(i.Parent.SubscriptionDetails.Subscription); id != "" {
		return id
	}
	return string(i.Subscription)
}

// period prefers the line item period: on renewals the invoice-level period is the one
// that just ended.
func (i stripeInvoice) period() (time.Time, time.Time) {
	if len(i.Lines.Data) > 0 && i.Lines.Data[0].Period.End > 0 {
		return unixTime(i.Lines.Data[0].Period.Start), unixTime(i.Lines.Data[0].Period.End)
	}
	return unixTime(i.PeriodStart), unixTime(i.PeriodEnd)
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Package paymentstest provides an in-memory payments.Provider for tests.
package paymentstest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nudfans-backend/services/payments"
)

// Provider records every call and returns deterministic ids.
type Provider struct {
	mu sync.Mutex

	Customers        map[string]bool
	Sessions         []payments.CheckoutParams
	Products         []string
	Attached         []string
	Subscriptions    []payments.SubscriptionParams
	Canceled         []string
	ScheduledCancels []string
	Refunds          []string

	// Periods holds what GetSubscription returns per provider subscription id. Unknown ids
	// report an active subscription without a period.
	Periods map[string]payments.ProviderSubscription

	// SubscriptionStatus is returned by CreateSubscription, "active" when empty.
	SubscriptionStatus string
	// Err, when set, is returned by every outbound call.
	Err error
	// Events maps a signature to the event ParseWebhook returns for it.
	Events map[string]*payments.Event

	seq int
}

func New() *Provider {
	return &Provider{
		Customers: map[string]bool{},
		Events:    map[string]*payments.Event{},
		Periods:   map[string]payments.ProviderSubscription{},
	}
}

func (p *Provider) next(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%d", prefix, p.seq)
}

func (p *Provider) CreateCustomer(_ context.Context, params payments.CustomerParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	id := p.next("cus")
	p.Customers[id] = true
	return id, nil
}

func (p *Provider) CustomerExists(_ context.Context, customerID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return false, p.Err
	}
	return p.Customers[customerID], nil
}

func (p *Provider) CreateCheckoutSession(_ context.Context, params payments.CheckoutParams) (*payments.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.Sessions = append(p.Sessions, params)
	id := p.next("cs")
	return &payments.CheckoutSession{ID: id, URL: "https://checkout.example.com/" + id}, nil
}

func (p *Provider) EnsureProduct(_ context.Context, productID, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	if productID != "" {
		return productID, nil
	}
	id := p.next("prod")
	p.Products = append(p.Products, id)
	return id, nil
}

func (p *Provider) AttachPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Attached = append(p.Attached, paymentMethodID)
	return nil
}

func (p *Provider) CreateSubscription(_ context.Context, params payments.SubscriptionParams) (*payments.ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.Subscriptions = append(p.Subscriptions, params)
	status := p.SubscriptionStatus
	if status == "" {
		status = "active"
	}
	now := time.Now().UTC()
	return &payments.ProviderSubscription{
		ID:              p.next("sub"),
		Status:          status,
		PeriodStart:     now,
		PeriodEnd:       now.AddDate(0, 1, 0),
		LatestInvoiceID: p.next("in"),
		AmountPaidCents: params.AmountCents,
	}, nil
}

func (p *Provider) CancelSubscription(_ context.Context, subscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Canceled = append(p.Canceled, subscriptionID)
	return nil
}

func (p *Provider) ScheduleCancellation(_ context.Context, subscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.ScheduledCancels = append(p.ScheduledCancels, subscriptionID)
	return nil
}

func (p *Provider) GetSubscription(_ context.Context, subscriptionID string) (*payments.ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	if sub, ok := p.Periods[subscriptionID]; ok {
		sub.ID = subscriptionID
		return &sub, nil
	}
	return &payments.ProviderSubscription{ID: subscriptionID, Status: "active"}, nil
}

func (p *Provider) Refund(_ context.Context, paymentIntentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Refunds = append(p.Refunds, paymentIntentID)
	return nil
}

func (p *Provider) ParseWebhook(payload []byte, signature string) (*payments.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok := p.Events[signature]
	if !ok {
		return nil, fmt.Errorf("%w: unknown signature", payments.ErrSignature)
	}
	return ev, nil
}

// ErrDeclined is a convenience provider failure.
var ErrDeclined = errors.New("card_declined")

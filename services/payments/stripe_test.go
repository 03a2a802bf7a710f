package payments

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestParseWebhook_RejectsBadSignature(t *testing.T) {
	s := &Stripe{webhookSecret: testWebhookSecret, tolerance: webhook.DefaultTolerance}
	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`

	_, err := s.ParseWebhook([]byte(payload), "t=1,v1=deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSignature))

	_, err = s.ParseWebhook([]byte(payload), "")
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestParseWebhook_TamperedBody(t *testing.T) {
	s := &Stripe{webhookSecret: testWebhookSecret, tolerance: webhook.DefaultTolerance}
	payload := `{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","amount_paid":100}}}`
	header := sign(t, payload)

	tampered := `{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","amount_paid":1}}}`
	_, err := s.ParseWebhook([]byte(tampered), header)
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	s := &Stripe{webhookSecret: testWebhookSecret, tolerance: webhook.DefaultTolerance}
	payload := `{
		"id": "evt_checkout",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"customer": "cus_1",
			"payment_intent": "pi_1",
			"subscription": null,
			"amount_total": 999,
			"currency": "brl",
			"payment_status": "paid",
			"metadata": {"type": "ppv", "user_id": "u1", "creator_id": "c1", "post_id": "p1"}
		}}
	}`

	ev, err := s.ParseWebhook([]byte(payload), sign(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "evt_checkout", ev.ID)
	assert.Equal(t, EventCheckoutCompleted, ev.Type)
	require.NotNil(t, ev.Checkout)
	assert.Equal(t, KindPPV, ev.Checkout.Kind())
	assert.Equal(t, "cus_1", ev.Checkout.CustomerID)
	assert.Equal(t, "pi_1", ev.Checkout.PaymentIntentID)
	assert.Empty(t, ev.Checkout.ProviderSubscriptionID)
	assert.Equal(t, int64(999), ev.Checkout.AmountTotalCents)
	assert.Equal(t, int64(999), ev.Checkout.PriceCents())
	assert.Equal(t, "cs:cs_test_1", ev.Checkout.PaymentRef())
}

func TestMapStripeEvent_UnpaidCheckoutIsUnhandled(t *testing.T) {
	raw := []byte(`{"id":"cs_2","payment_status":"unpaid","metadata":{"type":"tip"}}`)
	ev, err := mapStripeEvent("evt_2", "checkout.session.completed", raw)
	require.NoError(t, err)
	assert.Equal(t, EventUnhandled, ev.Type)
	assert.Nil(t, ev.Checkout)
}

func TestMapStripeEvent_ExpandedCustomer(t *testing.T) {
	raw := []byte(`{"id":"cs_3","customer":{"id":"cus_9","object":"customer"},"payment_status":"paid","subscription":"sub_9","metadata":{"type":"subscription","price_cents":"1999"},"amount_total":1500}`)
	ev, err := mapStripeEvent("evt_3", "checkout.session.completed", raw)
	require.NoError(t, err)
	assert.Equal(t, "cus_9", ev.Checkout.CustomerID)
	assert.Equal(t, "sub_9", ev.Checkout.ProviderSubscriptionID)
	assert.Equal(t, int64(1999), ev.Checkout.PriceCents())
}

func TestMapStripeEvent_SubscriptionPeriodFromItems(t *testing.T) {
	raw := []byte(`{"id":"sub_1","status":"past_due","items":{"data":[{"current_period_start":1700000000,"current_period_end":1702592000}]}}`)
	ev, err := mapStripeEvent("evt_4", "customer.subscription.updated", raw)
	require.NoError(t, err)
	assert.Equal(t, EventSubscriptionUpdated, ev.Type)
	assert.Equal(t, "past_due", ev.Subscription.Status)
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), ev.Subscription.PeriodEnd)

	legacy := []byte(`{"id":"sub_1","status":"canceled","current_period_start":1700000000,"current_period_end":1702592000}`)
	ev, err = mapStripeEvent("evt_5", "customer.subscription.deleted", legacy)
	require.NoError(t, err)
	assert.Equal(t, EventSubscriptionDeleted, ev.Type)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Subscription.PeriodStart)
}

func TestMapStripeEvent_InvoiceSubscriptionFromParent(t *testing.T) {
	raw := []byte(`{
		"id": "in_7",
		"amount_paid": 1999,
		"currency": "brl",
		"billing_reason": "subscription_cycle",
		"parent": {"subscription_details": {"subscription": "sub_7"}},
		"lines": {"data": [{"period": {"start": 1702592000, "end": 1705270400}}]},
		"period_start": 1700000000,
		"period_end": 1702592000
	}`)
	ev, err := mapStripeEvent("evt_6", "invoice.paid", raw)
	require.NoError(t, err)
	assert.Equal(t, EventInvoicePaid, ev.Type)
	assert.Equal(t, "sub_7", ev.Invoice.ProviderSubscriptionID)
	assert.Equal(t, "in:in_7", ev.Invoice.PaymentRef())
	assert.Equal(t, time.Unix(1705270400, 0).UTC(), ev.Invoice.PeriodEnd)

	failed, err := mapStripeEvent("evt_7", "invoice.payment_failed", []byte(`{"id":"in_8","subscription":"sub_8"}`))
	require.NoError(t, err)
	assert.Equal(t, EventInvoicePaymentFailed, failed.Type)
	assert.Equal(t, "sub_8", failed.Invoice.ProviderSubscriptionID)
}

func TestMapStripeEvent_Unhandled(t *testing.T) {
	ev, err := mapStripeEvent("evt_8", "charge.refunded", []byte(`{"id":"ch_1"}`))
	require.NoError(t, err)
	assert.Equal(t, EventUnhandled, ev.Type)
	assert.Equal(t, "charge.refunded", ev.ProviderType)
}

func TestSubscriptionParams_MonthlyInlinePrice(t *testing.T) {
	params := subscriptionParams(SubscriptionParams{
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_card_visa",
		ProductID:       "prod_1",
		AmountCents:     1999,
		Currency:        "brl",
		Metadata:        map[string]string{MetaUserID: "u1"},
	})

	require.Len(t, params.Items, 1)
	price := params.Items[0].PriceData
	require.NotNil(t, price)
	assert.Equal(t, "prod_1", *price.Product)
	assert.Equal(t, int64(1999), *price.UnitAmount)
	assert.Equal(t, "brl", *price.Currency)
	require.NotNil(t, price.Recurring)
	assert.Equal(t, "month", *price.Recurring.Interval)
	assert.Equal(t, "error_if_incomplete", *params.PaymentBehavior)
	assert.Equal(t, "u1", params.Metadata[MetaUserID])
}

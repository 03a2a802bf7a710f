package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"nudfans-backend/apperrors"
	"nudfans-backend/models"
	"nudfans-backend/services/access"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/services/ledger"
	"nudfans-backend/services/notify"
	"nudfans-backend/services/payments"
	"nudfans-backend/services/payments/paymentstest"
	"nudfans-backend/testutils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type env struct {
	db       *gorm.DB
	provider *paymentstest.Provider
	ledger   *ledger.Ledger
	rec      *Reconciler
	store    *entitlements.Store
	fan      *models.User
	creator  *models.CreatorProfile
	now      time.Time
}

func setup(t *testing.T) *env {
	t.Helper()
	database := testutils.SetupSQLiteDB(t)
	provider := paymentstest.New()
	l := ledger.New(database, decimal.RequireFromString("0.20"))
	e := &env{
		db:       database,
		provider: provider,
		ledger:   l,
		store:    entitlements.New(database),
		now:      time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	e.rec = New(database, provider, l, notify.New(database), Settings{Currency: "brl", LargeTipThresholdCents: 5000})
	e.rec.now = func() time.Time { return e.now }
	e.fan = testutils.CreateUser(t, database, "fan", models.FanType)
	_, e.creator = testutils.CreateCreator(t, database, "alice", 1999)
	return e
}

func (e *env) checkout(eventID, sessionID string, kind payments.PurchaseKind, amount int64, extra map[string]string) *payments.Event {
	meta := map[string]string{
		payments.MetaType:      string(kind),
		payments.MetaUserID:    e.fan.ID,
		payments.MetaCreatorID: e.creator.ID,
	}
	for k, v := range extra {
		meta[k] = v
	}
	c := &payments.CheckoutCompleted{
		SessionID:        sessionID,
		CustomerID:       "cus_1",
		AmountTotalCents: amount,
		Currency:         "brl",
		PaymentStatus:    "paid",
		Metadata:         meta,
	}
	if kind == payments.KindSubscription {
		c.ProviderSubscriptionID = "sub_" + sessionID
	}
	return &payments.Event{ID: eventID, Type: payments.EventCheckoutCompleted, ProviderType: "checkout.session.completed", Checkout: c}
}

func invoice(eventID, invoiceID, providerSubID, reason string, amount int64, periodEnd time.Time) *payments.Event {
	return &payments.Event{
		ID:           eventID,
		Type:         payments.EventInvoicePaid,
		ProviderType: "invoice.paid",
		Invoice: &payments.InvoiceEvent{
			InvoiceID:              invoiceID,
			ProviderSubscriptionID: providerSubID,
			AmountPaidCents:        amount,
			Currency:               "brl",
			BillingReason:          reason,
			PeriodStart:            periodEnd.AddDate(0, -1, 0),
			PeriodEnd:              periodEnd,
		},
	}
}

func countRows(t *testing.T, database *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := database.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (e *env) earnings(t *testing.T) int64 {
	t.Helper()
	var p models.CreatorProfile
	require.NoError(t, e.db.First(&p, "id = ?", e.creator.ID).Error)
	return p.TotalEarningsCents
}

func (e *env) hasAccess(t *testing.T, post *models.Post, at time.Time) bool {
	t.Helper()
	viewer, err := e.store.ViewerFor(context.Background(), e.fan.ID)
	require.NoError(t, err)
	ref := access.RefOf(post)
	ents, err := e.store.LoadForViewer(context.Background(), viewer, []access.PostRef{ref})
	require.NoError(t, err)
	return access.Evaluate(viewer, ref, ents, at, 0).HasAccess
}

func TestSubscriptionCheckout_ReplayIsIdempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ev := e.checkout("evt_1", "cs_1", payments.KindSubscription, 1999, map[string]string{payments.MetaPriceCents: "1999"})

	require.NoError(t, e.rec.Apply(ctx, ev))
	require.NoError(t, e.rec.Apply(ctx, ev))

	// same session delivered again under another event id
	again := e.checkout("evt_2", "cs_1", payments.KindSubscription, 1999, map[string]string{payments.MetaPriceCents: "1999"})
	require.NoError(t, e.rec.Apply(ctx, again))

	assert.Equal(t, int64(1), countRows(t, e.db, &models.Subscription{}, ""))
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Transaction{}, ""))
	assert.Equal(t, int64(1599), e.earnings(t))

	var sub models.Subscription
	require.NoError(t, e.db.First(&sub).Error)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, "sub_cs_1", sub.ProviderSubscriptionId)
	assert.True(t, sub.CurrentPeriodStart.Equal(e.now))
	assert.True(t, sub.CurrentPeriodEnd.Equal(e.now.AddDate(0, 1, 0)))

	var notif models.Notification
	require.NoError(t, e.db.First(&notif, "user_id = ?", e.creator.UserID).Error)
	assert.Equal(t, models.NotificationNewSubscriber, notif.Type)
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Notification{}, ""), "a skipped replay notifies nobody")
}

func TestPPVCheckout(t *testing.T) {
	e := setup(t)
	post := testutils.CreatePost(t, e.db, e.creator.ID, models.PostPPV, 999)
	assert.False(t, e.hasAccess(t, post, e.now))

	ev := e.checkout("evt_ppv", "cs_ppv", payments.KindPPV, 999, map[string]string{payments.MetaPostID: post.ID})
	require.NoError(t, e.rec.Apply(context.Background(), ev))
	require.NoError(t, e.rec.Apply(context.Background(), ev))

	var purchase models.PpvPurchase
	require.NoError(t, e.db.First(&purchase, "buyer_id = ? AND post_id = ?", e.fan.ID, post.ID).Error)
	assert.Equal(t, models.PurchaseCompleted, purchase.Status)

	var tx models.Transaction
	require.NoError(t, e.db.First(&tx, "post_id = ?", post.ID).Error)
	assert.Equal(t, models.TransactionPPV, tx.Type)
	assert.Equal(t, int64(999), tx.AmountCents)
	assert.Equal(t, int64(200), tx.PlatformFeeCents)
	assert.Equal(t, int64(799), tx.CreatorEarningsCents)
	assert.Equal(t, "cs:cs_ppv", tx.ProviderPaymentRef)
	assert.Equal(t, int64(1), countRows(t, e.db, &models.PpvPurchase{}, ""))

	assert.True(t, e.hasAccess(t, post, e.now))

	require.NoError(t, e.db.Model(&models.Post{}).Where("id = ?", post.ID).Update("post_type", models.PostSubscription).Error)
	post.PostType = models.PostSubscription
	assert.True(t, e.hasAccess(t, post, e.now), "a completed purchase is permanent")
}

func TestTipCheckout_LargeTipNotification(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.rec.Apply(ctx, e.checkout("evt_t1", "cs_t1", payments.KindTip, 1000, map[string]string{payments.MetaMessage: "nice"})))
	require.NoError(t, e.rec.Apply(ctx, e.checkout("evt_t2", "cs_t2", payments.KindTip, 5000, nil)))

	assert.Equal(t, int64(2), countRows(t, e.db, &models.Tip{}, "status = ?", models.PurchaseCompleted))
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Notification{}, "type = ?", models.NotificationTip))
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Notification{}, "type = ?", models.NotificationLargeTip))
	assert.Equal(t, int64(800+4000), e.earnings(t))

	var tip models.Tip
	require.NoError(t, e.db.First(&tip, "amount_cents = ?", 1000).Error)
	assert.Equal(t, "nice", tip.Message)
}

func TestApply_RollsBackOnLedgerFailure(t *testing.T) {
	e := setup(t)
	failing := true
	require.NoError(t, e.db.Callback().Create().Before("gorm:create").Register("test:fail_ledger", func(tx *gorm.DB) {
		if failing && tx.Statement.Table == "transactions" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	ev := e.checkout("evt_rb", "cs_rb", payments.KindSubscription, 1999, nil)
	err := e.rec.Apply(context.Background(), ev)
	require.Error(t, err, "a transient failure asks the provider to retry")

	assert.Zero(t, countRows(t, e.db, &models.Subscription{}, ""))
	assert.Zero(t, countRows(t, e.db, &models.Transaction{}, ""))
	assert.Zero(t, countRows(t, e.db, &models.WebhookEvent{}, ""))
	assert.Zero(t, e.earnings(t))
	assert.Zero(t, countRows(t, e.db, &models.Notification{}, ""))

	failing = false
	require.NoError(t, e.rec.Apply(context.Background(), ev), "the redelivery succeeds")
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Subscription{}, ""))
	assert.Equal(t, int64(1599), e.earnings(t))
}

func TestInvoicePaymentFailed_PastDueKeepsAccessUntilPeriodEnd(t *testing.T) {
	e := setup(t)
	post := testutils.CreatePost(t, e.db, e.creator.ID, models.PostSubscription, 0)
	end := e.now.Add(24 * time.Hour)
	sub := testutils.CreateSubscription(t, e.db, e.fan.ID, e.creator.ID, models.SubscriptionActive, end)

	ev := &payments.Event{ID: "evt_fail", Type: payments.EventInvoicePaymentFailed, ProviderType: "invoice.payment_failed",
		Invoice: &payments.InvoiceEvent{InvoiceID: "in_f", ProviderSubscriptionID: sub.ProviderSubscriptionId}}
	require.NoError(t, e.rec.Apply(context.Background(), ev))

	var stored models.Subscription
	require.NoError(t, e.db.First(&stored, "id = ?", sub.ID).Error)
	assert.Equal(t, models.SubscriptionPastDue, stored.Status)

	assert.True(t, e.hasAccess(t, post, e.now), "past_due keeps access during the paid period")
	assert.False(t, e.hasAccess(t, post, end.Add(time.Second)), "access ends with the period even before a status sync")
}

func TestInvoicePaid_Renewal(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.rec.Apply(ctx, e.checkout("evt_c", "cs_r", payments.KindSubscription, 1999, nil)))

	first := invoice("evt_i0", "in_0", "sub_cs_r", payments.BillingReasonSubscriptionCreate, 1999, e.now.AddDate(0, 1, 0))
	require.NoError(t, e.rec.Apply(ctx, first))
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Transaction{}, ""), "the first invoice is already booked")

	newEnd := e.now.AddDate(0, 2, 0)
	renewal := invoice("evt_i1", "in_1", "sub_cs_r", "subscription_cycle", 1999, newEnd)
	require.NoError(t, e.rec.Apply(ctx, renewal))
	duplicate := invoice("evt_i1_bis", "in_1", "sub_cs_r", "subscription_cycle", 1999, newEnd)
	require.NoError(t, e.rec.Apply(ctx, duplicate))

	assert.Equal(t, int64(2), countRows(t, e.db, &models.Transaction{}, ""))
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Transaction{}, "type = ?", models.TransactionRenewal))
	assert.Equal(t, int64(1599*2), e.earnings(t))

	var sub models.Subscription
	require.NoError(t, e.db.First(&sub).Error)
	assert.True(t, sub.CurrentPeriodEnd.Equal(newEnd))
}

func TestInvoicePaid_UnknownSubscriptionIsRetried(t *testing.T) {
	e := setup(t)
	err := e.rec.Apply(context.Background(), invoice("evt_x", "in_x", "sub_unknown", "subscription_cycle", 1999, e.now))
	require.Error(t, err)
	assert.Zero(t, countRows(t, e.db, &models.WebhookEvent{}, ""))
}

func TestPriceLockedAtPurchase(t *testing.T) {
	e := setup(t)
	post := testutils.CreatePost(t, e.db, e.creator.ID, models.PostSubscription, 0)
	require.NoError(t, e.rec.Apply(context.Background(),
		e.checkout("evt_p", "cs_p", payments.KindSubscription, 1999, map[string]string{payments.MetaPriceCents: "1999"})))

	require.NoError(t, e.db.Model(&models.CreatorProfile{}).Where("id = ?", e.creator.ID).
		Update("subscription_price_cents", 2999).Error)

	var sub models.Subscription
	require.NoError(t, e.db.First(&sub).Error)
	assert.Equal(t, int64(1999), sub.PriceAtPurchaseCents)
	assert.True(t, e.hasAccess(t, post, e.now))
}

func TestSubscriptionChanged(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sub := testutils.CreateSubscription(t, e.db, e.fan.ID, e.creator.ID, models.SubscriptionActive, e.now.Add(time.Hour))
	newEnd := e.now.AddDate(0, 1, 0)

	update := &payments.Event{ID: "evt_u1", Type: payments.EventSubscriptionUpdated, ProviderType: "customer.subscription.updated",
		Subscription: &payments.SubscriptionChange{ProviderSubscriptionID: sub.ProviderSubscriptionId, Status: "unpaid", PeriodStart: e.now, PeriodEnd: newEnd}}
	require.NoError(t, e.rec.Apply(ctx, update))

	var stored models.Subscription
	require.NoError(t, e.db.First(&stored, "id = ?", sub.ID).Error)
	assert.Equal(t, models.SubscriptionExpired, stored.Status)
	assert.True(t, stored.CurrentPeriodEnd.Equal(newEnd))

	deleted := &payments.Event{ID: "evt_d1", Type: payments.EventSubscriptionDeleted, ProviderType: "customer.subscription.deleted",
		Subscription: &payments.SubscriptionChange{ProviderSubscriptionID: sub.ProviderSubscriptionId, Status: "canceled"}}
	require.NoError(t, e.rec.Apply(ctx, deleted))
	require.NoError(t, e.db.First(&stored, "id = ?", sub.ID).Error)
	assert.Equal(t, models.SubscriptionCanceled, stored.Status)
	require.NotNil(t, stored.CanceledAt)

	unknown := &payments.Event{ID: "evt_u2", Type: payments.EventSubscriptionUpdated, ProviderType: "customer.subscription.created",
		Subscription: &payments.SubscriptionChange{ProviderSubscriptionID: "sub_not_yet", Status: "incomplete"}}
	assert.NoError(t, e.rec.Apply(ctx, unknown))
}

func TestMapStatus(t *testing.T) {
	cases := map[string]models.SubscriptionStatus{
		"active":             models.SubscriptionActive,
		"past_due":           models.SubscriptionPastDue,
		"canceled":           models.SubscriptionCanceled,
		"unpaid":             models.SubscriptionExpired,
		"incomplete_expired": models.SubscriptionExpired,
		"":                   models.SubscriptionExpired,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapStatus(in), in)
	}
}

func TestHandle_BadSignatureChangesNothing(t *testing.T) {
	e := setup(t)
	e.provider.Events["good"] = e.checkout("evt_sig", "cs_sig", payments.KindTip, 1000, nil)

	err := e.rec.Handle(context.Background(), []byte(`{}`), "forged")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindWebhookVerification, apperrors.KindOf(err))
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
	assert.Zero(t, countRows(t, e.db, &models.WebhookEvent{}, ""))
	assert.Zero(t, countRows(t, e.db, &models.Tip{}, ""))

	require.NoError(t, e.rec.Handle(context.Background(), []byte(`{}`), "good"))
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Tip{}, ""))
}

func TestApply_UnhandledIsAcknowledged(t *testing.T) {
	e := setup(t)
	ev := &payments.Event{ID: "evt_un", Type: payments.EventUnhandled, ProviderType: "charge.refunded"}
	assert.NoError(t, e.rec.Apply(context.Background(), ev))
	assert.Zero(t, countRows(t, e.db, &models.WebhookEvent{}, ""))
}

func TestApply_PermanentFailureIsRecorded(t *testing.T) {
	e := setup(t)
	ev := e.checkout("evt_bad", "cs_bad", payments.KindPPV, 999, nil)

	require.NoError(t, e.rec.Apply(context.Background(), ev), "bad metadata will never succeed: acknowledge it")

	var row models.WebhookEvent
	require.NoError(t, e.db.First(&row, "provider_event_id = ?", "evt_bad").Error)
	assert.Contains(t, row.ProcessingError, "post")
	assert.Zero(t, countRows(t, e.db, &models.Transaction{}, ""))

	require.NoError(t, e.rec.Apply(context.Background(), ev))
	assert.Equal(t, int64(1), countRows(t, e.db, &models.WebhookEvent{}, ""))
}

func TestSubscriptionCheckout_DuplicateActiveIsCompensated(t *testing.T) {
	e := setup(t)
	testutils.CreateSubscription(t, e.db, e.fan.ID, e.creator.ID, models.SubscriptionActive, e.now.Add(time.Hour))
	e.provider.Periods["sub_cs_dup"] = payments.ProviderSubscription{Status: "active", LatestPaymentIntentID: "pi_dup"}

	ev := e.checkout("evt_dup", "cs_dup", payments.KindSubscription, 1999, nil)
	require.NoError(t, e.rec.Apply(context.Background(), ev))
	require.NoError(t, e.rec.Apply(context.Background(), ev))

	assert.Equal(t, int64(1), countRows(t, e.db, &models.Subscription{}, ""))
	assert.Equal(t, []string{"sub_cs_dup"}, e.provider.Canceled)
	assert.Equal(t, []string{"pi_dup"}, e.provider.Refunds)

	var refunded models.Transaction
	require.NoError(t, e.db.First(&refunded, "provider_payment_ref = ?", "cs:cs_dup").Error)
	assert.Equal(t, models.TransactionRefunded, refunded.Status)
	assert.Equal(t, models.TransactionSubscription, refunded.Type)
	assert.Zero(t, countRows(t, e.db, &models.Transaction{}, "status = ?", models.TransactionCompleted))
	assert.Zero(t, e.earnings(t))
}

func TestPPVCheckout_SecondPaymentIsRefunded(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	post := testutils.CreatePost(t, e.db, e.creator.ID, models.PostPPV, 999)

	first := e.checkout("evt_ppv1", "cs_ppv1", payments.KindPPV, 999, map[string]string{payments.MetaPostID: post.ID})
	first.Checkout.PaymentIntentID = "pi_1"
	second := e.checkout("evt_ppv2", "cs_ppv2", payments.KindPPV, 999, map[string]string{payments.MetaPostID: post.ID})
	second.Checkout.PaymentIntentID = "pi_2"

	require.NoError(t, e.rec.Apply(ctx, first))
	require.NoError(t, e.rec.Apply(ctx, second))
	require.NoError(t, e.rec.Apply(ctx, second))

	assert.Equal(t, int64(1), countRows(t, e.db, &models.PpvPurchase{}, ""))
	assert.Equal(t, []string{"pi_2"}, e.provider.Refunds)
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Transaction{}, "status = ?", models.TransactionCompleted))
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Transaction{}, "status = ? AND provider_payment_ref = ?", models.TransactionRefunded, "cs:cs_ppv2"))
	assert.Equal(t, int64(799), e.earnings(t))

	var row models.WebhookEvent
	require.NoError(t, e.db.First(&row, "provider_event_id = ?", "evt_ppv2").Error)
	assert.NotEmpty(t, row.ProcessingError)
}

func TestPPVCheckout_FailedRefundBooksNothing(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	post := testutils.CreatePost(t, e.db, e.creator.ID, models.PostPPV, 999)

	require.NoError(t, e.rec.Apply(ctx, e.checkout("evt_a", "cs_a", payments.KindPPV, 999, map[string]string{payments.MetaPostID: post.ID})))
	e.provider.Err = paymentstest.ErrDeclined
	second := e.checkout("evt_b", "cs_b", payments.KindPPV, 999, map[string]string{payments.MetaPostID: post.ID})
	second.Checkout.PaymentIntentID = "pi_b"
	require.NoError(t, e.rec.Apply(ctx, second))

	assert.Empty(t, e.provider.Refunds)
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Transaction{}, ""))
}

func TestSubscriptionCheckout_UsesProviderPeriod(t *testing.T) {
	e := setup(t)
	start := e.now.Add(-time.Minute)
	end := start.AddDate(0, 0, 30)
	e.provider.Periods["sub_cs_period"] = payments.ProviderSubscription{Status: "active", PeriodStart: start, PeriodEnd: end}

	require.NoError(t, e.rec.Apply(context.Background(), e.checkout("evt_period", "cs_period", payments.KindSubscription, 1999, nil)))

	var sub models.Subscription
	require.NoError(t, e.db.First(&sub).Error)
	assert.True(t, sub.CurrentPeriodStart.Equal(start))
	assert.True(t, sub.CurrentPeriodEnd.Equal(end), "the provider period wins over a calendar month")
}

func TestSubscriptionCheckout_ProviderLookupFailureIsRetried(t *testing.T) {
	e := setup(t)
	e.provider.Err = paymentstest.ErrDeclined

	err := e.rec.Apply(context.Background(), e.checkout("evt_lookup", "cs_lookup", payments.KindSubscription, 1999, nil))
	require.Error(t, err)
	assert.Zero(t, countRows(t, e.db, &models.WebhookEvent{}, ""))
	assert.Zero(t, countRows(t, e.db, &models.Subscription{}, ""))

	e.provider.Err = nil
	require.NoError(t, e.rec.Apply(context.Background(), e.checkout("evt_lookup", "cs_lookup", payments.KindSubscription, 1999, nil)))
	assert.Equal(t, int64(1), countRows(t, e.db, &models.Subscription{}, ""))
}

func TestSubscriptionChanged_LateUpdateDoesNotRevive(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	post := testutils.CreatePost(t, e.db, e.creator.ID, models.PostSubscription, 0)
	require.NoError(t, e.rec.Apply(ctx, e.checkout("evt_c", "cs_late", payments.KindSubscription, 1999, nil)))
	require.True(t, e.hasAccess(t, post, e.now))

	deleted := &payments.Event{ID: "evt_del", Type: payments.EventSubscriptionDeleted, ProviderType: "customer.subscription.deleted",
		Subscription: &payments.SubscriptionChange{ProviderSubscriptionID: "sub_cs_late", Status: "canceled"}}
	require.NoError(t, e.rec.Apply(ctx, deleted))

	late := &payments.Event{ID: "evt_upd", Type: payments.EventSubscriptionUpdated, ProviderType: "customer.subscription.updated",
		Subscription: &payments.SubscriptionChange{ProviderSubscriptionID: "sub_cs_late", Status: "active",
			PeriodStart: e.now, PeriodEnd: e.now.AddDate(0, 1, 0)}}
	require.NoError(t, e.rec.Apply(ctx, late))

	var stored models.Subscription
	require.NoError(t, e.db.First(&stored).Error)
	assert.Equal(t, models.SubscriptionCanceled, stored.Status)
	require.NotNil(t, stored.CanceledAt)
	assert.False(t, e.hasAccess(t, post, e.now))
}

func TestEarningsMatchLedgerAfterScenario(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	post := testutils.CreatePost(t, e.db, e.creator.ID, models.PostPPV, 1499)

	events := []*payments.Event{
		e.checkout("evt_a", "cs_a", payments.KindSubscription, 1999, nil),
		e.checkout("evt_b", "cs_b", payments.KindPPV, 1499, map[string]string{payments.MetaPostID: post.ID}),
		e.checkout("evt_c", "cs_c", payments.KindTip, 777, nil),
		invoice("evt_d", "in_d", "sub_cs_a", "subscription_cycle", 1999, e.now.AddDate(0, 2, 0)),
		e.checkout("evt_a", "cs_a", payments.KindSubscription, 1999, nil),
		invoice("evt_e", "in_d", "sub_cs_a", "subscription_cycle", 1999, e.now.AddDate(0, 2, 0)),
	}
	for _, ev := range events {
		require.NoError(t, e.rec.Apply(ctx, ev))
	}

	fromLedger, err := e.ledger.EarningsFromLedger(ctx, e.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, fromLedger, e.earnings(t))

	drifts, err := e.ledger.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	var rows []models.Transaction
	require.NoError(t, e.db.Find(&rows).Error)
	assert.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, r.AmountCents, r.PlatformFeeCents+r.CreatorEarningsCents)
	}
}

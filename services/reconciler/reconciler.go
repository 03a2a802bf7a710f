// Package reconciler turns verified payment provider events into local state. It is the
// single writer of payment status: subscriptions, purchases and tips created by checkout
// sessions, renewals and lapses.
//
// Every event is applied in one database transaction together with its WebhookEvent row,
// so a redelivered event is either skipped whole or applied whole.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nudfans-backend/apperrors"
	"nudfans-backend/db"
	"nudfans-backend/models"
	"nudfans-backend/services/ledger"
	"nudfans-backend/services/notify"
	"nudfans-backend/services/payments"
	"nudfans-backend/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const providerName = "stripe"

var errAlreadyProcessed = errors.New("event already processed")

type Settings struct {
	Currency               string
	LargeTipThresholdCents int64
}

type Reconciler struct {
	db       *gorm.DB
	provider payments.Provider
	ledger   *ledger.Ledger
	notifier *notify.Notifier
	settings Settings
	now      func() time.Time
}

func New(database *gorm.DB, provider payments.Provider, l *ledger.Ledger, notifier *notify.Notifier, settings Settings) *Reconciler {
	return &Reconciler{
		db:       database,
		provider: provider,
		ledger:   l,
		notifier: notifier,
		settings: settings,
		now:      time.Now,
	}
}

// Handle verifies the raw payload against its signature then applies it. A verification
// failure changes nothing and returns a WebhookVerification error.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) error {
	ev, err := r.provider.ParseWebhook(payload, signature)
	if err != nil {
		utils.LogWarn("webhook rejected", logrus.Fields{"error": err.Error()})
		return apperrors.Wrap(apperrors.KindWebhookVerification, apperrors.ErrWebhookSignature.Code, apperrors.ErrWebhookSignature.Message, err)
	}
	return r.Apply(ctx, ev)
}

// effects run after commit. Notifications never hold up or roll back the state change.
type effects []func(ctx context.Context)

// Apply processes one verified event. It returns nil when the event was applied, was a
// duplicate, is not handled, or failed permanently (bad metadata, unknown entity,
// violated uniqueness); permanent failures are recorded on the WebhookEvent row. Any other
// error leaves no trace and asks the provider to retry.
func (r *Reconciler) Apply(ctx context.Context, ev *payments.Event) error {
	fields := logrus.Fields{"event_id": ev.ID, "event_type": ev.ProviderType}
	if ev.Type == payments.EventUnhandled {
		utils.LogEvent(logrus.InfoLevel, fields, "webhook event not handled, acknowledged")
		return nil
	}

	if err := r.loadProviderSubscription(ctx, ev); err != nil {
		fields["error"] = err.Error()
		utils.LogEvent(logrus.ErrorLevel, fields, "provider subscription lookup failed, provider will retry")
		return fmt.Errorf("processing event %s: %w", ev.ID, err)
	}

	var after effects
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.claim(tx, ev); err != nil {
			return err
		}
		var err error
		after, err = r.dispatch(tx, ev)
		return err
	})

	switch {
	case err == nil:
		utils.LogEvent(logrus.InfoLevel, fields, "webhook event applied")
		for _, fn := range after {
			fn(ctx)
		}
		return nil
	case errors.Is(err, errAlreadyProcessed):
		utils.LogEvent(logrus.InfoLevel, fields, "duplicate webhook event skipped")
		return nil
	case isPermanent(err):
		fields["error"] = err.Error()
		utils.LogEvent(logrus.ErrorLevel, fields, "webhook event rejected")
		r.compensate(ctx, ev, err)
		if recErr := r.recordFailure(ctx, ev, err); recErr != nil {
			return fmt.Errorf("recording failed event %s: %w", ev.ID, recErr)
		}
		return nil
	default:
		fields["error"] = err.Error()
		utils.LogEvent(logrus.ErrorLevel, fields, "webhook event failed, provider will retry")
		return fmt.Errorf("processing event %s: %w", ev.ID, err)
	}
}

func isPermanent(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidInput, apperrors.KindNotFound, apperrors.KindConflict:
		return true
	}
	return false
}

// claim inserts the WebhookEvent row inside the event's transaction. A concurrent delivery
// of the same event blocks on the unique index until this one commits, then sees it.
func (r *Reconciler) claim(tx *gorm.DB, ev *payments.Event) error {
	var seen int64
	if err := tx.Model(&models.WebhookEvent{}).Where("provider_event_id = ?", ev.ID).Count(&seen).Error; err != nil {
		return err
	}
	if seen > 0 {
		return errAlreadyProcessed
	}

	now := r.now()
	row := &models.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: ev.ID,
		EventType:       ev.ProviderType,
		Payload:         datatypes.JSON(ev.Raw),
		ProcessedAt:     &now,
	}
	if err := tx.Create(row).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return errAlreadyProcessed
		}
		return err
	}
	return nil
}

func (r *Reconciler) recordFailure(ctx context.Context, ev *payments.Event, cause error) error {
	now := r.now()
	row := &models.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: ev.ID,
		EventType:       ev.ProviderType,
		Payload:         datatypes.JSON(ev.Raw),
		ProcessedAt:     &now,
		ProcessingError: cause.Error(),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil && !db.IsUniqueViolation(err) {
		return err
	}
	return nil
}

// loadProviderSubscription completes a subscription checkout with the billing period and
// the first charge's payment intent, which the checkout session does not carry.
func (r *Reconciler) loadProviderSubscription(ctx context.Context, ev *payments.Event) error {
	c := ev.Checkout
	if ev.Type != payments.EventCheckoutCompleted || c == nil || c.Kind() != payments.KindSubscription || c.ProviderSubscriptionID == "" {
		return nil
	}
	if !c.PeriodEnd.IsZero() && c.PaymentIntentID != "" {
		return nil
	}
	sub, err := r.provider.GetSubscription(ctx, c.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if c.PeriodEnd.IsZero() {
		c.PeriodStart, c.PeriodEnd = sub.PeriodStart, sub.PeriodEnd
	}
	if c.PaymentIntentID == "" {
		c.PaymentIntentID = sub.LatestPaymentIntentID
	}
	return nil
}

// compensate undoes a charge that could not be granted because the buyer already holds
// it: a duplicate subscription is canceled, and the money of either kind is refunded and
// booked as a refunded Transaction.
func (r *Reconciler) compensate(ctx context.Context, ev *payments.Event, cause error) {
	c := ev.Checkout
	if c == nil {
		return
	}
	var typ models.TransactionType
	switch {
	case errors.Is(cause, apperrors.ErrAlreadySubscribed) && c.Kind() == payments.KindSubscription:
		typ = models.TransactionSubscription
		if c.ProviderSubscriptionID != "" {
			if err := r.provider.CancelSubscription(ctx, c.ProviderSubscriptionID); err != nil {
				utils.LogError(err, "could not cancel duplicate provider subscription "+c.ProviderSubscriptionID)
			}
		}
	case errors.Is(cause, apperrors.ErrAlreadyPurchased) && c.Kind() == payments.KindPPV:
		typ = models.TransactionPPV
	default:
		return
	}

	if c.PaymentIntentID == "" {
		utils.LogWarn("duplicate charge has no payment intent to refund", logrus.Fields{"session_id": c.SessionID})
		return
	}
	if err := r.provider.Refund(ctx, c.PaymentIntentID); err != nil {
		utils.LogError(err, "could not refund duplicate charge "+c.PaymentIntentID)
		return
	}

	currency := c.Currency
	if currency == "" {
		currency = r.settings.Currency
	}
	entry := ledger.Entry{
		CreatorID:   c.Metadata[payments.MetaCreatorID],
		UserID:      c.Metadata[payments.MetaUserID],
		Type:        typ,
		AmountCents: c.AmountTotalCents,
		Currency:    currency,
		PaymentRef:  c.PaymentRef(),
		Metadata:    checkoutMetadata(c),
	}
	if postID := c.Metadata[payments.MetaPostID]; typ == models.TransactionPPV && postID != "" {
		entry.PostID = &postID
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := r.ledger.RecordRefunded(tx, entry)
		return err
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateRef) {
		utils.LogError(err, "could not book refunded charge "+c.PaymentRef())
	}
}

func (r *Reconciler) dispatch(tx *gorm.DB, ev *payments.Event) (effects, error) {
	switch ev.Type {
	case payments.EventCheckoutCompleted:
		if ev.Checkout == nil {
			return nil, apperrors.Invalid("checkout event without payload")
		}
		return r.checkoutCompleted(tx, ev.Checkout)
	case payments.EventSubscriptionUpdated, payments.EventSubscriptionDeleted:
		if ev.Subscription == nil {
			return nil, apperrors.Invalid("subscription event without payload")
		}
		return nil, r.subscriptionChanged(tx, ev.Subscription, ev.Type == payments.EventSubscriptionDeleted)
	case payments.EventInvoicePaid:
		if ev.Invoice == nil {
			return nil, apperrors.Invalid("invoice event without payload")
		}
		return nil, r.invoicePaid(tx, ev.Invoice)
	case payments.EventInvoicePaymentFailed:
		if ev.Invoice == nil {
			return nil, apperrors.Invalid("invoice event without payload")
		}
		return nil, r.invoicePaymentFailed(tx, ev.Invoice)
	}
	return nil, nil
}

func (r *Reconciler) checkoutCompleted(tx *gorm.DB, c *payments.CheckoutCompleted) (effects, error) {
	userID := c.Metadata[payments.MetaUserID]
	creatorID := c.Metadata[payments.MetaCreatorID]
	if userID == "" || creatorID == "" {
		return nil, apperrors.Invalid("checkout metadata is missing the user or the creator")
	}
	if c.AmountTotalCents <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}

	exists, err := r.ledger.ExistsForRef(tx, c.PaymentRef())
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	var buyer models.User
	if err := tx.First(&buyer, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, err
	}
	var creator models.CreatorProfile
	if err := tx.First(&creator, "id = ?", creatorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("creator")
		}
		return nil, err
	}

	currency := c.Currency
	if currency == "" {
		currency = r.settings.Currency
	}

	switch c.Kind() {
	case payments.KindSubscription:
		return r.grantSubscription(tx, c, &buyer, &creator, currency)
	case payments.KindPPV:
		return r.grantPurchase(tx, c, &buyer, &creator, currency)
	case payments.KindTip:
		return r.recordTip(tx, c, &buyer, &creator, currency)
	}
	return nil, apperrors.Invalid(fmt.Sprintf("unknown checkout type %q", c.Kind()))
}

func (r *Reconciler) grantSubscription(tx *gorm.DB, c *payments.CheckoutCompleted, buyer *models.User, creator *models.CreatorProfile, currency string) (effects, error) {
	now := r.now().UTC()
	sub := &models.Subscription{
		SubscriberID:           buyer.ID,
		CreatorID:              creator.ID,
		Status:                 models.SubscriptionActive,
		ProviderSubscriptionId: c.ProviderSubscriptionID,
		CurrentPeriodStart:     c.PeriodStart,
		CurrentPeriodEnd:       c.PeriodEnd,
		PriceAtPurchaseCents:   c.PriceCents(),
		Currency:               currency,
	}
	if sub.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = now
	}
	if sub.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = sub.CurrentPeriodStart.AddDate(0, 1, 0)
	}
	if err := tx.Create(sub).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperrors.ErrAlreadySubscribed
		}
		return nil, err
	}

	if _, err := r.ledger.Record(tx, ledger.Entry{
		CreatorID:      creator.ID,
		UserID:         buyer.ID,
		Type:           models.TransactionSubscription,
		AmountCents:    c.AmountTotalCents,
		Currency:       currency,
		PaymentRef:     c.PaymentRef(),
		SubscriptionID: &sub.ID,
		Metadata:       checkoutMetadata(c),
	}); err != nil {
		return nil, err
	}

	return effects{func(ctx context.Context) {
		r.notifier.SendToCreator(ctx, creator.ID, models.NotificationNewSubscriber,
			"@"+buyer.UserName+" subscribed to you",
			map[string]interface{}{"subscriptionId": sub.ID, "subscriberId": buyer.ID})
	}}, nil
}

func (r *Reconciler) grantPurchase(tx *gorm.DB, c *payments.CheckoutCompleted, buyer *models.User, creator *models.CreatorProfile, currency string) (effects, error) {
	postID := c.Metadata[payments.MetaPostID]
	if postID == "" {
		return nil, apperrors.Invalid("ppv checkout metadata is missing the post")
	}
	var post models.Post
	// a post deleted after payment is still sold
	if err := tx.Unscoped().First(&post, "id = ?", postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("post")
		}
		return nil, err
	}
	if post.CreatorID != creator.ID {
		return nil, apperrors.Invalid("ppv checkout post does not belong to the creator")
	}

	purchase := &models.PpvPurchase{
		BuyerID:            buyer.ID,
		PostID:             post.ID,
		Status:             models.PurchaseCompleted,
		AmountCents:        c.AmountTotalCents,
		Currency:           currency,
		ProviderPaymentRef: c.PaymentRef(),
	}
	if err := tx.Create(purchase).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperrors.ErrAlreadyPurchased
		}
		return nil, err
	}

	if _, err := r.ledger.Record(tx, ledger.Entry{
		CreatorID:   creator.ID,
		UserID:      buyer.ID,
		Type:        models.TransactionPPV,
		AmountCents: c.AmountTotalCents,
		Currency:    currency,
		PaymentRef:  c.PaymentRef(),
		PostID:      &post.ID,
		Metadata:    checkoutMetadata(c),
	}); err != nil {
		return nil, err
	}

	return effects{func(ctx context.Context) {
		r.notifier.SendToCreator(ctx, creator.ID, models.NotificationPPVSale,
			"@"+buyer.UserName+" unlocked your post for "+utils.FormatCents(c.AmountTotalCents),
			map[string]interface{}{"postId": post.ID, "buyerId": buyer.ID, "amountCents": c.AmountTotalCents})
	}}, nil
}

func (r *Reconciler) recordTip(tx *gorm.DB, c *payments.CheckoutCompleted, buyer *models.User, creator *models.CreatorProfile, currency string) (effects, error) {
	tip := &models.Tip{
		SenderID:           buyer.ID,
		CreatorID:          creator.ID,
		AmountCents:        c.AmountTotalCents,
		Currency:           currency,
		Message:            c.Metadata[payments.MetaMessage],
		Status:             models.PurchaseCompleted,
		ProviderPaymentRef: c.PaymentRef(),
	}
	if postID := c.Metadata[payments.MetaPostID]; postID != "" {
		tip.PostID = &postID
	}
	if err := tx.Create(tip).Error; err != nil {
		return nil, err
	}

	if _, err := r.ledger.Record(tx, ledger.Entry{
		CreatorID:   creator.ID,
		UserID:      buyer.ID,
		Type:        models.TransactionTip,
		AmountCents: c.AmountTotalCents,
		Currency:    currency,
		PaymentRef:  c.PaymentRef(),
		TipID:       &tip.ID,
		PostID:      tip.PostID,
		Metadata:    checkoutMetadata(c),
	}); err != nil {
		return nil, err
	}

	typ := models.NotificationTip
	if r.settings.LargeTipThresholdCents > 0 && c.AmountTotalCents >= r.settings.LargeTipThresholdCents {
		typ = models.NotificationLargeTip
	}
	return effects{func(ctx context.Context) {
		r.notifier.SendToCreator(ctx, creator.ID, typ,
			"@"+buyer.UserName+" sent you a tip of "+utils.FormatCents(c.AmountTotalCents),
			map[string]interface{}{"tipId": tip.ID, "senderId": buyer.ID, "amountCents": c.AmountTotalCents, "message": tip.Message})
	}}, nil
}

func checkoutMetadata(c *payments.CheckoutCompleted) map[string]interface{} {
	m := map[string]interface{}{"sessionId": c.SessionID}
	if c.PaymentIntentID != "" {
		m["paymentIntentId"] = c.PaymentIntentID
	}
	if c.ProviderSubscriptionID != "" {
		m["providerSubscriptionId"] = c.ProviderSubscriptionID
	}
	return m
}

// MapStatus converts a provider subscription status to the local one.
func MapStatus(providerStatus string) models.SubscriptionStatus {
	switch providerStatus {
	case "active":
		return models.SubscriptionActive
	case "past_due":
		return models.SubscriptionPastDue
	case "canceled":
		return models.SubscriptionCanceled
	}
	return models.SubscriptionExpired
}

// findByProviderID returns the newest local subscription for a provider subscription id.
func findByProviderID(tx *gorm.DB, providerSubscriptionID string) (*models.Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, nil
	}
	var sub models.Subscription
	err := tx.Where("provider_subscription_id = ?", providerSubscriptionID).
		Order("created_at DESC").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// subscriptionChanged applies subscription_updated and subscription_deleted. Events for a
// subscription the platform does not know yet are acknowledged: the provider emits
// customer.subscription.created before the checkout completes, and the checkout reads the
// current period from the provider itself.
//
// canceled and expired are terminal. The provider does not order its events, so a late
// update carrying an older active state never revives such a row.
func (r *Reconciler) subscriptionChanged(tx *gorm.DB, s *payments.SubscriptionChange, deleted bool) error {
	sub, err := findByProviderID(tx, s.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		utils.LogInfo("subscription event for unknown provider subscription " + s.ProviderSubscriptionID)
		return nil
	}

	status := MapStatus(s.Status)
	if deleted {
		status = models.SubscriptionCanceled
	}
	if !sub.Status.Entitling() && status.Entitling() {
		utils.LogInfo("stale subscription event ignored for terminal subscription " + sub.ID)
		return nil
	}
	updates := map[string]interface{}{"status": status}
	if !s.PeriodStart.IsZero() {
		updates["current_period_start"] = s.PeriodStart
	}
	if !s.PeriodEnd.IsZero() {
		updates["current_period_end"] = s.PeriodEnd
	}
	if status == models.SubscriptionCanceled && sub.CanceledAt == nil {
		updates["canceled_at"] = r.now().UTC()
	}

	if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return apperrors.ErrAlreadySubscribed
		}
		return err
	}
	return nil
}

// invoicePaid books one renewal Transaction per paid billing cycle and extends the period.
// The first invoice of a subscription is skipped: its charge was booked when the
// subscription was granted.
func (r *Reconciler) invoicePaid(tx *gorm.DB, inv *payments.InvoiceEvent) error {
	if inv.BillingReason == payments.BillingReasonSubscriptionCreate || inv.ProviderSubscriptionID == "" {
		return nil
	}
	if inv.AmountPaidCents <= 0 {
		utils.LogInfo("zero amount invoice " + inv.InvoiceID + " not booked")
		return nil
	}

	exists, err := r.ledger.ExistsForRef(tx, inv.PaymentRef())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	sub, err := findByProviderID(tx, inv.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		// retryable: the checkout that creates the subscription may not have landed yet
		return fmt.Errorf("no subscription for provider subscription %s", inv.ProviderSubscriptionID)
	}

	currency := inv.Currency
	if currency == "" {
		currency = sub.Currency
	}
	if _, err := r.ledger.Record(tx, ledger.Entry{
		CreatorID:      sub.CreatorID,
		UserID:         sub.SubscriberID,
		Type:           models.TransactionRenewal,
		AmountCents:    inv.AmountPaidCents,
		Currency:       currency,
		PaymentRef:     inv.PaymentRef(),
		SubscriptionID: &sub.ID,
		Metadata:       map[string]interface{}{"invoiceId": inv.InvoiceID, "billingReason": inv.BillingReason},
	}); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if inv.PeriodEnd.After(sub.CurrentPeriodEnd) {
		updates["current_period_end"] = inv.PeriodEnd
		if !inv.PeriodStart.IsZero() {
			updates["current_period_start"] = inv.PeriodStart
		}
	}
	if sub.Status == models.SubscriptionPastDue {
		updates["status"] = models.SubscriptionActive
	}
	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return apperrors.ErrAlreadySubscribed
		}
		return err
	}
	return nil
}

// invoicePaymentFailed moves an active subscription to past_due. Access is kept until the
// period end; a later subscription_deleted or subscription_updated settles it.
func (r *Reconciler) invoicePaymentFailed(tx *gorm.DB, inv *payments.InvoiceEvent) error {
	sub, err := findByProviderID(tx, inv.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil || sub.Status != models.SubscriptionActive {
		return nil
	}
	return tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).
		Update("status", models.SubscriptionPastDue).Error
}

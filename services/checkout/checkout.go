// Package checkout starts payments. Hosted checkout sessions never touch entitlements or
// the ledger: the webhook reconciler settles them once the money has moved. The direct
// charge path is the one exception and writes both inline, under the same invariants.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"nudfans-backend/apperrors"
	"nudfans-backend/db"
	"nudfans-backend/models"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/services/ledger"
	"nudfans-backend/services/locks"
	"nudfans-backend/services/notify"
	"nudfans-backend/services/payments"
	"nudfans-backend/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrSubscriptionInProgress = apperrors.New(apperrors.KindConflict, "SUBSCRIPTION_IN_PROGRESS", "a subscription request for this creator is already being processed")

var ErrSubscriptionNotActive = apperrors.New(apperrors.KindConflict, "SUBSCRIPTION_NOT_ACTIVE", "this subscription is not active")

type Settings struct {
	Currency    string
	MinTipCents int64
	SuccessURL  string
	CancelURL   string
}

type Service struct {
	db       *gorm.DB
	provider payments.Provider
	ledger   *ledger.Ledger
	store    *entitlements.Store
	locker   locks.Locker
	notifier *notify.Notifier
	settings Settings
	now      func() time.Time
}

func New(database *gorm.DB, provider payments.Provider, l *ledger.Ledger, store *entitlements.Store, locker locks.Locker, notifier *notify.Notifier, settings Settings) *Service {
	return &Service{
		db:       database,
		provider: provider,
		ledger:   l,
		store:    store,
		locker:   locker,
		notifier: notifier,
		settings: settings,
		now:      time.Now,
	}
}

// Redirect is what the client needs to open the hosted checkout page.
type Redirect struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func (s *Service) loadUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, apperrors.Internal(err)
	}
	return &user, nil
}

func (s *Service) loadCreator(ctx context.Context, creatorID string) (*models.CreatorProfile, error) {
	var creator models.CreatorProfile
	if err := s.db.WithContext(ctx).Preload("User").First(&creator, "id = ?", creatorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("creator")
		}
		return nil, apperrors.Internal(err)
	}
	if creator.User == nil || !creator.User.Enable {
		return nil, apperrors.NotFound("creator")
	}
	return &creator, nil
}

// EnsureCustomer returns the provider customer of user, creating it once and caching the
// id on the user row. A cached id the provider no longer knows is replaced.
func (s *Service) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerId != "" {
		exists, err := s.provider.CustomerExists(ctx, user.StripeCustomerId)
		if err != nil {
			return "", apperrors.Provider(err)
		}
		if exists {
			return user.StripeCustomerId, nil
		}
		utils.LogWarn("cached payment customer missing at the provider, recreating", logrus.Fields{"user_id": user.ID})
	}

	id, err := s.provider.CreateCustomer(ctx, payments.CustomerParams{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.UserName,
	})
	if err != nil {
		return "", apperrors.Provider(err)
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Update("stripe_customer_id", id).Error; err != nil {
		return "", apperrors.Internal(err)
	}
	user.StripeCustomerId = id
	return id, nil
}

func (s *Service) openSession(ctx context.Context, payer *models.User, params payments.CheckoutParams) (*Redirect, error) {
	customerID, err := s.EnsureCustomer(ctx, payer)
	if err != nil {
		return nil, err
	}
	params.CustomerID = customerID
	params.Currency = s.settings.Currency
	params.SuccessURL = s.settings.SuccessURL
	params.CancelURL = s.settings.CancelURL

	sess, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, apperrors.Provider(err)
	}
	utils.LogSuccessWithUser(payer.ID, fmt.Sprintf("checkout session %s created for %s", sess.ID, params.Kind))
	return &Redirect{SessionID: sess.ID, URL: sess.URL}, nil
}

// StartSubscription opens a recurring checkout at the creator's current price. The price
// travels in the session metadata and becomes the subscription's locked price.
func (s *Service) StartSubscription(ctx context.Context, userID, creatorID string) (*Redirect, error) {
	payer, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	creator, err := s.loadCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if creator.UserID == payer.ID {
		return nil, apperrors.ErrSelfPurchase
	}

	active, err := s.store.ActiveSubscription(ctx, payer.ID, creator.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if active != nil {
		return nil, apperrors.ErrAlreadySubscribed
	}

	price := creator.SubscriptionPriceCents
	return s.openSession(ctx, payer, payments.CheckoutParams{
		Kind:        payments.KindSubscription,
		ProductName: "Subscription to @" + creator.User.UserName,
		AmountCents: price,
		Recurring:   true,
		Metadata: map[string]string{
			payments.MetaType:       string(payments.KindSubscription),
			payments.MetaUserID:     payer.ID,
			payments.MetaCreatorID:  creator.ID,
			payments.MetaPriceCents: strconv.FormatInt(price, 10),
		},
	})
}

// StartPPV opens a one-off checkout unlocking a pay-per-view post.
func (s *Service) StartPPV(ctx context.Context, userID, postID string) (*Redirect, error) {
	payer, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ? AND enable = ?", postID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("post")
		}
		return nil, apperrors.Internal(err)
	}
	if post.PostType != models.PostPPV {
		return nil, apperrors.ErrNotPPV
	}
	if post.PpvPriceCents <= 0 {
		return nil, apperrors.ErrInvalidPrice
	}

	creator, err := s.loadCreator(ctx, post.CreatorID)
	if err != nil {
		return nil, err
	}
	if creator.UserID == payer.ID {
		return nil, apperrors.ErrSelfPurchase
	}

	purchased, err := s.store.HasCompletedPurchase(ctx, payer.ID, post.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if purchased {
		return nil, apperrors.ErrAlreadyPurchased
	}

	return s.openSession(ctx, payer, payments.CheckoutParams{
		Kind:        payments.KindPPV,
		ProductName: "Post by @" + creator.User.UserName,
		AmountCents: post.PpvPriceCents,
		Metadata: map[string]string{
			payments.MetaType:       string(payments.KindPPV),
			payments.MetaUserID:     payer.ID,
			payments.MetaCreatorID:  creator.ID,
			payments.MetaPostID:     post.ID,
			payments.MetaPriceCents: strconv.FormatInt(post.PpvPriceCents, 10),
		},
	})
}

// TipRequest is a validated tip.
type TipRequest struct {
	AmountCents int64
	Message     string
	PostID      *string
}

// StartTip opens a one-off checkout for a tip of at least the configured minimum.
func (s *Service) StartTip(ctx context.Context, userID, creatorID string, req TipRequest) (*Redirect, error) {
	if req.AmountCents < s.settings.MinTipCents {
		return nil, apperrors.ErrInvalidAmount
	}
	payer, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	creator, err := s.loadCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if creator.UserID == payer.ID {
		return nil, apperrors.ErrSelfPurchase
	}

	meta := map[string]string{
		payments.MetaType:       string(payments.KindTip),
		payments.MetaUserID:     payer.ID,
		payments.MetaCreatorID:  creator.ID,
		payments.MetaPriceCents: strconv.FormatInt(req.AmountCents, 10),
	}
	if req.Message != "" {
		meta[payments.MetaMessage] = req.Message
	}
	if req.PostID != nil && *req.PostID != "" {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Post{}).
			Where("id = ? AND creator_id = ?", *req.PostID, creator.ID).Count(&count).Error; err != nil {
			return nil, apperrors.Internal(err)
		}
		if count == 0 {
			return nil, apperrors.NotFound("post")
		}
		meta[payments.MetaPostID] = *req.PostID
	}

	return s.openSession(ctx, payer, payments.CheckoutParams{
		Kind:        payments.KindTip,
		ProductName: "Tip for @" + creator.User.UserName,
		AmountCents: req.AmountCents,
		Metadata:    meta,
	})
}

// DirectSubscribe charges a saved card synchronously and writes the Subscription and its
// Transaction in the same request. A pair lock serializes concurrent attempts; the partial
// unique index on active subscriptions rejects whatever still races, including a webhook
// settling a hosted checkout for the same pair.
func (s *Service) DirectSubscribe(ctx context.Context, userID, creatorID, paymentMethodID string) (*models.Subscription, error) {
	payer, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	creator, err := s.loadCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if creator.UserID == payer.ID {
		return nil, apperrors.ErrSelfPurchase
	}

	release, err := s.locker.Acquire(ctx, locks.PairKey(payer.ID, creator.ID))
	if err != nil {
		if errors.Is(err, locks.ErrBusy) {
			return nil, ErrSubscriptionInProgress
		}
		return nil, apperrors.Internal(err)
	}
	defer release()

	active, err := s.store.ActiveSubscription(ctx, payer.ID, creator.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if active != nil {
		return nil, apperrors.ErrAlreadySubscribed
	}

	customerID, err := s.EnsureCustomer(ctx, payer)
	if err != nil {
		return nil, err
	}
	if err := s.provider.AttachPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
		return nil, apperrors.Provider(err)
	}

	productID, err := s.provider.EnsureProduct(ctx, creator.StripeProductId, "Subscription to @"+creator.User.UserName)
	if err != nil {
		return nil, apperrors.Provider(err)
	}
	if productID != creator.StripeProductId {
		if err := s.db.WithContext(ctx).Model(&models.CreatorProfile{}).Where("id = ?", creator.ID).
			Update("stripe_product_id", productID).Error; err != nil {
			return nil, apperrors.Internal(err)
		}
	}

	price := creator.SubscriptionPriceCents
	psub, err := s.provider.CreateSubscription(ctx, payments.SubscriptionParams{
		CustomerID:      customerID,
		PaymentMethodID: paymentMethodID,
		ProductID:       productID,
		AmountCents:     price,
		Currency:        s.settings.Currency,
		Metadata: map[string]string{
			payments.MetaType:       string(payments.KindSubscription),
			payments.MetaUserID:     payer.ID,
			payments.MetaCreatorID:  creator.ID,
			payments.MetaPriceCents: strconv.FormatInt(price, 10),
		},
	})
	if err != nil {
		return nil, apperrors.Provider(err)
	}
	if !psub.Active() {
		s.cancelAtProvider(ctx, payer.ID, psub.ID)
		return nil, apperrors.Provider(fmt.Errorf("provider subscription %s is %s", psub.ID, psub.Status))
	}

	now := s.now().UTC()
	sub := &models.Subscription{
		SubscriberID:           payer.ID,
		CreatorID:              creator.ID,
		Status:                 models.SubscriptionActive,
		ProviderSubscriptionId: psub.ID,
		CurrentPeriodStart:     psub.PeriodStart,
		CurrentPeriodEnd:       psub.PeriodEnd,
		PriceAtPurchaseCents:   price,
		Currency:               s.settings.Currency,
	}
	if sub.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = now
	}
	if sub.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = now.AddDate(0, 1, 0)
	}

	ref := "sub:" + psub.ID
	if psub.LatestInvoiceID != "" {
		ref = "in:" + psub.LatestInvoiceID
	}
	amount := psub.AmountPaidCents
	if amount <= 0 {
		amount = price
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return apperrors.ErrAlreadySubscribed
			}
			return err
		}
		_, err := s.ledger.Record(tx, ledger.Entry{
			CreatorID:      creator.ID,
			UserID:         payer.ID,
			Type:           models.TransactionSubscription,
			AmountCents:    amount,
			Currency:       s.settings.Currency,
			PaymentRef:     ref,
			SubscriptionID: &sub.ID,
			Metadata:       map[string]interface{}{"source": "direct"},
		})
		return err
	})
	if err != nil {
		// the card was charged but nothing was granted: undo at the provider
		s.cancelAtProvider(ctx, payer.ID, psub.ID)
		if errors.Is(err, apperrors.ErrAlreadySubscribed) {
			return nil, apperrors.ErrAlreadySubscribed
		}
		return nil, apperrors.Internal(err)
	}

	utils.LogSuccessWithUser(payer.ID, "direct subscription created for creator "+creator.ID)
	s.notifier.SendToCreator(ctx, creator.ID, models.NotificationNewSubscriber,
		"@"+payer.UserName+" subscribed to you",
		map[string]interface{}{"subscriptionId": sub.ID, "subscriberId": payer.ID})
	return sub, nil
}

func (s *Service) cancelAtProvider(ctx context.Context, userID, providerSubscriptionID string) {
	if err := s.provider.CancelSubscription(context.WithoutCancel(ctx), providerSubscriptionID); err != nil {
		utils.LogErrorWithUser(userID, err, "could not cancel provider subscription "+providerSubscriptionID)
	}
}

// RequestCancel asks the provider to stop renewing. The local status is left to the
// webhook: the subscriber keeps access until the paid period ends.
func (s *Service) RequestCancel(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).First(&sub, "id = ?", subscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("subscription")
		}
		return nil, apperrors.Internal(err)
	}
	if sub.SubscriberID != userID {
		return nil, apperrors.ErrForbidden
	}
	if !sub.Status.Entitling() || sub.ProviderSubscriptionId == "" {
		return nil, ErrSubscriptionNotActive
	}

	if err := s.provider.ScheduleCancellation(ctx, sub.ProviderSubscriptionId); err != nil {
		return nil, apperrors.Provider(err)
	}
	utils.LogSuccessWithUser(userID, "cancellation requested for subscription "+sub.ID)
	return &sub, nil
}

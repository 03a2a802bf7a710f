// Package entitlements holds the queries over the records that grant access: follows,
// subscriptions and pay-per-view purchases.
package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nudfans-backend/db"
	"nudfans-backend/models"
	"nudfans-backend/services/access"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(database *gorm.DB) *Store {
	return &Store{db: database}
}

var entitlingStatuses = []models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPastDue}

// ViewerFor builds the access viewer for a user, resolving its creator profile if any.
func (s *Store) ViewerFor(ctx context.Context, userID string) (*access.Viewer, error) {
	if userID == "" {
		return nil, nil
	}
	v := &access.Viewer{UserID: userID}
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.CreatorProfile{}).
		Where("user_id = ?", userID).Limit(1).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("loading creator profile: %w", err)
	}
	if len(ids) > 0 {
		v.CreatorID = ids[0]
	}
	return v, nil
}

// ActiveSubscription returns the active subscription for the pair, nil when there is none.
func (s *Store) ActiveSubscription(ctx context.Context, subscriberID, creatorID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("subscriber_id = ? AND creator_id = ? AND status = ?", subscriberID, creatorID, models.SubscriptionActive).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading active subscription: %w", err)
	}
	return &sub, nil
}

// LatestSubscription returns the most recent subscription for the pair in any status.
func (s *Store) LatestSubscription(ctx context.Context, subscriberID, creatorID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).
		Where("subscriber_id = ? AND creator_id = ?", subscriberID, creatorID).
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	return &sub, nil
}

func (s *Store) HasCompletedPurchase(ctx context.Context, buyerID, postID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.PpvPurchase{}).
		Where("buyer_id = ? AND post_id = ? AND status = ?", buyerID, postID, models.PurchaseCompleted).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking purchase: %w", err)
	}
	return count > 0, nil
}

// LoadForViewer fetches, in two queries, every entitlement the viewer holds over posts.
// Free posts and posts owned by the viewer need none and are skipped.
func (s *Store) LoadForViewer(ctx context.Context, viewer *access.Viewer, posts []access.PostRef) (access.Entitlements, error) {
	ents := access.NoEntitlements()
	if viewer == nil || viewer.UserID == "" {
		return ents, nil
	}

	creatorSet := map[string]struct{}{}
	var creatorIDs, postIDs []string
	for _, p := range posts {
		if p.Type == models.PostFree || p.CreatorID == viewer.CreatorID {
			continue
		}
		postIDs = append(postIDs, p.ID)
		if _, seen := creatorSet[p.CreatorID]; !seen {
			creatorSet[p.CreatorID] = struct{}{}
			creatorIDs = append(creatorIDs, p.CreatorID)
		}
	}
	if len(postIDs) == 0 {
		return ents, nil
	}

	var subs []struct {
		CreatorID        string
		CurrentPeriodEnd time.Time
	}
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("creator_id", "current_period_end").
		Where("subscriber_id = ? AND creator_id IN ? AND status IN ?", viewer.UserID, creatorIDs, entitlingStatuses).
		Scan(&subs).Error
	if err != nil {
		return ents, fmt.Errorf("loading subscriptions: %w", err)
	}
	for _, sub := range subs {
		if cur, ok := ents.SubscriptionEnds[sub.CreatorID]; !ok || sub.CurrentPeriodEnd.After(cur) {
			ents.SubscriptionEnds[sub.CreatorID] = sub.CurrentPeriodEnd
		}
	}

	var purchased []string
	err = s.db.WithContext(ctx).Model(&models.PpvPurchase{}).
		Where("buyer_id = ? AND post_id IN ? AND status = ?", viewer.UserID, postIDs, models.PurchaseCompleted).
		Pluck("post_id", &purchased).Error
	if err != nil {
		return ents, fmt.Errorf("loading purchases: %w", err)
	}
	for _, id := range purchased {
		ents.Purchased[id] = true
	}
	return ents, nil
}

// ListSubscriptions returns the subscriber's subscriptions, newest first, with the creator.
func (s *Store) ListSubscriptions(ctx context.Context, subscriberID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Preload("Creator").Preload("Creator.User").
		Where("subscriber_id = ?", subscriberID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	return subs, nil
}

// ListSubscribers returns the subscriptions that currently entitle a subscriber to the creator.
func (s *Store) ListSubscribers(ctx context.Context, creatorID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("creator_id = ? AND status IN ?", creatorID, entitlingStatuses).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	return subs, nil
}

func (s *Store) CountSubscribers(ctx context.Context, creatorID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("creator_id = ? AND status IN ?", creatorID, entitlingStatuses).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting subscribers: %w", err)
	}
	return count, nil
}

func (s *Store) ListPurchases(ctx context.Context, buyerID string) ([]models.PpvPurchase, error) {
	var purchases []models.PpvPurchase
	err := s.db.WithContext(ctx).
		Where("buyer_id = ? AND status = ?", buyerID, models.PurchaseCompleted).
		Order("created_at DESC").
		Find(&purchases).Error
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	return purchases, nil
}

func (s *Store) IsFollowing(ctx context.Context, followerID, creatorID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Follower{}).
		Where("follower_id = ? AND creator_id = ?", followerID, creatorID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking follow: %w", err)
	}
	return count > 0, nil
}

// ToggleFollow follows the creator, or unfollows when the link already exists. It returns
// the resulting state.
func (s *Store) ToggleFollow(ctx context.Context, followerID, creatorID string) (bool, error) {
	following := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND creator_id = ?", followerID, creatorID).Delete(&models.Follower{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		following = true
		return tx.Create(&models.Follower{FollowerID: followerID, CreatorID: creatorID}).Error
	})
	if db.IsUniqueViolation(err) {
		// a concurrent request followed first
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("toggling follow: %w", err)
	}
	return following, nil
}

func (s *Store) CountFollowers(ctx context.Context, creatorID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Follower{}).Where("creator_id = ?", creatorID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting followers: %w", err)
	}
	return count, nil
}

// Package social holds follows, likes, comments and reports. Likes and comments need access
// to the post: a locked post cannot be interacted with.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nudfans-backend/apperrors"
	"nudfans-backend/db"
	"nudfans-backend/models"
	"nudfans-backend/services/access"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/services/notify"
	"nudfans-backend/utils"

	"gorm.io/gorm"
)

var ErrPostLocked = apperrors.New(apperrors.KindForbidden, "POST_LOCKED", "you do not have access to this post")

type Service struct {
	db        *gorm.DB
	store     *entitlements.Store
	evaluator *access.Evaluator
	notifier  *notify.Notifier
}

func New(database *gorm.DB, store *entitlements.Store, evaluator *access.Evaluator, notifier *notify.Notifier) *Service {
	return &Service{db: database, store: store, evaluator: evaluator, notifier: notifier}
}

// ToggleFollow follows or unfollows a creator and returns the new state.
func (s *Service) ToggleFollow(ctx context.Context, viewer *access.Viewer, creatorID string) (bool, error) {
	if viewer == nil {
		return false, apperrors.ErrUnauthenticated
	}
	if viewer.CreatorID == creatorID {
		return false, apperrors.Invalid("you cannot follow yourself")
	}
	var creator models.CreatorProfile
	if err := s.db.WithContext(ctx).Preload("User").First(&creator, "id = ?", creatorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, apperrors.NotFound("creator")
		}
		return false, apperrors.Internal(err)
	}
	following, err := s.store.ToggleFollow(ctx, viewer.UserID, creatorID)
	if err != nil {
		return false, apperrors.Internal(err)
	}
	if following {
		s.notifier.Send(ctx, creator.UserID, models.NotificationNewFollower, "you have a new follower",
			map[string]interface{}{"followerId": viewer.UserID})
	}
	return following, nil
}

// accessiblePost loads a post and refuses it when the viewer cannot see it.
func (s *Service) accessiblePost(ctx context.Context, viewer *access.Viewer, postID string) (*models.Post, error) {
	if viewer == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	var post models.Post
	if err := s.db.WithContext(ctx).Preload("Creator").First(&post, "id = ? AND enable = ?", postID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("post")
		}
		return nil, apperrors.Internal(err)
	}
	ref := access.RefOf(&post)
	ents, err := s.store.LoadForViewer(ctx, viewer, []access.PostRef{ref})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !s.evaluator.Evaluate(viewer, ref, ents).HasAccess {
		return nil, ErrPostLocked
	}
	return &post, nil
}

// ToggleLike likes or unlikes a post and returns the new state. The counter on the post is
// a display cache kept in the same transaction.
func (s *Service) ToggleLike(ctx context.Context, viewer *access.Viewer, postID string) (bool, error) {
	post, err := s.accessiblePost(ctx, viewer, postID)
	if err != nil {
		return false, err
	}
	liked := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", post.ID, viewer.UserID).Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		delta := -1
		if res.RowsAffected == 0 {
			liked = true
			delta = 1
			if err := tx.Create(&models.PostLike{PostID: post.ID, UserID: viewer.UserID}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("likes_count", gorm.Expr("likes_count + ?", delta)).Error
	})
	if db.IsUniqueViolation(err) {
		return true, nil
	}
	if err != nil {
		return false, apperrors.Internal(fmt.Errorf("toggling like: %w", err))
	}
	if liked && post.Creator != nil && post.Creator.UserID != viewer.UserID {
		s.notifier.Send(ctx, post.Creator.UserID, models.NotificationLike, "someone liked your post",
			map[string]interface{}{"postId": post.ID, "userId": viewer.UserID})
	}
	return liked, nil
}

func (s *Service) ListComments(ctx context.Context, viewer *access.Viewer, postID string, limit, offset int) ([]models.Comment, error) {
	post, err := s.accessiblePost(ctx, viewer, postID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var comments []models.Comment
	if err := s.db.WithContext(ctx).Preload("User").Where("post_id = ?", post.ID).
		Order("created_at ASC").Limit(limit).Offset(offset).Find(&comments).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("listing comments: %w", err))
	}
	return comments, nil
}

func (s *Service) AddComment(ctx context.Context, viewer *access.Viewer, postID, content string) (*models.Comment, error) {
	post, err := s.accessiblePost(ctx, viewer, postID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Invalid("comment is empty")
	}
	comment := &models.Comment{PostID: post.ID, UserID: viewer.UserID, Content: content}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("comments_count", gorm.Expr("comments_count + ?", 1)).Error
	})
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("adding comment: %w", err))
	}
	if post.Creator != nil && post.Creator.UserID != viewer.UserID {
		s.notifier.Send(ctx, post.Creator.UserID, models.NotificationComment, "new comment on your post",
			map[string]interface{}{"postId": post.ID, "commentId": comment.ID})
	}
	return comment, nil
}

// DeleteComment is allowed to the author, the post's creator and admins.
func (s *Service) DeleteComment(ctx context.Context, viewer *access.Viewer, commentID string, isAdmin bool) error {
	if viewer == nil {
		return apperrors.ErrUnauthenticated
	}
	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ?", commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("comment")
		}
		return apperrors.Internal(err)
	}
	allowed := isAdmin || comment.UserID == viewer.UserID
	if !allowed && viewer.CreatorID != "" {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Post{}).
			Where("id = ? AND creator_id = ?", comment.PostID, viewer.CreatorID).Count(&n).Error; err != nil {
			return apperrors.Internal(err)
		}
		allowed = n > 0
	}
	if !allowed {
		return apperrors.ErrForbidden
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("comment_id = ?", comment.ID).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ? AND comments_count > 0", comment.PostID).
			UpdateColumn("comments_count", gorm.Expr("comments_count - ?", 1)).Error
	})
	if err != nil {
		return apperrors.Internal(fmt.Errorf("deleting comment: %w", err))
	}
	utils.LogSuccessWithUser(viewer.UserID, "comment deleted: "+comment.ID)
	return nil
}

func (s *Service) ToggleCommentLike(ctx context.Context, viewer *access.Viewer, commentID string) (bool, error) {
	if viewer == nil {
		return false, apperrors.ErrUnauthenticated
	}
	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, "id = ?", commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, apperrors.NotFound("comment")
		}
		return false, apperrors.Internal(err)
	}
	if _, err := s.accessiblePost(ctx, viewer, comment.PostID); err != nil {
		return false, err
	}

	liked := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("comment_id = ? AND user_id = ?", comment.ID, viewer.UserID).Delete(&models.CommentLike{})
		if res.Error != nil {
			return res.Error
		}
		delta := -1
		if res.RowsAffected == 0 {
			liked = true
			delta = 1
			if err := tx.Create(&models.CommentLike{CommentID: comment.ID, UserID: viewer.UserID}).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Comment{}).Where("id = ?", comment.ID).
			UpdateColumn("likes_count", gorm.Expr("likes_count + ?", delta)).Error
	})
	if db.IsUniqueViolation(err) {
		return true, nil
	}
	if err != nil {
		return false, apperrors.Internal(fmt.Errorf("toggling comment like: %w", err))
	}
	return liked, nil
}

var ErrAlreadyReported = apperrors.New(apperrors.KindConflict, "ALREADY_REPORTED", "you already reported this post")

// Report flags a post for moderation. Reporting does not need access to the post.
func (s *Service) Report(ctx context.Context, viewer *access.Viewer, postID string, reason models.ReportReason) (*models.Report, error) {
	if viewer == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	if n == 0 {
		return nil, apperrors.NotFound("post")
	}
	report := &models.Report{PostID: postID, ReportedBy: viewer.UserID, Reason: reason, Status: models.ReportOpen}
	if err := s.db.WithContext(ctx).Create(report).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrAlreadyReported
		}
		return nil, apperrors.Internal(fmt.Errorf("creating report: %w", err))
	}
	utils.LogSuccessWithUser(viewer.UserID, "post reported: "+postID)
	return report, nil
}

func (s *Service) ListReports(ctx context.Context, status models.ReportStatus) ([]models.Report, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var reports []models.Report
	if err := q.Find(&reports).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("listing reports: %w", err))
	}
	return reports, nil
}

func (s *Service) UpdateReportStatus(ctx context.Context, reportID string, status models.ReportStatus) (*models.Report, error) {
	var report models.Report
	if err := s.db.WithContext(ctx).First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("report")
		}
		return nil, apperrors.Internal(err)
	}
	if err := s.db.WithContext(ctx).Model(&report).Update("status", status).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("updating report: %w", err))
	}
	report.Status = status
	return &report, nil
}

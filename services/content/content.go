// Package content serves posts to viewers. Every read goes through the access evaluator and
// a locked post never carries the URL of its media.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"nudfans-backend/apperrors"
	"nudfans-backend/models"
	"nudfans-backend/services/access"
	"nudfans-backend/services/entitlements"
	"nudfans-backend/services/storage"
	"nudfans-backend/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxMediaPerPost = 20
)

var ErrNotCreator = apperrors.New(apperrors.KindForbidden, "NOT_CREATOR", "only creators can publish posts")

type CreatorSummary struct {
	ID             string `json:"id"`
	UserName       string `json:"username"`
	DisplayName    string `json:"displayName"`
	ProfilePicture string `json:"profilePicture"`
	IsVerified     bool   `json:"isVerified"`
}

// MediaView is the client shape of a media item. URL is empty whenever Locked is set.
type MediaView struct {
	ID         string           `json:"id"`
	Type       models.MediaType `json:"type"`
	Position   int              `json:"position"`
	URL        string           `json:"url,omitempty"`
	PreviewURL string           `json:"previewUrl,omitempty"`
	Locked     bool             `json:"locked"`
}

type PostView struct {
	ID            string          `json:"id"`
	CreatorID     string          `json:"creatorId"`
	Creator       *CreatorSummary `json:"creator,omitempty"`
	Content       string          `json:"content"`
	PostType      models.PostType `json:"postType"`
	PpvPriceCents int64           `json:"ppvPriceCents"`
	PpvPrice      string          `json:"ppvPrice,omitempty"`
	LikesCount    int64           `json:"likesCount"`
	CommentsCount int64           `json:"commentsCount"`
	ViewsCount    int64           `json:"viewsCount"`
	Enable        bool            `json:"enable"`
	HasAccess     bool            `json:"hasAccess"`
	LockReason    access.Reason   `json:"lockReason,omitempty"`
	Media         []MediaView     `json:"media"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type Service struct {
	db        *gorm.DB
	store     *entitlements.Store
	evaluator *access.Evaluator
	blobs     storage.BlobStore
}

func New(database *gorm.DB, store *entitlements.Store, evaluator *access.Evaluator, blobs storage.BlobStore) *Service {
	return &Service{db: database, store: store, evaluator: evaluator, blobs: blobs}
}

func (s *Service) basePosts(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Post{}).
		Preload("Media", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Creator").
		Preload("Creator.User")
}

// GetPost returns the post as the viewer may see it and counts a view. A disabled post is
// only visible to its owner.
func (s *Service) GetPost(ctx context.Context, viewer *access.Viewer, postID string) (*PostView, error) {
	view, err := s.ViewPost(ctx, viewer, postID)
	if err != nil {
		return nil, err
	}
	s.IncrementViews(ctx, view.ID)
	view.ViewsCount++
	return view, nil
}

// ViewPost is GetPost without counting a view.
func (s *Service) ViewPost(ctx context.Context, viewer *access.Viewer, postID string) (*PostView, error) {
	var post models.Post
	if err := s.basePosts(ctx).First(&post, "id = ?", postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("post")
		}
		return nil, apperrors.Internal(fmt.Errorf("loading post: %w", err))
	}
	if !post.Enable && !owns(viewer, &post) {
		return nil, apperrors.NotFound("post")
	}

	views, err := s.render(ctx, viewer, []models.Post{post})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListByCreator lists a creator's posts, newest first.
func (s *Service) ListByCreator(ctx context.Context, viewer *access.Viewer, creatorID string, page Page) ([]PostView, error) {
	page = page.normalize()
	q := s.basePosts(ctx).Where("creator_id = ?", creatorID)
	if viewer == nil || viewer.CreatorID != creatorID {
		q = q.Where("enable = ?", true)
	}
	var posts []models.Post
	if err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&posts).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("listing creator posts: %w", err))
	}
	return s.render(ctx, viewer, posts)
}

// ListFeed returns the posts of the creators the viewer follows or is subscribed to, plus
// the viewer's own. Anonymous visitors and users who follow nobody get the latest posts of
// every creator.
func (s *Service) ListFeed(ctx context.Context, viewer *access.Viewer, page Page) ([]PostView, error) {
	page = page.normalize()
	q := s.basePosts(ctx).Where("enable = ?", true)

	if viewer != nil && viewer.UserID != "" {
		var creatorIDs []string
		if err := s.db.WithContext(ctx).Model(&models.Follower{}).
			Where("follower_id = ?", viewer.UserID).Pluck("creator_id", &creatorIDs).Error; err != nil {
			return nil, apperrors.Internal(fmt.Errorf("loading follows: %w", err))
		}
		var subscribed []string
		if err := s.db.WithContext(ctx).Model(&models.Subscription{}).
			Where("subscriber_id = ? AND status IN ?", viewer.UserID,
				[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPastDue}).
			Pluck("creator_id", &subscribed).Error; err != nil {
			return nil, apperrors.Internal(fmt.Errorf("loading subscriptions: %w", err))
		}
		creatorIDs = append(creatorIDs, subscribed...)
		if viewer.CreatorID != "" {
			creatorIDs = append(creatorIDs, viewer.CreatorID)
		}
		if len(creatorIDs) > 0 {
			q = q.Where("creator_id IN ?", creatorIDs)
		}
	}

	var posts []models.Post
	if err := q.Order("created_at DESC").Limit(page.Limit).Offset(page.Offset).Find(&posts).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("listing feed: %w", err))
	}
	return s.render(ctx, viewer, posts)
}

// render loads the viewer's entitlements for the whole page at once and builds the views.
// If entitlements cannot be loaded the request fails: access is never granted by default.
func (s *Service) render(ctx context.Context, viewer *access.Viewer, posts []models.Post) ([]PostView, error) {
	refs := make([]access.PostRef, len(posts))
	for i := range posts {
		refs[i] = access.RefOf(&posts[i])
	}
	ents, err := s.store.LoadForViewer(ctx, viewer, refs)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	decisions := s.evaluator.EvaluateAll(viewer, refs, ents)

	views := make([]PostView, 0, len(posts))
	for i := range posts {
		views = append(views, s.view(&posts[i], decisions[posts[i].ID]))
	}
	return views, nil
}

func (s *Service) view(post *models.Post, d access.Decision) PostView {
	v := PostView{
		ID:            post.ID,
		CreatorID:     post.CreatorID,
		Content:       post.Content,
		PostType:      post.PostType,
		PpvPriceCents: post.PpvPriceCents,
		LikesCount:    post.LikesCount,
		CommentsCount: post.CommentsCount,
		ViewsCount:    post.ViewsCount,
		Enable:        post.Enable,
		HasAccess:     d.HasAccess,
		Media:         make([]MediaView, 0, len(post.Media)),
		CreatedAt:     post.CreatedAt,
	}
	if post.PostType == models.PostPPV {
		v.PpvPrice = utils.FormatCents(post.PpvPriceCents)
	}
	if !d.HasAccess {
		v.LockReason = d.Reason
	}
	if post.Creator != nil {
		v.Creator = &CreatorSummary{ID: post.Creator.ID, IsVerified: post.Creator.IsVerified}
		if post.Creator.User != nil {
			v.Creator.UserName = post.Creator.User.UserName
			v.Creator.DisplayName = post.Creator.User.DisplayName
			v.Creator.ProfilePicture = post.Creator.User.ProfilePicture
		}
	}
	for _, m := range post.Media {
		mv := MediaView{ID: m.ID, Type: m.Type, Position: m.Position}
		if d.HasAccess {
			mv.URL = m.URL
		} else {
			mv.Locked = true
			mv.PreviewURL = s.blobs.PreviewURL(m.FileKey, m.Type)
		}
		v.Media = append(v.Media, mv)
	}
	return v
}

// IncrementViews bumps the display counter. Failures are logged and ignored.
func (s *Service) IncrementViews(ctx context.Context, postID string) {
	err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("views_count", gorm.Expr("views_count + ?", 1)).Error
	if err != nil {
		utils.LogWarn("could not increment post views", logrus.Fields{"post_id": postID, "error": err.Error()})
	}
}

func owns(viewer *access.Viewer, post *models.Post) bool {
	return viewer != nil && viewer.CreatorID != "" && viewer.CreatorID == post.CreatorID
}

// Draft is a validated post payload.
type Draft struct {
	Content       string
	PostType      models.PostType
	PpvPriceCents int64
}

// DraftFromCreate parses the request payload. A ppv post needs a positive price; other
// types carry none.
func DraftFromCreate(in models.PostCreate) (Draft, error) {
	d := Draft{Content: in.Content, PostType: in.PostType}
	if !d.PostType.Valid() {
		return d, apperrors.Invalid(fmt.Sprintf("unknown post type %q", in.PostType))
	}
	if d.PostType != models.PostPPV {
		return d, nil
	}
	if in.PpvPrice == "" {
		return d, apperrors.Invalid("a ppv post needs a price")
	}
	cents, err := utils.ParseAmount(in.PpvPrice)
	if err != nil {
		return d, apperrors.Invalid(err.Error())
	}
	if cents <= 0 {
		return d, apperrors.ErrInvalidPrice
	}
	d.PpvPriceCents = cents
	return d, nil
}

// Create publishes a post for the viewer's creator profile.
func (s *Service) Create(ctx context.Context, viewer *access.Viewer, d Draft) (*models.Post, error) {
	if viewer == nil || viewer.CreatorID == "" {
		return nil, ErrNotCreator
	}
	if d.PostType == models.PostPPV && d.PpvPriceCents <= 0 {
		return nil, apperrors.ErrInvalidPrice
	}
	if d.PostType != models.PostPPV {
		d.PpvPriceCents = 0
	}
	post := &models.Post{
		CreatorID:     viewer.CreatorID,
		Content:       d.Content,
		PostType:      d.PostType,
		PpvPriceCents: d.PpvPriceCents,
		Enable:        true,
	}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("creating post: %w", err))
	}
	utils.LogSuccessWithUser(viewer.UserID, "post created: "+post.ID)
	return post, nil
}

// ownedPost loads a post and checks the viewer is its creator. Admins always pass when
// isAdmin is set.
func (s *Service) ownedPost(ctx context.Context, viewer *access.Viewer, postID string, isAdmin bool) (*models.Post, error) {
	if viewer == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	var post models.Post
	if err := s.db.WithContext(ctx).Preload("Media").First(&post, "id = ?", postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("post")
		}
		return nil, apperrors.Internal(fmt.Errorf("loading post: %w", err))
	}
	if !owns(viewer, &post) && !isAdmin {
		return nil, apperrors.ErrForbidden
	}
	return &post, nil
}

// Update applies a partial update. Turning a post into ppv requires a price, either in the
// update or already set. Earlier purchases keep their access whatever the new type.
func (s *Service) Update(ctx context.Context, viewer *access.Viewer, postID string, in models.PostUpdate) (*models.Post, error) {
	post, err := s.ownedPost(ctx, viewer, postID, false)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Content != nil {
		updates["content"] = *in.Content
	}
	if in.Enable != nil {
		updates["enable"] = *in.Enable
	}
	price := post.PpvPriceCents
	if in.PpvPrice != nil {
		cents, err := utils.ParseAmount(*in.PpvPrice)
		if err != nil {
			return nil, apperrors.Invalid(err.Error())
		}
		if cents <= 0 {
			return nil, apperrors.ErrInvalidPrice
		}
		price = cents
	}
	postType := post.PostType
	if in.PostType != nil {
		if !in.PostType.Valid() {
			return nil, apperrors.Invalid(fmt.Sprintf("unknown post type %q", *in.PostType))
		}
		postType = *in.PostType
		updates["post_type"] = postType
	}
	switch {
	case postType == models.PostPPV && price <= 0:
		return nil, apperrors.Invalid("a ppv post needs a price")
	case postType == models.PostPPV:
		updates["ppv_price_cents"] = price
	case postType != post.PostType || in.PpvPrice != nil:
		updates["ppv_price_cents"] = 0
	}
	if len(updates) == 0 {
		return post, nil
	}

	if err := s.db.WithContext(ctx).Model(post).Updates(updates).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("updating post: %w", err))
	}
	utils.LogSuccessWithUser(viewer.UserID, "post updated: "+post.ID)
	if err := s.db.WithContext(ctx).Preload("Media").First(post, "id = ?", post.ID).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("reloading post: %w", err))
	}
	return post, nil
}

// Delete soft deletes the post. Its media stay in the blob store: buyers of a ppv post keep
// what they paid for on their purchases page.
func (s *Service) Delete(ctx context.Context, viewer *access.Viewer, postID string, isAdmin bool) error {
	post, err := s.ownedPost(ctx, viewer, postID, isAdmin)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(post).Error; err != nil {
		return apperrors.Internal(fmt.Errorf("deleting post: %w", err))
	}
	utils.LogSuccessWithUser(viewer.UserID, "post deleted: "+post.ID)
	return nil
}

// Discard removes a post whose creation did not complete, with its media rows and blobs.
// Unlike Delete nothing is kept: the post was never visible to anyone.
func (s *Service) Discard(ctx context.Context, viewer *access.Viewer, postID string) error {
	post, err := s.ownedPost(ctx, viewer, postID, false)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("post_id = ?", post.ID).Delete(&models.PostMedia{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(post).Error
	})
	if err != nil {
		return apperrors.Internal(fmt.Errorf("discarding post: %w", err))
	}
	for _, m := range post.Media {
		if err := s.blobs.Delete(ctx, m.FileKey, m.Type); err != nil {
			utils.LogError(err, "could not remove orphan blob "+m.FileKey)
		}
	}
	utils.LogSuccessWithUser(viewer.UserID, "post discarded: "+post.ID)
	return nil
}

// AddMedia uploads a file and attaches it to the post at the next position.
func (s *Service) AddMedia(ctx context.Context, viewer *access.Viewer, postID string, file io.Reader, size int64) (*models.PostMedia, error) {
	post, err := s.ownedPost(ctx, viewer, postID, false)
	if err != nil {
		return nil, err
	}
	if len(post.Media) >= maxMediaPerPost {
		return nil, apperrors.Invalid(fmt.Sprintf("a post holds at most %d media", maxMediaPerPost))
	}

	body, contentType, mediaType, err := storage.Sniff(file)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			return nil, apperrors.Invalid(err.Error())
		}
		return nil, apperrors.Internal(err)
	}
	limit := int64(storage.MaxImageBytes)
	if mediaType == models.MediaVideo {
		limit = storage.MaxVideoBytes
	}
	if size > limit {
		return nil, apperrors.Invalid(fmt.Sprintf("file exceeds %d MB", limit>>20))
	}

	key := fmt.Sprintf("posts/%s/%s", post.ID, uuid.NewString())
	obj, err := s.blobs.Put(ctx, key, body, contentType)
	if err != nil {
		utils.LogErrorWithUser(viewer.UserID, err, "media upload failed")
		return nil, apperrors.Internal(err)
	}

	position := 0
	for _, m := range post.Media {
		if m.Position >= position {
			position = m.Position + 1
		}
	}
	media := &models.PostMedia{
		PostID:   post.ID,
		Type:     mediaType,
		URL:      obj.URL,
		FileKey:  obj.Key,
		Position: position,
	}
	if err := s.db.WithContext(ctx).Create(media).Error; err != nil {
		if delErr := s.blobs.Delete(ctx, obj.Key, mediaType); delErr != nil {
			utils.LogError(delErr, "could not remove orphan blob "+obj.Key)
		}
		return nil, apperrors.Internal(fmt.Errorf("saving media: %w", err))
	}
	return media, nil
}

// RemoveMedia detaches a media item and deletes its blob. A blob that cannot be removed is
// logged; the row is gone either way.
func (s *Service) RemoveMedia(ctx context.Context, viewer *access.Viewer, postID, mediaID string) error {
	post, err := s.ownedPost(ctx, viewer, postID, false)
	if err != nil {
		return err
	}
	var media *models.PostMedia
	for i := range post.Media {
		if post.Media[i].ID == mediaID {
			media = &post.Media[i]
			break
		}
	}
	if media == nil {
		return apperrors.NotFound("media")
	}
	if err := s.db.WithContext(ctx).Delete(&models.PostMedia{}, "id = ?", media.ID).Error; err != nil {
		return apperrors.Internal(fmt.Errorf("deleting media: %w", err))
	}
	if err := s.blobs.Delete(ctx, media.FileKey, media.Type); err != nil {
		utils.LogError(err, "could not delete blob "+media.FileKey)
	}
	return nil
}

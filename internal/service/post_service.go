package service

import (
	"context"
	"strings"
	"time"

	"inkwell/internal/auth"
	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/notifications"
	"inkwell/internal/pagination"
	"inkwell/internal/repository"
)

type PostService struct {
	posts  repository.PostRepository
	likes  repository.LikeRepository
	views  repository.ViewRepository
	cache  *cache.Cache
	events notifications.Publisher
	now    func() time.Time
}

type CreatePostInput struct {
	Actor   auth.Identity
	Title   string
	Content string
	Image   string
}

// UpdatePostInput patches a post; nil fields are left unchanged.
type UpdatePostInput struct {
	Actor   auth.Identity
	PostID  uint
	Title   *string
	Content *string
	Image   *string
}

type GetPostInput struct {
	PostID uint
	Actor  auth.Identity
	// ViewerKey identifies the viewer for view counting; empty skips recording.
	ViewerKey string
}

func NewPostService(
	posts repository.PostRepository,
	likes repository.LikeRepository,
	views repository.ViewRepository,
	c *cache.Cache,
	events notifications.Publisher,
) *PostService {
	return &PostService{
		posts:  posts,
		likes:  likes,
		views:  views,
		cache:  c,
		events: events,
		now:    time.Now,
	}
}

func validatePostFields(title, content string) error {
	if strings.TrimSpace(title) == "" {
		return models.NewValidationError("Title is required")
	}
	if len(title) > maxTitleLen {
		return models.NewValidationError("Title too long (max 300 characters)")
	}
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if len(content) > maxContentLen {
		return models.NewValidationError("Content too long (max 50000 characters)")
	}
	return nil
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.Actor.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authorization required")
	}
	if err := validatePostFields(in.Title, in.Content); err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID:  in.Actor.UserID,
		Title:   strings.TrimSpace(in.Title),
		Content: in.Content,
		Image:   strings.TrimSpace(in.Image),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	publish(ctx, s.events, notifications.Event{
		Type:    notifications.EventPostCreated,
		Payload: notifications.PostCreatedPayload{PostID: post.ID, UserID: post.UserID, Title: post.Title},
	})

	return s.posts.GetByID(ctx, post.ID)
}

// GetPost returns a post, recording a view for in.ViewerKey once per UTC day.
// The cached copy supplies the body only; counters are always read from the
// post row so a stale entry cannot report old counts.
func (s *PostService) GetPost(ctx context.Context, in GetPostInput) (*models.Post, error) {
	post, err := cache.Aside(ctx, s.cache, cache.PostKey(in.PostID), cache.PostTTL, func() (*models.Post, error) {
		return s.posts.GetByID(ctx, in.PostID)
	})
	if err != nil {
		return nil, err
	}

	if in.ViewerKey != "" && s.views != nil {
		if _, _, err := s.views.Record(ctx, in.PostID, in.ViewerKey, s.now()); err != nil {
			return nil, err
		}
	}

	meta, err := s.posts.Meta(ctx, in.PostID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			invalidatePosts(ctx, s.cache, in.PostID)
		}
		return nil, err
	}
	post.Views, post.Likes, post.CommentsCount = meta.Views, meta.Likes, meta.CommentsCount

	post.Liked = false
	if in.Actor.UserID != 0 {
		liked, err := s.likes.IsLiked(ctx, in.PostID, in.Actor.UserID)
		if err != nil {
			return nil, err
		}
		post.Liked = liked
	}
	return post, nil
}

// ListPosts returns one page of posts with the liked flag for actor.
func (s *PostService) ListPosts(ctx context.Context, req pagination.Request, actor auth.Identity) (pagination.Page[*models.Post], error) {
	page, err := s.posts.List(ctx, req)
	if err != nil {
		return page, err
	}
	if actor.UserID == 0 || len(page.Items) == 0 {
		return page, nil
	}

	ids := make([]uint, len(page.Items))
	for i, p := range page.Items {
		ids[i] = p.ID
	}
	liked, err := s.likes.LikedPostIDs(ctx, actor.UserID, ids)
	if err != nil {
		return page, err
	}
	for _, p := range page.Items {
		p.Liked = liked[p.ID]
	}
	return page, nil
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwnerOf(in.Actor, "post", post.UserID); err != nil {
		return nil, err
	}

	if in.Title != nil {
		post.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.Image != nil {
		post.Image = strings.TrimSpace(*in.Image)
	}
	if err := validatePostFields(post.Title, post.Content); err != nil {
		return nil, err
	}

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	invalidatePosts(ctx, s.cache, post.ID)

	updated, err := s.posts.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	if updated.Liked, err = s.likes.IsLiked(ctx, post.ID, in.Actor.UserID); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostService) DeletePost(ctx context.Context, postID uint, actor auth.Identity) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if err := auth.RequireOwnerOf(actor, "post", post.UserID); err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, postID); err != nil {
		return err
	}
	invalidatePosts(ctx, s.cache, postID)
	return nil
}

// Meta returns the stored counters of a post.
func (s *PostService) Meta(ctx context.Context, postID uint) (models.PostMeta, error) {
	return s.posts.Meta(ctx, postID)
}

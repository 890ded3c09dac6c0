package service

import (
	"context"

	"inkwell/internal/auth"
	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/notifications"
	"inkwell/internal/observability"
	"inkwell/internal/repository"
)

type LikeService struct {
	likes  repository.LikeRepository
	posts  repository.PostRepository
	cache  *cache.Cache
	events notifications.Publisher
}

func NewLikeService(
	likes repository.LikeRepository,
	posts repository.PostRepository,
	c *cache.Cache,
	events notifications.Publisher,
) *LikeService {
	return &LikeService{likes: likes, posts: posts, cache: c, events: events}
}

// Toggle flips actor's like on postID and returns the new state with the
// recomputed count.
func (s *LikeService) Toggle(ctx context.Context, postID uint, actor auth.Identity) (models.LikeResult, error) {
	if actor.UserID == 0 {
		return models.LikeResult{}, models.NewUnauthorizedError("Authorization required")
	}

	result, err := s.likes.Toggle(ctx, postID, actor.UserID)
	if err != nil {
		return models.LikeResult{}, err
	}

	state := "unliked"
	if result.Liked {
		state = "liked"
	}
	observability.LikeToggles.WithLabelValues(state).Inc()

	invalidatePosts(ctx, s.cache, postID)
	publish(ctx, s.events, notifications.Event{
		Type:    notifications.EventPostReactionUpdated,
		Payload: notifications.PostReactionPayload{PostID: postID, Likes: result.Likes},
	})
	return result, nil
}

// Status reports whether actor likes postID. A missing post is NotFound.
func (s *LikeService) Status(ctx context.Context, postID uint, actor auth.Identity) (bool, error) {
	if actor.UserID == 0 {
		return false, models.NewUnauthorizedError("Authorization required")
	}
	if _, err := s.posts.Meta(ctx, postID); err != nil {
		return false, err
	}
	return s.likes.IsLiked(ctx, postID, actor.UserID)
}

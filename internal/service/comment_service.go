package service

import (
	"context"
	"strings"

	"inkwell/internal/auth"
	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/notifications"
	"inkwell/internal/pagination"
	"inkwell/internal/repository"
)

type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	cache    *cache.Cache
	events   notifications.Publisher
}

type CreateCommentInput struct {
	Actor   auth.Identity
	PostID  uint
	Content string
}

type UpdateCommentInput struct {
	Actor     auth.Identity
	CommentID uint
	Content   string
}

func NewCommentService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	c *cache.Cache,
	events notifications.Publisher,
) *CommentService {
	return &CommentService{comments: comments, posts: posts, cache: c, events: events}
}

func validateComment(content string) error {
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if len(content) > maxCommentLen {
		return models.NewValidationError("Comment too long (max 10000 characters)")
	}
	return nil
}

// CreateComment adds a comment and recomputes the post's comment count.
func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if in.Actor.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authorization required")
	}
	if err := validateComment(in.Content); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		PostID:  in.PostID,
		UserID:  in.Actor.UserID,
		Content: in.Content,
	}
	count, err := s.comments.Create(ctx, comment)
	if err != nil {
		return nil, err
	}

	invalidatePosts(ctx, s.cache, in.PostID)
	publish(ctx, s.events, notifications.Event{
		Type:    notifications.EventCommentCreated,
		Payload: notifications.CommentPayload{PostID: in.PostID, CommentID: comment.ID, CommentsCount: count},
	})

	return s.comments.GetByID(ctx, comment.ID)
}

func (s *CommentService) GetComment(ctx context.Context, id uint) (*models.Comment, error) {
	return s.comments.GetByID(ctx, id)
}

// ListComments pages the comments of an existing post.
func (s *CommentService) ListComments(ctx context.Context, postID uint, req pagination.Request) (pagination.Page[*models.Comment], error) {
	if _, err := s.posts.Meta(ctx, postID); err != nil {
		return pagination.Page[*models.Comment]{}, err
	}
	return s.comments.ListByPost(ctx, postID, req)
}

func (s *CommentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	comment, err := s.comments.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwnerOf(in.Actor, "comment", comment.UserID); err != nil {
		return nil, err
	}
	if err := validateComment(in.Content); err != nil {
		return nil, err
	}

	comment.Content = in.Content
	if err := s.comments.Update(ctx, comment); err != nil {
		return nil, err
	}
	return s.comments.GetByID(ctx, comment.ID)
}

// DeleteComment removes a comment and recomputes the post's comment count.
func (s *CommentService) DeleteComment(ctx context.Context, commentID uint, actor auth.Identity) error {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if err := auth.RequireOwnerOf(actor, "comment", comment.UserID); err != nil {
		return err
	}

	count, err := s.comments.Delete(ctx, comment)
	if err != nil {
		return err
	}

	invalidatePosts(ctx, s.cache, comment.PostID)
	publish(ctx, s.events, notifications.Event{
		Type:    notifications.EventCommentDeleted,
		Payload: notifications.CommentPayload{PostID: comment.PostID, CommentID: comment.ID, CommentsCount: count},
	})
	return nil
}

package repository

import (
	"context"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/pagination"

	"gorm.io/gorm"
)

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) (int64, error)
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint, req pagination.Request) (pagination.Page[*models.Comment], error)
	Update(ctx context.Context, comment *models.Comment) error
	Delete(ctx context.Context, comment *models.Comment) (int64, error)
}

type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository returns a new CommentRepository implementation.
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func commentCursor(c *models.Comment) pagination.Cursor {
	return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
}

// Create inserts comment and returns the post's recomputed comment count.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPost(tx, comment.PostID); err != nil {
			return err
		}
		if err := tx.Omit("User").Create(comment).Error; err != nil {
			return err
		}
		n, err := Recompute(tx, comment.PostID, CounterComments)
		count = n
		return err
	})
	if err != nil {
		return 0, writeError(err)
	}
	return count, nil
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Preload("User").First(&comment, id).Error; err != nil {
		return nil, lookupError(err, "Comment", id)
	}
	comment.Author = fillAuthor(comment.User)
	return &comment, nil
}

// ListByPost returns one page of postID's comments with their authors.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint, req pagination.Request) (pagination.Page[*models.Comment], error) {
	req.Table = "comments"
	req.Partition = &pagination.Partition{Column: "post_id", Value: postID}

	page, err := pagination.Fetch(r.db.WithContext(ctx).Preload("User"), req, commentCursor)
	if err != nil {
		return page, models.NewInternalError(err)
	}
	for _, c := range page.Items {
		c.Author = fillAuthor(c.User)
	}
	return page, nil
}

func (r *commentRepository) Update(ctx context.Context, comment *models.Comment) error {
	res := r.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", comment.ID).Updates(map[string]any{
		"content":    comment.Content,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return writeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Comment", comment.ID)
	}
	return nil
}

// Delete removes comment and returns its post's recomputed comment count.
func (r *commentRepository) Delete(ctx context.Context, comment *models.Comment) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPost(tx, comment.PostID); err != nil {
			return err
		}
		res := tx.Delete(&models.Comment{}, comment.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Comment", comment.ID)
		}
		n, err := Recompute(tx, comment.PostID, CounterComments)
		count = n
		return err
	})
	if err != nil {
		return 0, writeError(err)
	}
	return count, nil
}

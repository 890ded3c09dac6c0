package repository

import (
	"context"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/pagination"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, req pagination.Request) (pagination.Page[*models.Post], error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	Meta(ctx context.Context, id uint) (models.PostMeta, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func postCursor(p *models.Post) pagination.Cursor {
	return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// Create inserts post with zeroed counters.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	post.Views, post.Likes, post.CommentsCount = 0, 0, 0
	if err := r.db.WithContext(ctx).Omit("User").Create(post).Error; err != nil {
		return writeError(err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("User").First(&post, id).Error; err != nil {
		return nil, lookupError(err, "Post", id)
	}
	post.Author = fillAuthor(post.User)
	return &post, nil
}

// List returns one page of posts, newest first unless req says otherwise.
func (r *postRepository) List(ctx context.Context, req pagination.Request) (pagination.Page[*models.Post], error) {
	req.Table = "posts"
	page, err := pagination.Fetch(r.db.WithContext(ctx).Preload("User"), req, postCursor)
	if err != nil {
		return page, models.NewInternalError(err)
	}
	for _, p := range page.Items {
		p.Author = fillAuthor(p.User)
	}
	return page, nil
}

// Update writes the editable fields of post. Owner and counters are never changed here.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", post.ID).Updates(map[string]any{
		"title":      post.Title,
		"content":    post.Content,
		"image":      post.Image,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return writeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", post.ID)
	}
	return nil
}

// Delete removes the post and every row that references it.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPost(tx, id); err != nil {
			return err
		}
		return deletePosts(tx, []uint{id})
	})
	return writeError(err)
}

func (r *postRepository) Meta(ctx context.Context, id uint) (models.PostMeta, error) {
	var post models.Post
	err := r.db.WithContext(ctx).Select("id", "views", "likes", "comments_count").First(&post, id).Error
	if err != nil {
		return models.PostMeta{}, lookupError(err, "Post", id)
	}
	return post.Meta(), nil
}

// deletePosts removes posts and their dependents without relying on the
// driver enforcing ON DELETE CASCADE.
func deletePosts(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	for _, model := range []any{&models.PostView{}, &models.Like{}, &models.Comment{}} {
		if err := tx.Where("post_id IN ?", ids).Delete(model).Error; err != nil {
			return err
		}
	}
	return tx.Where("id IN ?", ids).Delete(&models.Post{}).Error
}

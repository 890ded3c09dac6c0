package repository

import (
	"context"
	"fmt"

	"inkwell/internal/models"
	"inkwell/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var lockingClause = clause.Locking{Strength: "UPDATE"}

// Counter names a denormalized aggregate column on posts.
type Counter string

const (
	CounterLikes    Counter = "likes"
	CounterComments Counter = "comments_count"
	CounterViews    Counter = "views"
)

// source returns the table whose rows the counter aggregates.
func (c Counter) source() (any, error) {
	switch c {
	case CounterLikes:
		return &models.Like{}, nil
	case CounterComments:
		return &models.Comment{}, nil
	case CounterViews:
		return &models.PostView{}, nil
	default:
		return nil, fmt.Errorf("unknown counter %q", string(c))
	}
}

// Recompute counts the authoritative rows for postID and stores the result in
// the counter column. It must run on the same transaction as the write that
// changed those rows so the count observes it. updated_at is left untouched.
func Recompute(tx *gorm.DB, postID uint, counter Counter) (n int64, err error) {
	ctx, end := observability.StartSpan(tx.Statement.Context, "counter.recompute",
		attribute.String("counter", string(counter)),
		attribute.Int64("post_id", int64(postID)),
	)
	defer func() { end(err) }()
	tx = tx.WithContext(ctx)

	model, err := counter.source()
	if err != nil {
		return 0, err
	}

	if err := tx.Model(model).Where("post_id = ?", postID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s for post %d: %w", counter, postID, err)
	}
	if err := tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn(string(counter), n).Error; err != nil {
		return 0, fmt.Errorf("store %s for post %d: %w", counter, postID, err)
	}

	observability.CounterRecomputes.WithLabelValues(string(counter)).Inc()
	return n, nil
}

// RecomputeAll refreshes every counter of postID.
func RecomputeAll(tx *gorm.DB, postID uint) (models.PostMeta, error) {
	var meta models.PostMeta
	var err error
	if meta.Likes, err = Recompute(tx, postID, CounterLikes); err != nil {
		return meta, err
	}
	if meta.CommentsCount, err = Recompute(tx, postID, CounterComments); err != nil {
		return meta, err
	}
	if meta.Views, err = Recompute(tx, postID, CounterViews); err != nil {
		return meta, err
	}
	return meta, nil
}

// ReconcileCounters recomputes every post's counters in batches and returns
// the number of posts visited.
func ReconcileCounters(ctx context.Context, db *gorm.DB, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 200
	}

	var visited int
	var posts []models.Post
	result := db.WithContext(ctx).Select("id").FindInBatches(&posts, batchSize, func(batch *gorm.DB, _ int) error {
		for _, p := range posts {
			err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				_, err := RecomputeAll(tx, p.ID)
				return err
			})
			if err != nil {
				return err
			}
			visited++
		}
		return nil
	})
	return visited, result.Error
}

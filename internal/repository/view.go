package repository

import (
	"context"
	"time"

	"inkwell/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ViewDateLayout formats the UTC calendar day a view is counted on.
const ViewDateLayout = "2006-01-02"

// ViewRepository records post views.
type ViewRepository interface {
	// Record counts a view of postID by viewerKey on the UTC day of at. It
	// reports whether the view was new and returns the post's view count.
	Record(ctx context.Context, postID uint, viewerKey string, at time.Time) (bool, int64, error)
}

type viewRepository struct {
	db *gorm.DB
}

// NewViewRepository returns a new ViewRepository implementation.
func NewViewRepository(db *gorm.DB) ViewRepository {
	return &viewRepository{db: db}
}

func (r *viewRepository) Record(ctx context.Context, postID uint, viewerKey string, at time.Time) (bool, int64, error) {
	var recorded bool
	var views int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Concurrent first views must count each other's rows.
		if err := lockPost(tx, postID); err != nil {
			return err
		}

		view := models.PostView{
			PostID:    postID,
			ViewerKey: viewerKey,
			ViewDate:  at.UTC().Format(ViewDateLayout),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&view)
		if res.Error != nil {
			return res.Error
		}
		recorded = res.RowsAffected > 0

		if !recorded {
			var post models.Post
			if err := tx.Select("views").First(&post, postID).Error; err != nil {
				return err
			}
			views = post.Views
			return nil
		}

		n, err := Recompute(tx, postID, CounterViews)
		views = n
		return err
	})
	if err != nil {
		return false, 0, lookupError(err, "Post", postID)
	}
	return recorded, views, nil
}

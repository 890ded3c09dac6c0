package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"inkwell/internal/database"
	"inkwell/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id uint, hash string) error
	Delete(ctx context.Context, id uint) ([]uint, error)
	AuthoredPostIDs(ctx context.Context, id uint) ([]uint, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, lookupError(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, lookupError(err, "User", email)
	}
	return &user, nil
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return uniqueUserError(err)
	}
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"nickname":      user.Nickname,
		"profile_image": user.ProfileImage,
		"updated_at":    time.Now().UTC(),
	})
	if res.Error != nil {
		return uniqueUserError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", user.ID)
	}
	return nil
}

// AuthoredPostIDs returns the ids of every post written by the user.
func (r *userRepository) AuthoredPostIDs(ctx context.Context, id uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("user_id = ?", id).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uint, hash string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"password":   hash,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

// Delete removes the user with their posts, comments, likes and views, then
// recomputes the counters of other users' posts they had liked, commented on
// or viewed. It returns the ids of every post whose row was removed or whose
// counters changed, so callers can drop cached copies.
func (r *userRepository) Delete(ctx context.Context, id uint) ([]uint, error) {
	var affected []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Select("id").First(&user, id).Error; err != nil {
			return lookupError(err, "User", id)
		}

		var ownPosts []uint
		if err := tx.Model(&models.Post{}).Where("user_id = ?", id).Pluck("id", &ownPosts).Error; err != nil {
			return err
		}

		viewerKey := fmt.Sprintf("user:%d", id)
		children := []struct {
			model any
			where string
			arg   any
		}{
			{&models.Like{}, "user_id = ?", id},
			{&models.Comment{}, "user_id = ?", id},
			{&models.PostView{}, "viewer_key = ?", viewerKey},
		}

		own := make(map[uint]struct{}, len(ownPosts))
		for _, pid := range ownPosts {
			own[pid] = struct{}{}
		}
		touchedSet := map[uint]struct{}{}
		for _, c := range children {
			var ids []uint
			if err := tx.Model(c.model).Where(c.where, c.arg).Distinct().Pluck("post_id", &ids).Error; err != nil {
				return err
			}
			for _, pid := range ids {
				if _, mine := own[pid]; !mine {
					touchedSet[pid] = struct{}{}
				}
			}
		}
		touched := make([]uint, 0, len(touchedSet))
		for pid := range touchedSet {
			touched = append(touched, pid)
		}
		slices.Sort(touched)

		// Locked in id order so concurrent deletions cannot deadlock, and so
		// recomputation waits for in-flight likes and comments on these posts.
		for _, pid := range touched {
			if err := lockPost(tx, pid); err != nil {
				if models.IsCode(err, models.CodeNotFound) {
					continue
				}
				return err
			}
		}

		for _, c := range children {
			if err := tx.Where(c.where, c.arg).Delete(c.model).Error; err != nil {
				return err
			}
		}
		if err := deletePosts(tx, ownPosts); err != nil {
			return err
		}

		affected = append(affected, ownPosts...)
		for _, pid := range touched {
			if _, err := RecomputeAll(tx, pid); err != nil {
				return err
			}
			affected = append(affected, pid)
		}

		return tx.Delete(&models.User{}, id).Error
	})
	if err != nil {
		return nil, writeError(err)
	}
	return affected, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func uniqueUserError(err error) error {
	if !database.IsUniqueViolation(err) {
		return models.NewInternalError(err)
	}
	if strings.Contains(strings.ToLower(database.ConstraintName(err)), "nickname") {
		return models.NewConflictError("nickname is already taken")
	}
	return models.NewConflictError("email is already registered")
}

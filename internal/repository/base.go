// Package repository provides data access layer implementations for the application.
package repository

import (
	"errors"

	"inkwell/internal/models"

	"gorm.io/gorm"
)

// lookupError converts a GORM lookup failure into an application error.
func lookupError(err error, resource string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return models.NewInternalError(err)
}

// writeError wraps a failed write unless it already is an application error.
func writeError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return models.NewInternalError(err)
}

// lockPost loads the post row FOR UPDATE inside tx. Dialects without row
// locks (SQLite) drop the clause and rely on their database-level write lock.
func lockPost(tx *gorm.DB, postID uint) error {
	var post models.Post
	err := tx.Clauses(lockingClause).Select("id").First(&post, postID).Error
	if err != nil {
		return lookupError(err, "Post", postID)
	}
	return nil
}

func fillAuthor(u models.User) *models.Author {
	if u.ID == 0 {
		return nil
	}
	a := models.AuthorOf(u)
	return &a
}

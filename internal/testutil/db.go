// Package testutil provides shared fixtures for backend tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"inkwell/internal/database"
	"inkwell/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB returns a migrated in-memory SQLite database private to t. It holds a
// single connection, so code under test must run every statement of a
// transaction on the transaction handle.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a user with a unique email and nickname derived from name.
func CreateUser(t testing.TB, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{
		Email:    name + "@example.com",
		Nickname: name,
		Password: "$2a$10$placeholderplaceholderplaceholderplaceholderplace",
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreatePost inserts a post owned by userID. A non-zero at fixes created_at.
func CreatePost(t testing.TB, db *gorm.DB, userID uint, title string, at time.Time) *models.Post {
	t.Helper()
	p := &models.Post{UserID: userID, Title: title, Content: title + " body", CreatedAt: at.UTC()}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateComment inserts a comment without touching post counters.
func CreateComment(t testing.TB, db *gorm.DB, postID, userID uint, content string, at time.Time) *models.Comment {
	t.Helper()
	c := &models.Comment{PostID: postID, UserID: userID, Content: content, CreatedAt: at.UTC()}
	require.NoError(t, db.Create(c).Error)
	return c
}

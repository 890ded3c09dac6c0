package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/notifications"
	"inkwell/internal/repository"
	"inkwell/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// recorder is a Publisher that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recorder) Publish(_ context.Context, ev notifications.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	mr       *miniredis.Miniredis
	cache    *cache.Cache
	events   *recorder
	posts    *PostService
	likes    *LikeService
	comments *CommentService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := cache.New(rdb)
	ev := &recorder{}
	postRepo := repository.NewPostRepository(db)
	likeRepo := repository.NewLikeRepository(db)

	users := NewUserService(repository.NewUserRepository(db), c)
	users.hashCost = bcrypt.MinCost

	return &fixture{
		db:       db,
		mr:       mr,
		cache:    c,
		events:   ev,
		posts:    NewPostService(postRepo, likeRepo, repository.NewViewRepository(db), c, ev),
		likes:    NewLikeService(likeRepo, postRepo, c, ev),
		comments: NewCommentService(repository.NewCommentRepository(db), postRepo, c, ev),
		users:    users,
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	requireCode(t, err, models.CodeValidation)
}

func strPtr(s string) *string { return &s }

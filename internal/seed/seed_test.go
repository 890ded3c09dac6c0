package seed

import (
	"context"
	"testing"

	"inkwell/internal/models"
	"inkwell/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRunLeavesCountersConsistent(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewSeeder(db)

	sum, err := s.Run(context.Background(), Options{
		NumUsers:    4,
		NumPosts:    6,
		NumComments: 15,
		Fast:        true,
		RandSeed:    42,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Users)
	assert.Equal(t, 6, sum.Posts)
	assert.Equal(t, 15, sum.Comments)
	assert.Equal(t, 6, sum.Reconciled)

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	require.Len(t, posts, 6)

	var likes, comments, views int64
	for _, p := range posts {
		require.NoError(t, db.Model(&models.Like{}).Where("post_id = ?", p.ID).Count(&likes).Error)
		require.NoError(t, db.Model(&models.Comment{}).Where("post_id = ?", p.ID).Count(&comments).Error)
		require.NoError(t, db.Model(&models.PostView{}).Where("post_id = ?", p.ID).Count(&views).Error)
		assert.Equal(t, likes, p.Likes, "post %d likes", p.ID)
		assert.Equal(t, comments, p.CommentsCount, "post %d comments", p.ID)
		assert.Equal(t, views, p.Views, "post %d views", p.ID)
	}

	var total int64
	require.NoError(t, db.Model(&models.Like{}).Count(&total).Error)
	assert.Equal(t, int64(sum.Likes), total)
}

func TestSeededUsersCanLogIn(t *testing.T) {
	db := testutil.NewDB(t)
	f := NewFactory(db, Options{Fast: true, RandSeed: 7})

	a, err := f.CreateUser()
	require.NoError(t, err)
	b, err := f.CreateUser(func(u *models.User) { u.Nickname = "fixed" })
	require.NoError(t, err)

	assert.NotEqual(t, a.Nickname, b.Nickname)
	assert.NotEqual(t, a.Email, b.Email)
	assert.Equal(t, "fixed", b.Nickname)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(DefaultPassword)))
}

func TestChildRowsAreNotOlderThanTheirPost(t *testing.T) {
	db := testutil.NewDB(t)
	f := NewFactory(db, Options{Fast: true, RandSeed: 3, MaxDays: 10})

	u, err := f.CreateUser()
	require.NoError(t, err)
	post := f.BuildPost(u)
	require.NoError(t, f.CreatePostsBatch([]*models.Post{post}))

	for range 10 {
		c, err := f.CreateComment(u, post)
		require.NoError(t, err)
		assert.False(t, c.CreatedAt.Before(post.CreatedAt))
	}
}

func TestClearAll(t *testing.T) {
	db := testutil.NewDB(t)
	s := NewSeeder(db)
	_, err := s.Run(context.Background(), Options{NumUsers: 2, NumPosts: 2, NumComments: 2, Fast: true, RandSeed: 1})
	require.NoError(t, err)

	require.NoError(t, s.ClearAll(context.Background()))
	for _, model := range []any{&models.PostView{}, &models.Like{}, &models.Comment{}, &models.Post{}, &models.User{}} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T", model)
	}
}

func TestRunRequiresUsers(t *testing.T) {
	_, err := NewSeeder(testutil.NewDB(t)).Run(context.Background(), Options{NumPosts: 3})
	assert.Error(t, err)
}

package service

import (
	"context"
	"testing"
	"time"

	"inkwell/internal/auth"
	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodPassword = "Secret123!"

func TestUserService_Signup_Validation(t *testing.T) {
	t.Parallel()
	svc := NewUserService(nil, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input SignupInput
	}{
		{"missing email", SignupInput{Password: goodPassword, Nickname: "nick"}},
		{"missing nickname", SignupInput{Email: "a@b.io", Password: goodPassword}},
		{"bad email", SignupInput{Email: "nope", Password: goodPassword, Nickname: "nick"}},
		{"weak password", SignupInput{Email: "a@b.io", Password: "password", Nickname: "nick"}},
		{"bad nickname", SignupInput{Email: "a@b.io", Password: goodPassword, Nickname: "n i c k"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Signup(ctx, tc.input)
			assertValidationError(t, err)
		})
	}
}

func TestUserService_SignupLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Signup(ctx, SignupInput{Email: " Writer@Example.com ", Password: goodPassword, Nickname: "writer"})
	require.NoError(t, err)
	assert.Equal(t, "writer@example.com", user.Email)
	assert.NotEqual(t, goodPassword, user.Password)

	_, err = f.users.Signup(ctx, SignupInput{Email: "writer@example.com", Password: goodPassword, Nickname: "other"})
	requireCode(t, err, models.CodeConflict)
	_, err = f.users.Signup(ctx, SignupInput{Email: "new@example.com", Password: goodPassword, Nickname: "writer"})
	requireCode(t, err, models.CodeConflict)

	logged, err := f.users.Login(ctx, "WRITER@example.com", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	_, err = f.users.Login(ctx, "writer@example.com", "Wrong123!")
	requireCode(t, err, models.CodeUnauthorized)
	_, err = f.users.Login(ctx, "ghost@example.com", goodPassword)
	requireCode(t, err, models.CodeUnauthorized)

	available, err := f.users.EmailAvailable(ctx, "writer@example.com")
	require.NoError(t, err)
	assert.False(t, available)
	available, err = f.users.EmailAvailable(ctx, "free@example.com")
	require.NoError(t, err)
	assert.True(t, available)
	_, err = f.users.EmailAvailable(ctx, "bad")
	assertValidationError(t, err)
}

func TestUserService_ProfileAndPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Signup(ctx, SignupInput{Email: "p@example.com", Password: goodPassword, Nickname: "before"})
	require.NoError(t, err)
	testutil.CreateUser(t, f.db, "taken")
	actor := auth.Identity{UserID: user.ID}

	_, err = f.users.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, f.mr.Exists(cache.UserKey(user.ID)))

	updated, err := f.users.UpdateProfile(ctx, UpdateProfileInput{Actor: actor, Nickname: strPtr("after"), ProfileImage: strPtr("/uploads/a.jpg")})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Nickname)
	assert.Equal(t, "/uploads/a.jpg", updated.ProfileImage)
	assert.False(t, f.mr.Exists(cache.UserKey(user.ID)))

	_, err = f.users.UpdateProfile(ctx, UpdateProfileInput{Actor: actor, Nickname: strPtr("taken")})
	requireCode(t, err, models.CodeConflict)

	assertValidationError(t, f.users.ResetPassword(ctx, actor, "short"))
	require.NoError(t, f.users.ResetPassword(ctx, actor, "Another456?"))
	_, err = f.users.Login(ctx, "p@example.com", goodPassword)
	requireCode(t, err, models.CodeUnauthorized)
	_, err = f.users.Login(ctx, "p@example.com", "Another456?")
	require.NoError(t, err)
}

func TestUserService_UpdateProfileDropsCachedPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := testutil.CreateUser(t, f.db, "oldname")
	other := testutil.CreateUser(t, f.db, "bystander")
	first := testutil.CreatePost(t, f.db, author.ID, "first", time.Time{})
	second := testutil.CreatePost(t, f.db, author.ID, "second", time.Time{})
	unrelated := testutil.CreatePost(t, f.db, other.ID, "elsewhere", time.Time{})

	for _, id := range []uint{first.ID, second.ID, unrelated.ID} {
		_, err := f.posts.GetPost(ctx, GetPostInput{PostID: id})
		require.NoError(t, err)
		require.True(t, f.mr.Exists(cache.PostKey(id)))
	}

	_, err := f.users.UpdateProfile(ctx, UpdateProfileInput{Actor: auth.Identity{UserID: author.ID}, Nickname: strPtr("newname")})
	require.NoError(t, err)

	assert.False(t, f.mr.Exists(cache.PostKey(first.ID)))
	assert.False(t, f.mr.Exists(cache.PostKey(second.ID)))
	assert.True(t, f.mr.Exists(cache.PostKey(unrelated.ID)), "other authors stay cached")

	got, err := f.posts.GetPost(ctx, GetPostInput{PostID: first.ID})
	require.NoError(t, err)
	require.NotNil(t, got.Author)
	assert.Equal(t, "newname", got.Author.Nickname)
}

func TestUserService_DeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	author := testutil.CreateUser(t, f.db, "author")
	leaving := testutil.CreateUser(t, f.db, "leaving")
	post := testutil.CreatePost(t, f.db, author.ID, "kept", time.Time{})

	_, err := f.likes.Toggle(ctx, post.ID, auth.Identity{UserID: leaving.ID})
	require.NoError(t, err)
	_, err = f.posts.GetPost(ctx, GetPostInput{PostID: post.ID})
	require.NoError(t, err)
	require.True(t, f.mr.Exists(cache.PostKey(post.ID)))

	require.NoError(t, f.users.DeleteAccount(ctx, auth.Identity{UserID: leaving.ID}))
	assert.False(t, f.mr.Exists(cache.PostKey(post.ID)), "counter change drops the cached post")

	got, err := f.posts.GetPost(ctx, GetPostInput{PostID: post.ID})
	require.NoError(t, err)
	assert.Zero(t, got.Likes)

	_, err = f.users.GetUser(ctx, leaving.ID)
	requireCode(t, err, models.CodeNotFound)
	requireCode(t, f.users.DeleteAccount(ctx, auth.Identity{}), models.CodeUnauthorized)
}

func TestUserService_ListUsersBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, n := range []string{"a1", "b2", "c3"} {
		testutil.CreateUser(t, f.db, n)
	}

	all, err := f.users.ListUsers(ctx, 0, -5)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := f.users.ListUsers(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c3", page[0].Nickname)
}

package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/pagination"
	"inkwell/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"
)

func reloadPost(t *testing.T, db *gorm.DB, id uint) models.Post {
	t.Helper()
	var p models.Post
	require.NoError(t, db.First(&p, id).Error)
	return p
}

func countRows(t *testing.T, db *gorm.DB, model any, postID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Where("post_id = ?", postID).Count(&n).Error)
	return n
}

func TestLikeToggleRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLikeRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author")
	reader := testutil.CreateUser(t, db, "reader")
	post := testutil.CreatePost(t, db, author.ID, "hello", time.Time{})

	res, err := repo.Toggle(ctx, post.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{Liked: true, Likes: 1}, res)

	liked, err := repo.IsLiked(ctx, post.ID, reader.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	res, err = repo.Toggle(ctx, post.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LikeResult{Liked: false, Likes: 0}, res)

	assert.Equal(t, int64(0), reloadPost(t, db, post.ID).Likes)
	assert.Equal(t, int64(0), countRows(t, db, &models.Like{}, post.ID))
}

func TestLikeToggleMissingPost(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLikeRepository(db)
	user := testutil.CreateUser(t, db, "reader")

	_, err := repo.Toggle(context.Background(), 404, user.ID)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	var n int64
	require.NoError(t, db.Model(&models.Like{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestLikeToggleRecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := observability.Tracer
	observability.Tracer = tp.Tracer("repository-test")
	t.Cleanup(func() {
		observability.Tracer = prev
		_ = tp.Shutdown(context.Background())
	})

	db := testutil.NewDB(t)
	repo := NewLikeRepository(db)
	user := testutil.CreateUser(t, db, "traced")
	post := testutil.CreatePost(t, db, user.ID, "traced", time.Time{})

	_, err := repo.Toggle(context.Background(), post.ID, user.ID)
	require.NoError(t, err)
	_, err = repo.Toggle(context.Background(), 404, user.ID)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 3)

	recompute, toggle, failed := spans[0], spans[1], spans[2]
	assert.Equal(t, "counter.recompute", recompute.Name())
	assert.Equal(t, "like.toggle", toggle.Name())
	assert.Equal(t, toggle.SpanContext().SpanID(), recompute.Parent().SpanID(), "recompute nests under the toggle")
	assert.Equal(t, codes.Unset, toggle.Status().Code)

	assert.Equal(t, "like.toggle", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
}

func TestLikeCounterMatchesRowsAfterToggleSequence(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLikeRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author.ID, "p", time.Time{})
	users := []*models.User{
		testutil.CreateUser(t, db, "u1"),
		testutil.CreateUser(t, db, "u2"),
		testutil.CreateUser(t, db, "u3"),
	}

	sequence := []int{0, 1, 2, 1, 0, 0, 2, 1, 1}
	for _, i := range sequence {
		_, err := repo.Toggle(ctx, post.ID, users[i].ID)
		require.NoError(t, err)
		assert.Equal(t, countRows(t, db, &models.Like{}, post.ID), reloadPost(t, db, post.ID).Likes)
	}
}

func TestLikeToggleConcurrentUsers(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLikeRepository(db)

	author := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author.ID, "p", time.Time{})

	const n = 8
	users := make([]*models.User, n)
	for i := range users {
		users[i] = testutil.CreateUser(t, db, fmt.Sprintf("fan%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, u := range users {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := repo.Toggle(context.Background(), post.ID, userID)
			errs <- err
		}(u.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(n), reloadPost(t, db, post.ID).Likes)
	assert.Equal(t, int64(n), countRows(t, db, &models.Like{}, post.ID))
}

func TestLikedPostIDs(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewLikeRepository(db)
	ctx := context.Background()

	u := testutil.CreateUser(t, db, "u")
	p1 := testutil.CreatePost(t, db, u.ID, "p1", time.Time{})
	p2 := testutil.CreatePost(t, db, u.ID, "p2", time.Time{})
	_, err := repo.Toggle(ctx, p2.ID, u.ID)
	require.NoError(t, err)

	liked, err := repo.LikedPostIDs(ctx, u.ID, []uint{p1.ID, p2.ID})
	require.NoError(t, err)
	assert.False(t, liked[p1.ID])
	assert.True(t, liked[p2.ID])

	liked, err = repo.LikedPostIDs(ctx, 0, []uint{p2.ID})
	require.NoError(t, err)
	assert.Empty(t, liked)
}

func TestCommentCountTracksCreateAndDelete(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	u := testutil.CreateUser(t, db, "u")
	post := testutil.CreatePost(t, db, u.ID, "p", time.Time{})

	var created []*models.Comment
	for i := 0; i < 3; i++ {
		c := &models.Comment{PostID: post.ID, UserID: u.ID, Content: fmt.Sprintf("c%d", i)}
		n, err := repo.Create(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), n)
		created = append(created, c)
	}

	n, err := repo.Delete(ctx, created[1])
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(2), reloadPost(t, db, post.ID).CommentsCount)
	assert.Equal(t, int64(2), countRows(t, db, &models.Comment{}, post.ID))

	_, err = repo.Delete(ctx, created[1])
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	_, err = repo.Create(ctx, &models.Comment{PostID: 999, UserID: u.ID, Content: "orphan"})
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestCommentListByPostAscending(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	u := testutil.CreateUser(t, db, "u")
	post := testutil.CreatePost(t, db, u.ID, "p", time.Time{})
	other := testutil.CreatePost(t, db, u.ID, "other", time.Time{})
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		testutil.CreateComment(t, db, post.ID, u.ID, fmt.Sprintf("c%d", i), base.Add(time.Duration(i)*time.Second))
	}
	testutil.CreateComment(t, db, other.ID, u.ID, "elsewhere", base)

	page, err := repo.ListByPost(ctx, post.ID, pagination.Request{Limit: 2, Direction: pagination.Ascending})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c0", page.Items[0].Content)
	require.NotNil(t, page.Items[0].Author)
	assert.Equal(t, "u", page.Items[0].Author.Nickname)
	require.NotNil(t, page.NextCursor)

	cur, err := pagination.ParseCursor(*page.NextCursor, fmt.Sprint(*page.NextCursorID))
	require.NoError(t, err)
	page, err = repo.ListByPost(ctx, post.ID, pagination.Request{Limit: 2, Cursor: cur, Direction: pagination.Ascending})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c2", page.Items[0].Content)
	assert.Nil(t, page.NextCursor)
}

func TestViewRecordedOncePerViewerPerDay(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewViewRepository(db)
	ctx := context.Background()

	u := testutil.CreateUser(t, db, "u")
	post := testutil.CreatePost(t, db, u.ID, "p", time.Time{})
	day := time.Date(2024, 7, 1, 23, 0, 0, 0, time.UTC)

	recorded, views, err := repo.Record(ctx, post.ID, "ip:10.0.0.1", day)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, int64(1), views)

	recorded, views, err = repo.Record(ctx, post.ID, "ip:10.0.0.1", day.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, recorded, "next UTC day counts again")
	assert.Equal(t, int64(2), views)

	recorded, views, err = repo.Record(ctx, post.ID, "ip:10.0.0.1", day.Add(3*time.Hour))
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.Equal(t, int64(2), views)

	assert.Equal(t, countRows(t, db, &models.PostView{}, post.ID), reloadPost(t, db, post.ID).Views)
}

func TestViewRecordConcurrentViewers(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewViewRepository(db)

	u := testutil.CreateUser(t, db, "u")
	post := testutil.CreatePost(t, db, u.ID, "p", time.Time{})
	now := time.Now()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, err := repo.Record(context.Background(), post.ID, key, now)
			errs <- err
		}(fmt.Sprintf("ip:10.0.0.%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(n), countRows(t, db, &models.PostView{}, post.ID))
	assert.Equal(t, int64(n), reloadPost(t, db, post.ID).Views)
}

func TestViewRecordMissingPost(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewViewRepository(db)

	_, _, err := repo.Record(context.Background(), 4242, "ip:10.0.0.1", time.Now())
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	var n int64
	require.NoError(t, db.Model(&models.PostView{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUserDeleteRacingToggleKeepsLikes(t *testing.T) {
	db := testutil.NewDB(t)
	users := NewUserRepository(db)
	likes := NewLikeRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author")
	leaving := testutil.CreateUser(t, db, "leaving")
	post := testutil.CreatePost(t, db, author.ID, "p", time.Time{})
	_, err := likes.Toggle(ctx, post.ID, leaving.ID)
	require.NoError(t, err)

	const n = 6
	fans := make([]*models.User, n)
	for i := range fans {
		fans[i] = testutil.CreateUser(t, db, fmt.Sprintf("fan%d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n+1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := users.Delete(ctx, leaving.ID)
		errs <- err
	}()
	for _, f := range fans {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := likes.Toggle(ctx, post.ID, userID)
			errs <- err
		}(f.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(n), countRows(t, db, &models.Like{}, post.ID))
	assert.Equal(t, int64(n), reloadPost(t, db, post.ID).Likes)
}

func TestPostListPages(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	u := testutil.CreateUser(t, db, "u")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		testutil.CreatePost(t, db, u.ID, fmt.Sprintf("p%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	var sizes []int
	seen := map[uint]bool{}
	req := pagination.Request{Limit: 2}
	for {
		page, err := repo.List(ctx, req)
		require.NoError(t, err)
		sizes = append(sizes, len(page.Items))
		for _, p := range page.Items {
			assert.False(t, seen[p.ID], "post %d returned twice", p.ID)
			seen[p.ID] = true
			require.NotNil(t, p.Author)
		}
		if page.NextCursor == nil {
			break
		}
		req.Cursor, err = pagination.ParseCursor(*page.NextCursor, fmt.Sprint(*page.NextCursorID))
		require.NoError(t, err)
	}

	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Len(t, seen, 5)
}

func TestPostUpdateAndMeta(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	u := testutil.CreateUser(t, db, "u")
	post := testutil.CreatePost(t, db, u.ID, "before", time.Time{})

	post.Title = "after"
	post.Likes = 99
	require.NoError(t, repo.Update(ctx, post))

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, int64(0), got.Likes)

	meta, err := repo.Meta(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostMeta{}, meta)

	err = repo.Update(ctx, &models.Post{ID: 12345, Title: "x"})
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	_, err = repo.Meta(ctx, 12345)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestPostDeleteRemovesDependents(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	posts := NewPostRepository(db)
	likes := NewLikeRepository(db)
	views := NewViewRepository(db)

	u := testutil.CreateUser(t, db, "u")
	post := testutil.CreatePost(t, db, u.ID, "p", time.Time{})
	testutil.CreateComment(t, db, post.ID, u.ID, "c", time.Time{})
	_, err := likes.Toggle(ctx, post.ID, u.ID)
	require.NoError(t, err)
	_, _, err = views.Record(ctx, post.ID, "user:1", time.Now())
	require.NoError(t, err)

	require.NoError(t, posts.Delete(ctx, post.ID))

	_, err = posts.GetByID(ctx, post.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	assert.Zero(t, countRows(t, db, &models.Comment{}, post.ID))
	assert.Zero(t, countRows(t, db, &models.Like{}, post.ID))
	assert.Zero(t, countRows(t, db, &models.PostView{}, post.ID))

	assert.True(t, models.IsCode(posts.Delete(ctx, post.ID), models.CodeNotFound))
}

func TestUserDeleteRecomputesOtherPosts(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	likes := NewLikeRepository(db)
	comments := NewCommentRepository(db)
	views := NewViewRepository(db)

	author := testutil.CreateUser(t, db, "author")
	leaving := testutil.CreateUser(t, db, "leaving")
	kept := testutil.CreatePost(t, db, author.ID, "kept", time.Time{})
	gone := testutil.CreatePost(t, db, leaving.ID, "gone", time.Time{})

	_, err := likes.Toggle(ctx, kept.ID, leaving.ID)
	require.NoError(t, err)
	_, err = likes.Toggle(ctx, kept.ID, author.ID)
	require.NoError(t, err)
	_, err = comments.Create(ctx, &models.Comment{PostID: kept.ID, UserID: leaving.ID, Content: "bye"})
	require.NoError(t, err)
	_, _, err = views.Record(ctx, kept.ID, fmt.Sprintf("user:%d", leaving.ID), time.Now())
	require.NoError(t, err)

	affected, err := users.Delete(ctx, leaving.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{gone.ID, kept.ID}, affected)

	p := reloadPost(t, db, kept.ID)
	assert.Equal(t, int64(1), p.Likes)
	assert.Equal(t, int64(0), p.CommentsCount)
	assert.Equal(t, int64(0), p.Views)

	var n int64
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", gone.ID).Count(&n).Error)
	assert.Zero(t, n)

	_, err = users.GetByID(ctx, leaving.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestUserCreateConflict(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.User{Email: "a@example.com", Nickname: "a", Password: "h"}))

	err := repo.Create(ctx, &models.User{Email: "a@example.com", Nickname: "b", Password: "h"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeConflict))
	assert.Contains(t, err.Error(), "email")

	err = repo.Create(ctx, &models.User{Email: "b@example.com", Nickname: "a", Password: "h"})
	assert.True(t, models.IsCode(err, models.CodeConflict))
	assert.Contains(t, err.Error(), "nickname")

	exists, err := repo.EmailExists(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReconcileCountersRepairsDrift(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	likes := NewLikeRepository(db)

	u := testutil.CreateUser(t, db, "u")
	post := testutil.CreatePost(t, db, u.ID, "p", time.Time{})
	testutil.CreateComment(t, db, post.ID, u.ID, "c", time.Time{})
	_, err := likes.Toggle(ctx, post.ID, u.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", post.ID).
		UpdateColumns(map[string]any{"likes": 42, "comments_count": 7, "views": 3}).Error)

	visited, err := ReconcileCounters(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, visited)

	p := reloadPost(t, db, post.ID)
	assert.Equal(t, models.PostMeta{Views: 0, Likes: 1, CommentsCount: 1}, p.Meta())
}

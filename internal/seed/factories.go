package seed

import (
	"fmt"
	"strings"
	"time"

	"inkwell/internal/models"
	"inkwell/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded user.
const DefaultPassword = "password123"

// Factory builds blog entities with fake content and persists them.
type Factory struct {
	db    *gorm.DB
	faker *gofakeit.Faker
	opts  Options
	now   time.Time

	hash string
	seq  int
}

// NewFactory creates a Factory bound to db. A zero opts.RandSeed picks a
// time based seed.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{db: db, faker: gofakeit.New(seed), opts: opts, now: time.Now().UTC()}
}

func (f *Factory) passwordHash() (string, error) {
	if f.hash != "" {
		return f.hash, nil
	}
	cost := bcrypt.DefaultCost
	if f.opts.Fast {
		cost = bcrypt.MinCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return "", err
	}
	f.hash = string(hashed)
	return f.hash, nil
}

// CreateUser persists a user with a unique nickname and email. Overrides run
// before the insert.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	hashed, err := f.passwordHash()
	if err != nil {
		return nil, err
	}

	f.seq++
	nickname := fmt.Sprintf("%s%d", f.faker.Username(), f.seq)
	if len(nickname) > 50 {
		nickname = nickname[len(nickname)-50:]
	}
	user := &models.User{
		Email:        strings.ToLower(nickname) + "@" + f.faker.DomainName(),
		Nickname:     nickname,
		Password:     hashed,
		ProfileImage: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
	}
	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost returns an unsaved post by user with created_at somewhere in the
// last opts.MaxDays days.
func (f *Factory) BuildPost(user *models.User, overrides ...func(*models.Post)) *models.Post {
	post := &models.Post{
		UserID:    user.ID,
		Title:     strings.TrimSuffix(f.faker.Sentence(5), "."),
		Content:   f.faker.Paragraph(2, 4, 12, "\n\n"),
		CreatedAt: f.pastTime(),
	}
	if f.faker.Number(0, 3) == 0 {
		post.Image = fmt.Sprintf("https://picsum.photos/seed/%s/800/600", f.faker.UUID())
	}
	post.UpdatedAt = post.CreatedAt

	for _, override := range overrides {
		override(post)
	}
	return post
}

// CreatePostsBatch persists posts in one statement per batch.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	return f.db.CreateInBatches(posts, 100).Error
}

// CreateComment persists a comment by user on post, dated after the post.
// Counters are left to reconciliation.
func (f *Factory) CreateComment(user *models.User, post *models.Post, overrides ...func(*models.Comment)) (*models.Comment, error) {
	comment := &models.Comment{
		PostID:    post.ID,
		UserID:    user.ID,
		Content:   f.faker.Sentence(f.faker.Number(4, 16)),
		CreatedAt: f.timeAfter(post.CreatedAt),
	}
	comment.UpdatedAt = comment.CreatedAt
	for _, override := range overrides {
		override(comment)
	}

	if err := f.db.Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// CreateLikes has a random subset of users like post and returns how many
// likes were written.
func (f *Factory) CreateLikes(post *models.Post, users []*models.User) (int, error) {
	if len(users) == 0 {
		return 0, nil
	}
	n := f.faker.Number(0, len(users))
	likes := make([]models.Like, 0, n)
	for _, i := range f.faker.Rand.Perm(len(users))[:n] {
		likes = append(likes, models.Like{PostID: post.ID, UserID: users[i].ID, CreatedAt: f.timeAfter(post.CreatedAt)})
	}
	if len(likes) == 0 {
		return 0, nil
	}
	return len(likes), f.db.CreateInBatches(likes, 100).Error
}

// CreateViews records between zero and maxViewers distinct viewers on post,
// each on one day between its creation and now, half of them anonymous.
func (f *Factory) CreateViews(post *models.Post, users []*models.User, maxViewers int) (int, error) {
	n := f.faker.Number(0, maxViewers)
	views := make([]models.PostView, 0, n)
	for i := range n {
		key := fmt.Sprintf("ip:%s", f.faker.IPv4Address())
		if i%2 == 0 && len(users) > 0 {
			key = fmt.Sprintf("user:%d", users[f.faker.Number(0, len(users)-1)].ID)
		}
		at := f.timeAfter(post.CreatedAt)
		views = append(views, models.PostView{
			PostID:    post.ID,
			ViewerKey: key,
			ViewDate:  at.Format(repository.ViewDateLayout),
			CreatedAt: at,
		})
	}
	views = uniqueViews(views)
	if len(views) == 0 {
		return 0, nil
	}
	return len(views), f.db.CreateInBatches(views, 100).Error
}

func uniqueViews(views []models.PostView) []models.PostView {
	seen := make(map[string]struct{}, len(views))
	out := views[:0]
	for _, v := range views {
		k := v.ViewerKey + "|" + v.ViewDate
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.faker.Number(0, maxDays*24*60)) * time.Minute
	return f.now.Add(-back).Truncate(time.Second)
}

// timeAfter returns a time in [t, now].
func (f *Factory) timeAfter(t time.Time) time.Time {
	span := f.now.Sub(t)
	if span <= 0 {
		return t
	}
	return t.Add(time.Duration(f.faker.Rand.Int63n(int64(span)))).Truncate(time.Second)
}

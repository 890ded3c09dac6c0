// Package seed fills a database with fake blog content for development and
// demos. Every counter it leaves behind equals its row count.
package seed

import (
	"context"
	"fmt"
	"log"

	"inkwell/internal/models"
	"inkwell/internal/repository"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	NumUsers    int
	NumPosts    int
	NumComments int
	ShouldClean bool
	// Fast hashes the shared password at minimum bcrypt cost.
	Fast bool
	// MaxDays bounds how far back post dates are spread. Defaults to 90.
	MaxDays int
	// RandSeed makes a run reproducible when non-zero.
	RandSeed int64
}

// Summary counts what a run created.
type Summary struct {
	Users      int
	Posts      int
	Comments   int
	Likes      int
	Views      int
	Reconciled int
}

// Seeder runs seeding against one database.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder returns a Seeder for db.
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// ClearAll deletes every blog row, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	log.Println("🗑️  Clearing existing data...")
	db := s.db.WithContext(ctx)
	for _, model := range []any{&models.PostView{}, &models.Like{}, &models.Comment{}, &models.Post{}, &models.User{}} {
		if err := db.Where("1 = 1").Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Run creates users, posts, comments, likes and views, then reconciles every
// post's counters.
func (s *Seeder) Run(ctx context.Context, opts Options) (Summary, error) {
	var sum Summary

	if opts.ShouldClean {
		if err := s.ClearAll(ctx); err != nil {
			return sum, err
		}
	}
	if opts.NumUsers <= 0 {
		return sum, fmt.Errorf("at least one user is required")
	}

	f := NewFactory(s.db.WithContext(ctx), opts)

	users := make([]*models.User, 0, opts.NumUsers)
	for range opts.NumUsers {
		u, err := f.CreateUser()
		if err != nil {
			return sum, fmt.Errorf("create user: %w", err)
		}
		users = append(users, u)
	}
	sum.Users = len(users)
	log.Printf("✓ %d users created", sum.Users)

	posts := make([]*models.Post, 0, opts.NumPosts)
	for i := range opts.NumPosts {
		posts = append(posts, f.BuildPost(users[i%len(users)]))
	}
	if err := f.CreatePostsBatch(posts); err != nil {
		return sum, fmt.Errorf("create posts: %w", err)
	}
	sum.Posts = len(posts)
	log.Printf("✓ %d posts created", sum.Posts)

	if len(posts) > 0 {
		for i := range opts.NumComments {
			author := users[f.faker.Number(0, len(users)-1)]
			if _, err := f.CreateComment(author, posts[i%len(posts)]); err != nil {
				return sum, fmt.Errorf("create comment: %w", err)
			}
			sum.Comments++
		}
	}
	log.Printf("✓ %d comments created", sum.Comments)

	for _, p := range posts {
		n, err := f.CreateLikes(p, users)
		if err != nil {
			return sum, fmt.Errorf("create likes for post %d: %w", p.ID, err)
		}
		sum.Likes += n

		n, err = f.CreateViews(p, users, 3*len(users))
		if err != nil {
			return sum, fmt.Errorf("create views for post %d: %w", p.ID, err)
		}
		sum.Views += n
	}
	log.Printf("✓ %d likes and %d views recorded", sum.Likes, sum.Views)

	reconciled, err := repository.ReconcileCounters(ctx, s.db, 0)
	if err != nil {
		return sum, fmt.Errorf("reconcile counters: %w", err)
	}
	sum.Reconciled = reconciled
	log.Printf("✓ counters reconciled for %d posts", reconciled)

	return sum, nil
}

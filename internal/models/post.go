package models

import "time"

// Post is a blog entry. Views, Likes and CommentsCount are denormalized
// aggregates of post_views, likes and comments and are only ever written by
// recomputation.
type Post struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	User          User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	Image         string     `gorm:"size:512" json:"image,omitempty"`
	Views         int64      `gorm:"not null;default:0" json:"views"`
	Likes         int64      `gorm:"not null;default:0" json:"likes"`
	CommentsCount int64      `gorm:"not null;default:0" json:"comments_count"`
	Comments      []Comment  `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	LikeRows      []Like     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	ViewRows      []PostView `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	// Liked is computed per request for the acting user.
	Liked     bool      `gorm:"-" json:"liked"`
	Author    *Author   `gorm:"-" json:"author,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostMeta is the counter snapshot of a post.
type PostMeta struct {
	Views         int64 `json:"views"`
	Likes         int64 `json:"likes"`
	CommentsCount int64 `json:"comments_count"`
}

// Meta returns the post's current counters.
func (p *Post) Meta() PostMeta {
	return PostMeta{Views: p.Views, Likes: p.Likes, CommentsCount: p.CommentsCount}
}

// PostView records that a viewer saw a post on a given UTC day.
type PostView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_post_views_unique,priority:1" json:"post_id"`
	ViewerKey string    `gorm:"size:128;not null;uniqueIndex:idx_post_views_unique,priority:2" json:"viewer_key"`
	ViewDate  string    `gorm:"size:10;not null;uniqueIndex:idx_post_views_unique,priority:3" json:"view_date"`
	CreatedAt time.Time `json:"created_at"`
}

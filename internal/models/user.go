// Package models contains data structures for the blog's domain models.
package models

import "time"

// User is a registered author. Deleting a user removes their posts, comments,
// likes and view records.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Nickname     string    `gorm:"size:50;uniqueIndex;not null" json:"nickname"`
	Password     string    `gorm:"not null" json:"-"`
	ProfileImage string    `gorm:"size:512" json:"profile_image,omitempty"`
	Likes        []Like    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Author is the public projection of a user embedded in posts and comments.
type Author struct {
	ID           uint   `json:"id"`
	Nickname     string `json:"nickname"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// AuthorOf projects u for embedding in responses.
func AuthorOf(u User) Author {
	return Author{ID: u.ID, Nickname: u.Nickname, ProfileImage: u.ProfileImage}
}

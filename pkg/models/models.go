package models

import (
	"time"
)

// User is owned by the auth subsystem. The review core only reads it.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"size:80;not null;uniqueIndex"`
	CreatedAt time.Time
}

type Book struct {
	ID     uint   `gorm:"primaryKey" json:"-"`
	ISBN   string `gorm:"column:isbn;size:20;not null;uniqueIndex" json:"isbn"`
	Title  string `gorm:"not null" json:"title"`
	Author string `gorm:"not null" json:"author"`
	Year   int    `gorm:"not null" json:"year"`
}

// Review is unique per (user, book); the composite index is the only
// arbiter between concurrent submissions.
type Review struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	ReviewUid string    `gorm:"type:uuid;uniqueIndex;not null" json:"reviewUid"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_reviews_user_book,priority:1" json:"userId"`
	BookID    uint      `gorm:"not null;uniqueIndex:idx_reviews_user_book,priority:2;index" json:"-"`
	Rating    int       `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Text      string    `gorm:"column:review;type:text" json:"review"`
	CreatedAt time.Time `json:"createdAt"`

	User User `gorm:"foreignKey:UserID" json:"-"`
	Book Book `gorm:"foreignKey:BookID" json:"-"`
}

// AggregateStats is recomputed on every read. AverageRating is nil when
// there are no reviews.
type AggregateStats struct {
	ReviewCount   int      `json:"review_count"`
	AverageRating *float64 `json:"average_rating"`
}

type ExternalStats struct {
	ReviewCount   int     `json:"external_review_count"`
	AverageRating float64 `json:"external_average_rating"`
}

// AuthoredReview is a review joined with the display name of its author.
type AuthoredReview struct {
	Username string `json:"username"`
	Review   string `json:"review"`
	Rating   int    `json:"rating"`
}

// All lists every table the service migrates.
func All() []interface{} {
	return []interface{}{&User{}, &Book{}, &Review{}}
}

package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"bookreview/pkg/apperrors"
	"bookreview/pkg/models"
	"bookreview/pkg/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Ledger records reviews and answers aggregate queries over them. It is the
// only component allowed to create reviews.
type Ledger struct {
	db     *gorm.DB
	logger *slog.Logger
}

func New(db *gorm.DB, logger *slog.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// SubmitReview stores a user's single review of a book. A second submission
// for the same (user, book) pair fails with ErrDuplicateReview, including
// when both race: the unique index on reviews(user_id, book_id) decides.
func (l *Ledger) SubmitReview(ctx context.Context, userID uint, isbn string, rating int, text string) (*models.Review, error) {
	if rating < MinRating || rating > MaxRating {
		metrics.ReviewsSubmitted.WithLabelValues("invalid").Inc()
		return nil, apperrors.InvalidInput("rating must be between %d and %d, got %d", MinRating, MaxRating, rating)
	}
	if userID == 0 {
		metrics.ReviewsSubmitted.WithLabelValues("invalid").Inc()
		return nil, apperrors.InvalidInput("user id is required")
	}

	review := &models.Review{
		ReviewUid: uuid.New().String(),
		UserID:    userID,
		Rating:    rating,
		Text:      strings.TrimSpace(text),
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book models.Book
		err := tx.Select("id").Where("isbn = ?", isbn).First(&book).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("book", isbn)
		}
		if err != nil {
			return err
		}

		review.BookID = book.ID
		return tx.Create(review).Error
	})

	switch {
	case err == nil:
		metrics.ReviewsSubmitted.WithLabelValues("created").Inc()
		l.logger.InfoContext(ctx, "review created",
			slog.String("review_uid", review.ReviewUid),
			slog.String("isbn", isbn),
			slog.Uint64("user_id", uint64(userID)),
			slog.Int("rating", rating),
		)
		return review, nil
	case errors.Is(err, apperrors.ErrNotFound):
		metrics.ReviewsSubmitted.WithLabelValues("invalid").Inc()
		return nil, err
	case isUniqueViolation(err):
		metrics.ReviewsSubmitted.WithLabelValues("duplicate").Inc()
		l.logger.InfoContext(ctx, "duplicate review rejected",
			slog.String("isbn", isbn),
			slog.Uint64("user_id", uint64(userID)),
		)
		return nil, apperrors.DuplicateReview(isbn)
	case isForeignKeyViolation(err):
		// The book row was read in the same transaction, so the missing
		// parent is the user.
		metrics.ReviewsSubmitted.WithLabelValues("invalid").Inc()
		return nil, apperrors.NotFound("user", strconv.FormatUint(uint64(userID), 10))
	default:
		metrics.ReviewsSubmitted.WithLabelValues("error").Inc()
		l.logger.ErrorContext(ctx, "review insert failed", slog.String("isbn", isbn), slog.Any("error", err))
		return nil, apperrors.Storage("insert review", err)
	}
}

// Aggregate computes count and mean rating in the database. The mean is nil
// for a book without reviews.
func (l *Ledger) Aggregate(ctx context.Context, bookID uint) (models.AggregateStats, error) {
	var row struct {
		Count   int
		Average *float64
	}
	err := l.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COUNT(id) AS count, AVG(rating) AS average").
		Where("book_id = ?", bookID).
		Scan(&row).Error
	if err != nil {
		return models.AggregateStats{}, apperrors.Storage("aggregate reviews", err)
	}

	stats := models.AggregateStats{ReviewCount: row.Count}
	if row.Count > 0 && row.Average != nil {
		avg := Round2(*row.Average)
		stats.AverageRating = &avg
	}
	return stats, nil
}

// ReviewsWithAuthors lists a book's reviews in submission order together
// with their authors' usernames. It never returns nil.
func (l *Ledger) ReviewsWithAuthors(ctx context.Context, bookID uint) ([]models.AuthoredReview, error) {
	reviews := []models.AuthoredReview{}
	err := l.db.WithContext(ctx).
		Table("reviews").
		Select("users.username AS username, reviews.review AS review, reviews.rating AS rating").
		Joins("JOIN users ON users.id = reviews.user_id").
		Where("reviews.book_id = ?", bookID).
		Order("reviews.id").
		Scan(&reviews).Error
	if err != nil {
		return nil, apperrors.Storage("list reviews", err)
	}
	if reviews == nil {
		reviews = []models.AuthoredReview{}
	}
	return reviews, nil
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

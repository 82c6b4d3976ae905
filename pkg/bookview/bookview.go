package bookview

import (
	"context"

	"bookreview/pkg/apperrors"
	"bookreview/pkg/goodreads"
	"bookreview/pkg/ledger"
	"bookreview/pkg/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// BookFinder resolves an ISBN to a catalog entry.
type BookFinder interface {
	FindByISBN(ctx context.Context, isbn string) (*models.Book, error)
}

// ReviewSource supplies the local half of a book's reputation.
type ReviewSource interface {
	Aggregate(ctx context.Context, bookID uint) (models.AggregateStats, error)
	ReviewsWithAuthors(ctx context.Context, bookID uint) ([]models.AuthoredReview, error)
}

// StatsFetcher supplies the external half. It reports failure in the Result.
type StatsFetcher interface {
	Fetch(ctx context.Context, isbn string) goodreads.Result
}

type External struct {
	Available bool                  `json:"available"`
	Reason    string                `json:"reason,omitempty"`
	Stats     *models.ExternalStats `json:"stats"`
}

type BookView struct {
	Book      models.Book             `json:"book"`
	Aggregate models.AggregateStats   `json:"aggregate"`
	Reviews   []models.AuthoredReview `json:"reviews"`
	External  External                `json:"external"`
}

// Summary is the public API shape. Field names are part of the contract.
type Summary struct {
	Title        string   `json:"title"`
	Author       string   `json:"author"`
	Year         int      `json:"year"`
	ISBN         string   `json:"isbn"`
	ReviewCount  int      `json:"review_count"`
	AverageScore *float64 `json:"average_score"`
}

type Merger struct {
	db       *gorm.DB
	books    BookFinder
	reviews  ReviewSource
	external StatsFetcher
}

func New(db *gorm.DB, books BookFinder, reviews ReviewSource, external StatsFetcher) *Merger {
	return &Merger{db: db, books: books, reviews: reviews, external: external}
}

// BookView combines catalog data, local reviews and external stats. Only a
// missing book or a storage failure fails the call; the external lookup
// degrades to External.Available == false.
func (m *Merger) BookView(ctx context.Context, isbn string) (*BookView, error) {
	book, err := m.books.FindByISBN(ctx, isbn)
	if err != nil {
		return nil, err
	}

	view := &BookView{Book: *book}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := m.reviews.Aggregate(gctx, book.ID)
		view.Aggregate = stats
		return err
	})
	g.Go(func() error {
		reviews, err := m.reviews.ReviewsWithAuthors(gctx, book.ID)
		view.Reviews = reviews
		return err
	})

	// Not part of the group: its failure must not cancel the local queries.
	extCh := make(chan goodreads.Result, 1)
	go func() {
		extCh <- m.external.Fetch(ctx, book.ISBN)
	}()

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := <-extCh
	view.External = External{
		Available: res.Available(),
		Reason:    res.Reason(),
		Stats:     res.Stats,
	}
	return view, nil
}

// APISummary reports local review statistics only, computed in one grouped
// query. Books without reviews report a zero count and a null score.
func (m *Merger) APISummary(ctx context.Context, isbn string) (*Summary, error) {
	var rows []struct {
		Title        string
		Author       string
		Year         int
		ISBN         string `gorm:"column:isbn"`
		ReviewCount  int
		AverageScore *float64
	}
	err := m.db.WithContext(ctx).
		Table("books").
		Select("books.title, books.author, books.year, books.isbn, " +
			"COUNT(reviews.id) AS review_count, AVG(reviews.rating) AS average_score").
		Joins("LEFT JOIN reviews ON reviews.book_id = books.id").
		Where("books.isbn = ?", isbn).
		Group("books.id, books.title, books.author, books.year, books.isbn").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Storage("aggregate summary", err)
	}
	if len(rows) != 1 {
		return nil, apperrors.NotFound("book", isbn)
	}

	row := rows[0]
	summary := &Summary{
		Title:       row.Title,
		Author:      row.Author,
		Year:        row.Year,
		ISBN:        row.ISBN,
		ReviewCount: row.ReviewCount,
	}
	if row.ReviewCount > 0 && row.AverageScore != nil {
		avg := ledger.Round2(*row.AverageScore)
		summary.AverageScore = &avg
	}
	return summary, nil
}

package search

import (
	"context"
	"strings"

	"bookreview/pkg/apperrors"
	"bookreview/pkg/models"

	"gorm.io/gorm"
)

// MaxResults caps every search, whatever limit the resolver is built with.
const MaxResults = 10

// SQLite's LOWER folds ASCII only, so the as-typed pattern is tried too:
// non-ASCII text always matches itself, and case-folds fully on Postgres.
const matchClause = `LOWER(isbn) LIKE ? ESCAPE '\' OR isbn LIKE ? ESCAPE '\' OR ` +
	`LOWER(title) LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\' OR ` +
	`LOWER(author) LIKE ? ESCAPE '\' OR author LIKE ? ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Resolver turns free text into a bounded list of catalog entries.
type Resolver struct {
	db    *gorm.DB
	limit int
}

func New(db *gorm.DB, limit int) *Resolver {
	if limit < 1 || limit > MaxResults {
		limit = MaxResults
	}
	return &Resolver{db: db, limit: limit}
}

// Search matches books whose ISBN, title or author contains query,
// ignoring case. Both sides are lower-cased, so digits and mixed-case names
// are compared as typed. An empty result is not an error.
func (r *Resolver) Search(ctx context.Context, query string) ([]models.Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.InvalidInput("search query must not be empty")
	}

	folded := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	exact := "%" + likeEscaper.Replace(query) + "%"

	books := []models.Book{}
	err := r.db.WithContext(ctx).
		Where(matchClause, folded, exact, folded, exact, folded, exact).
		Order("id").
		Limit(r.limit).
		Find(&books).Error
	if err != nil {
		return nil, apperrors.Storage("search books", err)
	}
	return books, nil
}

package catalog

import (
	"context"
	"errors"
	"strings"

	"bookreview/pkg/apperrors"
	"bookreview/pkg/models"

	"gorm.io/gorm"
)

// Catalog is the read-only book store shared by every component.
type Catalog struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// FindByISBN returns NotFound for unknown or blank ISBNs.
func (c *Catalog) FindByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, apperrors.NotFound("book", `""`)
	}

	var book models.Book
	err := c.db.WithContext(ctx).Where("isbn = ?", isbn).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("book", isbn)
	}
	if err != nil {
		return nil, apperrors.Storage("find book", err)
	}
	return &book, nil
}

// Count returns the number of books in the catalog.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&models.Book{}).Count(&n).Error; err != nil {
		return 0, apperrors.Storage("count books", err)
	}
	return n, nil
}

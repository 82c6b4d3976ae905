package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"bookreview/pkg/apperrors"
	"bookreview/pkg/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const importBatchSize = 500

type ImportResult struct {
	Read     int
	Inserted int64
}

func (r ImportResult) Skipped() int64 {
	return int64(r.Read) - r.Inserted
}

// Import loads "isbn,title,author,year" rows (with a header line) into the
// catalog. Rows whose ISBN already exists are skipped. The whole file is
// applied in one transaction.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	books, err := ParseCSV(r)
	if err != nil {
		return ImportResult{}, err
	}

	result := ImportResult{Read: len(books)}
	if len(books) == 0 {
		return result, nil
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "isbn"}},
			DoNothing: true,
		}).CreateInBatches(books, importBatchSize)
		if res.Error != nil {
			return res.Error
		}
		result.Inserted = res.RowsAffected
		return nil
	})
	if err != nil {
		return ImportResult{}, apperrors.Storage("import books", err)
	}
	return result, nil
}

// ParseCSV reads the seed format. Line numbers in errors are 1-based and
// count the header.
func ParseCSV(r io.Reader) ([]*models.Book, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 4
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.InvalidInput("read header: %v", err)
	}
	if !strings.EqualFold(strings.TrimSpace(header[0]), "isbn") {
		return nil, apperrors.InvalidInput("expected header isbn,title,author,year, got %q", strings.Join(header, ","))
	}

	var books []*models.Book
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.InvalidInput("line %d: %v", line, err)
		}

		year, err := strconv.Atoi(strings.TrimSpace(record[3]))
		if err != nil {
			return nil, apperrors.InvalidInput("line %d: year %q is not a number", line, record[3])
		}
		isbn := strings.TrimSpace(record[0])
		if isbn == "" {
			return nil, apperrors.InvalidInput("line %d: isbn is empty", line)
		}

		books = append(books, &models.Book{
			ISBN:   isbn,
			Title:  strings.TrimSpace(record[1]),
			Author: strings.TrimSpace(record[2]),
			Year:   year,
		})
	}
	return books, nil
}

func (r ImportResult) String() string {
	return fmt.Sprintf("read %d rows, inserted %d, skipped %d", r.Read, r.Inserted, r.Skipped())
}

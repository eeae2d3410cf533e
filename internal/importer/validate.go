package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxISBNLength bounds the isbn column
const MaxISBNLength = 13

// Row is a validated import row, ready to become a book
type Row struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	ISBN      string `json:"isbn"`
	Stock     int    `json:"stock"`
	Available int    `json:"available"`
}

// RowError describes why one spreadsheet row was rejected. Row is the
// 1-based row number as shown by spreadsheet software.
type RowError struct {
	Row    int      `json:"row"`
	Errors []string `json:"errors"`
	Data   Record   `json:"data"`
}

// Validate checks one record. It returns the typed row, or every problem
// found in the record.
func Validate(rec Record) (Row, []string) {
	var problems []string

	row := Row{
		Title:  strings.TrimSpace(rec[ColTitle]),
		Author: strings.TrimSpace(rec[ColAuthor]),
		ISBN:   strings.TrimSpace(rec[ColISBN]),
	}

	if row.Title == "" {
		problems = append(problems, "title is required")
	}
	if row.Author == "" {
		problems = append(problems, "author is required")
	}
	if utf8.RuneCountInString(row.ISBN) > MaxISBNLength {
		problems = append(problems, fmt.Sprintf("isbn must be at most %d characters", MaxISBNLength))
	}

	stock, stockErr := ParseCount(ColStock, rec[ColStock])
	if stockErr != nil {
		problems = append(problems, stockErr.Error())
	}
	available, availableErr := ParseCount(ColAvailable, rec[ColAvailable])
	if availableErr != nil {
		problems = append(problems, availableErr.Error())
	}

	if stockErr == nil && availableErr == nil {
		if err := CheckCounts(stock, available); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return Row{}, problems
	}

	row.Stock = stock
	row.Available = available
	return row, nil
}

// maxCount bounds stock and available however the cell spells the number.
const maxCount = math.MaxInt32

// ParseCount coerces a cell to a non-negative integer no larger than
// maxCount. Numeric strings such as "5" or "5.0" are accepted; fractions,
// negatives and text are not.
func ParseCount(field, value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%s is required", field)
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%s must be a non-negative integer, got %q", field, value)
		}
		if n > maxCount {
			return 0, fmt.Errorf("%s must not exceed %d, got %q", field, maxCount, value)
		}
		return int(n), nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", field, value)
	}
	if f > maxCount {
		return 0, fmt.Errorf("%s must not exceed %d, got %q", field, maxCount, value)
	}
	return int(f), nil
}

// CheckCounts enforces available <= stock
func CheckCounts(stock, available int) error {
	if available > stock {
		return fmt.Errorf("available (%d) cannot be greater than stock (%d)", available, stock)
	}
	return nil
}

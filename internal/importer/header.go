package importer

import (
	"fmt"
	"strings"
)

// Expected column names, in canonical order.
const (
	ColTitle     = "title"
	ColAuthor    = "author"
	ColISBN      = "isbn"
	ColStock     = "stock"
	ColAvailable = "available"
)

// ExpectedHeaders is the fixed header set every import file must carry.
var ExpectedHeaders = []string{ColTitle, ColAuthor, ColISBN, ColStock, ColAvailable}

// HeaderError lists the expected headers a file lacks and the normalized
// headers it does carry.
type HeaderError struct {
	Missing []string `json:"missing"`
	Found   []string `json:"found"`
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("missing required headers: %s", strings.Join(e.Missing, ", "))
}

func normalizeHeader(cell string) string {
	return strings.ToLower(strings.TrimSpace(cell))
}

// MapHeader locates every expected header in the header row. Header order is
// free; extra columns are ignored. The first occurrence of a duplicate wins.
func MapHeader(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	found := make([]string, 0, len(header))
	for i, cell := range header {
		name := normalizeHeader(cell)
		if name == "" {
			continue
		}
		found = append(found, name)
		if _, seen := positions[name]; !seen {
			positions[name] = i
		}
	}

	columns := make(map[string]int, len(ExpectedHeaders))
	var missing []string
	for _, name := range ExpectedHeaders {
		idx, ok := positions[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		columns[name] = idx
	}

	if len(missing) > 0 {
		return nil, &HeaderError{Missing: missing, Found: found}
	}
	return columns, nil
}

// Record is one data row keyed by expected header name
type Record map[string]string

// Project picks the expected columns out of a data row. Short rows yield
// empty values for the cells they lack.
func Project(row []string, columns map[string]int) Record {
	rec := make(Record, len(columns))
	for name, idx := range columns {
		if idx < len(row) {
			rec[name] = strings.TrimSpace(row[idx])
		} else {
			rec[name] = ""
		}
	}
	return rec
}

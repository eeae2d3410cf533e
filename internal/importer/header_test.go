package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHeaderIsOrderIndependent(t *testing.T) {
	columns, err := MapHeader([]string{" Available", "STOCK ", "isbn", "Author", "Title", "notes"})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		ColAvailable: 0,
		ColStock:     1,
		ColISBN:      2,
		ColAuthor:    3,
		ColTitle:     4,
	}, columns)
}

func TestMapHeaderReportsMissingAndFound(t *testing.T) {
	_, err := MapHeader([]string{"stock", "Title", "author", "available"})
	require.Error(t, err)

	var headerErr *HeaderError
	require.ErrorAs(t, err, &headerErr)
	assert.Equal(t, []string{"isbn"}, headerErr.Missing)
	assert.Equal(t, []string{"stock", "title", "author", "available"}, headerErr.Found)
	assert.Contains(t, err.Error(), "isbn")
}

func TestMapHeaderDoesNotMatchPartially(t *testing.T) {
	_, err := MapHeader([]string{"book title", "author", "isbn13", "stock", "available"})

	var headerErr *HeaderError
	require.ErrorAs(t, err, &headerErr)
	assert.Equal(t, []string{"title", "isbn"}, headerErr.Missing)
}

func TestProjectHandlesShortRows(t *testing.T) {
	columns := map[string]int{ColTitle: 0, ColAuthor: 1, ColISBN: 4, ColStock: 2, ColAvailable: 3}

	rec := Project([]string{" Dune ", "Herbert", "3"}, columns)
	assert.Equal(t, Record{
		ColTitle:     "Dune",
		ColAuthor:    "Herbert",
		ColStock:     "3",
		ColAvailable: "",
		ColISBN:      "",
	}, rec)
}

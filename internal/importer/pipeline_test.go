package importer

import (
	"context"
	"os"
	"testing"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/metrics"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/pkg/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &rows[i]))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func newTestPipeline() (*Pipeline, *metrics.Metrics) {
	m := metrics.NewNop()
	return NewPipeline(1<<20, m, logger.NewLogger("test", "info")), m
}

func validationDetails(t *testing.T, err error) *apperr.ValidationError {
	t.Helper()
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	return ve
}

func TestParsePartitionsRows(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"Stock", "Title", "Author", "ISBN", "Available"},
		{5, "Dune", "Frank Herbert", "9780441013593", 5},
		{5, "Emma", "Jane Austen", "", 10},
		{},
		{"3", "Ulysses", "James Joyce", "", "1"},
		{2, "", "Nobody", "", 1},
	})

	pipeline, m := newTestPipeline()
	result, err := pipeline.Parse(context.Background(), "books.xlsx", data)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "books.xlsx", result.FileName)
	assert.Equal(t, 4, result.TotalRows)
	assert.Equal(t, 2, result.ValidBooksCount)
	assert.Equal(t, 2, result.ErrorsCount)

	wantBooks := []Row{
		{Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Stock: 5, Available: 5},
		{Title: "Ulysses", Author: "James Joyce", Stock: 3, Available: 1},
	}
	if diff := cmp.Diff(wantBooks, result.ValidBooks); diff != "" {
		t.Errorf("valid books mismatch (-want +got):\n%s", diff)
	}

	wantErrors := []RowError{
		{
			Row:    3,
			Errors: []string{"available (10) cannot be greater than stock (5)"},
			Data:   record("Emma", "Jane Austen", "", "5", "10"),
		},
		{
			Row:    6,
			Errors: []string{"title is required"},
			Data:   record("", "Nobody", "", "2", "1"),
		},
	}
	if diff := cmp.Diff(wantErrors, result.ValidationErrors); diff != "" {
		t.Errorf("validation errors mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ImportFiles.WithLabelValues("accepted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ImportRows.WithLabelValues("invalid")))
}

func TestDecodeXLS(t *testing.T) {
	data, err := os.ReadFile("testdata/books.xls")
	require.NoError(t, err)

	grid, err := Decode("books.xls", data)
	require.NoError(t, err)

	// row 3 is absent from the file and the last row carries a blank cell
	want := Grid{
		{"Title", "Author", "ISBN", "Stock", "Available"},
		{"Dune", "Frank Herbert", "9780441013593", "5", "3"},
		nil,
		{"Emma", "Jane Austen", "", "2", "4"},
	}
	if diff := cmp.Diff(want, grid); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
}

func TestParseXLS(t *testing.T) {
	data, err := os.ReadFile("testdata/books.xls")
	require.NoError(t, err)

	pipeline, _ := newTestPipeline()
	result, err := pipeline.Parse(context.Background(), "books.xls", data)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, []Row{
		{Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Stock: 5, Available: 3},
	}, result.ValidBooks)

	wantErrors := []RowError{
		{
			Row:    4,
			Errors: []string{"available (4) cannot be greater than stock (2)"},
			Data:   record("Emma", "Jane Austen", "", "2", "4"),
		},
	}
	if diff := cmp.Diff(wantErrors, result.ValidationErrors); diff != "" {
		t.Errorf("validation errors mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsMissingHeader(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"available", "author", "title", "stock"},
		{1, "Frank Herbert", "Dune", 1},
	})

	pipeline, m := newTestPipeline()
	_, err := pipeline.Parse(context.Background(), "books.xlsx", data)
	require.Error(t, err)

	ve := validationDetails(t, err)
	assert.Equal(t, "missing required headers", ve.Message)

	headerErr, ok := ve.Details.(*HeaderError)
	require.True(t, ok)
	assert.Equal(t, []string{"isbn"}, headerErr.Missing)
	assert.ElementsMatch(t, []string{"available", "author", "title", "stock"}, headerErr.Found)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ImportFiles.WithLabelValues("rejected")))
}

func TestParseRejectsHeaderOnlyFile(t *testing.T) {
	// the header is incomplete too; the row count check comes first
	data := buildXLSX(t, [][]interface{}{{"title", "author"}})

	pipeline, _ := newTestPipeline()
	_, err := pipeline.Parse(context.Background(), "books.xlsx", data)

	ve := validationDetails(t, err)
	assert.Contains(t, ve.Message, "at least one data row")
	assert.Nil(t, ve.Details)
}

func TestParseRejectsWhenNoRowIsValid(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"title", "author", "isbn", "stock", "available"},
		{"Dune", "Frank Herbert", "", 5, 10},
	})

	pipeline, _ := newTestPipeline()
	_, err := pipeline.Parse(context.Background(), "books.xlsx", data)

	ve := validationDetails(t, err)
	assert.Equal(t, "no valid rows in file", ve.Message)

	details, ok := ve.Details.(*Result)
	require.True(t, ok)
	assert.False(t, details.Success)
	assert.Equal(t, 1, details.ErrorsCount)
	assert.Equal(t, 2, details.ValidationErrors[0].Row)
}

func TestParseRejectsBadUploads(t *testing.T) {
	pipeline, _ := newTestPipeline()
	ctx := context.Background()

	tests := []struct {
		name     string
		fileName string
		data     []byte
		message  string
	}{
		{name: "no file", fileName: "", data: nil, message: "no file uploaded"},
		{name: "csv", fileName: "books.csv", data: []byte("title,author"), message: "unsupported file type"},
		{name: "empty", fileName: "books.xlsx", data: nil, message: "file is empty"},
		{name: "garbage xlsx", fileName: "books.xlsx", data: []byte("not a zip"), message: "could not read spreadsheet"},
		{name: "garbage xls", fileName: "books.XLS", data: []byte("not an ole2 file"), message: "could not read spreadsheet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.Parse(ctx, tt.fileName, tt.data)
			ve := validationDetails(t, err)
			assert.Contains(t, ve.Message, tt.message)
		})
	}
}

func TestParseRejectsOversizedFile(t *testing.T) {
	pipeline := NewPipeline(16, metrics.NewNop(), logger.NewLogger("test", "info"))

	_, err := pipeline.Parse(context.Background(), "books.xlsx", make([]byte, 17))
	ve := validationDetails(t, err)
	assert.Contains(t, ve.Message, "maximum size")
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension("catalog.xlsx"))
	assert.True(t, SupportedExtension("CATALOG.XLS"))
	assert.False(t, SupportedExtension("catalog.csv"))
	assert.False(t, SupportedExtension("catalog"))
	assert.False(t, SupportedExtension("xlsx"))
}

// Package importer turns an uploaded spreadsheet into validated book rows.
// Nothing here touches the database; committing rows is up to the caller.
package importer

import (
	"context"
	"strings"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/apperr"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Result is the outcome of parsing one file
type Result struct {
	Success          bool       `json:"success"`
	FileName         string     `json:"fileName"`
	TotalRows        int        `json:"totalRows"`
	ValidBooksCount  int        `json:"validBooksCount"`
	ErrorsCount      int        `json:"errorsCount"`
	ValidBooks       []Row      `json:"validBooks"`
	ValidationErrors []RowError `json:"validationErrors"`
}

// Pipeline parses and validates import files
type Pipeline struct {
	maxBytes int64
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	log      *zap.Logger
}

// NewPipeline creates a pipeline accepting files up to maxBytes
func NewPipeline(maxBytes int64, m *metrics.Metrics, log *zap.Logger) *Pipeline {
	return &Pipeline{
		maxBytes: maxBytes,
		metrics:  m,
		tracer:   otel.Tracer("library/importer"),
		log:      log,
	}
}

// Parse validates an uploaded file. Rejections are apperr.ValidationError
// values whose details carry the header lists or the full per-row result.
func (p *Pipeline) Parse(ctx context.Context, fileName string, data []byte) (*Result, error) {
	_, span := p.tracer.Start(ctx, "importer.Parse", trace.WithAttributes(
		attribute.String("import.file_name", fileName),
		attribute.Int("import.bytes", len(data)),
	))
	defer span.End()

	result, err := p.parse(fileName, data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		p.metrics.ImportFiles.WithLabelValues("rejected").Inc()
		p.log.Info("Import file rejected", zap.String("file_name", fileName), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("import.total_rows", result.TotalRows),
		attribute.Int("import.valid_rows", result.ValidBooksCount),
	)
	p.metrics.ImportFiles.WithLabelValues("accepted").Inc()
	p.metrics.ImportRows.WithLabelValues("valid").Add(float64(result.ValidBooksCount))
	p.metrics.ImportRows.WithLabelValues("invalid").Add(float64(result.ErrorsCount))

	p.log.Info("Import file parsed",
		zap.String("file_name", fileName),
		zap.Int("total_rows", result.TotalRows),
		zap.Int("valid", result.ValidBooksCount),
		zap.Int("errors", result.ErrorsCount),
	)
	return result, nil
}

func (p *Pipeline) parse(fileName string, data []byte) (*Result, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, apperr.Validation("no file uploaded")
	}
	if !SupportedExtension(fileName) {
		return nil, apperr.Validation("unsupported file type: expected .xlsx or .xls")
	}
	if len(data) == 0 {
		return nil, apperr.Validation("file is empty")
	}
	if p.maxBytes > 0 && int64(len(data)) > p.maxBytes {
		return nil, apperr.Validation("file exceeds the maximum size of %d bytes", p.maxBytes)
	}

	grid, err := Decode(fileName, data)
	if err != nil {
		return nil, apperr.Validation("could not read spreadsheet: %v", err)
	}

	return Partition(fileName, grid)
}

// Partition validates every data row of grid. A file with fewer than two
// rows or without the expected headers is rejected before any row is looked
// at. Blank rows are skipped but keep their spreadsheet numbering.
func Partition(fileName string, grid Grid) (*Result, error) {
	if len(grid) < 2 {
		return nil, apperr.Validation("file must contain a header row and at least one data row")
	}

	columns, err := MapHeader(grid[0])
	if err != nil {
		return nil, apperr.ValidationWithDetails("missing required headers", err)
	}

	result := &Result{
		FileName:         fileName,
		ValidBooks:       []Row{},
		ValidationErrors: []RowError{},
	}

	for i, cells := range grid[1:] {
		if blank(cells) {
			continue
		}
		result.TotalRows++

		rec := Project(cells, columns)
		row, problems := Validate(rec)
		if len(problems) > 0 {
			result.ValidationErrors = append(result.ValidationErrors, RowError{
				Row:    i + 2,
				Errors: problems,
				Data:   rec,
			})
			continue
		}
		result.ValidBooks = append(result.ValidBooks, row)
	}

	result.ValidBooksCount = len(result.ValidBooks)
	result.ErrorsCount = len(result.ValidationErrors)

	if result.ValidBooksCount == 0 && result.ErrorsCount > 0 {
		return nil, apperr.ValidationWithDetails("no valid rows in file", result)
	}

	result.Success = true
	return result, nil
}

// ValidateAll validates already-projected records, numbering them from
// first. It is used to re-check rows a client sends back for commit.
func ValidateAll(records []Record, first int) ([]Row, []RowError) {
	var rows []Row
	var rowErrors []RowError
	for i, rec := range records {
		row, problems := Validate(rec)
		if len(problems) > 0 {
			rowErrors = append(rowErrors, RowError{Row: first + i, Errors: problems, Data: rec})
			continue
		}
		rows = append(rows, row)
	}
	return rows, rowErrors
}

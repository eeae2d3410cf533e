package importer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Grid is a decoded sheet: rows of cell strings, first row is the header.
type Grid [][]string

const (
	extXLSX = ".xlsx"
	extXLS  = ".xls"
)

// SupportedExtension reports whether name ends in a spreadsheet extension
// the pipeline can decode.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case extXLSX, extXLS:
		return true
	}
	return false
}

// Decode reads the first sheet of a workbook. The format is chosen by the
// extension of fileName.
func Decode(fileName string, data []byte) (grid Grid, err error) {
	// the legacy reader panics on some malformed input
	defer func() {
		if r := recover(); r != nil {
			grid, err = nil, fmt.Errorf("unreadable spreadsheet: %v", r)
		}
	}()

	switch strings.ToLower(filepath.Ext(fileName)) {
	case extXLSX:
		return decodeXLSX(data)
	case extXLS:
		return decodeXLS(data)
	default:
		return nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(fileName))
	}
}

func decodeXLSX(data []byte) (Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unreadable spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Grid{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return Grid(rows), nil
}

func decodeXLS(data []byte) (Grid, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("unreadable spreadsheet: %w", err)
	}
	if wb == nil {
		return nil, fmt.Errorf("unreadable spreadsheet: no workbook stream")
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return Grid{}, nil
	}

	grid := make(Grid, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		grid = append(grid, xlsRow(sheet, i))
	}
	return trimTrailingEmpty(grid), nil
}

// xlsRow copies one row out of the sheet; rows absent from the file come
// back empty.
func xlsRow(sheet *xls.WorkSheet, i int) (cells []string) {
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()

	row := sheet.Row(i)
	if row == nil {
		return nil
	}
	for j := 0; j <= row.LastCol(); j++ {
		cells = append(cells, row.Col(j))
	}
	for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

func trimTrailingEmpty(grid Grid) Grid {
	for len(grid) > 0 && blank(grid[len(grid)-1]) {
		grid = grid[:len(grid)-1]
	}
	return grid
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PG_DSN", "sqlite::memory:")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSheet(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &rows[i]))
	}
	path := filepath.Join(t.TempDir(), "books.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestImportCheck(t *testing.T) {
	path := writeSheet(t, [][]interface{}{
		{"title", "author", "isbn", "stock", "available"},
		{"Dune", "Frank Herbert", "9780441013593", 5, 5},
	})

	out, err := execute(t, "import-check", path)
	require.NoError(t, err)

	var result struct {
		FileName        string `json:"fileName"`
		ValidBooksCount int    `json:"validBooksCount"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, "books.xlsx", result.FileName)
	assert.Equal(t, 1, result.ValidBooksCount)
}

func TestImportCheckRejectsHeaders(t *testing.T) {
	path := writeSheet(t, [][]interface{}{
		{"title", "author", "stock", "available"},
		{"Dune", "Frank Herbert", 5, 5},
	})

	out, err := execute(t, "import-check", path)
	require.Error(t, err)
	assert.Contains(t, out, `"isbn"`)
}

func TestReconcileOnEmptyDatabase(t *testing.T) {
	out, err := execute(t, "reconcile")
	require.NoError(t, err)
	assert.JSONEq(t, `{"processed":0,"errors":0,"total":0}`, out)
}

func TestBootstrapRequiresPassword(t *testing.T) {
	t.Setenv("BOOTSTRAP_PASSWORD", "")
	_, err := execute(t, "bootstrap", "--library", "Central", "--email", "admin@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOOTSTRAP_PASSWORD")
}

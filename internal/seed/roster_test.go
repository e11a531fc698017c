package seed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/parcelscope/zoning-cli/internal/config"
)

func createRosterXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()

	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestParseRoster(t *testing.T) {
	path := createRosterXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Name", "State", "Code_URL"},
			{"Melbourne", "FL", "https://library.municode.com/fl/melbourne/codes/code_of_ordinances"},
			{"Palm Bay", "FL", ""},
			{"", "FL", "https://example.com"},
		},
	})

	entries, err := ParseRoster(path, RosterOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "melbourne-fl", entries[0].ID)
	assert.Equal(t, "Melbourne, FL", entries[0].Locator())
	assert.Equal(t, "palm-bay-fl", entries[1].ID)
	assert.Empty(t, entries[1].CodeURL)

	overrides := Overrides(entries)
	require.Len(t, overrides, 1)
	assert.Contains(t, overrides["melbourne-fl"], "municode.com")
}

func TestParseRosterDuplicatesKeepLast(t *testing.T) {
	path := createRosterXLSX(t, map[string][][]string{
		"Sheet1": {
			{"name", "state", "url"},
			{"Melbourne", "FL", "https://old.example.com"},
			{"melbourne", "fl", "https://new.example.com"},
		},
	})

	entries, err := ParseRoster(path, RosterOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://new.example.com", entries[0].CodeURL)
}

func TestParseRosterSheetAndSkipRows(t *testing.T) {
	path := createRosterXLSX(t, map[string][][]string{
		"Notes": {{"scratch"}},
		"Roster": {
			{"exported 2026-08-01"},
			{"Jurisdiction", "ST"},
			{"Titusville", "FL"},
		},
	})

	entries, err := ParseRoster(path, RosterOptions{SheetName: "Roster", SkipRows: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "titusville-fl", entries[0].ID)
}

func TestParseRosterMissingColumns(t *testing.T) {
	path := createRosterXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Name", "Population"},
			{"Melbourne", "84000"},
		},
	})

	_, err := ParseRoster(path, RosterOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state")
}

func TestImportOverHTTP(t *testing.T) {
	path := createRosterXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Name", "State"},
			{"Melbourne", "FL"},
		},
	})
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	entries, err := Import(context.Background(), srv.Client(), config.SeedConfig{
		RosterURL: srv.URL + "/roster.xlsx",
		TempDir:   t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "melbourne-fl", entries[0].ID)
}

func TestImportHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Import(context.Background(), srv.Client(), config.SeedConfig{
		RosterURL: srv.URL + "/missing.xlsx",
		TempDir:   t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

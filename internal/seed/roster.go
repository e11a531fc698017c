// Package seed bootstraps the jurisdiction universe from a roster workbook
// so deployments know their jurisdictions and code URLs before the first
// resolve.
package seed

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/parcelscope/zoning-cli/internal/model"
)

// Entry is one jurisdiction from the roster.
type Entry struct {
	ID      string // canonical cache key
	Name    string
	State   string
	CodeURL string // optional known ordinance URL
}

// Locator returns the human-readable jurisdiction locator, e.g.
// "Melbourne, FL".
func (e Entry) Locator() string {
	return fmt.Sprintf("%s, %s", e.Name, e.State)
}

// RosterOptions configures roster workbook parsing.
type RosterOptions struct {
	SheetName string // if set, overrides the first sheet
	SkipRows  int    // rows to skip before the header row
}

// ParseRoster reads a jurisdiction roster XLSX workbook. The header row
// must name at least "name" and "state" columns; a "code_url" (or "url")
// column is optional. Rows missing name or state are skipped; duplicate
// jurisdictions keep the last row.
func ParseRoster(path string, opts RosterOptions) ([]Entry, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "seed: open roster workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	if len(sheet.Rows) <= opts.SkipRows {
		return nil, eris.New("seed: roster sheet has no header row")
	}

	cols, err := headerColumns(rowToStrings(sheet.Rows[opts.SkipRows]))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int)
	var entries []Entry
	for _, row := range sheet.Rows[opts.SkipRows+1:] {
		cells := rowToStrings(row)

		name := cellAt(cells, cols.name)
		state := cellAt(cells, cols.state)
		if name == "" || state == "" {
			continue
		}

		e := Entry{
			Name:    name,
			State:   state,
			CodeURL: cellAt(cells, cols.codeURL),
		}
		e.ID = model.CacheKey(e.Locator())

		if i, ok := byID[e.ID]; ok {
			entries[i] = e
			continue
		}
		byID[e.ID] = len(entries)
		entries = append(entries, e)
	}

	if len(entries) == 0 {
		return nil, eris.New("seed: roster contained no usable rows")
	}

	return entries, nil
}

// Overrides builds the registry override map from roster entries that carry
// a known code URL.
func Overrides(entries []Entry) map[string]string {
	m := make(map[string]string)
	for _, e := range entries {
		if e.CodeURL != "" {
			m[e.ID] = e.CodeURL
		}
	}
	return m
}

type rosterColumns struct {
	name    int
	state   int
	codeURL int
}

func headerColumns(header []string) (rosterColumns, error) {
	cols := rosterColumns{name: -1, state: -1, codeURL: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name", "jurisdiction", "jurisdiction_name":
			cols.name = i
		case "state", "st":
			cols.state = i
		case "code_url", "url", "ordinance_url":
			cols.codeURL = i
		}
	}
	if cols.name < 0 || cols.state < 0 {
		return cols, eris.New("seed: roster header must include name and state columns")
	}
	return cols, nil
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func getSheet(f *xlsx.File, opts RosterOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("seed: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("seed: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

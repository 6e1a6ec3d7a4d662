package refdata

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SATEntry is one row of the SAT grouping table: the hierarchy level and the
// código agrupador the tax authority assigns to an account name.
type SATEntry struct {
	Level int
	Code  string
}

// SATTable maps lowercased account names to their SAT classification.
// Loaded once at startup and never mutated afterwards.
type SATTable struct {
	byName map[string]SATEntry
}

// LoadSATTable reads the SAT grouping table from an xlsx file on disk.
func LoadSATTable(path string) (*SATTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SAT table: %w", err)
	}
	defer f.Close()
	return ParseSATTable(f)
}

// ParseSATTable reads the SAT grouping table from an xlsx stream. The sheet
// must carry header cells containing "nombre", "nivel" and "codigo"/"código";
// anything else is a reference-data error.
func ParseSATTable(r io.Reader) (*SATTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read SAT table workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("SAT table has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read SAT table rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("SAT table is empty")
	}

	nameIdx, levelIdx, codeIdx := -1, -1, -1
	for i, h := range rows[0] {
		header := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(header, "nombre"):
			nameIdx = i
		case strings.Contains(header, "nivel"):
			levelIdx = i
		case strings.Contains(header, "codigo") || strings.Contains(header, "código"):
			codeIdx = i
		}
	}
	if nameIdx == -1 || codeIdx == -1 {
		return nil, fmt.Errorf("SAT table is missing the Nombre or Código column")
	}

	table := &SATTable{byName: make(map[string]SATEntry)}
	for _, row := range rows[1:] {
		name := strings.TrimSpace(cellAt(row, nameIdx))
		if name == "" {
			continue
		}

		// GetRows applies the cell number format, so codes stored as
		// numbers keep their decimals (e.g. "102.01").
		entry := SATEntry{Code: strings.TrimSpace(cellAt(row, codeIdx))}
		if levelIdx != -1 {
			if level, err := strconv.Atoi(strings.TrimSpace(cellAt(row, levelIdx))); err == nil {
				entry.Level = level
			}
		}
		table.byName[strings.ToLower(name)] = entry
	}

	return table, nil
}

// Lookup resolves an account name to its SAT entry.
func (t *SATTable) Lookup(name string) (SATEntry, bool) {
	entry, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	return entry, ok
}

// Len reports the number of entries loaded.
func (t *SATTable) Len() int {
	return len(t.byName)
}

func cellAt(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

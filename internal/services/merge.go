package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/emorales/contabridge/internal/models"
)

// ReadCatalogRows loads an existing importer catalog file. Every row is
// returned verbatim; "C" rows additionally carry their trimmed code so the
// merge can detect duplicates. Duplicate codes inside the file count once.
func ReadCatalogRows(r io.Reader) ([]models.Row, map[string]bool, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open catalog workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, fmt.Errorf("catalog workbook has no sheets")
	}
	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog rows: %w", err)
	}

	var rows []models.Row
	codes := make(map[string]bool)
	for _, r := range raw {
		if isEmptyRow(r) {
			continue
		}
		row := models.Row{Cells: make([]interface{}, len(r))}
		for i, cell := range r {
			row.Cells[i] = cell
		}
		if strings.ToUpper(strings.TrimSpace(cellAt(r, 0))) == RecordAccount {
			code := strings.TrimSpace(cellAt(r, 1))
			if code != "" && !codes[code] {
				codes[code] = true
				row.Code = code
			}
		}
		rows = append(rows, row)
	}

	return rows, codes, nil
}

// MergeCatalog combines a base catalog with incoming converted rows. The
// base file is reproduced verbatim; incoming accounts whose code already
// exists in the base are skipped (base wins) and listed in the report.
// Accepted incoming rows are flagged as new for the green fill.
func MergeCatalog(base io.Reader, incoming []models.Row, report *models.Report) ([]models.Row, error) {
	baseRows, baseCodes, err := ReadCatalogRows(base)
	if err != nil {
		return nil, err
	}

	merged := baseRows
	for _, row := range incoming {
		if row.Code != "" && baseCodes[row.Code] {
			report.Skipped = append(report.Skipped, row.Code)
			continue
		}
		row.Flag = models.FlagNew
		merged = append(merged, row)
	}

	report.RowsWritten = len(merged)
	return merged, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

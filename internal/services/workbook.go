package services

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/emorales/contabridge/internal/models"
	"github.com/emorales/contabridge/internal/refdata"
)

// Fill colors for flagged rows, matching the review convention of the
// legacy spreadsheets.
var flagColors = map[models.ReviewFlag]string{
	models.FlagReview:  "FFFF00", // inherited SAT code, check manually
	models.FlagMissing: "FF0000", // no SAT code at all
	models.FlagNew:     "90EE90", // appended by a merge
}

// BuildWorkbook serializes the template header plus the converted rows into
// an xlsx buffer. An empty row set yields a header-only file. A template
// with no headers (merge mode, where the base file brings its own) writes
// the rows alone.
func BuildWorkbook(tmpl refdata.Template, rows []models.Row) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Sheet1"
	if tmpl.Sheet != "" && tmpl.Sheet != sheet {
		if err := f.SetSheetName(sheet, tmpl.Sheet); err != nil {
			return nil, fmt.Errorf("failed to name output sheet: %w", err)
		}
		sheet = tmpl.Sheet
	}

	rowNum := 1
	for _, header := range tmpl.Headers {
		for col, value := range header {
			axis, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, axis, value); err != nil {
				return nil, fmt.Errorf("failed to write header cell: %w", err)
			}
		}
		rowNum++
	}

	styles := make(map[models.ReviewFlag]int)
	for _, row := range rows {
		for col, value := range row.Cells {
			axis, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, axis, value); err != nil {
				return nil, fmt.Errorf("failed to write cell: %w", err)
			}
		}

		if color, flagged := flagColors[row.Flag]; flagged && len(row.Cells) > 0 {
			styleID, ok := styles[row.Flag]
			if !ok {
				var err error
				styleID, err = f.NewStyle(&excelize.Style{
					Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create fill style: %w", err)
				}
				styles[row.Flag] = styleID
			}

			first, _ := excelize.CoordinatesToCellName(1, rowNum)
			last, _ := excelize.CoordinatesToCellName(len(row.Cells), rowNum)
			if err := f.SetCellStyle(sheet, first, last, styleID); err != nil {
				return nil, fmt.Errorf("failed to apply fill style: %w", err)
			}
		}

		rowNum++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf, nil
}

package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/emorales/contabridge/internal/models"
	"github.com/emorales/contabridge/internal/refdata"
)

// Fixed source layout: the exporter always puts period debits in column G
// and credits in column H.
const (
	debitColumnIndex  = 6
	creditColumnIndex = 7
)

// natureRule picks the nature letter for one account section (the first
// digit of the code or name): deudora when debits exceed credits, acreedora
// when credits exceed debits, the section default when they tie.
type natureRule struct {
	debit   string
	credit  string
	neutral string
}

var natureSections = map[int]natureRule{
	1: {"A", "B", "A"},
	2: {"C", "D", "D"},
	3: {"E", "F", "F"},
	4: {"G", "H", "H"},
	5: {"G", "H", "G"},
	6: {"G", "H", "G"},
	7: {"G", "H", "G"},
	8: {"K", "L", "L"},
}

// CatalogOptions are the tunables of a chart-of-accounts conversion.
type CatalogOptions struct {
	TotalDigits     int
	DefaultSATLevel int
	DefaultNature   string
}

func (o *CatalogOptions) applyDefaults() {
	if o.TotalDigits == 0 {
		o.TotalDigits = 8
	}
	if o.DefaultSATLevel == 0 {
		o.DefaultSATLevel = 2
	}
	if o.DefaultNature == "" {
		o.DefaultNature = "A"
	}
}

// CatalogConverter turns a source chart-of-accounts xlsx into importer
// catalog rows. It holds only immutable reference data, so one instance is
// safe for concurrent requests.
type CatalogConverter struct {
	sat  *refdata.SATTable
	opts CatalogOptions
	now  func() time.Time
}

// NewCatalogConverter creates a catalog converter backed by the SAT
// grouping table.
func NewCatalogConverter(sat *refdata.SATTable, opts CatalogOptions) *CatalogConverter {
	opts.applyDefaults()
	return &CatalogConverter{
		sat:  sat,
		opts: opts,
		now:  time.Now,
	}
}

// ConversionResult is the output buffer of one run plus its report.
type ConversionResult struct {
	Rows   []models.Row
	Report models.Report
}

// Convert reads the uploaded workbook and produces one "C" record per
// account, resolving SAT grouping codes and parent accounts. Per-row
// problems are accumulated in the report; only an unreadable workbook or a
// missing reference table aborts the run.
func (c *CatalogConverter) Convert(r io.Reader) (*ConversionResult, error) {
	if c.sat == nil {
		return nil, fmt.Errorf("SAT grouping table is not loaded")
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("accounts workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("accounts workbook is empty, header row is required")
	}

	codeIdx, nameIdx := findAccountColumns(rows[0])

	result := &ConversionResult{Report: models.Report{Mode: refdata.ModeCatalog}}
	today := c.now().Format("20060102")

	seen := make(map[string]bool)
	parentCodeByIndent := make(map[int]string)
	parentNameByIndent := make(map[int]string)

	for i, row := range rows[1:] {
		rowNum := i + 2 // 1-based, after the header
		result.Report.RowsRead++

		rawCode := sanitizeCode(cellAt(row, codeIdx))
		name := strings.TrimSpace(cellAt(row, nameIdx))

		if rawCode == "" {
			extracted, rest, ok := extractCodeFromName(cellAt(row, nameIdx))
			if !ok {
				continue // heading or blank row, nothing to convert
			}
			rawCode = sanitizeCode(extracted)
			name = rest
		} else if extracted, rest, ok := extractCodeFromName(cellAt(row, nameIdx)); ok && sanitizeCode(extracted) == rawCode {
			// Some exports repeat the row's own code inside the name cell.
			name = rest
		}
		if rawCode == "" {
			continue
		}

		debit := parseAmount(cellAt(row, debitColumnIndex))
		credit := parseAmount(cellAt(row, creditColumnIndex))
		nature := c.natureFor(rawCode, name, debit, credit)

		normalized := normalizeCode(rawCode, c.opts.TotalDigits)
		if seen[normalized] {
			result.Report.AddWarning(normalized, fmt.Sprintf("duplicate account code %s on row %d, keeping the first occurrence", rawCode, rowNum))
			continue
		}
		seen[normalized] = true

		indent := c.indentLevel(f, sheet, nameIdx, rowNum, cellAt(row, nameIdx))

		parentCode := ""
		if indent > 1 {
			parentCode = parentCodeByIndent[indent-1]
		}
		ctaSup := strings.Repeat("0", c.opts.TotalDigits)
		if parentCode != "" {
			ctaSup = normalizeCode(parentCode, c.opts.TotalDigits)
		}

		parentCodeByIndent[indent] = rawCode
		parentNameByIndent[indent] = name
		for k := range parentCodeByIndent {
			if k > indent {
				delete(parentCodeByIndent, k)
				delete(parentNameByIndent, k)
			}
		}

		level, satCode, flag := c.resolveSAT(name, parentNameByIndent[indent-1])
		switch flag {
		case models.FlagReview:
			result.Report.AddWarning(normalized, fmt.Sprintf("account %s (%s) is not in the SAT table, inherited the parent grouping code", rawCode, name))
		case models.FlagMissing:
			result.Report.AddWarning(normalized, fmt.Sprintf("account %s (%s) is not in the SAT table and has no grouping code", rawCode, name))
		}

		result.Rows = append(result.Rows, models.Row{
			Code: normalized,
			Flag: flag,
			Cells: []interface{}{
				RecordAccount, normalized, name, name, ctaSup, nature,
				0, level, 0, today, SystemCode, 1, 0, 0, 0, 0, satCode,
			},
		})
	}

	result.Report.RowsWritten = len(result.Rows)
	return result, nil
}

// natureFor picks the nature letter from the account's section and the
// debit/credit balance columns. Accounts outside sections 1-8 fall back to
// the configured default.
func (c *CatalogConverter) natureFor(code, name string, debit, credit decimal.Decimal) string {
	section := firstSectionDigit(name)
	if section == 0 {
		section = firstSectionDigit(code)
	}
	rule, ok := natureSections[section]
	if !ok {
		return c.opts.DefaultNature
	}
	switch debit.Cmp(credit) {
	case 1:
		return rule.debit
	case -1:
		return rule.credit
	default:
		return rule.neutral
	}
}

// resolveSAT looks the account up in the SAT table. On a miss the parent's
// grouping code is inherited when the parent itself is in the table.
func (c *CatalogConverter) resolveSAT(name, parentName string) (level int, code string, flag models.ReviewFlag) {
	if entry, ok := c.sat.Lookup(name); ok {
		level = entry.Level
		if level == 0 {
			level = c.opts.DefaultSATLevel
		}
		return level, entry.Code, models.FlagNone
	}

	if parentName != "" {
		if parent, ok := c.sat.Lookup(parentName); ok {
			return c.opts.DefaultSATLevel, parent.Code, models.FlagReview
		}
	}
	return c.opts.DefaultSATLevel, "", models.FlagMissing
}

// indentLevel reads the hierarchy level of an account row, preferring the
// cell's style indent and falling back to leading spaces in the name.
func (c *CatalogConverter) indentLevel(f *excelize.File, sheet string, nameIdx, rowNum int, rawName string) int {
	axis, err := excelize.CoordinatesToCellName(nameIdx+1, rowNum)
	if err == nil {
		if styleID, err := f.GetCellStyle(sheet, axis); err == nil {
			if style, err := f.GetStyle(styleID); err == nil && style != nil &&
				style.Alignment != nil && style.Alignment.Indent > 0 {
				return style.Alignment.Indent + 1
			}
		}
	}
	if spaces := leadingIndent(rawName); spaces > 0 {
		return spaces
	}
	return 1
}

// firstSectionDigit returns the leading digit of the text when it is a valid
// section (1-8), zero otherwise.
func firstSectionDigit(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	d := int(text[0] - '0')
	if d < 1 || d > 8 {
		return 0
	}
	return d
}

// findAccountColumns locates the code and name columns by header keywords,
// defaulting to the first two columns like the source export.
func findAccountColumns(header []string) (codeIdx, nameIdx int) {
	codeIdx, nameIdx = -1, -1
	for i, h := range header {
		col := strings.ToLower(strings.TrimSpace(h))
		if codeIdx == -1 && (strings.Contains(col, "cod") || strings.Contains(col, "clave")) {
			codeIdx = i
		}
		if nameIdx == -1 && (strings.Contains(col, "nombre") || strings.Contains(col, "cuenta")) {
			nameIdx = i
		}
	}
	if codeIdx == -1 {
		codeIdx = 0
	}
	if nameIdx == -1 {
		nameIdx = 1
		if len(header) < 2 {
			nameIdx = 0
		}
	}
	return codeIdx, nameIdx
}

func cellAt(row []string, idx int) string {
	if idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return ""
}

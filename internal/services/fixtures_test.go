package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/emorales/contabridge/internal/refdata"
)

// buildXLSX writes rows into an in-memory workbook and returns its bytes.
func buildXLSX(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for r, row := range rows {
		for c, value := range row {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", axis, value))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// testSATTable builds a SAT grouping table from name -> (level, code) triples.
func testSATTable(t *testing.T, entries ...[3]string) *refdata.SATTable {
	t.Helper()

	rows := [][]interface{}{{"Nombre", "Nivel", "Código agrupador"}}
	for _, e := range entries {
		rows = append(rows, []interface{}{e[0], e[1], e[2]})
	}

	table, err := refdata.ParseSATTable(bytes.NewReader(buildXLSX(t, rows)))
	require.NoError(t, err)
	return table
}

// testGroupCatalog parses a group catalog from CSV lines.
func testGroupCatalog(t *testing.T, lines ...string) *refdata.GroupCatalog {
	t.Helper()

	csv := "Inicio de prefijo de código,Nombre\n" + strings.Join(lines, "\n")
	catalog, err := refdata.ParseGroupCatalog(strings.NewReader(csv))
	require.NoError(t, err)
	return catalog
}

package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/emorales/contabridge/internal/config"
	"github.com/emorales/contabridge/internal/refdata"
	"github.com/emorales/contabridge/internal/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:             8080,
		MaxUploadBytes:   10 * 1024 * 1024,
		TotalDigits:      8,
		BalanceTolerance: decimal.RequireFromString("0.01"),
		DefaultSATLevel:  2,
		DefaultNature:    "A",
	}
}

func newTestApp(t *testing.T, sat *refdata.SATTable, groups *refdata.GroupCatalog) *fiber.App {
	t.Helper()

	templates, err := refdata.LoadTemplates("")
	require.NoError(t, err)

	handler := NewConvertHandler(testConfig(), sat, groups, templates)

	app := fiber.New(fiber.Config{ErrorHandler: utils.ErrorHandler})
	app.Post("/v1/convert/catalog", handler.ConvertCatalog)
	app.Post("/v1/convert/policies", handler.ConvertPolicies)
	app.Use(NotFound)
	return app
}

func sheetBytes(t *testing.T, rows [][]interface{}) []byte {
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

func testSAT(t *testing.T) *refdata.SATTable {
	t.Helper()

	table, err := refdata.ParseSATTable(bytes.NewReader(sheetBytes(t, [][]interface{}{
		{"Nombre", "Nivel", "Código agrupador"},
		{"Bancos", "2", "102.01"},
		{"Ventas", "1", "401"},
	})))
	require.NoError(t, err)
	return table
}

func accountsUpload(t *testing.T) []byte {
	t.Helper()
	return sheetBytes(t, [][]interface{}{
		{"Código", "Nombre", "", "", "", "", "Cargos", "Abonos"},
		{"110.01", "Bancos", "", "", "", "", "100", "0"},
	})
}

type formFile struct {
	field string
	name  string
	data  []byte
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestConvertCatalog_Success(t *testing.T) {
	app := newTestApp(t, testSAT(t), nil)

	req := multipartRequest(t, "/v1/convert/catalog", nil,
		formFile{"file", "accounts.xlsx", accountsUpload(t)})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.True(t, strings.HasPrefix(body["filename"].(string), "catalog-"))
	assert.True(t, strings.HasSuffix(body["filename"].(string), ".xlsx"))

	report := body["report"].(map[string]interface{})
	assert.Equal(t, float64(1), report["rows_read"])
	assert.Equal(t, float64(1), report["rows_written"])

	// The returned file is a readable workbook: header row plus the account
	raw, err := base64.StdEncoding.DecodeString(body["file"].(string))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Hoja1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Tipo", rows[0][0])
	assert.Equal(t, "C", rows[1][0])
	assert.Equal(t, "11001000", rows[1][1])
}

func TestConvertCatalog_MissingFile(t *testing.T) {
	app := newTestApp(t, testSAT(t), nil)

	req := multipartRequest(t, "/v1/convert/catalog", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "BAD_REQUEST", body["code"])
}

func TestConvertCatalog_WrongContent(t *testing.T) {
	app := newTestApp(t, testSAT(t), nil)

	req := multipartRequest(t, "/v1/convert/catalog", nil,
		formFile{"file", "accounts.xlsx", []byte("plain,text\n1,2\n")})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvertCatalog_WithoutSATTable(t *testing.T) {
	app := newTestApp(t, nil, nil)

	req := multipartRequest(t, "/v1/convert/catalog", nil,
		formFile{"file", "accounts.xlsx", accountsUpload(t)})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "REFERENCE_DATA", body["code"])
}

func TestConvertCatalog_InvalidDigits(t *testing.T) {
	app := newTestApp(t, testSAT(t), nil)

	req := multipartRequest(t, "/v1/convert/catalog", map[string]string{"digits": "99"},
		formFile{"file", "accounts.xlsx", accountsUpload(t)})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvertCatalog_MergeSkipsDuplicates(t *testing.T) {
	app := newTestApp(t, testSAT(t), nil)

	base := sheetBytes(t, [][]interface{}{
		{"Tipo", "Código", "Nombre"},
		{"C", "11001000", "Bancos"},
	})
	upload := sheetBytes(t, [][]interface{}{
		{"Código", "Nombre", "", "", "", "", "Cargos", "Abonos"},
		{"110.01", "Bancos", "", "", "", "", "0", "0"},
		{"601", "Gastos", "", "", "", "", "0", "0"},
	})

	req := multipartRequest(t, "/v1/convert/catalog", map[string]string{"merge": "true"},
		formFile{"file", "accounts.xlsx", upload},
		formFile{"base", "base.xlsx", base})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	report := body["report"].(map[string]interface{})
	skipped := report["skipped"].([]interface{})
	require.Len(t, skipped, 1)
	assert.Equal(t, "11001000", skipped[0])

	raw, err := base64.StdEncoding.DecodeString(body["file"].(string))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Hoja1")
	require.NoError(t, err)
	// base header, base account, plus the one new account
	require.Len(t, rows, 3)
	assert.Equal(t, "60100000", rows[2][1])
}

func TestConvertCatalog_MergeWithoutBaseFile(t *testing.T) {
	app := newTestApp(t, testSAT(t), nil)

	req := multipartRequest(t, "/v1/convert/catalog", map[string]string{"merge": "true"},
		formFile{"file", "accounts.xlsx", accountsUpload(t)})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

const policiesUpload = `<?xml version="1.0" encoding="UTF-8"?>
<PLZ:Polizas xmlns:PLZ="http://www.sat.gob.mx/esquemas/ContabilidadE/1_3/PolizasPeriodo">
  <PLZ:Poliza NumUnIdenPol="POL-001" Fecha="2024-03-15" Concepto="Cobro factura">
    <PLZ:Transaccion NumCta="110.01" DesCta="Bancos" Concepto="Cobro factura" Debe="150.00" Haber="0"/>
    <PLZ:Transaccion NumCta="401.01" DesCta="Ventas" Concepto="Cobro factura" Debe="0" Haber="150.00"/>
  </PLZ:Poliza>
</PLZ:Polizas>`

const groupsUpload = `Inicio de prefijo de código,Nombre
110,Caja y bancos
401,Ventas e ingresos
`

func TestConvertPolicies_Success(t *testing.T) {
	app := newTestApp(t, nil, nil)

	req := multipartRequest(t, "/v1/convert/policies", nil,
		formFile{"file", "policies.xml", []byte(policiesUpload)},
		formFile{"groups", "groups.csv", []byte(groupsUpload)})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.True(t, strings.HasPrefix(body["filename"].(string), "policies-"))

	report := body["report"].(map[string]interface{})
	assert.Equal(t, float64(1), report["rows_read"])
	assert.Equal(t, float64(3), report["rows_written"]) // P plus two M1

	raw, err := base64.StdEncoding.DecodeString(body["file"].(string))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Hoja1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "P", rows[1][0])
	assert.Equal(t, "M1", rows[2][0])
	assert.Equal(t, "M1", rows[3][0])
}

func TestConvertPolicies_ServerDefaultGroups(t *testing.T) {
	groups, err := refdata.ParseGroupCatalog(strings.NewReader(groupsUpload))
	require.NoError(t, err)
	app := newTestApp(t, nil, groups)

	req := multipartRequest(t, "/v1/convert/policies", nil,
		formFile{"file", "policies.xml", []byte(policiesUpload)})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestConvertPolicies_WithoutGroupCatalog(t *testing.T) {
	app := newTestApp(t, nil, nil)

	req := multipartRequest(t, "/v1/convert/policies", nil,
		formFile{"file", "policies.xml", []byte(policiesUpload)})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "REFERENCE_DATA", body["code"])
}

func TestUnknownRoute_ReturnsNotFound(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/convert/invoices", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "NOT_FOUND", body["code"])
	assert.Contains(t, body["message"], "not found")
}

func TestConvertPolicies_MalformedXML(t *testing.T) {
	app := newTestApp(t, nil, nil)

	req := multipartRequest(t, "/v1/convert/policies", nil,
		formFile{"file", "policies.xml", []byte("<Polizas><Poliza")},
		formFile{"groups", "groups.csv", []byte(groupsUpload)})

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.Equal(t, "INPUT_FORMAT", body["code"])
}

package handlers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/emorales/contabridge/internal/config"
	"github.com/emorales/contabridge/internal/models"
	"github.com/emorales/contabridge/internal/refdata"
	"github.com/emorales/contabridge/internal/services"
	"github.com/emorales/contabridge/internal/utils"
)

// ConvertHandler owns the conversion endpoints. Everything it holds is
// immutable after startup; each request works on its own buffers.
type ConvertHandler struct {
	cfg       *config.Config
	sat       *refdata.SATTable
	groups    *refdata.GroupCatalog // server-side default, may be nil
	templates *refdata.TemplateStore
	validator *services.FileValidator
}

// NewConvertHandler creates the conversion handler. sat and groups may be
// nil when the corresponding reference file is not deployed; the affected
// endpoint then reports a reference-data error.
func NewConvertHandler(cfg *config.Config, sat *refdata.SATTable, groups *refdata.GroupCatalog, templates *refdata.TemplateStore) *ConvertHandler {
	return &ConvertHandler{
		cfg:       cfg,
		sat:       sat,
		groups:    groups,
		templates: templates,
		validator: services.NewFileValidator(cfg.MaxUploadBytes),
	}
}

// ConvertCatalog converts an uploaded chart-of-accounts workbook.
// POST /v1/convert/catalog
// Form: file (xlsx, required), base (xlsx, required when merge=true),
// merge (bool), digits (int, optional override)
func (h *ConvertHandler) ConvertCatalog(c fiber.Ctx) error {
	data, filename, err := readFormFile(c, "file")
	if err != nil {
		return utils.NewBadRequestError("an accounts file is required", err.Error())
	}

	if result := h.validator.ValidateFile(data, filename, "XLSX"); !result.Valid {
		return utils.NewBadRequestError("invalid accounts file", result.Errors)
	}

	if h.sat == nil {
		return utils.NewReferenceDataError("the SAT grouping table is not available")
	}

	digits, err := h.formDigits(c)
	if err != nil {
		return err
	}

	converter := services.NewCatalogConverter(h.sat, services.CatalogOptions{
		TotalDigits:     digits,
		DefaultSATLevel: h.cfg.DefaultSATLevel,
		DefaultNature:   h.cfg.DefaultNature,
	})
	result, err := converter.Convert(bytes.NewReader(data))
	if err != nil {
		return utils.NewInputFormatError("failed to convert accounts file", err.Error())
	}

	tmpl, err := h.templates.Get(refdata.ModeCatalog)
	if err != nil {
		return utils.NewReferenceDataError(err.Error())
	}

	rows := result.Rows
	if isTruthy(c.FormValue("merge")) {
		baseData, baseName, err := readFormFile(c, "base")
		if err != nil {
			return utils.NewBadRequestError("a base catalog file is required for a merge", err.Error())
		}
		if baseResult := h.validator.ValidateFile(baseData, baseName, "XLSX"); !baseResult.Valid {
			return utils.NewBadRequestError("invalid base catalog file", baseResult.Errors)
		}

		rows, err = services.MergeCatalog(bytes.NewReader(baseData), rows, &result.Report)
		if err != nil {
			return utils.NewInputFormatError("failed to merge with the base catalog", err.Error())
		}
		// The base file carries its own header rows.
		tmpl = refdata.Template{Sheet: tmpl.Sheet}
	}

	return h.respond(c, refdata.ModeCatalog, tmpl, rows, result)
}

// ConvertPolicies converts an uploaded policy XML export.
// POST /v1/convert/policies
// Form: file (xml, required), groups (csv, required unless the server has a
// default catalog), digits (int, optional override)
func (h *ConvertHandler) ConvertPolicies(c fiber.Ctx) error {
	data, filename, err := readFormFile(c, "file")
	if err != nil {
		return utils.NewBadRequestError("a policies XML file is required", err.Error())
	}

	if result := h.validator.ValidateFile(data, filename, "XML"); !result.Valid {
		return utils.NewBadRequestError("invalid policies file", result.Errors)
	}

	groups := h.groups
	if groupData, groupName, err := readFormFile(c, "groups"); err == nil {
		if groupResult := h.validator.ValidateFile(groupData, groupName, "CSV"); !groupResult.Valid {
			return utils.NewBadRequestError("invalid group catalog file", groupResult.Errors)
		}
		groups, err = refdata.ParseGroupCatalog(bytes.NewReader(groupData))
		if err != nil {
			return utils.NewBadRequestError("failed to parse the group catalog", err.Error())
		}
	}
	if groups == nil {
		return utils.NewReferenceDataError("an account group catalog is required")
	}

	digits, err := h.formDigits(c)
	if err != nil {
		return err
	}

	converter := services.NewPolicyConverter(groups, services.PolicyOptions{
		TotalDigits:      digits,
		BalanceTolerance: h.cfg.BalanceTolerance,
	})
	result, err := converter.Convert(bytes.NewReader(data))
	if err != nil {
		return utils.NewInputFormatError("failed to convert policies file", err.Error())
	}

	tmpl, err := h.templates.Get(refdata.ModePolicies)
	if err != nil {
		return utils.NewReferenceDataError(err.Error())
	}

	return h.respond(c, refdata.ModePolicies, tmpl, result.Rows, result)
}

// respond builds the output workbook and returns it inline as base64,
// together with the conversion report.
func (h *ConvertHandler) respond(c fiber.Ctx, mode string, tmpl refdata.Template, rows []models.Row, result *services.ConversionResult) error {
	buf, err := services.BuildWorkbook(tmpl, rows)
	if err != nil {
		return utils.NewInternalError(err)
	}

	filename := fmt.Sprintf("%s-%s.xlsx", mode, uuid.New().String()[:8])
	log.Printf("converted %s: %d rows read, %d rows written, %d warnings, %d errors",
		mode, result.Report.RowsRead, result.Report.RowsWritten,
		len(result.Report.Warnings), len(result.Report.Errors))

	return c.JSON(fiber.Map{
		"status":   "ok",
		"filename": filename,
		"file":     base64.StdEncoding.EncodeToString(buf.Bytes()),
		"report":   result.Report,
	})
}

// formDigits reads the optional "digits" override from the form.
func (h *ConvertHandler) formDigits(c fiber.Ctx) (int, error) {
	raw := strings.TrimSpace(c.FormValue("digits"))
	if raw == "" {
		return h.cfg.TotalDigits, nil
	}

	digits, err := strconv.Atoi(raw)
	if err != nil || digits < 1 || digits > 20 {
		return 0, utils.NewBadRequestError("digits must be a number between 1 and 20", raw)
	}
	return digits, nil
}

// readFormFile reads a multipart file field fully into memory.
func readFormFile(c fiber.Ctx, field string) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("missing form file %q", field)
	}

	f, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open uploaded file %q: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read uploaded file %q: %w", field, err)
	}
	return data, header.Filename, nil
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

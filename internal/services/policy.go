package services

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emorales/contabridge/internal/models"
	"github.com/emorales/contabridge/internal/refdata"
)

// Policy types expected by the importer.
const (
	PolicyTypeIncome  = 1 // Ingresos
	PolicyTypeExpense = 2 // Egresos
	PolicyTypeJournal = 3 // Diario
)

// Movement direction flags in the M1 record.
const (
	movementDebit  = 0
	movementCredit = 1
)

// cashPaymentConcept marks entries whose policy concept is replaced by the
// bare reference, and whose movement concepts drop the prefix.
const cashPaymentConcept = "Pago efectivo"

// transitAccountMarker flags pass-through entries that must not be imported.
const transitAccountMarker = "cuenta transitoria"

// PolicyOptions are the tunables of a policy conversion.
type PolicyOptions struct {
	TotalDigits      int
	BalanceTolerance decimal.Decimal
}

func (o *PolicyOptions) applyDefaults() {
	if o.TotalDigits == 0 {
		o.TotalDigits = 8
	}
	if o.BalanceTolerance.IsZero() {
		o.BalanceTolerance = decimal.RequireFromString("0.01")
	}
}

// PolicyConverter flattens a policy XML export into importer rows. Holds
// only immutable reference data; safe for concurrent requests.
type PolicyConverter struct {
	groups *refdata.GroupCatalog
	opts   PolicyOptions
}

// NewPolicyConverter creates a policy converter backed by the account group
// catalog used for policy-type classification.
func NewPolicyConverter(groups *refdata.GroupCatalog, opts PolicyOptions) *PolicyConverter {
	opts.applyDefaults()
	return &PolicyConverter{groups: groups, opts: opts}
}

// Convert parses the XML export and emits one P row per policy followed by
// its M1 movements and AM/AD voucher rows. Unbalanced policies are excluded
// with an error in the report; everything else keeps going.
func (p *PolicyConverter) Convert(r io.Reader) (*ConversionResult, error) {
	if p.groups == nil {
		return nil, fmt.Errorf("account group catalog is not loaded")
	}

	policies, err := ParsePolicies(r)
	if err != nil {
		return nil, err
	}

	result := &ConversionResult{Report: models.Report{Mode: refdata.ModePolicies}}
	folio := 1

	for _, pol := range policies {
		result.Report.RowsRead++

		ref := pol.Reference
		if ref == "" {
			ref = pol.Concept
		}

		if hasTransitAccount(pol) {
			result.Report.AddWarning(ref, "transit account policy skipped")
			continue
		}

		debits := pol.DebitTotal()
		credits := pol.CreditTotal()
		if debits.Sub(credits).Abs().Cmp(p.opts.BalanceTolerance) > 0 {
			result.Report.AddError(ref, fmt.Sprintf(
				"unbalanced policy: debits %s vs credits %s", debits.StringFixed(2), credits.StringFixed(2)))
			continue
		}

		result.Rows = append(result.Rows, p.headerRow(pol, folio))

		var voucherUUIDs []string
		for _, line := range pol.Lines {
			if _, known := p.groups.RolesFor(line.AccountCode); !known {
				result.Report.AddWarning(ref, fmt.Sprintf(
					"account %s is not in the group catalog", line.AccountCode))
			}
			result.Rows = append(result.Rows, p.movementRow(line, ref))
			for _, id := range line.VoucherUUIDs {
				result.Rows = append(result.Rows, voucherRow(RecordVoucher, id))
				voucherUUIDs = append(voucherUUIDs, id)
			}
		}
		for _, id := range voucherUUIDs {
			result.Rows = append(result.Rows, voucherRow(RecordAssociation, id))
		}

		folio++
	}

	result.Report.RowsWritten = len(result.Rows)
	return result, nil
}

// classify decides the policy type from the roles of the accounts it moves.
func (p *PolicyConverter) classify(pol models.Policy) int {
	var hasBank, hasCustomer, hasSupplier, hasIncome, hasExpense bool
	for _, line := range pol.Lines {
		roles, _ := p.groups.RolesFor(line.AccountCode)
		hasBank = hasBank || roles.Has(refdata.RoleBank)
		hasCustomer = hasCustomer || roles.Has(refdata.RoleCustomer)
		hasSupplier = hasSupplier || roles.Has(refdata.RoleSupplier)
		hasIncome = hasIncome || roles.Has(refdata.RoleIncome)
		hasExpense = hasExpense || roles.Has(refdata.RoleExpense)
	}

	if hasBank && (hasCustomer || hasIncome) {
		return PolicyTypeIncome
	}
	if hasBank && (hasSupplier || hasExpense) {
		return PolicyTypeExpense
	}
	return PolicyTypeJournal
}

func (p *PolicyConverter) headerRow(pol models.Policy, folio int) models.Row {
	concept := fmt.Sprintf("%s - %s", pol.Concept, pol.Reference)
	if strings.TrimSpace(pol.Concept) == cashPaymentConcept {
		concept = pol.Reference
	}

	return models.Row{Cells: []interface{}{
		RecordPolicy, formatPolicyDate(pol.Date), p.classify(pol), folio,
		1, 0, concept, SystemCode, 0, 0, "",
	}}
}

func (p *PolicyConverter) movementRow(line models.PolicyLine, ref string) models.Row {
	direction := movementDebit
	amount := line.Debit
	if !line.Credit.IsZero() {
		direction = movementCredit
		amount = line.Credit
	}

	concept := strings.Replace(line.Concept, cashPaymentConcept+" - ", "", 1)

	return models.Row{Cells: []interface{}{
		RecordMovement,
		normalizeCode(line.AccountCode, p.opts.TotalDigits),
		truncateReference(ref),
		direction,
		amount.Abs().Round(2).InexactFloat64(),
		0, 0, concept, "", "", "",
	}}
}

func voucherRow(record, uuid string) models.Row {
	return models.Row{Cells: []interface{}{
		record, uuid, "", "", "", "", "", "", "", "", "",
	}}
}

func hasTransitAccount(pol models.Policy) bool {
	for _, line := range pol.Lines {
		if strings.Contains(strings.ToLower(line.Concept), transitAccountMarker) ||
			strings.Contains(strings.ToLower(line.AccountDesc), transitAccountMarker) {
			return true
		}
	}
	return false
}

// formatPolicyDate renders the exported date as YYYYMMDD. Dates that do not
// parse are passed through with separators stripped.
func formatPolicyDate(date string) string {
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(date)); err == nil {
		return t.Format("20060102")
	}
	replacer := strings.NewReplacer("-", "", "/", "")
	return replacer.Replace(date)
}

// ParsePolicies walks the XML export token by token. Element names are
// matched by suffix because the exporter namespaces its tags.
func ParsePolicies(r io.Reader) ([]models.Policy, error) {
	dec := xml.NewDecoder(r)

	var policies []models.Policy
	var current *models.Policy
	var line *models.PolicyLine

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed policy XML: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(el.Name.Local)
			switch {
			case strings.HasSuffix(name, "poliza"):
				current = &models.Policy{
					Date:      attrValue(el, "Fecha"),
					Concept:   attrValue(el, "Concepto"),
					Reference: attrValue(el, "NumUnIdenPol"),
				}
			case strings.HasSuffix(name, "transaccion") && current != nil:
				line = &models.PolicyLine{
					Concept:     attrValue(el, "Concepto"),
					AccountDesc: attrValue(el, "DesCta"),
					AccountCode: attrValue(el, "NumCta"),
					Debit:       parseAmount(attrValue(el, "Debe")),
					Credit:      parseAmount(attrValue(el, "Haber")),
				}
			case strings.HasSuffix(name, "compnal") && line != nil:
				if id := voucherUUID(el); id != "" {
					line.VoucherUUIDs = append(line.VoucherUUIDs, id)
				}
			}
		case xml.EndElement:
			name := strings.ToLower(el.Name.Local)
			switch {
			case strings.HasSuffix(name, "transaccion"):
				if current != nil && line != nil {
					current.Lines = append(current.Lines, *line)
				}
				line = nil
			case strings.HasSuffix(name, "poliza"):
				if current != nil {
					policies = append(policies, *current)
				}
				current = nil
			}
		}
	}

	if len(policies) == 0 {
		return nil, fmt.Errorf("no policy elements found in the XML export")
	}
	return policies, nil
}

// attrValue reads an attribute by case-insensitive local name.
func attrValue(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value
		}
	}
	return ""
}

// voucherUUID extracts the CFDI UUID from a CompNal element, tolerating the
// attribute-name drift seen across exporter versions.
func voucherUUID(el xml.StartElement) string {
	for _, name := range []string{"UUID_CFDI", "UUID"} {
		if v := attrValue(el, name); v != "" {
			return v
		}
	}
	return ""
}

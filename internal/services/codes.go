package services

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Record type markers used by the importer's flat file layout.
const (
	RecordAccount      = "C"  // catalog account
	RecordPolicy       = "P"  // policy header
	RecordMovement     = "M1" // debit/credit movement
	RecordVoucher      = "AM" // CFDI UUID attached to a movement
	RecordAssociation  = "AD" // CFDI UUID association at policy level
	SystemCode         = 11   // originating system identifier
	maxReferenceLength = 30
)

var (
	nonDigitRe      = regexp.MustCompile(`[^0-9]`)
	nonCodeCharRe   = regexp.MustCompile(`[^0-9.]`)
	trailingZeroRe  = regexp.MustCompile(`(?:\.0)+$`)
	codeFromNameRe  = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)*)\s+(.+)$`)
	whitespacePadRe = regexp.MustCompile(`^\s+`)
)

// sanitizeCode keeps digits and dots and drops spreadsheet artifacts like a
// trailing ".0" left by numeric cells.
func sanitizeCode(s string) string {
	s = nonCodeCharRe.ReplaceAllString(strings.TrimSpace(s), "")
	return trailingZeroRe.ReplaceAllString(s, "")
}

// normalizeCode strips separators and right-pads the code with zeros to the
// configured width. An empty code becomes all zeros (the root account).
func normalizeCode(raw string, totalDigits int) string {
	clean := nonDigitRe.ReplaceAllString(raw, "")
	if clean == "" {
		return strings.Repeat("0", totalDigits)
	}
	if len(clean) < totalDigits {
		clean += strings.Repeat("0", totalDigits-len(clean))
	}
	return clean
}

// extractCodeFromName splits a "110.01 Bancos" style name cell into its code
// and the bare name. Returns ok=false when the cell has no leading code.
func extractCodeFromName(name string) (code, rest string, ok bool) {
	m := codeFromNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", strings.TrimSpace(name), false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

// truncateReference caps a policy reference at the importer's field width
// without splitting a multibyte character.
func truncateReference(ref string) string {
	runes := []rune(ref)
	if len(runes) <= maxReferenceLength {
		return ref
	}
	return string(runes[:maxReferenceLength])
}

// parseAmount converts an exported amount string to a decimal. Empty or
// malformed values count as zero, matching the exporter's blanks.
func parseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// leadingIndent estimates a hierarchy level from leading spaces when the
// cell carries no style indent (two spaces per level).
func leadingIndent(s string) int {
	pad := whitespacePadRe.FindString(s)
	if pad == "" {
		return 0
	}
	level := len(pad) / 2
	if level < 1 {
		level = 1
	}
	return level
}

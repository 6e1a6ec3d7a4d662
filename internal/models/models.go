package models

import (
	"github.com/shopspring/decimal"
)

// ReviewFlag marks an output row that needs attention in the generated file.
type ReviewFlag int

const (
	// FlagNone means the row converted cleanly.
	FlagNone ReviewFlag = iota
	// FlagReview means the account was resolved through its parent's SAT
	// grouping code and should be checked manually (yellow fill).
	FlagReview
	// FlagMissing means the account has no SAT grouping code at all (red fill).
	FlagMissing
	// FlagNew marks a row appended during a catalog merge (green fill).
	FlagNew
)

// Row is one output record headed for the xlsx buffer.
// Code is the normalized account code for "C" records, used by the merge
// step to detect duplicates; it is empty for non-catalog rows.
type Row struct {
	Cells []interface{}
	Flag  ReviewFlag
	Code  string
}

// AccountRecord is one parsed row of a source chart-of-accounts listing.
type AccountRecord struct {
	Code   string // raw code, digits and dots
	Name   string
	Indent int // 1-based hierarchy level
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Policy is one journal entry from the source XML export.
type Policy struct {
	Date      string // as exported, normally YYYY-MM-DD
	Concept   string
	Reference string // NumUnIdenPol
	Lines     []PolicyLine
}

// PolicyLine is one debit/credit movement inside a policy.
type PolicyLine struct {
	Concept     string
	AccountDesc string
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	// VoucherUUIDs are CFDI UUIDs attached to the movement (CompNal).
	VoucherUUIDs []string
}

// DebitTotal sums the debit side of the policy.
func (p *Policy) DebitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// CreditTotal sums the credit side of the policy.
func (p *Policy) CreditTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// Issue is one non-fatal problem found during a conversion.
type Issue struct {
	Ref     string `json:"ref,omitempty"` // account code or policy reference
	Message string `json:"message"`
}

// Report accumulates everything a run wants to tell the user alongside the
// output file. Fatal problems are returned as errors instead and never end
// up here.
type Report struct {
	Mode        string   `json:"mode"`
	RowsRead    int      `json:"rows_read"`
	RowsWritten int      `json:"rows_written"`
	Skipped     []string `json:"skipped,omitempty"` // duplicate codes dropped by merge
	Warnings    []Issue  `json:"warnings,omitempty"`
	Errors      []Issue  `json:"errors,omitempty"`
}

// AddWarning records a non-fatal, per-record problem.
func (r *Report) AddWarning(ref, message string) {
	r.Warnings = append(r.Warnings, Issue{Ref: ref, Message: message})
}

// AddError records a per-record error (the record was excluded from output).
func (r *Report) AddError(ref, message string) {
	r.Errors = append(r.Errors, Issue{Ref: ref, Message: message})
}

// HasErrors reports whether any record-level errors were collected.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

package refdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Account roles inferred from the group catalog. A policy's type (Ingresos,
// Egresos, Diario) is decided from the roles of the accounts it touches.
const (
	RoleBank     = "bank"
	RoleCustomer = "customer"
	RoleSupplier = "supplier"
	RoleIncome   = "income"
	RoleExpense  = "expense"
)

// RoleSet is the set of roles a single account carries.
type RoleSet map[string]bool

// Has reports whether the set contains the given role.
func (s RoleSet) Has(role string) bool { return s[role] }

// Group is one row of the account group catalog: a numeric code prefix and
// the roles inferred from the group's name.
type Group struct {
	Prefix string
	Name   string
	Roles  RoleSet
}

// GroupCatalog resolves account codes to roles by longest-prefix match.
// Loaded once per conversion and never mutated.
type GroupCatalog struct {
	groups []Group // sorted by prefix length, longest first
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// LoadGroupCatalog reads the account group catalog from a CSV file on disk.
func LoadGroupCatalog(path string) (*GroupCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open group catalog: %w", err)
	}
	defer f.Close()
	return ParseGroupCatalog(f)
}

// ParseGroupCatalog reads the group catalog from a CSV stream. The header
// must carry the exporter's fixed columns "Inicio de prefijo de código" and
// "Nombre"; their absence is a reference-data error.
func ParseGroupCatalog(r io.Reader) (*GroupCatalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read group catalog header: %w", err)
	}

	prefixIdx, nameIdx := -1, -1
	for i, h := range header {
		col := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(col, "inicio"):
			prefixIdx = i
		case strings.Contains(col, "nombre"):
			nameIdx = i
		}
	}
	if prefixIdx == -1 || nameIdx == -1 {
		return nil, fmt.Errorf("group catalog is missing the \"Inicio de prefijo de código\" or \"Nombre\" column")
	}

	catalog := &GroupCatalog{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read group catalog row: %w", err)
		}

		prefix := nonDigits.ReplaceAllString(cellAt(row, prefixIdx), "")
		if prefix == "" {
			continue
		}
		name := strings.TrimSpace(cellAt(row, nameIdx))
		catalog.groups = append(catalog.groups, Group{
			Prefix: prefix,
			Name:   name,
			Roles:  inferRoles(prefix, name),
		})
	}

	// Longest prefix must win when matching.
	sort.SliceStable(catalog.groups, func(i, j int) bool {
		return len(catalog.groups[i].Prefix) > len(catalog.groups[j].Prefix)
	})

	return catalog, nil
}

// inferRoles derives the accounting roles of a group from its name keywords
// and the first digit of its code prefix.
func inferRoles(prefix, name string) RoleSet {
	roles := RoleSet{}
	lower := strings.ToLower(name)
	firstDigit := ""
	if prefix != "" {
		firstDigit = prefix[:1]
	}

	if strings.Contains(lower, "banco") || strings.Contains(lower, "caja") {
		roles[RoleBank] = true
	}
	if strings.Contains(lower, "clientes") {
		roles[RoleCustomer] = true
	}
	if strings.Contains(lower, "proveedores") || strings.Contains(lower, "acreedores") {
		roles[RoleSupplier] = true
	}
	if firstDigit == "4" || strings.Contains(lower, "ingresos") {
		roles[RoleIncome] = true
	}
	if firstDigit == "5" || firstDigit == "6" || firstDigit == "7" {
		roles[RoleExpense] = true
	}
	if strings.Contains(lower, "gastos") || strings.Contains(lower, "costo") {
		roles[RoleExpense] = true
	}

	return roles
}

// RolesFor resolves an account code to its roles. Codes matching no catalog
// prefix fall back to the first-digit convention (4 = income, 5/6/7 =
// expense). The second return value reports whether the code matched a
// catalog prefix or the fallback at all; a matched group may still carry an
// empty role set.
func (c *GroupCatalog) RolesFor(code string) (RoleSet, bool) {
	clean := nonDigits.ReplaceAllString(code, "")
	if clean == "" {
		return RoleSet{}, false
	}

	for _, g := range c.groups {
		if strings.HasPrefix(clean, g.Prefix) {
			roles := RoleSet{}
			for r := range g.Roles {
				roles[r] = true
			}
			return roles, true
		}
	}

	fallback := RoleSet{}
	switch clean[:1] {
	case "4":
		fallback[RoleIncome] = true
	case "5", "6", "7":
		fallback[RoleExpense] = true
	default:
		return fallback, false
	}
	return fallback, true
}

// Len reports the number of groups loaded.
func (c *GroupCatalog) Len() int {
	return len(c.groups)
}

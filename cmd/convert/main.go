package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emorales/contabridge/internal/models"
	"github.com/emorales/contabridge/internal/refdata"
	"github.com/emorales/contabridge/internal/services"

	"github.com/shopspring/decimal"
)

var (
	flagDigits    int
	flagSATTable  string
	flagBase      string
	flagMerge     bool
	flagTolerance string
)

func main() {
	root := &cobra.Command{
		Use:   "contabridge-convert",
		Short: "Convert accounting exports into CONTPAQi import spreadsheets",
	}

	catalogCmd := &cobra.Command{
		Use:   "catalog <accounts.xlsx> <output.xlsx>",
		Short: "Convert a chart-of-accounts export",
		Args:  cobra.ExactArgs(2),
		RunE:  runCatalog,
	}
	catalogCmd.Flags().StringVar(&flagSATTable, "sat", "refdata/sat.xlsx", "path to the SAT grouping table")
	catalogCmd.Flags().StringVar(&flagBase, "base", "", "base catalog to merge new accounts into")
	catalogCmd.Flags().BoolVar(&flagMerge, "merge", false, "merge into the base catalog instead of writing a fresh file")
	catalogCmd.Flags().IntVar(&flagDigits, "digits", 8, "width account codes are zero-padded to")

	policiesCmd := &cobra.Command{
		Use:   "policies <policies.xml> <groups.csv> <output.xlsx>",
		Short: "Convert a journal-entry XML export",
		Args:  cobra.ExactArgs(3),
		RunE:  runPolicies,
	}
	policiesCmd.Flags().IntVar(&flagDigits, "digits", 8, "width account codes are zero-padded to")
	policiesCmd.Flags().StringVar(&flagTolerance, "tolerance", "0.01", "maximum debit/credit difference for a balanced policy")

	mergeCmd := &cobra.Command{
		Use:   "merge <base.xlsx> <extra.xlsx> <output.xlsx>",
		Short: "Merge two converted catalogs, base wins on duplicate codes",
		Args:  cobra.ExactArgs(3),
		RunE:  runMerge,
	}

	root.AddCommand(catalogCmd, policiesCmd, mergeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCatalog(cmd *cobra.Command, args []string) error {
	sat, err := refdata.LoadSATTable(flagSATTable)
	if err != nil {
		return fmt.Errorf("loading SAT table: %w", err)
	}

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	converter := services.NewCatalogConverter(sat, services.CatalogOptions{TotalDigits: flagDigits})
	result, err := converter.Convert(in)
	if err != nil {
		return err
	}

	templates, err := refdata.LoadTemplates("")
	if err != nil {
		return err
	}
	tmpl, err := templates.Get(refdata.ModeCatalog)
	if err != nil {
		return err
	}

	rows := result.Rows
	if flagMerge || flagBase != "" {
		if flagBase == "" {
			return fmt.Errorf("--merge requires --base")
		}
		base, err := os.Open(flagBase)
		if err != nil {
			return err
		}
		defer base.Close()

		rows, err = services.MergeCatalog(base, rows, &result.Report)
		if err != nil {
			return err
		}
		tmpl = refdata.Template{Sheet: tmpl.Sheet}
	}

	if err := writeWorkbook(tmpl, rows, args[1]); err != nil {
		return err
	}
	printReport(cmd, &result.Report)
	return nil
}

func runPolicies(cmd *cobra.Command, args []string) error {
	groups, err := refdata.LoadGroupCatalog(args[1])
	if err != nil {
		return fmt.Errorf("loading group catalog: %w", err)
	}

	tolerance, err := decimal.NewFromString(flagTolerance)
	if err != nil {
		return fmt.Errorf("invalid --tolerance: %w", err)
	}

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	converter := services.NewPolicyConverter(groups, services.PolicyOptions{
		TotalDigits:      flagDigits,
		BalanceTolerance: tolerance,
	})
	result, err := converter.Convert(in)
	if err != nil {
		return err
	}

	templates, err := refdata.LoadTemplates("")
	if err != nil {
		return err
	}
	tmpl, err := templates.Get(refdata.ModePolicies)
	if err != nil {
		return err
	}

	if err := writeWorkbook(tmpl, result.Rows, args[2]); err != nil {
		return err
	}
	printReport(cmd, &result.Report)
	return nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	extra, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer extra.Close()

	incoming, _, err := services.ReadCatalogRows(extra)
	if err != nil {
		return err
	}

	base, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer base.Close()

	report := models.Report{Mode: refdata.ModeCatalog}
	rows, err := services.MergeCatalog(base, incoming, &report)
	if err != nil {
		return err
	}

	if err := writeWorkbook(refdata.Template{Sheet: "Hoja1"}, rows, args[2]); err != nil {
		return err
	}
	printReport(cmd, &report)
	return nil
}

func writeWorkbook(tmpl refdata.Template, rows []models.Row, path string) error {
	buf, err := services.BuildWorkbook(tmpl, rows)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func printReport(cmd *cobra.Command, report *models.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rows read: %d, rows written: %d\n", report.RowsRead, report.RowsWritten)
	for _, s := range report.Skipped {
		fmt.Fprintf(out, "skipped (already in base): %s\n", s)
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "warning [%s]: %s\n", w.Ref, w.Message)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(out, "error [%s]: %s\n", e.Ref, e.Message)
	}
}

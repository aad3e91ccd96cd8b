package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"welfare-server-go/models"
	"welfare-server-go/service"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import households from an xlsx workbook",
	Long: `Reads the first sheet of FILE. The first row names the columns; only
"name" is required. Rows that fail validation are listed and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	exportFormat string
	exportOut    string
	exportNote   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every household as xlsx or pdf",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var classifyInput models.HouseholdInput

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Print the classification and score breakdown for one household",
	Args:  cobra.NoArgs,
	RunE:  runClassify,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "xlsx", "output format: xlsx or pdf")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default laporan_kemiskinan_<date>.<format>)")
	exportCmd.Flags().StringVar(&exportNote, "note", "", "note printed on the report")

	f := classifyCmd.Flags()
	f.Float64Var(&classifyInput.MonthlyIncome, "income", 0, "monthly income in Rupiah")
	f.StringVar(&classifyInput.Education, "education", models.DefaultEducation, "education level")
	f.IntVar(&classifyInput.NumChildren, "children", 0, "number of children")
	f.StringVar(&classifyInput.Occupation, "occupation", models.DefaultOccupation, "occupation")
}

func runImport(cmd *cobra.Command, args []string) error {
	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	store, households, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := households.Import(cmd.Context(), file)
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "inserted %d, failed %d\n", res.Inserted, len(res.Failed))
	for _, f := range res.Failed {
		fmt.Fprintf(out, "  row %d: %s\n", f.Row, f.Reason)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "xlsx" && exportFormat != "pdf" {
		return fmt.Errorf("unknown format %q, want xlsx or pdf", exportFormat)
	}
	out := exportOut
	if out == "" {
		out = service.ExportFileName(time.Now(), exportFormat)
	}

	store, households, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(out)
	if err != nil {
		return err
	}

	if exportFormat == "pdf" {
		err = households.ExportPDF(cmd.Context(), file, exportNote)
	} else {
		err = households.ExportExcel(cmd.Context(), file, exportNote)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Join(fmt.Errorf("export %s: %w", out, err), os.Remove(out))
	}

	logger.Info("export written", zap.String("file", out), zap.String("format", exportFormat))
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	in := classifyInput
	in.Name = "-"

	// classification needs no storage
	res, err := service.NewHouseholds(nil, nil, logger).Preview(in)
	if err != nil {
		return errors.New(models.ValidationMessage(err))
	}

	s := res.Score
	fmt.Fprintf(cmd.OutOrStdout(), "%s (score %d: income %d, education %d, children %d, occupation %d)\n",
		res.Classification, s.Total, s.Income, s.Education, s.Children, s.Occupation)
	return nil
}

// Command importctl runs bulk upload maintenance tasks outside the HTTP service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"bulk-upload-service/internal/config"
	"bulk-upload-service/internal/ingest"
	"bulk-upload-service/internal/jobs"
	"bulk-upload-service/internal/models"
	"bulk-upload-service/internal/repository"
	"bulk-upload-service/internal/seeders"
	"bulk-upload-service/internal/services"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "importctl",
		Short:         "Bulk upload maintenance and offline inspection",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	logger := func() *logrus.Logger {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.WarnLevel)
		if verbose {
			l.SetLevel(logrus.DebugLevel)
		}
		return l
	}

	root.AddCommand(newSweepCmd(logger), newSeedCmd(logger), newInspectCmd(logger))
	return root
}

func newSweepCmd(logger func() *logrus.Logger) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete staging data of finished uploads past the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("days") {
				cfg.RetentionDays = days
			}
			if cfg.RetentionDays < 1 {
				return fmt.Errorf("retention must be at least one day, got %d", cfg.RetentionDays)
			}

			db, err := config.InitDB(cfg)
			if err != nil {
				return err
			}

			job := jobs.NewRetentionJob(repository.NewBulkUploadRepository(db), cfg.RetentionPeriod(), cfg.RetentionInterval, logger())
			result, err := job.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d rows and %d batches finished before %s\n",
				result.RowsDeleted, result.BatchesDeleted, result.Cutoff.Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default: RETENTION_DAYS)")
	return cmd
}

func newSeedCmd(logger func() *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-rules",
		Short: "Create or refresh the built-in category spec rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := config.InitDB(config.Load())
			if err != nil {
				return err
			}
			n, err := seeders.SeedDefaultSpecRules(cmd.Context(), repository.NewSpecRuleRepository(db), logger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d spec rules\n", n)
			return nil
		},
	}
}

// inspection is the offline outcome of one row
type inspection struct {
	Row          int                  `json:"row"`
	OK           bool                 `json:"ok"`
	Template     models.TemplateType  `json:"template"`
	Name         string               `json:"name,omitempty"`
	DisplayPrice string               `json:"displayPrice,omitempty"`
	TargetStatus models.ListingStatus `json:"targetStatus,omitempty"`
	Missing      []string             `json:"missingSpecs,omitempty"`
	Errors       []models.RowError    `json:"errors,omitempty"`
}

func newInspectCmd(logger func() *logrus.Logger) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Parse a CSV or XLSX upload and report what each row would become",
		Long: "Parses the file and checks every row against the built-in spec rules. " +
			"Shop duplicates and catalog matches need the database and are not checked.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := inspectFile(cmd.Context(), args[0], logger())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return printInspection(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func inspectFile(ctx context.Context, path string, logger *logrus.Logger) ([]inspection, error) {
	format, err := ingest.DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ingest.Read(f, format)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, services.ErrEmptyUpload
	}

	validator := services.NewSpecValidator(services.NewSpecRuleBook(nil, 0, logger), logger)

	results := make([]inspection, 0, len(rows))
	prev := 0
	for _, raw := range rows {
		rowNumber, raw := raw.SplitSourceRow()
		if rowNumber <= prev {
			rowNumber = prev + 1
		}
		prev = rowNumber
		parsed, rowErrors := services.ParseRow(rowNumber, raw)
		if len(rowErrors) > 0 {
			results = append(results, inspection{
				Row:      rowNumber,
				Template: services.TemplateOf(services.ClassifyRow(raw)),
				Errors:   rowErrors,
			})
			continue
		}

		spec := validator.Validate(ctx, parsed.Category, parsed.Attributes)
		results = append(results, inspection{
			Row:          rowNumber,
			OK:           true,
			Template:     parsed.TemplateType,
			Name:         parsed.Name,
			DisplayPrice: parsed.DisplayPrice.String(),
			TargetStatus: spec.TargetStatus,
			Missing:      spec.Missing,
			Errors:       spec.Errors,
		})
	}
	return results, nil
}

func printInspection(out io.Writer, results []inspection) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tRESULT\tTEMPLATE\tNAME\tDISPLAY PRICE\tSTATUS\tDETAILS")

	invalid := 0
	for _, r := range results {
		result := "ok"
		if !r.OK {
			result = "invalid"
			invalid++
		}
		details := make([]string, 0, len(r.Errors)+1)
		if len(r.Missing) > 0 {
			details = append(details, "missing "+strings.Join(r.Missing, ", "))
		}
		for _, e := range r.Errors {
			details = append(details, e.Message)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Row, result, r.Template, r.Name, r.DisplayPrice, r.TargetStatus, strings.Join(details, "; "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d rows, %d invalid\n", len(results), invalid)
	return err
}

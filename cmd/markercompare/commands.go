package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"markercompare/internal/adapters/httpapi"
	"markercompare/internal/report"
	"markercompare/pkg/domain"
)

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "markercompare",
		Short:         "Store marker reports and compare samples for blood relation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flags.storage, "storage", "", "storage driver override (memory|sqlite|postgres)")

	root.AddCommand(
		newServeCmd(flags),
		newIngestCmd(flags),
		newCompareCmd(flags),
		newTablesCmd(flags),
		newImportXLSCmd(flags),
		newExportCmd(flags),
	)
	return root
}

// withApp opens the services, runs fn and closes them.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, flags)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.HTTP.Addr
				}
				srv := httpapi.New(httpapi.Options{
					Comparer:       a.engine,
					Ingester:       a.ingestor,
					Cases:          a.repo,
					Logger:         a.log.Named("http"),
					Metrics:        a.metrics.Handler(),
					MaxUploadBytes: a.cfg.HTTP.MaxUploadMB << 20,
				})
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return srv.ListenAndServe(ctx, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newIngestCmd(flags *globalFlags) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Ingest every .txt report below a date folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				bucket := date
				if bucket == "" {
					bucket = filepath.Base(filepath.Clean(args[0]))
				}
				batch, err := a.ingestor.IngestDir(ctx, bucket, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "batch %s: %d case(s) into %s\n", batch.ID, len(batch.Cases), batch.Bucket)
				for _, c := range batch.Cases {
					fmt.Fprintf(out, "  %s %v\n", c.BaseCode, c.Codes())
				}
				for _, p := range batch.Skipped {
					fmt.Fprintf(out, "  skipped %s\n", p)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date bucket (default: directory name)")
	return cmd
}

type outputFlags struct {
	json bool
	csv  bool
}

func newCompareCmd(flags *globalFlags) *cobra.Command {
	out := &outputFlags{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare stored samples",
	}
	cmd.PersistentFlags().BoolVar(&out.json, "json", false, "print results as JSON")
	cmd.PersistentFlags().BoolVar(&out.csv, "csv", false, "print results as CSV")

	run := func(strategy func(ctx context.Context, a *app, args []string) ([]domain.ComparisonResult, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				results, err := strategy(ctx, a, args)
				if err != nil {
					return err
				}
				return printResults(cmd.OutOrStdout(), results, out)
			})
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "family <baseCode>",
			Short: "Compare the reference sample of a case with the rest of the case",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, a *app, args []string) ([]domain.ComparisonResult, error) {
				return a.engine.CompareFamily(ctx, domain.BaseCode(args[0]))
			}),
		},
		&cobra.Command{
			Use:   "same-day <sampleCode>",
			Short: "Compare a sample with every sample of other cases",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, a *app, args []string) ([]domain.ComparisonResult, error) {
				return a.engine.CompareSameDay(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "all <sampleCode>",
			Short: "Compare a sample with every other stored sample",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, a *app, args []string) ([]domain.ComparisonResult, error) {
				return a.engine.CompareAllDatabase(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "two <sampleCode> <sampleCode>",
			Short: "Compare two samples",
			Args:  cobra.ExactArgs(2),
			RunE: run(func(ctx context.Context, a *app, args []string) ([]domain.ComparisonResult, error) {
				return a.engine.CompareSamples(ctx, args[0], args[1])
			}),
		},
	)
	return cmd
}

func printResults(w io.Writer, results []domain.ComparisonResult, out *outputFlags) error {
	switch {
	case out.json:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case out.csv:
		return report.WriteCSV(w, results)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SAMPLE\tOTHER\tMATCHES\tMISMATCHES\tCONCLUSION")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%s\n", r.Sample1.Code, r.Sample2.Code, len(r.Matches), r.Mismatches, r.Conclusion)
	}
	return tw.Flush()
}

func newTablesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List date tables and their cases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				tables, err := a.repo.Tables(ctx)
				if err != nil {
					return err
				}
				for _, t := range tables {
					cases, err := a.repo.TableCases(ctx, t)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d case(s)\n", t, len(cases))
				}
				return nil
			})
		},
	}
}

func newImportXLSCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import-xls <file>",
		Short: "Import the worksheets of a legacy .xls or .xlsx workbook as tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				sum, err := a.importer.ImportFile(ctx, args[0])
				if err != nil {
					return err
				}
				for name, rows := range sum.Imported {
					fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d rows)\n", name, rows)
				}
				for _, name := range sum.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "skipped %s (table exists)\n", name)
				}
				return nil
			})
		},
	}
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <family|same-day|all|two> <code> [code2]",
		Short: "Run a comparison and write the results as CSV",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				var (
					results []domain.ComparisonResult
					err     error
				)
				switch args[0] {
				case "family":
					results, err = a.engine.CompareFamily(ctx, domain.BaseCode(args[1]))
				case "same-day":
					results, err = a.engine.CompareSameDay(ctx, args[1])
				case "all":
					results, err = a.engine.CompareAllDatabase(ctx, args[1])
				case "two":
					if len(args) != 3 {
						return fmt.Errorf("two needs two sample codes")
					}
					results, err = a.engine.CompareSamples(ctx, args[1], args[2])
				default:
					return fmt.Errorf("unknown comparison %q", args[0])
				}
				if err != nil {
					return err
				}
				return writeExport(cmd.OutOrStdout(), output, results)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "out", "o", "", "output file (default stdout)")
	return cmd
}

// createOutput opens export targets; tests swap it.
var createOutput = func(path string) (io.WriteCloser, error) { return os.Create(path) }

// writeExport writes results as CSV to stdout, or to output when it names a
// file. A failed close of the file is reported.
func writeExport(stdout io.Writer, output string, results []domain.ComparisonResult) (err error) {
	if output == "" || output == "-" {
		return report.WriteCSV(stdout, results)
	}
	f, err := createOutput(output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", output, cerr)
		}
	}()
	return report.WriteCSV(f, results)
}

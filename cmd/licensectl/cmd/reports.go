package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/licenseops/licenseops/internal/backend"
	"github.com/licenseops/licenseops/internal/reports"
	"github.com/licenseops/licenseops/internal/reports/export"
	"github.com/licenseops/licenseops/report"
)

var (
	exportType      string
	exportFilters   []string
	exportFormat    string
	exportOut       string
	exportGotenberg string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Report catalog and exports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List report types and their filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listReports(cmd.OutOrStdout(), reports.NewCatalog(nil))
	},
}

var reportsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Fetch a report and write it as CSV or PDF",
	Long: `Fetch a report from the backend and write it to a file or stdout.

Filters use name=value pairs; unknown names and empty values are dropped.
PDF output needs a Gotenberg endpoint and refuses empty reports.

Example:
  licensectl reports export --type alerts --filter severity=CRITICAL --format pdf --out alerts.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := parseFilters(exportFilters)
		if err != nil {
			return err
		}
		client := backend.NewClient(backendURL, backendTimeout)
		printVerbose(cmd, "fetching %s from %s", exportType, backendURL)

		var pdf export.Renderer
		if strings.EqualFold(exportFormat, "pdf") {
			pdf = report.NewClient(exportGotenberg)
		}
		out, closeOut, err := openOutput(cmd.OutOrStdout(), exportOut)
		if err != nil {
			return err
		}
		defer closeOut()

		ctx, cancel := context.WithTimeout(cmd.Context(), backendTimeout+time.Minute)
		defer cancel()
		return exportReport(ctx, exportOptions{
			Type:    exportType,
			Filters: filters,
			Format:  exportFormat,
			Now:     time.Now(),
		}, client, pdf, out)
	},
}

func init() {
	reportsExportCmd.Flags().StringVarP(&exportType, "type", "t", "", "report type (see reports list)")
	reportsExportCmd.Flags().StringArrayVarP(&exportFilters, "filter", "f", nil, "filter as name=value, repeatable")
	reportsExportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format (csv, pdf)")
	reportsExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file, stdout when empty")
	reportsExportCmd.Flags().StringVar(&exportGotenberg, "gotenberg", envOr("GOTENBERG_URL", "http://127.0.0.1:3000"), "Gotenberg base URL for PDF output")
	_ = reportsExportCmd.MarkFlagRequired("type")

	reportsCmd.AddCommand(reportsListCmd, reportsExportCmd)
	rootCmd.AddCommand(reportsCmd)
}

type exportOptions struct {
	Type    string
	Filters reports.FilterValues
	Format  string
	Now     time.Time
}

// exportReport drives a workspace the same way the console does: select, apply the
// filters, wait for the newest fetch, then export.
func exportReport(ctx context.Context, opts exportOptions, src reports.Source, pdf export.Renderer, out io.Writer) error {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != "csv" && format != "pdf" {
		return fmt.Errorf("unsupported format %q", opts.Format)
	}

	catalog := reports.NewCatalog(src)
	d, err := catalog.Lookup(opts.Type)
	if err != nil {
		return err
	}
	if err := reports.ValidateFilters(d, opts.Filters); err != nil {
		return err
	}

	var (
		mu    sync.Mutex
		notes []string
	)
	ws := reports.NewWorkspace(reports.WorkspaceConfig{
		Catalog: catalog,
		Notifier: reports.NotifierFunc(func(_ context.Context, n reports.Notification) {
			mu.Lock()
			notes = append(notes, n.Message)
			mu.Unlock()
		}),
	})
	if err := ws.Select(ctx, d.Key); err != nil {
		return err
	}
	if len(opts.Filters) > 0 {
		if err := ws.Apply(ctx, opts.Filters); err != nil {
			return err
		}
	}
	ws.Wait()

	if snap := ws.Snapshot(); snap.Err != nil {
		mu.Lock()
		defer mu.Unlock()
		if len(notes) > 0 {
			return fmt.Errorf("%s: %w", notes[len(notes)-1], snap.Err)
		}
		return snap.Err
	}

	switch format {
	case "pdf":
		doc, err := ws.Document(opts.Now)
		if err != nil {
			return err
		}
		if pdf == nil {
			return errors.New("pdf output needs a renderer")
		}
		body, err := export.NewPDFExporter(pdf).Render(ctx, doc)
		if err != nil {
			return err
		}
		_, err = out.Write(body)
		return err
	default:
		table, err := ws.Delimited()
		if err != nil {
			return err
		}
		return export.WriteCSV(out, table)
	}
}

func parseFilters(pairs []string) (reports.FilterValues, error) {
	values := reports.FilterValues{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid filter %q, want name=value", pair)
		}
		values[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return values, nil
}

func listReports(w io.Writer, catalog *reports.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTITLE\tFILTERS")
	for _, d := range catalog.Descriptors() {
		names := make([]string, 0, len(d.Filters))
		for _, f := range d.Filters {
			names = append(names, f.Name)
		}
		filters := strings.Join(names, ", ")
		if filters == "" {
			filters = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Key, d.Title, filters)
	}
	return tw.Flush()
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

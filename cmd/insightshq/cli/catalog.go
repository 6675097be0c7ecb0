package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/insightshq/nl2sql-processor/internal/catalog"
	"github.com/insightshq/nl2sql-processor/internal/config"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the view catalog",
		Long:  "List the documented views or check them against the live warehouse.",
	}

	cmd.AddCommand(newCatalogListCmd())
	cmd.AddCommand(newCatalogVerifyCmd())

	return cmd
}

func newCatalogListCmd() *cobra.Command {
	var datasource string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documented views",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(0)
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.Warehouse.CatalogDir)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			return printCatalog(cmd.OutOrStdout(), cat, datasource)
		},
	}

	cmd.Flags().StringVar(&datasource, "datasource", "", "Only list views of this datasource")

	return cmd
}

func printCatalog(w io.Writer, cat *catalog.Catalog, datasource string) error {
	views := cat.Views()
	if datasource != "" {
		views = cat.ViewsFor(datasource)
	}
	if len(views) == 0 {
		fmt.Fprintln(w, "No views documented.")
		return nil
	}

	data := pterm.TableData{{"Datasource", "View", "Columns", "Description"}}
	for _, v := range views {
		data = append(data, []string{v.Datasource, v.Table, strconv.Itoa(len(v.Columns)), v.Description})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "%d views, %d example queries\n", len(views), len(cat.Examples()))
	return nil
}

func newCatalogVerifyCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare documented views with the live warehouse",
		Long: `Introspect every documented view and report columns that are missing,
undocumented or whose type changed. Exits with status 1 when a breaking
difference is found, so it can gate a catalog deployment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.NeedWarehouse)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format})
			if err != nil {
				return err
			}
			defer closeLog()

			cat, err := catalog.Load(cfg.Warehouse.CatalogDir)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			registry, err := connectWarehouses(cfg, logger)
			if err != nil {
				return err
			}
			defer registry.CloseAll()

			ctx, cancel := withTimeout(cmdContext(cmd), 5*time.Minute)
			defer cancel()
			report := catalog.Verify(ctx, cat, registry)
			return printVerifyReport(cmd.OutOrStdout(), report, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")

	return cmd
}

func printVerifyReport(w io.Writer, report catalog.VerifyReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		data := pterm.TableData{{"Datasource", "View", "Severity", "Category", "Description"}}
		for _, v := range report.Views {
			for _, it := range v.Items {
				data = append(data, []string{v.Datasource, v.View, string(it.Severity), it.Category, it.Description})
			}
		}
		if len(data) > 1 {
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, table)
		}
		fmt.Fprintf(w, "%d views checked, %d with drift, %d breaking differences\n",
			report.TotalViews, report.DriftedViews, report.Breaking)
	}

	if report.Breaking > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}

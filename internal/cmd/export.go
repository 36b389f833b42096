package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/masahif/marketpulse/internal/export"
)

// errNoExportTarget is returned when neither a CSV path nor a DSN is set
var errNoExportTarget = errors.New("nothing to export: set --csv or --postgres-dsn")

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the clean table to CSV or PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd)
		},
	}

	cmd.Flags().String("csv", "", "Write the clean table to this CSV file")
	cmd.Flags().String("postgres-dsn", "", "Mirror the clean table into this PostgreSQL database")

	a.bindFlags(cmd, map[string]string{
		"export.csv_path":     "csv",
		"export.postgres_dsn": "postgres-dsn",
	})

	return cmd
}

func (a *app) runExport(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	target := a.cfg.Export

	if target.CSVPath == "" && target.PostgresDSN == "" {
		return errNoExportTarget
	}

	st, err := a.openStores()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	rows, err := st.clean.CleanListings(ctx)
	if err != nil {
		return err
	}

	if target.CSVPath != "" {
		if err := export.WriteCSVFile(target.CSVPath, rows); err != nil {
			return err
		}
		slog.Info("Clean table exported", "target", "csv", "rows", len(rows))
		fmt.Fprintf(out, "Wrote %d listings to %s\n", len(rows), target.CSVPath)
	}

	if target.PostgresDSN != "" {
		mirror, err := export.OpenPostgres(ctx, target.PostgresDSN)
		if err != nil {
			return err
		}
		defer func() { _ = mirror.Close() }()

		if err := mirror.Migrate(); err != nil {
			return err
		}
		n, err := mirror.Replace(ctx, rows)
		if err != nil {
			return err
		}
		slog.Info("Clean table exported", "target", "postgres", "rows", n)
		fmt.Fprintf(out, "Mirrored %d listings to PostgreSQL\n", n)
	}

	return nil
}

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/masahif/marketpulse/internal/listing"
	"github.com/masahif/marketpulse/internal/normalize"
	"github.com/masahif/marketpulse/internal/pipeline"
	"github.com/masahif/marketpulse/internal/scoring"
)

// metaLastCleanBuild records when the clean table was last rebuilt
const metaLastCleanBuild = "last_clean_build"

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Rebuild the clean table from the raw store",
		Long: `Clean normalizes every raw listing, drops listings priced at or below the
minimum price or without a known RAM size, re-applies recorded RAM
corrections, scores the rest and swaps the result in as the clean table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runClean(cmd)
		},
	}
}

func (a *app) runClean(cmd *cobra.Command) error {
	st, err := a.openStores()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	builder := pipeline.NewBuilder(st.raw, st.clean, normalize.Default(), scoring.Default(), pipeline.Options{
		MinPrice:   a.cfg.Clean.MinPrice,
		SampleSize: a.cfg.Clean.SampleSize,
	})

	summary, err := builder.Run(cmd.Context())
	if err != nil {
		return err
	}

	if err := st.clean.SetMeta(cmd.Context(), metaLastCleanBuild, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("Failed to record clean build time", "error", err)
	}

	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(w, "Clean table rebuilt in %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Raw listings:        %d\n", s.RawTotal)
	fmt.Fprintf(w, "  Clean listings:      %d\n", s.CleanTotal)
	fmt.Fprintf(w, "  Filtered out:        %d\n", s.FilteredOut)
	fmt.Fprintf(w, "  Corrections applied: %d\n", s.CorrectionsApplied)

	if len(s.RAMDistribution) > 0 {
		fmt.Fprintln(w, "\nRAM distribution:")
		for _, ram := range s.RAMValues() {
			fmt.Fprintf(w, "  %4d GB  %d\n", ram, s.RAMDistribution[ram])
		}
	}

	if len(s.BrandDistribution) > 0 {
		fmt.Fprintln(w, "\nBrands:")
		for _, brand := range s.Brands() {
			fmt.Fprintf(w, "  %-10s %d\n", brand, s.BrandDistribution[brand])
		}
	}

	if len(s.Sample) > 0 {
		fmt.Fprintln(w, "\nBest value:")
		printListings(w, s.Sample)
	}
}

func printListings(w io.Writer, rows []listing.ScoredListing) {
	for _, r := range rows {
		fmt.Fprintf(w, "  %8.0f  %-8s %-12s %3d GB  q=%-5.0f v=%.3f  %s\n",
			r.Price, r.Brand, r.CPU, r.RAM, r.QualityScore, r.ValueRatio, r.Title)
	}
}

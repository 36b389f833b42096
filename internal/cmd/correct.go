package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/masahif/marketpulse/internal/pipeline"
	"github.com/masahif/marketpulse/internal/scoring"
)

func newCorrectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct",
		Short: "Override the RAM of clean listings matching a title",
		Long: `Correct lists clean listings whose title matches --title and, when --ram
is given, sets their RAM and rescores them. PATTERN is a SQL LIKE pattern;
a pattern without % or _ matches anywhere in the title. --exact matches the
whole title instead. Corrections are kept and re-applied by every clean
rebuild.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCorrect(cmd)
		},
	}

	cmd.Flags().String("title", "", "Title pattern to match (required)")
	cmd.Flags().Bool("exact", false, "Match the whole title exactly")
	cmd.Flags().Int("ram", 0, "RAM in GB to set on matching listings; omit to preview only")
	cmd.Flags().BoolP("yes", "y", false, "Apply without asking for confirmation")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func (a *app) runCorrect(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	title, _ := cmd.Flags().GetString("title")
	exact, _ := cmd.Flags().GetBool("exact")
	ram, _ := cmd.Flags().GetInt("ram")
	yes, _ := cmd.Flags().GetBool("yes")

	st, err := a.openStores()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	corrector := pipeline.NewCorrector(st.clean, scoring.Default())
	m := pipeline.Match{Pattern: title, Exact: exact}

	rows, err := corrector.Preview(cmd.Context(), m)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(out, "No clean listings match %q\n", title)
		return nil
	}

	fmt.Fprintf(out, "%d listing(s) match %q:\n", len(rows), title)
	printListings(out, rows)

	if !cmd.Flags().Changed("ram") {
		return nil
	}

	if !yes && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Set RAM to %d GB on %d listing(s)?", ram, len(rows)), false) {
		fmt.Fprintln(out, "Aborted")
		return nil
	}

	updated, err := corrector.Apply(cmd.Context(), m, ram)
	if errors.Is(err, pipeline.ErrNoMatch) {
		fmt.Fprintf(out, "No clean listings match %q\n", title)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Updated %d listing(s):\n", len(updated))
	printListings(out, updated)
	return nil
}

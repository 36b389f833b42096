package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/masahif/marketpulse/internal/crawler"
)

func newStatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show crawl progress, store sizes and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd)
		},
	}
	cmd.Flags().Int("runs", 5, "Number of recent crawl runs to show")
	return cmd
}

func (a *app) runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	limit, _ := cmd.Flags().GetInt("runs")

	st, err := a.openStores()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	last := crawler.NewCheckpoint(st.raw).LastCompletedPage(ctx)
	rawCount, err := st.raw.CountRaw(ctx)
	if err != nil {
		return err
	}
	cleanCount, err := st.clean.CountClean(ctx)
	if err != nil {
		return err
	}
	built, err := st.clean.GetMeta(ctx, metaLastCleanBuild)
	if err != nil {
		return err
	}
	if built == "" {
		built = "never"
	}

	fmt.Fprintf(out, "Raw store:        %s\n", a.cfg.Database.RawPath)
	fmt.Fprintf(out, "Clean store:      %s\n", a.cfg.Database.CleanPath)
	fmt.Fprintf(out, "Last saved page:  %d (next page %d)\n", last, last+1)
	fmt.Fprintf(out, "Raw listings:     %d\n", rawCount)
	fmt.Fprintf(out, "Clean listings:   %d\n", cleanCount)
	fmt.Fprintf(out, "Last clean build: %s\n", built)

	runs, err := st.raw.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "\nNo crawl runs recorded")
		return nil
	}

	fmt.Fprintln(out, "\nRecent runs:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tPAGES\tSCRAPED\tSAVED\tSKIPPED\tFAILED\tSTATE")
	for _, r := range runs {
		state := "done"
		if r.Interrupted {
			state = "interrupted"
		}
		fmt.Fprintf(tw, "%s\t%d-%d\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.StartPage, r.LastPage,
			r.Scraped, r.Saved, r.Skipped, len(r.FailedPages), state)
	}
	return tw.Flush()
}

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/masahif/marketpulse/internal/crawler"
	"github.com/masahif/marketpulse/internal/extract"
)

func newCrawlCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl listing pages into the raw store",
		Long: `Crawl walks listing pages from --start to --end, saving every listing
into the raw store. When the store already holds pages you are offered to
resume after the last saved page; --resume and --restart skip the prompt.
Ctrl-C stops the crawl after saving what was collected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCrawl(cmd)
		},
	}

	cmd.Flags().Int("start", 1, "First page to crawl")
	cmd.Flags().Int("end", 500, "Last page to crawl")
	cmd.Flags().Int("batch-size", 10, "Save collected listings every N pages")
	cmd.Flags().String("fetcher", "http", "Page fetcher: 'http' or 'chrome'")
	cmd.Flags().Bool("resume", false, "Resume after the last saved page without asking")
	cmd.Flags().Bool("restart", false, "Start from --start without asking")
	cmd.MarkFlagsMutuallyExclusive("resume", "restart")

	a.bindFlags(cmd, map[string]string{
		"crawl.start_page": "start",
		"crawl.end_page":   "end",
		"crawl.batch_size": "batch-size",
		"crawl.fetcher":    "fetcher",
	})

	return cmd
}

func (a *app) runCrawl(cmd *cobra.Command) error {
	cfg := &a.cfg.Crawl
	out := cmd.OutOrStdout()

	st, err := a.openStores()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startPage := cfg.StartPage
	checkpoint := crawler.NewCheckpoint(st.raw)
	if last := checkpoint.LastCompletedPage(ctx); last > 0 {
		resume, _ := cmd.Flags().GetBool("resume")
		restart, _ := cmd.Flags().GetBool("restart")

		switch {
		case resume:
		case restart:
			last = 0
		default:
			if !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Last saved page is %d. Resume from page %d?", last, last+1), true) {
				last = 0
			}
		}
		if last >= startPage {
			startPage = last + 1
		}
	}

	if startPage > cfg.EndPage {
		fmt.Fprintf(out, "Nothing to crawl: pages up to %d are already saved\n", cfg.EndPage)
		return nil
	}

	f, err := a.newFetcher(cfg)
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}
	// Closed after Run so an interrupted crawl flushes first
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Failed to close fetcher", "error", err)
		}
	}()

	extractor := extract.New(extract.Options{
		CurrencyToken: a.cfg.Extract.CurrencyToken,
		MinPrice:      a.cfg.Extract.MinPrice,
		BaseURL:       cfg.BaseURL,
	})

	fmt.Fprintf(out, "Crawling pages %d-%d with the %s fetcher (batch size %d)\n", startPage, cfg.EndPage, cfg.Fetcher, cfg.BatchSize)

	c := crawler.NewCrawler(cfg, f, extractor, st.raw)
	report, runErr := c.Run(ctx, startPage, cfg.EndPage, cfg.BatchSize)
	if report != nil {
		printReport(out, report)
	}
	if runErr != nil {
		return fmt.Errorf("crawl finished with unsaved listings: %w", runErr)
	}
	return nil
}

func printReport(w io.Writer, r *crawler.Report) {
	fmt.Fprintln(w)
	switch {
	case r.Interrupted:
		fmt.Fprintln(w, "Crawl interrupted; collected listings were saved")
	case r.EndOfListings:
		fmt.Fprintf(w, "Reached the end of listings at page %d\n", r.LastPage)
	default:
		fmt.Fprintln(w, "Crawl complete")
	}
	fmt.Fprintf(w, "  Pages visited:      %d (last page %d)\n", r.PagesVisited, r.LastPage)
	fmt.Fprintf(w, "  Total scraped:      %d\n", r.TotalScraped)
	fmt.Fprintf(w, "  Saved:              %d\n", r.Saved)
	fmt.Fprintf(w, "  Duplicates skipped: %d\n", r.DuplicatesSkipped)
	fmt.Fprintf(w, "  Discarded blocks:   %d\n", r.Discarded)
	if len(r.FailedPages) > 0 {
		fmt.Fprintf(w, "  Failed pages:       %s\n", joinInts(r.FailedPages))
	} else {
		fmt.Fprintf(w, "  Failed pages:       none\n")
	}
	if r.StoreTotal >= 0 {
		fmt.Fprintf(w, "  Store total:        %d\n", r.StoreTotal)
	}
	fmt.Fprintf(w, "  Duration:           %s\n", r.Duration.Round(time.Millisecond))
}

// confirm asks a yes/no question on in; an empty answer or EOF returns def
func confirm(in io.Reader, out io.Writer, question string, def bool) bool {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s ", question, hint)

	line, err := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer == "" {
		if err != nil && err != io.EOF {
			return false
		}
		return def
	}
	return answer == "y" || answer == "yes"
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

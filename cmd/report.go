package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/text/width"

	"github.com/sells-group/copper-cli/internal/history"
	"github.com/sells-group/copper-cli/internal/ingest"
	"github.com/sells-group/copper-cli/internal/model"
)

var (
	historyRegion string
	historyLimit  int
	historyJSON   bool
	summaryJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored price history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		recs := env.Orchestrator.Snapshot().History
		if historyRegion != "" {
			recs = history.Region(recs, historyRegion)
		}
		if historyLimit > 0 && len(recs) > historyLimit {
			recs = recs[len(recs)-historyLimit:]
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			return writeJSONTo(out, recs)
		}
		formatHistory(out, recs)
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print latest price, year-over-year change, and trend per region",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		snap := env.Orchestrator.Snapshot()
		out := cmd.OutOrStdout()
		if summaryJSON {
			return writeJSONTo(out, snap.Summaries)
		}
		formatSummaries(out, snap)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyRegion, "region", "", "only show records for this region")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "show only the most recent N records")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON instead of a table")
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(summaryCmd)
}

func writeJSONTo(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatHistory writes a tabular list of records to out.
func formatHistory(out io.Writer, recs []model.PriceRecord) {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.Date,
			r.Region,
			formatPrice(r.Price),
			r.Unit,
			formatChange(r.Change),
			r.Source,
		})
	}
	writeTable(out, []string{"DATE", "REGION", "PRICE", "UNIT", "CHANGE", "SOURCE"}, rows)
	_, _ = fmt.Fprintf(out, "%d records\n", len(recs))
}

// formatSummaries writes one row per region followed by the latest insight
// and forecast, if any.
func formatSummaries(out io.Writer, snap ingest.Snapshot) {
	rows := make([][]string, 0, len(snap.Summaries))
	for _, s := range snap.Summaries {
		rows = append(rows, []string{
			s.Region,
			s.LatestDate,
			formatPrice(s.LatestPrice),
			strconv.FormatFloat(s.YoYChangePercent, 'f', 2, 64) + "%",
			string(s.Trend),
			strconv.Itoa(s.SampleCount),
		})
	}
	writeTable(out, []string{"REGION", "LATEST", "PRICE", "YOY", "TREND", "SAMPLES"}, rows)

	if snap.Insight != "" {
		_, _ = fmt.Fprintf(out, "\nInsight: %s\n", snap.Insight)
	}
	if snap.Forecast != "" {
		_, _ = fmt.Fprintf(out, "Forecast: %s\n", snap.Forecast)
	}
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func formatChange(c float64) string {
	if c > 0 {
		return "+" + formatPrice(c)
	}
	return formatPrice(c)
}

// writeTable aligns columns by terminal cell width. text/tabwriter counts
// runes, which misaligns region names written in CJK.
func writeTable(out io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = displayWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := displayWidth(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	writeRow := func(cells []string) {
		var b strings.Builder
		for i, cell := range cells {
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-displayWidth(cell)+2))
			}
		}
		b.WriteByte('\n')
		_, _ = io.WriteString(out, b.String())
	}

	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}
}

// displayWidth returns the number of terminal cells s occupies.
func displayWidth(s string) int {
	n := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/model"
	"TSIWatch/internal/recorder"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printReport(w io.Writer, r *collector.Report) {
	fmt.Fprintf(w, "TSI USA report %s (%s, %d holdings)\n\n",
		r.GeneratedAt.Format("2006-01-02 15:04"), r.Source, r.Portfolio.Len())

	invested := r.Portfolio.TotalInvestment()
	if latest, ok := r.Latest(); ok {
		fmt.Fprintf(w, "Value    %.2f on %s\n", latest.Value, latest.Date.Format("2006-01-02"))
		fmt.Fprintf(w, "Invested %.2f\n", invested)
		if invested > 0 {
			fmt.Fprintf(w, "Return   %+.2f%%\n", (latest.Value-invested)/invested*100)
		}
	} else {
		fmt.Fprintf(w, "Invested %.2f, value unavailable\n", invested)
	}
	fmt.Fprintln(w)

	tw := newTable(w)
	fmt.Fprintln(tw, "TICKER\tDATE\tTSI\tOFFICIAL\tDIFF")
	for _, c := range r.Comparison {
		date, tsi, official, diff := "-", "n/a", "-", "-"
		if c.Computed.Defined {
			date = c.Computed.Date.Format("2006-01-02")
			tsi = fmt.Sprintf("%+.2f", c.Computed.Value)
		}
		if c.HasOfficial {
			official = fmt.Sprintf("%+.2f", c.Official)
		}
		if d, ok := c.Difference(); ok {
			diff = fmt.Sprintf("%+.2f", d)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Ticker, date, tsi, official, diff)
	}
	tw.Flush()
	fmt.Fprintln(w)

	printAlerts(w, r.Alerts)
	printWarnings(w, r.Warnings)
}

func printAlerts(w io.Writer, alerts []model.StopLossAlert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No stop-loss triggered.")
		return
	}
	fmt.Fprintf(w, "Stop-loss triggered (%d):\n", len(alerts))
	tw := newTable(w)
	fmt.Fprintln(tw, "TICKER\tPREVIOUS\tCURRENT\tDROP %\tLIMIT %")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\n", a.Ticker, a.PreviousPrice, a.CurrentPrice, a.PercentDrop, a.Limit)
	}
	tw.Flush()
}

func printWarnings(w io.Writer, warnings []model.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "\nWarnings (%d):\n", len(warnings))
	for _, warn := range warnings {
		fmt.Fprintf(w, "  %s\n", warn)
	}
}

func printChange(w io.Writer, c model.MembershipChange) {
	if c.Empty() {
		fmt.Fprintln(w, "No changes.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "CHANGE\tTICKER\tNAME\tINVESTMENT\tSTOP %")
	for _, e := range c.Added {
		fmt.Fprintf(tw, "+\t%s\t%s\t%.2f\t%.2f\n", e.Ticker, e.Name, e.Investment, e.StopLoss)
	}
	for _, e := range c.Removed {
		fmt.Fprintf(tw, "-\t%s\t%s\t%.2f\t%.2f\n", e.Ticker, e.Name, e.Investment, e.StopLoss)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d added, %d removed\n", len(c.Added), len(c.Removed))
}

func printRuns(w io.Writer, runs []recorder.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTIME\tTRIGGER\tSOURCE\tHOLDINGS\tVALUE\tALERTS\tWARNINGS")
	for _, r := range runs {
		value := "-"
		if r.HasValue {
			value = fmt.Sprintf("%.2f", r.Value)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%d\t%d\n", r.ID, r.At.Format("2006-01-02 15:04"),
			r.Trigger, r.Source, r.Holdings, value, r.Alerts, r.Warnings)
	}
	tw.Flush()
}

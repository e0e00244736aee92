package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"TSIWatch/internal/collector"
	"TSIWatch/internal/model"
)

// formatUSD renders an amount with currency symbol and thousands separators,
// rounded to cents.
func formatUSD(amount float64) string {
	cents := decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

func signedUSD(amount float64) string {
	if amount > 0 {
		return "+" + formatUSD(amount)
	}
	return formatUSD(amount)
}

func formatTSI(p model.TsiPoint) string {
	if !p.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f", p.Value)
}

// FormatReport formats a full refresh into a Telegram message.
func FormatReport(r *collector.Report) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>TSI USA</b> | %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04")))

	invested := r.Portfolio.TotalInvestment()
	if latest, ok := r.Latest(); ok {
		change := latest.Value - invested
		b.WriteString(fmt.Sprintf("Value: %s (%s)\n", formatUSD(latest.Value), latest.Date.Format("2006-01-02")))
		b.WriteString(fmt.Sprintf("Invested: %s | P/L: %s", formatUSD(invested), signedUSD(change)))
		if invested > 0 {
			b.WriteString(fmt.Sprintf(" (%+.2f%%)", change/invested*100))
		}
		b.WriteString("\n\n")
	} else {
		b.WriteString(fmt.Sprintf("Invested: %s | value unavailable\n\n", formatUSD(invested)))
	}

	if len(r.Comparison) > 0 {
		b.WriteString("📈 <b>TSI</b>\n<pre>")
		b.WriteString(FormatComparison(r.Comparison))
		b.WriteString("</pre>\n")
	}

	if len(r.Alerts) > 0 {
		b.WriteString("\n")
		b.WriteString(FormatAlerts(r.Alerts))
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(FormatWarnings(r.Warnings))
	}
	return b.String()
}

// FormatComparison renders the computed-vs-official TSI rows as a fixed-width table.
func FormatComparison(rows []model.Comparison) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-8s %9s %9s %8s\n", "Ticker", "TSI", "Official", "Diff"))
	for _, row := range rows {
		official, diff := "-", "-"
		if row.HasOfficial {
			official = fmt.Sprintf("%+.2f", row.Official)
		}
		if d, ok := row.Difference(); ok {
			diff = fmt.Sprintf("%+.2f", d)
		}
		b.WriteString(fmt.Sprintf("%-8s %9s %9s %8s\n", html.EscapeString(row.Ticker), formatTSI(row.Computed), official, diff))
	}
	return b.String()
}

// FormatAlerts formats triggered stop-losses. Returns "" when there are none.
func FormatAlerts(alerts []model.StopLossAlert) string {
	if len(alerts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚨 <b>Stop-loss triggered</b> (%d)\n", len(alerts)))
	for _, a := range alerts {
		b.WriteString(fmt.Sprintf("  %s: -%.2f%% (limit %.2f%%) %s → %s\n",
			html.EscapeString(a.Ticker), a.PercentDrop, a.Limit,
			formatUSD(a.PreviousPrice), formatUSD(a.CurrentPrice)))
	}
	return b.String()
}

// FormatCheck formats the result of a stop-loss check.
func FormatCheck(r *collector.Report) string {
	if len(r.Alerts) == 0 {
		msg := fmt.Sprintf("✅ No stop-loss triggered (%d holdings, %s)", r.Portfolio.Len(), r.GeneratedAt.Format("15:04"))
		if len(r.Warnings) > 0 {
			msg += "\n\n" + FormatWarnings(r.Warnings)
		}
		return msg
	}
	msg := FormatAlerts(r.Alerts)
	if len(r.Warnings) > 0 {
		msg += "\n" + FormatWarnings(r.Warnings)
	}
	return msg
}

// FormatWarnings lists data-quality warnings.
func FormatWarnings(warnings []model.Warning) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚠️ <b>Warnings</b> (%d)\n", len(warnings)))
	for _, w := range warnings {
		b.WriteString("  " + html.EscapeString(w.String()) + "\n")
	}
	return b.String()
}

// FormatMembershipChange formats added and removed holdings.
func FormatMembershipChange(c model.MembershipChange) string {
	if c.Empty() {
		return fmt.Sprintf("🗂 Portfolio unchanged (%s)", c.At.Format("2006-01-02"))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>Portfolio changes</b> | %s\n", c.At.Format("2006-01-02")))
	writeEntries := func(title string, entries []model.PortfolioEntry) {
		if len(entries) == 0 {
			return
		}
		b.WriteString(fmt.Sprintf("\n%s (%d)\n", title, len(entries)))
		for _, e := range entries {
			b.WriteString("  " + formatEntry(e) + "\n")
		}
	}
	writeEntries("➕ Added", c.Added)
	writeEntries("➖ Removed", c.Removed)
	return b.String()
}

// FormatPortfolio lists the current holdings.
func FormatPortfolio(p *model.Portfolio, loadedAt time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Portfolio</b> | %d holdings, %s invested\n", p.Len(), formatUSD(p.TotalInvestment())))
	if !loadedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Loaded: %s\n", loadedAt.Format("2006-01-02 15:04")))
	}
	b.WriteString("\n")
	for _, e := range p.Entries() {
		b.WriteString("  " + formatEntry(e) + "\n")
	}
	return b.String()
}

func formatEntry(e model.PortfolioEntry) string {
	s := "<b>" + html.EscapeString(e.Ticker) + "</b>"
	if e.Name != "" {
		s += " " + html.EscapeString(e.Name)
	}
	return fmt.Sprintf("%s | %s | stop %.1f%%", s, formatUSD(e.Investment), e.StopLoss)
}

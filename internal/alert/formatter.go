package alert

import (
	"fmt"
	"html"
	"strings"

	"WalletSentinel/internal/budget"
	"WalletSentinel/internal/model"
	"WalletSentinel/internal/monitor"
)

const timeLayout = "2006-01-02 15:04 MST"

// FormatMonitorFailure reports a wallet whose monitor gave up.
func FormatMonitorFailure(address string, attempts int, cause error) string {
	var b strings.Builder
	b.WriteString("🚨 <b>Wallet monitor failed</b>\n\n")
	b.WriteString(fmt.Sprintf("Wallet: <code>%s</code>\n", html.EscapeString(address)))
	b.WriteString(fmt.Sprintf("Reconnect attempts: %d\n", attempts))
	if cause != nil {
		b.WriteString(fmt.Sprintf("Cause: %s\n", html.EscapeString(cause.Error())))
	}
	b.WriteString("\nEvents for this wallet are no longer ingested until it is registered again.")
	return b.String()
}

// FormatMonitors lists monitor health.
func FormatMonitors(statuses []monitor.Status) string {
	if len(statuses) == 0 {
		return "📡 No wallets are being monitored."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📡 <b>Monitors</b> (%d)\n\n", len(statuses)))
	for _, s := range statuses {
		b.WriteString(fmt.Sprintf("%s <code>%s</code> %s", healthIcon(s.Health), html.EscapeString(s.Address), s.Health))
		if s.Attempts > 0 {
			b.WriteString(fmt.Sprintf(" (attempt %d)", s.Attempts))
		}
		b.WriteString(fmt.Sprintf(" | balance %s\n", s.Balance.StringFixed(4)))
		if s.LastError != "" {
			b.WriteString(fmt.Sprintf("   last error: %s\n", html.EscapeString(s.LastError)))
		}
	}
	return b.String()
}

func healthIcon(h monitor.Health) string {
	switch h {
	case monitor.HealthLive:
		return "🟢"
	case monitor.HealthReconnecting, monitor.HealthStarting:
		return "🟡"
	case monitor.HealthFailed:
		return "🔴"
	default:
		return "⚪"
	}
}

// FormatTickReport summarises a reconciliation tick.
func FormatTickReport(r budget.TickReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🧾 <b>Budget reconciliation</b> | %s\n\n", r.StartedAt.UTC().Format(timeLayout)))
	b.WriteString(fmt.Sprintf("Due: %d | Processed: %d | Skipped: %d\n", r.Due, r.Processed, r.Skipped))

	if len(r.Outcomes) > 0 {
		b.WriteString("\n")
	}
	for _, o := range r.Outcomes {
		b.WriteString(fmt.Sprintf("• <code>%s</code> spent %s %s, surplus %s",
			html.EscapeString(o.Owner), o.Spent.StringFixed(2), o.Currency, o.Surplus.StringFixed(2)))
		var tags []string
		if o.Advised {
			tags = append(tags, "advised")
		}
		if o.Renewed {
			tags = append(tags, "renewed")
		}
		if o.Prompted {
			tags = append(tags, "prompted")
		}
		if len(tags) > 0 {
			b.WriteString(" [" + strings.Join(tags, ", ") + "]")
		}
		b.WriteString("\n")
	}

	if len(r.Errors) > 0 {
		b.WriteString("\n⚠️ <b>Errors</b>\n")
		for _, e := range r.Errors {
			b.WriteString("• " + html.EscapeString(e) + "\n")
		}
	}
	return b.String()
}

// FormatAdvisory renders surplus advice for a wallet.
func FormatAdvisory(a model.Advisory) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💡 <b>Surplus of %s %s</b> | <code>%s</code>\n\n",
		a.Surplus, html.EscapeString(a.Currency), html.EscapeString(a.Owner)))
	b.WriteString(html.EscapeString(a.Reply) + "\n")
	if a.Split != nil {
		b.WriteString("\nProposed split:\n")
		for _, al := range a.Split.Allocations {
			b.WriteString(fmt.Sprintf("  %s: %d%%\n", al.Target, al.Percent))
		}
	}
	writeSuggestions(&b, a.Suggestions)
	return b.String()
}

// FormatBudgetPrompt renders the question asked when a one-off budget ends.
func FormatBudgetPrompt(p model.BudgetPrompt) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>Budget ended</b> | <code>%s</code>\n\n", html.EscapeString(p.Owner)))
	b.WriteString(html.EscapeString(p.Reply) + "\n")
	writeSuggestions(&b, p.Suggestions)
	return b.String()
}

func writeSuggestions(b *strings.Builder, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	b.WriteString("\n")
	for _, s := range suggestions {
		b.WriteString("› " + html.EscapeString(s) + "\n")
	}
}

package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"SignalSentinel/internal/dispatcher"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/predictor"
)

var tierBadge = map[model.Tier]string{
	model.TierA: "🟢",
	model.TierB: "🟡",
	model.TierC: "🟠",
}

// FormatSignal formats an emitted signal into a Telegram message.
func FormatSignal(sig *model.Signal) string {
	var b strings.Builder

	arrow := "📈"
	if sig.Direction == model.Short {
		arrow = "📉"
	}
	b.WriteString(fmt.Sprintf("%s %s <b>%s %s</b> | %s | %s\n\n",
		tierBadge[sig.Tier], arrow, html.EscapeString(sig.Symbol), sig.Direction, sig.Tier, strings.ToUpper(string(sig.Class))))

	b.WriteString(fmt.Sprintf("Score: <b>%.0f</b>/100 | Criteria %d/7\n", sig.Score, sig.CriteriaMet))
	b.WriteString(fmt.Sprintf("Entry: <code>%s</code>\n", price(sig.Entry)))
	b.WriteString(fmt.Sprintf("Stop: <code>%s</code> (%.2f%%)\n", price(sig.Stop), pct(sig.Entry, sig.Stop)))
	for i, t := range sig.Targets {
		b.WriteString(fmt.Sprintf("TP%d: <code>%s</code> (%+.2f%%)\n", i+1, price(t), pct(sig.Entry, t)))
	}
	b.WriteString(fmt.Sprintf("Leverage: %dx\n", sig.Leverage))

	if sig.Phase != model.PhaseNone {
		b.WriteString(fmt.Sprintf("\n🧭 Phase: %s\n", sig.Phase.Label()))
	}
	if len(sig.Confluences) > 0 {
		b.WriteString("\n<b>Confluences:</b>\n")
		for _, c := range sig.Confluences {
			b.WriteString("  " + html.EscapeString(c) + "\n")
		}
	}

	b.WriteString(fmt.Sprintf("\nRSI %.1f | Vol %.1fx | Funding %.4f%% | Corr %.2f\n",
		sig.RSI14, sig.VolRatio, sig.FundingRate*100, sig.Correlation))
	if r := sig.Regime; r != nil {
		est := ""
		if r.Estimated {
			est = " (est.)"
		}
		b.WriteString(fmt.Sprintf("Regime: %s | BTC.D %.2f%% | USDT.D %.2f%%%s\n", r.Category, r.BTC, r.USDT, est))
		if r.Confidence > 0 {
			b.WriteString(fmt.Sprintf("ML win probability: %.0f%%\n", r.Confidence*100))
		}
	}
	b.WriteString(fmt.Sprintf("\n<i>%s</i>", sig.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")))
	return b.String()
}

// FormatLifecycle formats a target or stop hit.
func FormatLifecycle(evt model.LifecycleEvent) string {
	sym := html.EscapeString(evt.Symbol)
	switch {
	case evt.Kind == model.EventStopHit:
		return fmt.Sprintf("🛑 <b>%s %s</b> stop hit at <code>%s</code> after %d/%d targets",
			sym, evt.Direction, price(evt.Price), evt.TargetsHit, evt.TotalTargets)
	case evt.Status == model.StatusClosedWin:
		return fmt.Sprintf("🏆 <b>%s %s</b> all %d targets hit, final at <code>%s</code>",
			sym, evt.Direction, evt.TotalTargets, price(evt.Price))
	default:
		return fmt.Sprintf("🎯 <b>%s %s</b> TP%d hit at <code>%s</code> (%d/%d)",
			sym, evt.Direction, evt.Target, price(evt.Price), evt.TargetsHit, evt.TotalTargets)
	}
}

// FormatRegimeShift formats a sharp dominance move.
func FormatRegimeShift(s model.RegimeShift) string {
	var b strings.Builder
	b.WriteString("⚠️ <b>Regime shift</b>\n\n")
	b.WriteString(fmt.Sprintf("BTC.D: %.2f%% (%+.2f)\n", s.BTC, s.BTCDelta))
	b.WriteString(fmt.Sprintf("USDT.D: %.2f%% (%+.2f)\n", s.USDT, s.USDTDelta))
	b.WriteString(fmt.Sprintf("Regime: %s", s.Category))
	if s.Bias != "" {
		b.WriteString(" | " + html.EscapeString(s.Bias))
	}
	return b.String()
}

// FormatRegime formats the current slow and fast regime.
func FormatRegime(macro *model.MacroRegime, fast *model.RegimeSignal) string {
	var b strings.Builder
	b.WriteString("🌐 <b>Market regime</b>\n\n")
	if macro == nil {
		b.WriteString("No dominance reading yet\n")
	} else {
		est := ""
		if macro.Estimated {
			est = " (estimated)"
		}
		b.WriteString(fmt.Sprintf("Category: <b>%s</b>%s\n", macro.Category, est))
		b.WriteString(fmt.Sprintf("BTC.D %.2f%% | USDT.D %.2f%%\n", macro.BTC, macro.USDT))
		b.WriteString(fmt.Sprintf("Longs: %s | Shorts: %s\n", yesNo(macro.AllowLong), yesNo(macro.AllowShort)))
		if macro.Bias != "" {
			b.WriteString(html.EscapeString(macro.Bias) + "\n")
		}
	}
	if fast != nil && fast.SampleCount > 0 {
		b.WriteString(fmt.Sprintf("\nScalp bias: <b>%s</b> (%d samples)\n", fast.Bias, fast.SampleCount))
		b.WriteString(fmt.Sprintf("USDT.D %s %+.4f | BTC.D %s %+.4f\n",
			fast.USDTTrend, fast.USDTVelocity, fast.BTCTrend, fast.BTCVelocity))
		if fast.Reason != "" {
			b.WriteString(html.EscapeString(fast.Reason) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatActive lists open trades.
func FormatActive(trades []model.ActiveTrade) string {
	if len(trades) == 0 {
		return "📭 No active trades"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Active trades (%d)</b>\n\n", len(trades)))
	for _, t := range trades {
		sig := t.Signal
		b.WriteString(fmt.Sprintf("%s %s %s %s | entry %s | last %s (%+.2f%%) | TP %d/%d\n",
			tierBadge[sig.Tier], html.EscapeString(sig.Symbol), sig.Direction, sig.Class,
			price(sig.Entry), price(t.LastPrice), directional(sig, t.LastPrice), t.TargetsHit, len(sig.Targets)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatQuota shows today's emissions per class and tier.
func FormatQuota(state model.QuotaState) string {
	var b strings.Builder
	b.WriteString("🧮 <b>Quota</b>\n\n")
	for _, class := range model.Classes {
		q, ok := state.Classes[class]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("<b>%s</b>: %d/%d", strings.ToUpper(string(class)), q.Total(), q.DailyTarget))
		for _, tier := range model.Tiers {
			b.WriteString(fmt.Sprintf(" | %s %d", tier, q.Sent[tier]))
		}
		last := "never"
		if !q.LastSend.IsZero() {
			last = q.LastSend.UTC().Format("15:04")
		}
		b.WriteString(fmt.Sprintf(" | last %s\n", last))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStats formats resolved-trade performance.
func FormatStats(s predictor.Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Performance</b>\n\n")
	if s.Total == 0 {
		b.WriteString("No resolved trades yet")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Trades: %d | Wins: %d | Win rate: %.1f%%\n", s.Total, s.Wins, s.WinRate))
	for _, tier := range model.Tiers {
		t, ok := s.ByTier[tier]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s: %d/%d (%.1f%%)\n", tier, t.Wins, t.Total, t.WinRate))
	}
	if s.LastTrained != nil {
		b.WriteString(fmt.Sprintf("Model trained: %s\n", s.LastTrained.UTC().Format(time.RFC3339)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// price keeps small-cap precision without trailing noise.
func price(v float64) string {
	switch {
	case v >= 1000:
		return fmt.Sprintf("%.2f", v)
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.6f", v)
	}
}

func pct(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// directional is the unrealized move in the trade's favour.
func directional(sig *model.Signal, last float64) float64 {
	p := pct(sig.Entry, last)
	if sig.Direction == model.Short {
		return -p
	}
	return p
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

// FormatScanReport summarizes one scan.
func FormatScanReport(r dispatcher.ScanReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔎 <b>%s scan</b> | %s\n\n", strings.ToUpper(string(r.Class)), r.Duration.Round(time.Second)))
	if r.Skipped != "" {
		b.WriteString("Skipped: " + r.Skipped)
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Scanned: %d | Candidates: %d | Sent: %d\n", r.Scanned, r.Candidates, r.Total()))
	b.WriteString(fmt.Sprintf("A+ %d | B+ %d | C+ %d\n", r.Sent[model.TierA], r.Sent[model.TierB], r.Sent[model.TierC]))
	b.WriteString(fmt.Sprintf("Reference move: %+.2f%%\n", r.RefChange))
	if len(r.Rejections) > 0 {
		reasons := make([]string, 0, len(r.Rejections))
		for k := range r.Rejections {
			reasons = append(reasons, k)
		}
		sort.Strings(reasons)
		b.WriteString("\n<b>Dropped:</b>\n")
		for _, k := range reasons {
			b.WriteString(fmt.Sprintf("  %s: %d\n", k, r.Rejections[k]))
		}
	}
	for _, sig := range r.Signals {
		b.WriteString(fmt.Sprintf("%s %s %s %.0f\n", tierBadge[sig.Tier], html.EscapeString(sig.Symbol), sig.Direction, sig.Score))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Status is the operator overview.
type Status struct {
	Uptime       time.Duration
	Symbols      int
	ActiveTrades int
	Samples      int
	Regime       model.MacroCategory
	LastScans    map[model.TradeClass]time.Time
}

// FormatStatus formats the operator overview.
func FormatStatus(s Status) string {
	var b strings.Builder
	b.WriteString("🛰 <b>SignalSentinel</b>\n\n")
	b.WriteString(fmt.Sprintf("Uptime: %s\n", s.Uptime.Round(time.Minute)))
	b.WriteString(fmt.Sprintf("Universe: %d symbols\n", s.Symbols))
	b.WriteString(fmt.Sprintf("Active trades: %d\n", s.ActiveTrades))
	b.WriteString(fmt.Sprintf("Estimator history: %d outcomes\n", s.Samples))
	if s.Regime != "" {
		b.WriteString(fmt.Sprintf("Regime: %s\n", s.Regime))
	}
	for _, class := range model.Classes {
		last := "never"
		if at, ok := s.LastScans[class]; ok && !at.IsZero() {
			last = at.UTC().Format("15:04:05")
		}
		b.WriteString(fmt.Sprintf("Last %s scan: %s\n", class, last))
	}
	return strings.TrimRight(b.String(), "\n")
}

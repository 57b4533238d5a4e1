package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wonny/signalcast/internal/api/handlers"
	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/forecast"
	"github.com/wonny/signalcast/internal/scheduler"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════"
	ruleLight = "───────────────────────────────────────────────────────────"
)

// printHeader prints a formatted section header
func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, ruleHeavy)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, ruleLight)
}

// printFooter closes a section
func printFooter(w io.Writer) {
	fmt.Fprintln(w, ruleHeavy)
}

// formatTime renders an optional timestamp
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// formatSeconds renders an optional duration in seconds
func formatSeconds(s *float64) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", *s)
}

// printLiveness prints the worker liveness report
func printLiveness(w io.Writer, v handlers.LivenessView, lockHolder string) {
	icon := "✅"
	if v.Status != contracts.WorkerAlive {
		icon = "❌"
	}

	l := v.Liveness
	if l == nil {
		l = &contracts.Liveness{}
	}

	printHeader(w, "Worker Liveness")
	fmt.Fprintf(w, "  Status         : %s %s\n", icon, v.Status)
	fmt.Fprintf(w, "  Heartbeat      : %s (age %s, stale after %.0fs)\n",
		formatTime(l.LastHeartbeatAt), formatSeconds(v.HeartbeatAgeSeconds), v.StaleAfterSeconds)
	fmt.Fprintf(w, "  Last cycle     : %s (%s)\n", orDash(l.LastCycleID), formatSeconds(l.LastCycleSeconds))
	fmt.Fprintf(w, "  Last success   : %s\n", formatTime(l.LastSuccessfulCycleAt))
	if l.PID != 0 {
		fmt.Fprintf(w, "  PID            : %d\n", l.PID)
	}
	if lockHolder != "" {
		fmt.Fprintf(w, "  Lock           : %s\n", lockHolder)
	}
	if l.LastError != "" {
		fmt.Fprintln(w, ruleLight)
		fmt.Fprintf(w, "  Last error     : %s\n", l.LastError)
		fmt.Fprintf(w, "  Error at       : %s\n", formatTime(l.LastErrorAt))
	}
	printFooter(w)
}

// printCycle prints one cycle result
func printCycle(w io.Writer, res scheduler.CycleResult) {
	fmt.Fprintf(w, "[Cycle] %s  %.2fs  failed=%d", res.CycleID, res.Duration.Seconds(), res.Failed())
	if res.Interrupted {
		fmt.Fprint(w, "  (interrupted)")
	}
	fmt.Fprintln(w)
	for _, s := range res.Stages {
		status := "ok"
		if s.Err != nil {
			status = fmt.Sprintf("%s: %v", s.Failure, s.Err)
		}
		fmt.Fprintf(w, "  %-11s %7.2fs  %s\n", s.Name, s.Duration.Seconds(), status)
	}
}

// printEvaluation prints an evaluation pass result
func printEvaluation(w io.Writer, res forecast.EvaluationResult, took time.Duration) {
	printHeader(w, "Evaluation Pass")
	fmt.Fprintf(w, "  Scanned   : %d\n", res.Scanned)
	fmt.Fprintf(w, "  Evaluated : %d (hits %d)\n", res.Evaluated, res.Hits)
	fmt.Fprintf(w, "  Expired   : %d\n", res.Expired)
	fmt.Fprintf(w, "  Pending   : %d\n", res.Pending)
	fmt.Fprintf(w, "  Skipped   : %d\n", res.Skipped)
	fmt.Fprintf(w, "  Conflicts : %d\n", res.Conflicts)
	fmt.Fprintf(w, "  Failed    : %d\n", res.Failed)
	fmt.Fprintln(w, ruleLight)
	fmt.Fprintf(w, "✅ Completed in %.2fs\n", took.Seconds())
	printFooter(w)
}

// printSummary prints summary rows, overall row last
func printSummary(w io.Writer, rows []contracts.SummarySnapshot) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No summary rows")
		return
	}

	printHeader(w, fmt.Sprintf("Evaluation Summary (%d days, %s)", rows[0].WindowDays, rows[0].SnapshotID))
	fmt.Fprintf(w, "  %-10s %-7s %6s %6s %8s %8s %8s %8s %8s\n",
		"Asset", "Horizon", "N", "Hit", "Acc%", "MAE", "MAPE%", "Conf", "Calib")
	fmt.Fprintln(w, ruleLight)
	for _, r := range rows {
		fmt.Fprintf(w, "  %-10s %-7s %6d %6d %8.1f %8.4f %8.2f %8.1f %8.1f\n",
			r.Asset, r.HorizonKey, r.NTotal, r.NHit, r.DirectionalAccuracy,
			r.MAE, r.MAPE, r.AvgConfidence, r.CalibrationScore)
	}
	printFooter(w)
}

// printForecasts prints a forecast table
func printForecasts(w io.Writer, list []contracts.Forecast, counts map[contracts.ForecastStatus]int) {
	printHeader(w, fmt.Sprintf("Forecasts (%d shown)", len(list)))
	fmt.Fprintf(w, "  %6s %-10s %-7s %-7s %5s %-9s %-20s %s\n",
		"ID", "Asset", "Dir", "Horizon", "Conf", "Status", "Due", "Result")
	fmt.Fprintln(w, ruleLight)
	for _, f := range list {
		due := f.DueAt
		fmt.Fprintf(w, "  %6d %-10s %-7s %-7s %5.1f %-9s %-20s %s\n",
			f.ID, f.Asset, f.Direction, f.HorizonKey, f.Confidence, f.Status, formatTime(&due), forecastResult(f))
	}
	fmt.Fprintln(w, ruleLight)
	fmt.Fprintf(w, "  active=%d evaluated=%d expired=%d\n",
		counts[contracts.StatusActive], counts[contracts.StatusEvaluated], counts[contracts.StatusExpired])
	printFooter(w)
}

// printMigrations prints the migration ledger
func printMigrations(w io.Writer, title string, ms []contracts.AppliedMigration) {
	printHeader(w, title)
	if len(ms) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, m := range ms {
		at := m.AppliedAt
		fmt.Fprintf(w, "  %04d  %-32s %s\n", m.Version, m.Name, formatTime(&at))
	}
	printFooter(w)
}

func forecastResult(f contracts.Forecast) string {
	switch {
	case f.Outcome != nil:
		mark := "MISS"
		if f.Outcome.DirectionCorrect {
			mark = "HIT"
		}
		return fmt.Sprintf("%s %+.2f%% (%s)", mark, f.Outcome.PctMove, f.Outcome.Quality)
	case f.Status == contracts.StatusExpired:
		return "expired: " + f.ExpiryReason
	default:
		return "-"
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tmsproject/tms-loadtest/internal/metrics"
)

// Summary prints the final attack report in human readable form.
type Summary struct {
	w      io.Writer
	scheme *ColorScheme
}

// NewSummary creates a summary printer writing to w.
func NewSummary(w io.Writer, scheme *ColorScheme) *Summary {
	if scheme == nil {
		scheme = NoColorScheme()
	}
	return &Summary{w: w, scheme: scheme}
}

// Print writes report. A non-nil runErr marks the attack as aborted.
func (s *Summary) Print(report *metrics.Report, runErr error) {
	c := s.scheme
	line := strings.Repeat("━", 56)

	status := "Completed " + SuccessIcon(c)
	statusColor := c.Success
	if runErr != nil {
		status = "Aborted " + ErrorIcon(c)
		statusColor = c.Error
	} else if report.Abandoned > 0 {
		statusColor = c.StatusWarn
	}

	s.writeln("")
	s.writeln(c.Rule.Sprint(line))
	s.writeln(fmt.Sprintf("%s - %s", c.Title.Sprint("TMS load test "+report.RunID), statusColor.Sprint(status)))
	s.writeln(c.Rule.Sprint(line))
	s.writeln("")

	s.writeln(fmt.Sprintf("Duration:      %s", c.Value.Sprint(formatDuration(report.Duration))))
	s.writeln(fmt.Sprintf("Users:         %s", c.Value.Sprint(report.Users)))
	if report.Abandoned > 0 {
		s.writeln(fmt.Sprintf("Abandoned:     %s", c.StatusWarn.Sprint(report.Abandoned)))
	}
	s.writeln(fmt.Sprintf("Total Reqs:    %s", c.Value.Sprint(formatNumber(report.TotalRequests))))
	s.writeln(fmt.Sprintf("Throughput:    %s", c.Value.Sprintf("%.1f req/s", report.RPS)))

	successRate := 1.0 - report.ErrorRate
	successColor := c.Success
	if successRate < 0.99 {
		successColor = c.StatusWarn
	}
	if successRate < 0.95 {
		successColor = c.Error
	}
	s.writeln(fmt.Sprintf("Received:      %s", successColor.Sprintf("%.1f%%", successRate*100)))
	s.writeln("")

	if len(report.StatusCodes) > 0 {
		s.writeln(c.Title.Sprint("Status Codes:"))
		for _, code := range report.SortedStatusCodes() {
			s.writeln(fmt.Sprintf("  %s  %s", c.Status(code).Sprint(code), formatNumber(report.StatusCodes[code])))
		}
		s.writeln("")
	}

	if len(report.Failures) > 0 {
		s.writeln(c.Title.Sprint("Failures:"))
		for _, kind := range sortedKeys(report.Failures) {
			s.writeln(fmt.Sprintf("  %-14s %s", c.Error.Sprint(kind), formatNumber(report.Failures[kind])))
		}
		s.writeln("")
	}

	if report.Latency.Count > 0 {
		s.writeln(c.Title.Sprint("Latency Distribution:"))
		s.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(report.Latency.Min)))
		s.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(report.Latency.P50)))
		s.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(report.Latency.P90)))
		s.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(report.Latency.P95)))
		s.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(report.Latency.P99)))
		s.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(report.Latency.Max)))
		s.writeln("")
	}

	if len(report.Transactions) > 0 {
		s.writeln(c.Title.Sprint("Transactions:"))
		s.writeln(c.Label.Sprintf("  %-16s %10s %10s %10s %10s", "name", "count", "p50", "p95", "p99"))
		for _, name := range report.TransactionNames() {
			st := report.Transactions[name]
			s.writeln(fmt.Sprintf("  %-16s %10s %10s %10s %10s",
				name,
				formatNumber(st.Count),
				formatDurationShort(st.P50),
				formatDurationShort(st.P95),
				formatDurationShort(st.P99)))
		}
		s.writeln("")
	}

	if len(report.Iterations) > 0 {
		s.writeln(c.Title.Sprint("Scenario Iterations:"))
		for _, name := range sortedKeys(report.Iterations) {
			s.writeln(fmt.Sprintf("  %-16s %s", name, formatNumber(report.Iterations[name])))
		}
		s.writeln("")
	}

	if runErr != nil {
		s.writeln(fmt.Sprintf("%s %s", ErrorIcon(c), c.Error.Sprint(runErr.Error())))
		s.writeln("")
	}
}

func (s *Summary) writeln(line string) {
	fmt.Fprintln(s.w, line)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if n < 0 || len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

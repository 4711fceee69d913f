package output

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"time"

	"github.com/tmsproject/tms-loadtest/internal/metrics"
)

// htmlData is the view rendered by htmlTemplate.
type htmlData struct {
	*metrics.Report
	Status       string
	Error        string
	Codes        []int
	Failures     []string
	Scenarios    []string
	Transactions []string
}

// WriteHTML renders report as a self-contained HTML page.
func WriteHTML(w io.Writer, report *metrics.Report, runErr error) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": formatDuration,
		"formatLatency":  formatDurationShort,
		"formatNumber":   formatNumber,
		"formatTime":     func(t time.Time) string { return t.Format(time.RFC3339) },
		"percent":        func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
		"statusClass":    statusClass,
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	data := htmlData{
		Report:       report,
		Status:       "Completed",
		Codes:        report.SortedStatusCodes(),
		Failures:     sortedKeys(report.Failures),
		Scenarios:    sortedKeys(report.Iterations),
		Transactions: report.TransactionNames(),
	}
	switch {
	case runErr != nil:
		data.Status = "Aborted"
		data.Error = runErr.Error()
	case report.Aborted():
		data.Status = "Aborted"
		data.Error = report.Error
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// WriteHTMLFile writes the HTML report to path.
func WriteHTMLFile(path string, report *metrics.Report, runErr error) error {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, report, runErr); err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "ok"
	case code >= 300 && code < 500:
		return "warn"
	default:
		return "error"
	}
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>TMS load test {{.RunID}}</title>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --ok: #22c55e;
            --warn: #f59e0b;
            --error: #ef4444;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: var(--bg);
            color: var(--text);
            margin: 0;
        }
        .container { max-width: 1100px; margin: 0 auto; padding: 2rem; }
        h1 { margin-bottom: 0.25rem; }
        .meta { color: var(--muted); margin-bottom: 1.5rem; }
        .badge { padding: 0.2rem 0.6rem; border-radius: 999px; color: #fff; font-size: 0.9rem; }
        .badge.Completed { background: var(--ok); }
        .badge.Aborted { background: var(--error); }
        .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(170px, 1fr)); gap: 1rem; margin-bottom: 2rem; }
        .card { background: var(--card); border: 1px solid var(--border); border-radius: 8px; padding: 1rem; }
        .card .label { color: var(--muted); font-size: 0.85rem; }
        .card .value { font-size: 1.5rem; font-weight: 600; }
        table { width: 100%; border-collapse: collapse; background: var(--card); margin-bottom: 2rem; }
        th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-weight: 500; }
        .ok { color: var(--ok); }
        .warn { color: var(--warn); }
        .error { color: var(--error); }
        pre { background: var(--card); border: 1px solid var(--error); padding: 1rem; white-space: pre-wrap; }
    </style>
</head>
<body>
<div class="container">
    <h1>TMS load test <span class="badge {{.Status}}">{{.Status}}</span></h1>
    <div class="meta">Run {{.RunID}} &middot; {{formatTime .StartTime}} &middot; {{formatDuration .Duration}}</div>
    {{if .Error}}<pre>{{.Error}}</pre>{{end}}

    <div class="cards">
        <div class="card"><div class="label">Users</div><div class="value">{{.Users}}</div></div>
        <div class="card"><div class="label">Abandoned</div><div class="value">{{.Abandoned}}</div></div>
        <div class="card"><div class="label">Requests</div><div class="value">{{formatNumber .TotalRequests}}</div></div>
        <div class="card"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .RPS}}/s</div></div>
        <div class="card"><div class="label">Error rate</div><div class="value">{{percent .ErrorRate}}</div></div>
        <div class="card"><div class="label">p95 latency</div><div class="value">{{formatLatency .Latency.P95}}</div></div>
    </div>

    <h2>Latency</h2>
    <table>
        <tr><th></th><th>min</th><th>mean</th><th>p50</th><th>p90</th><th>p95</th><th>p99</th><th>max</th></tr>
        <tr><td>Total</td><td>{{formatLatency .Latency.Min}}</td><td>{{formatLatency .Latency.Mean}}</td><td>{{formatLatency .Latency.P50}}</td><td>{{formatLatency .Latency.P90}}</td><td>{{formatLatency .Latency.P95}}</td><td>{{formatLatency .Latency.P99}}</td><td>{{formatLatency .Latency.Max}}</td></tr>
        <tr><td>TTFB</td><td>{{formatLatency .TTFB.Min}}</td><td>{{formatLatency .TTFB.Mean}}</td><td>{{formatLatency .TTFB.P50}}</td><td>{{formatLatency .TTFB.P90}}</td><td>{{formatLatency .TTFB.P95}}</td><td>{{formatLatency .TTFB.P99}}</td><td>{{formatLatency .TTFB.Max}}</td></tr>
    </table>

    {{if .Transactions}}
    <h2>Transactions</h2>
    <table>
        <tr><th>Name</th><th>count</th><th>mean</th><th>p50</th><th>p95</th><th>p99</th></tr>
        {{range $name := .Transactions}}{{with index $.Report.Transactions $name}}
        <tr><td>{{$name}}</td><td>{{formatNumber .Count}}</td><td>{{formatLatency .Mean}}</td><td>{{formatLatency .P50}}</td><td>{{formatLatency .P95}}</td><td>{{formatLatency .P99}}</td></tr>
        {{end}}{{end}}
    </table>
    {{end}}

    {{if .Codes}}
    <h2>Status codes</h2>
    <table>
        <tr><th>Code</th><th>Responses</th></tr>
        {{range $code := .Codes}}
        <tr><td class="{{statusClass $code}}">{{$code}}</td><td>{{formatNumber (index $.Report.StatusCodes $code)}}</td></tr>
        {{end}}
    </table>
    {{end}}

    {{if .Failures}}
    <h2>Failures</h2>
    <table>
        <tr><th>Kind</th><th>Requests</th></tr>
        {{range $kind := .Failures}}
        <tr><td class="error">{{$kind}}</td><td>{{formatNumber (index $.Report.Failures $kind)}}</td></tr>
        {{end}}
    </table>
    {{end}}

    {{if .Scenarios}}
    <h2>Scenario iterations</h2>
    <table>
        <tr><th>Scenario</th><th>Iterations</th></tr>
        {{range $name := .Scenarios}}
        <tr><td>{{$name}}</td><td>{{formatNumber (index $.Report.Iterations $name)}}</td></tr>
        {{end}}
    </table>
    {{end}}
</div>
</body>
</html>
`

package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tmsproject/tms-loadtest/internal/loadtest"
	"github.com/tmsproject/tms-loadtest/internal/metrics"
)

func sampleReport() *metrics.Report {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := metrics.NewReport("2f1c", start)

	acc := metrics.NewAccumulator()
	for i := 0; i < 1500; i++ {
		acc.Record(metrics.Sample{Scenario: "getclient", Transaction: "getclient", StatusCode: 200, Latency: 12 * time.Millisecond})
	}
	acc.Record(metrics.Sample{Scenario: "getversion", Transaction: "getversion", StatusCode: 503, Latency: 3 * time.Millisecond})
	acc.Record(metrics.Sample{Scenario: "getversion", Transaction: "getversion", Failure: "transport", Latency: time.Millisecond})
	acc.RecordIteration("getclient")

	report.Merge(acc)
	report.Users = 10
	report.Finish(start.Add(90 * time.Second))
	return report
}

func TestSummary_Print(t *testing.T) {
	var buf bytes.Buffer
	NewSummary(&buf, NoColorScheme()).Print(sampleReport(), nil)
	out := buf.String()

	for _, want := range []string{
		"TMS load test 2f1c",
		"Completed ✓",
		"Duration:      1m 30s",
		"Users:         10",
		"Total Reqs:    1,502",
		"200  1,500",
		"503  1",
		"transport",
		"Latency Distribution:",
		"getclient",
		"getversion",
		"Scenario Iterations:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("summary contains ANSI codes with NoColorScheme")
	}
	if strings.Contains(out, "Abandoned") {
		t.Error("Abandoned printed although no user was abandoned")
	}
}

func TestSummary_Aborted(t *testing.T) {
	report := sampleReport()
	report.Abandoned = 2

	var buf bytes.Buffer
	NewSummary(&buf, nil).Print(report, errors.New("fatal configuration error"))
	out := buf.String()

	if !strings.Contains(out, "Aborted ✗") {
		t.Errorf("summary does not show abort:\n%s", out)
	}
	if !strings.Contains(out, "Abandoned:     2") {
		t.Errorf("summary does not show abandoned users:\n%s", out)
	}
	if !strings.Contains(out, "fatal configuration error") {
		t.Errorf("summary does not show the error:\n%s", out)
	}
}

func TestSummary_Colors(t *testing.T) {
	var buf bytes.Buffer
	NewSummary(&buf, DefaultColorScheme()).Print(sampleReport(), nil)

	if !strings.Contains(buf.String(), "\033[") {
		t.Error("summary has no ANSI codes with DefaultColorScheme")
	}
}

func TestSchemeFor_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	scheme := SchemeFor(&buf, false)
	if got := scheme.Success.Sprint("x"); got != "x" {
		t.Errorf("non-terminal writer got colored output %q", got)
	}
}

func TestColorScheme_Status(t *testing.T) {
	s := DefaultColorScheme()
	if s.Status(200) != s.StatusOK {
		t.Error("200 should use StatusOK")
	}
	if s.Status(404) != s.StatusWarn {
		t.Error("404 should use StatusWarn")
	}
	if s.Status(503) != s.StatusError {
		t.Error("503 should use StatusError")
	}
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteJSONFile(path, sampleReport()); err != nil {
		t.Fatalf("WriteJSONFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		RunID         string           `json:"runId"`
		TotalRequests int64            `json:"totalRequests"`
		Failures      map[string]int64 `json:"failures"`
		StatusCodes   map[string]int64 `json:"statusCodes"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.RunID != "2f1c" || decoded.TotalRequests != 1502 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Failures["transport"] != 1 || decoded.StatusCodes["503"] != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteJSONFile_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "report.json")
	if err := WriteJSONFile(path, sampleReport()); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, nil, 10*time.Millisecond)

	p.Record(loadtest.Outcome{Received: true})
	p.Record(loadtest.Outcome{Received: true})
	p.Record(loadtest.Outcome{Kind: loadtest.KindTransport})

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	out := buf.String()
	if !strings.Contains(out, "Reqs: 3") {
		t.Errorf("progress output = %q", out)
	}
	if !strings.Contains(out, "Errors: 1 (33.3%)") {
		t.Errorf("progress output = %q", out)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{3725 * time.Second, "1h 02m 05s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleReport(), nil); err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<!DOCTYPE html>",
		"TMS load test 2f1c",
		"Completed",
		"1,502",
		`<td class="error">503</td>`,
		`<td class="error">transport</td>`,
		"<td>getclient</td>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
}

func TestWriteHTML_Aborted(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleReport(), errors.New("virtual user 1: <missing> secret")); err != nil {
		t.Fatalf("WriteHTML() error = %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Aborted") {
		t.Error("aborted run not marked")
	}
	if !strings.Contains(out, "&lt;missing&gt;") {
		t.Error("error message not escaped")
	}
}

func TestWriteHTMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	if err := WriteHTMLFile(path, sampleReport(), nil); err != nil {
		t.Fatalf("WriteHTMLFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "<!DOCTYPE html>") {
		t.Error("file does not contain the HTML report")
	}

	if err := WriteHTML(&bytes.Buffer{}, nil, nil); err == nil {
		t.Error("WriteHTML(nil) expected error")
	}
}

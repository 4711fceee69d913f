package loadtest

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/tmsproject/tms-loadtest/internal/config"
	"github.com/tmsproject/tms-loadtest/internal/http"
)

// TransactionFunc performs one unit of work on behalf of vu.
//
// Per-request failures are reported in the Outcome. A non-nil error is fatal:
// it stops the virtual user and, through the scheduler, the whole run.
type TransactionFunc func(ctx context.Context, vu *VirtualUser) (Outcome, error)

// Transaction is a named TransactionFunc.
type Transaction struct {
	Name string
	Run  TransactionFunc
}

// TransactionRunner issues requests and classifies their responses.
// It holds no mutable state and is shared by every virtual user.
type TransactionRunner struct {
	cfg    *config.RuntimeConfig
	logger *zap.Logger
}

// NewTransactionRunner creates a runner. A nil logger discards output.
func NewTransactionRunner(cfg *config.RuntimeConfig, logger *zap.Logger) *TransactionRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionRunner{cfg: cfg, logger: logger}
}

// Execute sends spec over session and waits for the complete response.
//
// The request is detached from ctx cancellation so a stop signal never
// interrupts it mid-flight; the session timeout bounds it instead. Any status
// code counts as received. With response parsing disabled the body is drained
// without being kept.
func (r *TransactionRunner) Execute(ctx context.Context, name string, spec http.RequestSpec, session *http.Session) Outcome {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	outcome := Outcome{Transaction: name}

	resp, err := session.Send(ctx, spec)
	if err != nil {
		outcome.Kind = KindTransport
		outcome.Err = err
		outcome.Elapsed = time.Since(start)
		return outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode
	outcome.TTFB = resp.Timing.TimeToFirstByte

	if !r.cfg.ParseResponse() {
		// Drain errors are irrelevant when the body is not wanted.
		n, _ := io.Copy(io.Discard, resp.Body)
		outcome.Bytes = n
		outcome.Received = true
		outcome.Elapsed = time.Since(start)
		return outcome
	}

	body, err := io.ReadAll(resp.Body)
	outcome.Elapsed = time.Since(start)
	outcome.Bytes = int64(len(body))
	if err != nil {
		outcome.Kind = KindResponseRead
		outcome.Err = err
		return outcome
	}

	outcome.Received = true
	outcome.Body = body

	if r.cfg.Verbose() {
		r.emit(name, resp.StatusCode, body)
	}

	return outcome
}

// emit writes a parsed body to the log. JSON bodies are embedded as JSON.
func (r *TransactionRunner) emit(name string, status int, body []byte) {
	fields := []zap.Field{
		zap.String("transaction", name),
		zap.Int("status", status),
	}
	if len(body) > 0 && gjson.ValidBytes(body) {
		fields = append(fields, zap.Reflect("body", json.RawMessage(body)))
	} else {
		fields = append(fields, zap.String("body", string(body)))
	}
	r.logger.Info("response", fields...)
}

// Package loadtest runs virtual users that execute weighted scenarios of TMS
// transactions and aggregates what they observe.
package loadtest

import (
	"time"

	"github.com/tmsproject/tms-loadtest/internal/metrics"
)

// ErrorKind classifies why a transaction did not receive a response.
type ErrorKind string

const (
	// KindNone marks a received response, whatever its status code.
	KindNone ErrorKind = ""
	// KindTransport covers refused connections, DNS and TLS failures and
	// timeouts: no response head arrived.
	KindTransport ErrorKind = "transport"
	// KindResponseRead marks a response whose body could not be read. It is
	// recovered from exactly like KindTransport.
	KindResponseRead ErrorKind = "response_read"
)

// Outcome is the result of one transaction execution.
type Outcome struct {
	VU          int
	Iteration   int64
	Scenario    string
	Transaction string

	// Received is true when a response was received, regardless of status.
	Received bool
	Kind     ErrorKind
	Err      error

	// StatusCode is 0 when no response head arrived.
	StatusCode int
	Elapsed    time.Duration
	TTFB       time.Duration
	Bytes      int64

	// Body is only populated when response parsing is enabled.
	Body []byte
}

// Failed reports whether the transaction is counted as a failure.
func (o Outcome) Failed() bool {
	return !o.Received
}

// Sample converts the outcome into its metrics representation.
func (o Outcome) Sample() metrics.Sample {
	return metrics.Sample{
		Scenario:    o.Scenario,
		Transaction: o.Transaction,
		StatusCode:  o.StatusCode,
		Failure:     string(o.Kind),
		Latency:     o.Elapsed,
		TTFB:        o.TTFB,
		Bytes:       o.Bytes,
	}
}

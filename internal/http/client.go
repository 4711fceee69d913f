// Package http builds TMS requests and sends them over per-user sessions.
package http

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// SessionConfig contains HTTP client configuration for one virtual user.
type SessionConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultSessionConfig returns sensible defaults for load testing.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Timeout:             30 * time.Second,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// Session is one virtual user's private connection pool. Sessions are never
// shared between users.
type Session struct {
	client  *http.Client
	baseURL string
}

// NewSession creates a session sending requests to baseURL.
func NewSession(baseURL string, cfg SessionConfig) *Session {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Session{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		baseURL: baseURL,
	}
}

// BaseURL returns the target the session sends to.
func (s *Session) BaseURL() string {
	return s.baseURL
}

// Close releases idle connections.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}

// Timing breaks down where time went while waiting for the response head.
type Timing struct {
	StartTime        time.Time
	DNSLookupTime    time.Duration
	TCPConnectTime   time.Duration
	TLSHandshakeTime time.Duration
	TimeToFirstByte  time.Duration
	ConnReused       bool
}

// Response is a received response whose body has not been read yet. The
// caller must drain or read Body and close it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Timing     Timing
}

// Send issues spec and returns once the response head has arrived.
// Transport failures (refused connection, DNS, TLS, timeout) are returned as
// errors; any status code is a successful Send.
func (s *Session) Send(ctx context.Context, spec RequestSpec) (*Response, error) {
	timing := Timing{StartTime: time.Now()}

	var dnsStart, connectStart, tlsStart time.Time
	lastPhaseEnd := timing.StartTime

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			timing.ConnReused = info.Reused
		},
		DNSStart: func(httptrace.DNSStartInfo) {
			dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			lastPhaseEnd = time.Now()
			timing.DNSLookupTime = lastPhaseEnd.Sub(dnsStart)
		},
		ConnectStart: func(string, string) {
			connectStart = time.Now()
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				lastPhaseEnd = time.Now()
				timing.TCPConnectTime = lastPhaseEnd.Sub(connectStart)
			}
		},
		TLSHandshakeStart: func() {
			tlsStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				lastPhaseEnd = time.Now()
				timing.TLSHandshakeTime = lastPhaseEnd.Sub(tlsStart)
			}
		},
		GotFirstResponseByte: func() {
			timing.TimeToFirstByte = time.Since(lastPhaseEnd)
		},
	}

	req, err := spec.HTTPRequest(httptrace.WithClientTrace(ctx, trace), s.baseURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		Timing:     timing,
	}, nil
}

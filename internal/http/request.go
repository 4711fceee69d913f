package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tmsproject/tms-loadtest/internal/config"
)

// Header names sent to the TMS service.
const (
	HeaderTenant       = "X-TMS-TENANT"
	HeaderClientID     = "X-TMS-CLIENT-ID"
	HeaderClientSecret = "X-TMS-CLIENT-SECRET"
	HeaderContentType  = "Content-Type"

	contentTypeJSON = "application/json"
)

// AuthMode selects which identification headers a request carries.
type AuthMode int

const (
	// AuthNone sends no credentials, e.g. for the version request.
	AuthNone AuthMode = iota
	// AuthTenant sends the tenant, client id and client secret headers.
	AuthTenant
)

// RequestSpec is a fully specified outbound request. It is a value: the
// With* methods return modified copies and never touch the receiver.
type RequestSpec struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// WithHeader returns a copy of r with the header set.
func (r RequestSpec) WithHeader(key, value string) RequestSpec {
	headers := make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		headers[k] = v
	}
	headers[key] = value
	r.Headers = headers
	return r
}

// WithBody returns a copy of r carrying body. A JSON content type is set
// unless r already names one.
func (r RequestSpec) WithBody(body []byte) RequestSpec {
	r.Body = append([]byte(nil), body...)
	if _, ok := r.Headers[HeaderContentType]; !ok {
		r = r.WithHeader(HeaderContentType, contentTypeJSON)
	}
	return r
}

// HTTPRequest constructs an *http.Request for r against baseURL.
func (r RequestSpec) HTTPRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	reqURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	// Split off a query string carried in the path
	path, rawQuery, _ := strings.Cut(r.Path, "?")

	if reqURL.Path == "" {
		reqURL.Path = "/" + strings.TrimLeft(path, "/")
	} else {
		reqURL.Path = strings.TrimRight(reqURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}
	if rawQuery != "" {
		reqURL.RawQuery = rawQuery
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, reqURL.String(), body)
	if err != nil {
		return nil, err
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// Builder produces RequestSpecs from the shared runtime configuration.
// It holds no mutable state and is safe for concurrent use.
type Builder struct {
	cfg *config.RuntimeConfig
}

// NewBuilder returns a Builder reading credentials from cfg.
func NewBuilder(cfg *config.RuntimeConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Build returns the request for method and path.
//
// With AuthTenant every identification header must be configured; a missing
// one yields a *config.FatalConfigurationError and no request. AuthNone never
// reads the credentials.
func (b *Builder) Build(method, path string, auth AuthMode) (RequestSpec, error) {
	spec := RequestSpec{
		Method:  method,
		Path:    path,
		Headers: map[string]string{},
	}

	if auth == AuthNone {
		return spec, nil
	}

	tenant, err := b.cfg.Require(config.KeyTenant)
	if err != nil {
		return RequestSpec{}, err
	}
	clientID, err := b.cfg.Require(config.KeyClientID)
	if err != nil {
		return RequestSpec{}, err
	}
	secret, err := b.cfg.Require(config.KeyClientSecret)
	if err != nil {
		return RequestSpec{}, err
	}

	spec.Headers[HeaderTenant] = tenant
	spec.Headers[HeaderClientID] = clientID
	spec.Headers[HeaderClientSecret] = secret
	spec.Headers[HeaderContentType] = contentTypeJSON

	return spec, nil
}

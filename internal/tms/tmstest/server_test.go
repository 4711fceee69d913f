package tmstest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string, headers map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHandler(t *testing.T) {
	h := NewHandler("2.1.0", map[string]Client{"testclient1": {Tenant: "test", Secret: "secret1"}}, 0)
	server := httptest.NewServer(h)
	defer server.Close()

	creds := map[string]string{
		"X-TMS-TENANT":        "test",
		"X-TMS-CLIENT-ID":     "testclient1",
		"X-TMS-CLIENT-SECRET": "secret1",
	}
	wrongSecret := map[string]string{
		"X-TMS-TENANT":        "test",
		"X-TMS-CLIENT-ID":     "testclient1",
		"X-TMS-CLIENT-SECRET": "nope",
	}

	tests := []struct {
		name     string
		path     string
		headers  map[string]string
		wantCode int
		wantBody string
	}{
		{"version", "/v1/tms/version", nil, http.StatusOK, `"version":"2.1.0"`},
		{"client", "/v1/tms/client/testclient1", creds, http.StatusOK, `"clientId":"testclient1"`},
		{"no credentials", "/v1/tms/client/testclient1", nil, http.StatusUnauthorized, "missing"},
		{"wrong secret", "/v1/tms/client/testclient1", wrongSecret, http.StatusForbidden, "invalid"},
		{"unknown client", "/v1/tms/client/other", creds, http.StatusNotFound, "unknown"},
		{"health", "/health", nil, http.StatusOK, "OK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, server.URL+tt.path, tt.headers)
			assert.Equal(t, tt.wantCode, code)
			assert.True(t, strings.Contains(body, tt.wantBody), "body = %s", body)
		})
	}

	assert.Equal(t, int64(len(tests)), h.Hits())
	assert.Equal(t, int64(3), h.StatusCount(http.StatusOK))
	assert.Equal(t, int64(1), h.StatusCount(http.StatusUnauthorized))
}

func TestHandler_Latency(t *testing.T) {
	server := httptest.NewServer(NewHandler("1", nil, 50*time.Millisecond))
	defer server.Close()

	start := time.Now()
	code, _ := get(t, server.URL+"/v1/tms/version", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

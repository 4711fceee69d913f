// Package tmstest provides an in-memory TMS service for exercising the load
// generator without a real deployment.
package tmstest

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	tmshttp "github.com/tmsproject/tms-loadtest/internal/http"
)

// Client is a registered TMS client and the credentials it must present.
type Client struct {
	Tenant string
	Secret string
}

// Handler serves the TMS endpoints the load generator calls.
type Handler struct {
	version string
	clients map[string]Client
	latency time.Duration

	mux   *http.ServeMux
	hits  atomic.Int64
	mu    sync.Mutex
	codes map[int]int64
}

// NewHandler returns a handler reporting version and accepting the given
// clients, keyed by client id. Every response is delayed by latency.
func NewHandler(version string, clients map[string]Client, latency time.Duration) *Handler {
	h := &Handler{
		version: version,
		clients: clients,
		latency: latency,
		mux:     http.NewServeMux(),
		codes:   make(map[int]int64),
	}
	h.mux.HandleFunc("GET /v1/tms/version", h.getVersion)
	h.mux.HandleFunc("GET /v1/tms/client/{id}", h.getClient)
	h.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.hits.Add(1)
	if h.latency > 0 {
		select {
		case <-time.After(h.latency):
		case <-r.Context().Done():
			return
		}
	}
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	h.mux.ServeHTTP(rec, r)

	h.mu.Lock()
	h.codes[rec.code]++
	h.mu.Unlock()
}

// Hits returns the number of requests received.
func (h *Handler) Hits() int64 {
	return h.hits.Load()
}

// StatusCount returns how many responses were sent with code.
func (h *Handler) StatusCount(code int) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.codes[code]
}

func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tenant := r.Header.Get(tmshttp.HeaderTenant)
	secret := r.Header.Get(tmshttp.HeaderClientSecret)

	if tenant == "" || secret == "" || r.Header.Get(tmshttp.HeaderClientID) == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing tenant credentials"})
		return
	}

	client, ok := h.clients[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown client"})
		return
	}
	if client.Tenant != tenant || client.Secret != secret {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"clientId": id, "tenant": tenant})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

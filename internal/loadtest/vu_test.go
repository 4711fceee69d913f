package loadtest

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tmsproject/tms-loadtest/internal/config"
	"github.com/tmsproject/tms-loadtest/internal/http"
)

// getTx requests path without credentials.
func getTx(name, path string) Transaction {
	return Transaction{
		Name: name,
		Run: func(ctx context.Context, vu *VirtualUser) (Outcome, error) {
			spec, err := vu.Builder().Build("GET", path, http.AuthNone)
			if err != nil {
				return Outcome{}, err
			}
			return vu.Do(ctx, name, spec), nil
		},
	}
}

// tenantTx requests path with tenant credentials.
func tenantTx(name, path string) Transaction {
	return Transaction{
		Name: name,
		Run: func(ctx context.Context, vu *VirtualUser) (Outcome, error) {
			spec, err := vu.Builder().Build("GET", path, http.AuthTenant)
			if err != nil {
				return Outcome{}, err
			}
			return vu.Do(ctx, name, spec), nil
		},
	}
}

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (l *outcomeLog) record(o Outcome) {
	l.mu.Lock()
	l.outcomes = append(l.outcomes, o)
	l.mu.Unlock()
}

func (l *outcomeLog) all() []Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Outcome(nil), l.outcomes...)
}

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestVU(t *testing.T, cfg *config.RuntimeConfig, scenarios ...*Scenario) *VirtualUser {
	t.Helper()
	selector, err := NewSelector(config.SelectionRoundRobin, scenarios, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	session := http.NewSession(cfg.Host(), http.DefaultSessionConfig())
	t.Cleanup(session.Close)
	return NewVirtualUser(1, cfg, session, NewTransactionRunner(cfg, nil), selector)
}

func TestVirtualUser_OrderWithinScenario(t *testing.T) {
	server := okServer(t)
	cfg := runtimeConfig(server.URL, nil)

	scenario := NewScenario("workflow", 1,
		getTx("first", "/1"),
		getTx("second", "/2"),
		getTx("third", "/3"),
	)
	vu := newTestVU(t, cfg, scenario)
	vu.SetIterationLimit(25)

	log := &outcomeLog{}
	vu.SetFeed(log.record)

	if err := vu.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	outcomes := log.all()
	if len(outcomes) != 75 {
		t.Fatalf("got %d outcomes, want 75", len(outcomes))
	}
	want := []string{"first", "second", "third"}
	for i, o := range outcomes {
		if o.Transaction != want[i%3] {
			t.Fatalf("outcome %d is %s, want %s", i, o.Transaction, want[i%3])
		}
		if o.Iteration != int64(i/3+1) {
			t.Fatalf("outcome %d iteration = %d, want %d", i, o.Iteration, i/3+1)
		}
		if o.Scenario != "workflow" || o.VU != 1 {
			t.Fatalf("outcome %d = %+v", i, o)
		}
	}

	if vu.GetIteration() != 25 {
		t.Errorf("GetIteration() = %d, want 25", vu.GetIteration())
	}
	if vu.GetState() != VUStateStopped {
		t.Errorf("state = %v, want stopped", vu.GetState())
	}
	if vu.Accumulator().Iterations("workflow") != 25 {
		t.Errorf("accumulated iterations = %d", vu.Accumulator().Iterations("workflow"))
	}
	if vu.Accumulator().Requests() != 75 {
		t.Errorf("accumulated requests = %d", vu.Accumulator().Requests())
	}
}

func TestVirtualUser_StopBetweenTransactions(t *testing.T) {
	server := okServer(t)
	cfg := runtimeConfig(server.URL, nil)

	stopping := Transaction{
		Name: "stopper",
		Run: func(ctx context.Context, u *VirtualUser) (Outcome, error) {
			spec, _ := u.Builder().Build("GET", "/", http.AuthNone)
			u.RequestStop()
			// The in-flight transaction still completes
			return u.Do(ctx, "stopper", spec), nil
		},
	}
	vu := newTestVU(t, cfg, NewScenario("s", 1, stopping, getTx("never", "/never")))

	log := &outcomeLog{}
	vu.SetFeed(log.record)

	if err := vu.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	outcomes := log.all()
	if len(outcomes) != 1 || outcomes[0].Transaction != "stopper" || !outcomes[0].Received {
		t.Fatalf("outcomes = %+v, want only the completed stopper", outcomes)
	}
	if vu.GetIteration() != 0 {
		t.Errorf("an interrupted scenario counted as iteration")
	}
	if vu.GetState() != VUStateStopped {
		t.Errorf("state = %v, want stopped", vu.GetState())
	}
}

func TestVirtualUser_FailuresDoNotStopLoop(t *testing.T) {
	server := httptest.NewServer(nethttp.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := runtimeConfig(url, nil)
	vu := newTestVU(t, cfg, NewScenario("s", 1, getTx("refused", "/")))
	vu.SetIterationLimit(5)

	if err := vu.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if vu.Accumulator().Failed() != 5 {
		t.Errorf("failed = %d, want 5", vu.Accumulator().Failed())
	}
}

func TestVirtualUser_FatalErrorStops(t *testing.T) {
	var hits int
	var mu sync.Mutex
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
	}))
	defer server.Close()

	cfg := runtimeConfig(server.URL, config.MapEnvironment{
		config.EnvTenant:   "test",
		config.EnvClientID: "testclient1",
	})
	vu := newTestVU(t, cfg, NewScenario("getclient", 1, tenantTx("getclient", "/v1/tms/client/testclient1")))

	err := vu.Run(context.Background())

	var fatal *config.FatalConfigurationError
	if !errors.As(err, &fatal) {
		t.Fatalf("Run() error = %v, want *FatalConfigurationError", err)
	}
	if fatal.Key != config.KeyClientSecret {
		t.Errorf("Key = %s, want %s", fatal.Key, config.KeyClientSecret)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 0 {
		t.Errorf("server received %d requests, want 0", hits)
	}
}

func TestVirtualUser_CancelledContext(t *testing.T) {
	server := okServer(t)
	vu := newTestVU(t, runtimeConfig(server.URL, nil), NewScenario("s", 1, getTx("t", "/")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := vu.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if vu.Accumulator().Requests() != 0 {
		t.Errorf("requests = %d, want 0", vu.Accumulator().Requests())
	}
}

func TestVirtualUser_StateLifecycle(t *testing.T) {
	vu := NewVirtualUser(1, runtimeConfig("http://localhost", nil), nil, nil, nil)

	if vu.GetState() != VUStateIdle {
		t.Errorf("initial state = %v, want idle", vu.GetState())
	}

	vu.RequestStop()
	if vu.GetState() != VUStateStopping {
		t.Errorf("state = %v, want stopping", vu.GetState())
	}
	// A second request is harmless
	vu.RequestStop()

	if vu.WaitForStop(10 * time.Millisecond) {
		t.Error("WaitForStop() = true before MarkStopped")
	}

	vu.MarkStopped()
	vu.MarkStopped()
	if !vu.WaitForStop(time.Second) {
		t.Error("WaitForStop() = false after MarkStopped")
	}
	if vu.GetState().String() != "stopped" {
		t.Errorf("String() = %s", vu.GetState().String())
	}
}

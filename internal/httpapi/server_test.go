package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antoniostano/ascolta/internal/eventlog"
	"github.com/antoniostano/ascolta/internal/observability"
	"github.com/antoniostano/ascolta/internal/session"
)

type statusStub struct {
	snap session.StatusSnapshot
}

func (s statusStub) Status() session.StatusSnapshot { return s.snap }

func TestStatusEndpoint(t *testing.T) {
	srv := New(statusStub{snap: session.StatusSnapshot{
		Phase:             session.PhaseArmed,
		CompletedSessions: 3,
		LastEndReason:     "completed",
	}}, eventlog.NewInMemoryStore(8), nil)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("status request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var got session.StatusSnapshot
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if got.Phase != session.PhaseArmed || got.CompletedSessions != 3 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestEventsEndpoint(t *testing.T) {
	store := eventlog.NewInMemoryStore(8)
	if err := store.Insert(context.Background(), eventlog.Record{
		ID:        "s-1",
		HotwordID: "ascolta",
		StartedAt: time.Now().Add(-time.Minute),
		EndedAt:   time.Now(),
		EndReason: "completed",
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	srv := New(statusStub{}, store, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/events?limit=10")
	if err != nil {
		t.Fatalf("events request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var got struct {
		Events []eventlog.Record `json:"events"`
	}
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode events response: %v", err)
	}
	if len(got.Events) != 1 || got.Events[0].ID != "s-1" {
		t.Fatalf("events = %+v", got.Events)
	}
}

func TestEventsEndpointRejectsBadLimit(t *testing.T) {
	srv := New(statusStub{}, eventlog.NewInMemoryStore(8), nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, limit := range []string{"0", "-3", "notanumber", "5000"} {
		res, err := http.Get(ts.URL + "/v1/events?limit=" + limit)
		if err != nil {
			t.Fatalf("events request error = %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("limit %q: status = %d, want %d", limit, res.StatusCode, http.StatusBadRequest)
		}
	}
}

func TestLatencyEndpoint(t *testing.T) {
	window := observability.NewLatencyWindow(16)
	window.Observe(observability.StageSessionTotal, 2*time.Second)
	srv := New(statusStub{}, nil, window)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/latency")
	if err != nil {
		t.Fatalf("latency request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var got observability.LatencySnapshot
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode latency response: %v", err)
	}
	if len(got.Stages) != 1 || got.Stages[0].Stage != observability.StageSessionTotal {
		t.Fatalf("stages = %+v", got.Stages)
	}
	if got.Stages[0].LastMS != 2000 {
		t.Fatalf("LastMS = %.2f, want 2000", got.Stages[0].LastMS)
	}
}

func TestReadyReflectsPhase(t *testing.T) {
	armed := New(statusStub{snap: session.StatusSnapshot{Phase: session.PhaseArmed}}, nil, nil)
	stopped := New(statusStub{snap: session.StatusSnapshot{Phase: session.PhaseStopped}}, nil, nil)

	tsArmed := httptest.NewServer(armed.Router())
	defer tsArmed.Close()
	tsStopped := httptest.NewServer(stopped.Router())
	defer tsStopped.Close()

	res, err := http.Get(tsArmed.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz request error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("armed readyz = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res, err = http.Get(tsStopped.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz request error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("stopped readyz = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/robojar-core/internal/device"
)

func applied(name string, kind device.Kind, from, to device.State) device.Transition {
	return device.Transition{Device: name, Kind: kind, From: from, To: to, Outcome: device.OutcomeApplied}
}

func TestObserveTransition(t *testing.T) {
	m := New()

	m.ObserveTransition(applied("Valve 1", device.KindValve, device.StateIdle, device.StateOpening))
	m.ObserveTransition(applied("Valve 1", device.KindValve, device.StateOpening, device.StateOpen))
	m.ObserveTransition(device.Transition{
		Device: "Valve 1", Kind: device.KindValve,
		From: device.StateOpen, To: device.StateIdle, Outcome: device.OutcomeRejected,
	})

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("valve", "OPEN")); got != 1 {
		t.Errorf("transitions{valve,OPEN} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("valve", "IDLE")); got != 0 {
		t.Errorf("rejected transition counted: %v", got)
	}

	tests := []struct {
		state device.State
		want  float64
	}{
		{device.StateIdle, 0},
		{device.StateOpening, 0},
		{device.StateOpen, 1},
		{device.StateClosing, 0},
		{device.StateClosed, 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.deviceState.WithLabelValues("Valve 1", "valve", string(tt.state)))
		if got != tt.want {
			t.Errorf("state{%s} = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.RecordCommand("api", "applied")
	m.RecordCommand("api", "applied")
	m.RecordCommand("mqtt", "rejected")
	m.RecordLedgerFailure()
	m.RecordDropped(device.Transition{})
	m.RecordDropped(device.Transition{})

	if got := testutil.ToFloat64(m.commands.WithLabelValues("api", "applied")); got != 2 {
		t.Errorf("commands{api,applied} = %v", got)
	}
	if got := testutil.ToFloat64(m.ledgerFailures); got != 1 {
		t.Errorf("ledger failures = %v", got)
	}
	if got := testutil.ToFloat64(m.droppedEvents); got != 2 {
		t.Errorf("dropped = %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetDeviceState("Main Pump", device.KindPump, device.StateRunning)
	m.ObserveHTTP(http.MethodPost, "/api/v1/reset", http.StatusOK, 3*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`robojar_device_state{device="Main Pump",kind="pump",state="RUNNING"} 1`,
		`robojar_http_request_duration_seconds_count{method="POST",route="/api/v1/reset",status="200"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNew_Independent(t *testing.T) {
	a, b := New(), New()
	a.RecordLedgerFailure()
	if testutil.ToFloat64(b.ledgerFailures) != 0 {
		t.Error("registries share state")
	}
}

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsRepeatable(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestOutcomeLabels(t *testing.T) {
	if got := Outcome(nil, nil); got != "ok" {
		t.Fatalf("got %q", got)
	}
	if got := Outcome(errors.New("x"), nil); got != "error" {
		t.Fatalf("got %q", got)
	}
	if got := Outcome(errors.New("x"), func(error) string { return "not_found" }); got != "not_found" {
		t.Fatalf("got %q", got)
	}
	before := testutil.ToFloat64(XPAwards.WithLabelValues("completed"))
	XPAwards.WithLabelValues("completed").Inc()
	if got := testutil.ToFloat64(XPAwards.WithLabelValues("completed")); got != before+1 {
		t.Fatalf("counter not incremented")
	}
}

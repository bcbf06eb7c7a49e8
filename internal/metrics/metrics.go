package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EngineOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "techcomm_engine_operations_total", Help: "Lifecycle engine operations by outcome"},
		[]string{"op", "outcome"},
	)
	XPAwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "techcomm_xp_awards_total", Help: "XP award runs by result"},
		[]string{"result"},
	)
	StoreCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "techcomm_store_calls_total", Help: "Data adapter calls by backend and outcome"},
		[]string{"backend", "op", "outcome"},
	)
	NameCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "techcomm_name_cache_lookups_total", Help: "Display name cache lookups"},
		[]string{"result"},
	)
)

// Register adds the collectors to reg. Collectors already registered are
// left in place, so Register may be called once per server instance.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{EngineOperations, XPAwards, StoreCalls, NameCacheLookups} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Outcome labels an error for counters.
func Outcome(err error, kind func(error) string) string {
	if err == nil {
		return "ok"
	}
	if kind != nil {
		return kind(err)
	}
	return "error"
}

// Package observability carries the prometheus metric set shared by the
// router and the transport handlers.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

type Metrics struct {
	registry *prometheus.Registry

	RecordsRouted         *prometheus.CounterVec
	RecordsReplayed       prometheus.Counter
	ParseFailures         prometheus.Counter
	RegistrationsRejected prometheus.Counter
	OnlineSessions        *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RecordsRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helphub_records_routed_total",
			Help: "Routable records accepted by the routing core, by kind.",
		}, []string{"kind"}),
		RecordsReplayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "helphub_records_replayed_total",
			Help: "Pending records flushed to reconnecting identities.",
		}),
		ParseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "helphub_wire_parse_failures_total",
			Help: "Inbound lines or frames discarded as malformed.",
		}),
		RegistrationsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "helphub_registrations_rejected_total",
			Help: "Registration attempts rejected (duplicate or empty identity).",
		}),
		OnlineSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "helphub_online_sessions",
			Help: "Live sessions by transport.",
		}, []string{"transport"}),
	}
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

var Module = fx.Module("observability",
	fx.Provide(New),
)

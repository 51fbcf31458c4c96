package monitor

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"market-gateway/pkg/apierr"
)

var connectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "gateway_connection_state",
	Help: "Connection state per context (0 disconnected .. 4 reconnecting)",
}, []string{"context"})

var requestDurations = prometheus.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "gateway_request_duration_us",
	Help:       "gateway request durations microseconds",
	AgeBuckets: 1,
}, []string{"context", "cmd"})

var requestOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_request_count",
	Help: "gateway requests by outcome",
}, []string{"context", "outcome"})

var pushCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_push_count",
	Help: "gateway income push counters",
}, []string{"context", "kind"})

var dropCounters = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_dispatch_drop_count",
	Help: "push events dropped on full dispatcher queues",
}, []string{"kind"})

var transitionRejects = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "gateway_order_transition_reject_count",
	Help: "order status pushes that violated the status machine",
})

func init() {
	prometheus.MustRegister(connectionState, requestDurations, requestOutcomes, pushCounters, dropCounters, transitionRejects)
}

// SetConnectionState records the numeric state of a context's connection.
func SetConnectionState(context string, state int) {
	connectionState.WithLabelValues(context).Set(float64(state))
}

// ObserveRequest records one correlated request.
func ObserveRequest(context string, cmd uint8, d time.Duration, err error) {
	requestDurations.WithLabelValues(context, strconv.Itoa(int(cmd))).Observe(float64(d.Microseconds()))
	requestOutcomes.WithLabelValues(context, Outcome(err)).Inc()
	Default.RequestLatency(context).RecordDuration(d)
	if err != nil {
		Default.IncrementErrors()
	}
}

// ObservePush counts an inbound push by kind.
func ObservePush(context, kind string) {
	pushCounters.WithLabelValues(context, kind).Inc()
	Default.IncrementPushes()
}

// DispatchDropped counts a push dropped on a full queue.
func DispatchDropped(kind string) {
	dropCounters.WithLabelValues(kind).Inc()
	Default.IncrementDrops()
}

// TransitionRejected counts an order status push the state machine refused.
func TransitionRejected() {
	transitionRejects.Inc()
	Default.IncrementRejects()
}

// Outcome maps an error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apierr.ErrTimeout):
		return "timeout"
	case errors.Is(err, apierr.ErrServer):
		return "server_error"
	case errors.Is(err, apierr.ErrConnectionClosed):
		return "closed"
	case errors.Is(err, apierr.ErrNotConnected):
		return "not_connected"
	default:
		return "error"
	}
}

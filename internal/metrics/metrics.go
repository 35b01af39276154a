package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reepay_bridge"

// Counter keeps a local count for the JSON summary and mirrors every
// increment into its Prometheus series when one is attached.
type Counter struct {
	value uint64
	prom  prometheus.Counter
}

func newCounter(name, help string) *Counter {
	return &Counter{
		prom: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}),
	}
}

func (c *Counter) Inc() {
	c.Add(1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
	if c.prom != nil {
		c.prom.Add(float64(n))
	}
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

// Operation outcomes recorded on the duration histogram.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeGateway  = "gateway_error"
	OutcomeError    = "error"
)

var operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "operation_duration_seconds",
	Help:      "Duration of payment operations against Reepay",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation", "outcome"})

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Observe records the elapsed time for operation and returns it.
func (t *Timer) Observe(operation, outcome string) time.Duration {
	d := t.Duration()
	operationDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
	return d
}

var (
	CheckoutSessions   = newCounter("checkout_sessions_total", "Checkout sessions created or reused")
	CheckoutFailures   = newCounter("checkout_failures_total", "Checkouts that returned an unavailable form or an error")
	WebhooksReceived   = newCounter("webhooks_received_total", "Reepay webhook deliveries received")
	WebhooksRejected   = newCounter("webhooks_rejected_total", "Webhook deliveries rejected before processing")
	WebhooksDuplicate  = newCounter("webhooks_duplicate_total", "Webhook deliveries already processed")
	WebhooksApplied    = newCounter("webhooks_applied_total", "Webhook deliveries applied to an order")
	WebhooksIgnored    = newCounter("webhooks_ignored_total", "Webhook deliveries acknowledged without a change")
	OperationsApplied  = newCounter("operations_applied_total", "Operator payment operations stored")
	OperationConflicts = newCounter("operation_conflicts_total", "Operator payment operations refused by charge state")
	GatewayFailures    = newCounter("gateway_failures_total", "Operator payment operations failed at Reepay")
)

// Snapshot returns the current value of every payment counter.
func Snapshot() map[string]uint64 {
	return map[string]uint64{
		"checkout_sessions":   CheckoutSessions.Load(),
		"checkout_failures":   CheckoutFailures.Load(),
		"webhooks_received":   WebhooksReceived.Load(),
		"webhooks_rejected":   WebhooksRejected.Load(),
		"webhooks_duplicate":  WebhooksDuplicate.Load(),
		"webhooks_applied":    WebhooksApplied.Load(),
		"webhooks_ignored":    WebhooksIgnored.Load(),
		"operations_applied":  OperationsApplied.Load(),
		"operation_conflicts": OperationConflicts.Load(),
		"gateway_failures":    GatewayFailures.Load(),
	}
}

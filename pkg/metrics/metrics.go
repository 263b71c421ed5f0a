package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink receives delivery counters and timers from the pipeline and the
// dispatcher. It is injected rather than referenced as process-wide state
// so tests can observe or discard recordings.
type Sink interface {
	EmailSent(template string, elapsed time.Duration)
	EmailFailed(template string)
	DeliveryAttempt(host string, success bool)
	MessageConsumed(queue string, outcome string)
}

var (
	EmailsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailfleet_emails_sent_total",
		Help: "Total number of emails delivered successfully",
	}, []string{"template"})
	EmailsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailfleet_emails_failed_total",
		Help: "Total number of emails whose delivery failed after all attempts",
	}, []string{"template"})
	SendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailfleet_email_send_duration_seconds",
		Help:    "Wall-clock duration of the full dispatch pipeline per email",
		Buckets: prometheus.DefBuckets,
	}, []string{"template"})
	DeliveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailfleet_delivery_attempts_total",
		Help: "Individual SMTP delivery attempts by outcome",
	}, []string{"host", "outcome"})
	MessagesConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailfleet_queue_messages_total",
		Help: "Queue envelopes processed by queue and outcome (ack, requeue, discard)",
	}, []string{"queue", "outcome"})
	TemplateOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailfleet_template_operations_total",
		Help: "Template store operations by type",
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(
		EmailsSent,
		EmailsFailed,
		SendDuration,
		DeliveryAttempts,
		MessagesConsumed,
		TemplateOperations,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Prometheus is the Sink backed by the process-wide Prometheus registry.
type Prometheus struct{}

func (Prometheus) EmailSent(template string, elapsed time.Duration) {
	EmailsSent.WithLabelValues(template).Inc()
	SendDuration.WithLabelValues(template).Observe(elapsed.Seconds())
}

func (Prometheus) EmailFailed(template string) {
	EmailsFailed.WithLabelValues(template).Inc()
}

func (Prometheus) DeliveryAttempt(host string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	DeliveryAttempts.WithLabelValues(host, outcome).Inc()
}

func (Prometheus) MessageConsumed(queue, outcome string) {
	MessagesConsumed.WithLabelValues(queue, outcome).Inc()
}

// Nop discards all recordings. Useful in tests.
type Nop struct{}

func (Nop) EmailSent(string, time.Duration) {}
func (Nop) EmailFailed(string)              {}
func (Nop) DeliveryAttempt(string, bool)    {}
func (Nop) MessageConsumed(string, string)  {}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters for the message and payment flows. All methods
// are nil-safe so tests and partially wired services can pass nil.
type Metrics struct {
	messagesTotal  *prometheus.CounterVec
	paymentsTotal  *prometheus.CounterVec
	callbacksTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "afyachat",
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Total inbound messages by classified intent",
		}, []string{"intent"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "afyachat",
			Subsystem: "payments",
			Name:      "initiations_total",
			Help:      "Total payment initiations by channel and outcome",
		}, []string{"channel", "outcome"}),
		callbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "afyachat",
			Subsystem: "payments",
			Name:      "callbacks_total",
			Help:      "Total payment callbacks by reconciliation outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.paymentsTotal, m.callbacksTotal)
	return m
}

func (m *Metrics) ObserveMessage(intent string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(intent).Inc()
}

func (m *Metrics) ObservePayment(channel, outcome string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ObserveCallback(outcome string) {
	if m == nil {
		return
	}
	m.callbacksTotal.WithLabelValues(outcome).Inc()
}

package accounts

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts authentication and token outcomes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	auth   *prometheus.CounterVec
	tokens *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ydns_accounts_auth_total",
			Help: "Authentication attempts by channel and result.",
		}, []string{"channel", "result"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ydns_accounts_tokens_total",
			Help: "Token ledger operations by kind, operation and result.",
		}, []string{"kind", "op", "result"}),
	}
	reg.MustRegister(m.auth, m.tokens)
	return m
}

// RecordAuth records the outcome of a sign-in through channel.
func (m *Metrics) RecordAuth(channel AccountType, err error) {
	if m == nil {
		return
	}
	m.auth.WithLabelValues(string(channel), resultLabel(err)).Inc()
}

// RecordToken records a ledger operation ("issue", "consume", "reap").
func (m *Metrics) RecordToken(kind TokenKind, op string, err error) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(string(kind), op, resultLabel(err)).Inc()
}

// MetricsHandler serves the Prometheus scrape endpoint for gatherer.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	authErr, _ := PublicError(err)
	return authErr.Code
}

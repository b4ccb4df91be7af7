package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "workos_auth"

// Metrics counts the outcome of each step of the sign-in flow per auth
// instance.
type Metrics struct {
	SignIns   *prometheus.CounterVec
	Callbacks *prometheus.CounterVec
	SignOuts  *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_total",
			Help:      "Sign-in redirects to WorkOS by result.",
		}, []string{"instance", "result"}),
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_total",
			Help:      "OAuth callbacks handled by result.",
		}, []string{"instance", "result"}),
		SignOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signout_total",
			Help:      "Sign-outs by result.",
		}, []string{"instance", "result"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Provider token refreshes by result.",
		}, []string{"instance", "result"}),
	}
	reg.MustRegister(m.SignIns, m.Callbacks, m.SignOuts, m.Refreshes)
	return m
}

// Step identifies a stage of the sign-in flow.
type Step int

const (
	SignIn Step = iota
	Callback
	SignOut
	Refresh
)

// Record counts one outcome of step. A nil Metrics records nothing.
func (m *Metrics) Record(step Step, instance, result string) {
	if m == nil {
		return
	}
	var c *prometheus.CounterVec
	switch step {
	case SignIn:
		c = m.SignIns
	case Callback:
		c = m.Callbacks
	case SignOut:
		c = m.SignOuts
	case Refresh:
		c = m.Refreshes
	default:
		return
	}
	c.WithLabelValues(instance, result).Inc()
}

// Package metrics exposes evaluator activity as Prometheus counters.
package metrics

import prom "github.com/prometheus/client_golang/prometheus"

// Operation labels of fhecdsa_backend_ops_total.
const (
	OpEncrypt   = "encrypt"
	OpAdd       = "add"
	OpSub       = "sub"
	OpMulPlain  = "mul_plain"
	OpMulCipher = "mul_cipher"
	OpSelect    = "select"
	OpBootstrap = "bootstrap"
)

var opLabels = []string{OpEncrypt, OpAdd, OpSub, OpMulPlain, OpMulCipher, OpSelect, OpBootstrap}

// Metrics holds the engine's counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	BackendOps *prom.CounterVec
	Refreshes  prom.Counter
	Signatures *prom.CounterVec

	ops map[string]prom.Counter
}

// New creates the counters and registers them on reg. A nil registerer
// leaves them unregistered, which suits tests.
func New(reg prom.Registerer) (*Metrics, error) {
	m := &Metrics{
		BackendOps: prom.NewCounterVec(
			prom.CounterOpts{
				Name: "fhecdsa_backend_ops_total",
				Help: "Homomorphic operations issued to the backend",
			},
			[]string{"op"}),
		Refreshes: prom.NewCounter(
			prom.CounterOpts{
				Name: "fhecdsa_refreshes_total",
				Help: "Bootstraps issued by the noise scheduler",
			}),
		Signatures: prom.NewCounterVec(
			prom.CounterOpts{
				Name: "fhecdsa_signatures_total",
				Help: "Signing requests by outcome",
			},
			[]string{"result"}),
		ops: make(map[string]prom.Counter, len(opLabels)),
	}
	for _, op := range opLabels {
		m.ops[op] = m.BackendOps.WithLabelValues(op)
	}
	if reg != nil {
		for _, c := range []prom.Collector{m.BackendOps, m.Refreshes, m.Signatures} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Op counts one backend call.
func (m *Metrics) Op(op string) {
	if m == nil {
		return
	}
	if c, ok := m.ops[op]; ok {
		c.Inc()
		return
	}
	m.BackendOps.WithLabelValues(op).Inc()
}

// Refresh counts one scheduled refresh.
func (m *Metrics) Refresh() {
	if m == nil {
		return
	}
	m.Refreshes.Inc()
}

// Signature counts one finished signing request.
func (m *Metrics) Signature(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Signatures.WithLabelValues("error").Inc()
		return
	}
	m.Signatures.WithLabelValues("ok").Inc()
}

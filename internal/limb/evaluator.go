// Package limb represents large integers as vectors of small encrypted limbs
// and schedules refreshes so that no limb outgrows its noise budget.
package limb

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/smallyu/go-fhe-ecdsa/internal/metrics"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Limb is one encrypted digit. Degree is a public upper bound on the
// plaintext and noise is the budget consumed since the last bootstrap; both
// travel with the ciphertext and depend only on the circuit, never on data.
type Limb struct {
	ct     fhe.Ciphertext
	degree uint64
	noise  int
}

// Ciphertext returns the backend handle.
func (l Limb) Ciphertext() fhe.Ciphertext { return l.ct }

// Degree returns the public upper bound of the plaintext.
func (l Limb) Degree() uint64 { return l.degree }

// Noise returns the consumed noise budget.
func (l Limb) Noise() int { return l.noise }

// Evaluator issues backend operations on limbs. Before every operation it
// refreshes any operand whose noise plus the operation's cost would pass the
// threshold, and it rejects results whose degree would wrap the plaintext
// modulus. It is safe for concurrent use.
type Evaluator struct {
	backend   fhe.Backend
	desc      fhe.Descriptor
	t         uint64
	threshold int
	workers   int
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	refreshes  atomic.Int64
	bootstraps atomic.Int64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithNoiseThreshold overrides the refresh threshold, which defaults to the
// backend's MaxNoise. A threshold above MaxNoise yields a schedule that lets
// ciphertexts decay; it exists to prove that such decay is observable.
func WithNoiseThreshold(n int) Option {
	return func(e *Evaluator) { e.threshold = n }
}

// WithWorkers bounds limb-level parallelism. Values below 2 run sequentially.
func WithWorkers(n int) Option {
	return func(e *Evaluator) { e.workers = n }
}

// WithMetrics records backend calls and refreshes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithLogger sets the evaluator's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator checks that the backend supports the full capability set and
// wraps it.
func NewEvaluator(b fhe.Backend, opts ...Option) (*Evaluator, error) {
	desc := b.Descriptor()
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{
		backend:   b,
		desc:      desc,
		t:         desc.PlaintextModulus(),
		threshold: desc.MaxNoise,
		workers:   1,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.threshold < 0 {
		return nil, fhe.NewConfigurationError("noise_threshold", fmt.Sprintf("negative threshold %d", e.threshold), fhe.ErrNoiseBudget)
	}
	if e.threshold > desc.MaxNoise {
		e.logger.Warn().Int("threshold", e.threshold).Int("max_noise", desc.MaxNoise).
			Msg("noise threshold above backend budget, results may not decrypt")
	}
	return e, nil
}

// Backend returns the wrapped backend.
func (e *Evaluator) Backend() fhe.Backend { return e.backend }

// Descriptor returns the backend descriptor.
func (e *Evaluator) Descriptor() fhe.Descriptor { return e.desc }

// Workers returns the configured limb-level parallelism.
func (e *Evaluator) Workers() int { return e.workers }

// Logger returns the evaluator's logger.
func (e *Evaluator) Logger() zerolog.Logger { return e.logger }

// Refreshes returns the number of scheduler-driven refreshes so far.
func (e *Evaluator) Refreshes() int64 { return e.refreshes.Load() }

// Bootstraps returns the number of bootstraps so far, including lookup
// table applications.
func (e *Evaluator) Bootstraps() int64 { return e.bootstraps.Load() }

func (e *Evaluator) checkDegree(op string, d uint64) error {
	if d >= e.t {
		return fmt.Errorf("%s: degree %d with modulus %d: %w", op, d, e.t, fhe.ErrDegreeOverflow)
	}
	return nil
}

// prepare refreshes the operands that cannot absorb cost more noise.
func (e *Evaluator) prepare(ctx context.Context, cost int, ls ...*Limb) error {
	for _, l := range ls {
		if l.noise+cost <= e.threshold {
			continue
		}
		r, err := e.Refresh(ctx, *l)
		if err != nil {
			return err
		}
		*l = r
	}
	return nil
}

// Encrypt encrypts v under the public bound degree.
func (e *Evaluator) Encrypt(v, degree uint64) (Limb, error) {
	if v > degree {
		return Limb{}, fmt.Errorf("encrypt: value above bound %d: %w", degree, fhe.ErrOutOfRange)
	}
	if err := e.checkDegree("encrypt", degree); err != nil {
		return Limb{}, err
	}
	ct, err := e.backend.Encrypt(v)
	if err != nil {
		return Limb{}, err
	}
	e.metrics.Op(metrics.OpEncrypt)
	return Limb{ct: ct, degree: degree}, nil
}

// Trivial encodes a public constant.
func (e *Evaluator) Trivial(v uint64) (Limb, error) {
	if err := e.checkDegree("trivial", v); err != nil {
		return Limb{}, err
	}
	ct, err := e.backend.Trivial(v)
	if err != nil {
		return Limb{}, err
	}
	return Limb{ct: ct, degree: v}, nil
}

// Add returns a + b.
func (e *Evaluator) Add(ctx context.Context, a, b Limb) (Limb, error) {
	d := a.degree + b.degree
	if err := e.checkDegree("add", d); err != nil {
		return Limb{}, err
	}
	cost := e.desc.Cost.Add
	if err := e.prepare(ctx, cost, &a, &b); err != nil {
		return Limb{}, err
	}
	ct, err := e.backend.Add(a.ct, b.ct)
	if err != nil {
		return Limb{}, fmt.Errorf("add: %w", err)
	}
	e.metrics.Op(metrics.OpAdd)
	return Limb{ct: ct, degree: d, noise: max(a.noise, b.noise) + cost}, nil
}

// Sub returns a - b. The caller guarantees a >= b as integers, so the
// result keeps the degree of a.
func (e *Evaluator) Sub(ctx context.Context, a, b Limb) (Limb, error) {
	cost := e.desc.Cost.Add
	if err := e.prepare(ctx, cost, &a, &b); err != nil {
		return Limb{}, err
	}
	ct, err := e.backend.Sub(a.ct, b.ct)
	if err != nil {
		return Limb{}, fmt.Errorf("sub: %w", err)
	}
	e.metrics.Op(metrics.OpSub)
	return Limb{ct: ct, degree: a.degree, noise: max(a.noise, b.noise) + cost}, nil
}

// AddPlain returns a + k for a public k.
func (e *Evaluator) AddPlain(ctx context.Context, a Limb, k uint64) (Limb, error) {
	if k == 0 {
		return a, nil
	}
	c, err := e.Trivial(k)
	if err != nil {
		return Limb{}, err
	}
	return e.Add(ctx, a, c)
}

// MulPlain returns a * k for a public k.
func (e *Evaluator) MulPlain(ctx context.Context, a Limb, k uint64) (Limb, error) {
	if k == 0 {
		return e.Trivial(0)
	}
	if k == 1 {
		return a, nil
	}
	if k >= e.t {
		return Limb{}, fmt.Errorf("mul_plain: factor %d: %w", k, fhe.ErrOutOfRange)
	}
	d := a.degree * k
	if err := e.checkDegree("mul_plain", d); err != nil {
		return Limb{}, err
	}
	cost := e.desc.Cost.MulPlain
	if err := e.prepare(ctx, cost, &a); err != nil {
		return Limb{}, err
	}
	ct, err := e.backend.MulPlain(a.ct, k)
	if err != nil {
		return Limb{}, fmt.Errorf("mul_plain: %w", err)
	}
	e.metrics.Op(metrics.OpMulPlain)
	return Limb{ct: ct, degree: d, noise: a.noise + cost}, nil
}

// Mul returns a * b.
func (e *Evaluator) Mul(ctx context.Context, a, b Limb) (Limb, error) {
	d := a.degree * b.degree
	if a.degree != 0 && d/a.degree != b.degree {
		return Limb{}, fmt.Errorf("mul: %w", fhe.ErrDegreeOverflow)
	}
	if err := e.checkDegree("mul", d); err != nil {
		return Limb{}, err
	}
	cost := e.desc.Cost.MulCipher
	if err := e.prepare(ctx, cost, &a, &b); err != nil {
		return Limb{}, err
	}
	ct, err := e.backend.MulCipher(a.ct, b.ct)
	if err != nil {
		return Limb{}, fmt.Errorf("mul: %w", err)
	}
	e.metrics.Op(metrics.OpMulCipher)
	return Limb{ct: ct, degree: d, noise: max(a.noise, b.noise) + cost}, nil
}

// Select returns a when cond encrypts 1 and b when it encrypts 0.
func (e *Evaluator) Select(ctx context.Context, cond, a, b Limb) (Limb, error) {
	if cond.degree > 1 {
		return Limb{}, fmt.Errorf("select: condition degree %d: %w", cond.degree, fhe.ErrInvalidParameters)
	}
	cost := e.desc.Cost.Select
	if err := e.prepare(ctx, cost, &cond, &a, &b); err != nil {
		return Limb{}, err
	}
	ct, err := e.backend.Select(cond.ct, a.ct, b.ct)
	if err != nil {
		return Limb{}, fmt.Errorf("select: %w", err)
	}
	e.metrics.Op(metrics.OpSelect)
	return Limb{
		ct:     ct,
		degree: max(a.degree, b.degree),
		noise:  max(cond.noise, a.noise, b.noise) + cost,
	}, nil
}

// Apply evaluates lut on a through a programmable bootstrap. degree bounds
// the table's output for every input up to a's degree.
func (e *Evaluator) Apply(ctx context.Context, a Limb, lut fhe.LookupTable, degree uint64) (Limb, error) {
	if err := e.checkDegree("apply", degree); err != nil {
		return Limb{}, err
	}
	ct, err := e.backend.Bootstrap(ctx, a.ct, lut)
	if err != nil {
		return Limb{}, fmt.Errorf("bootstrap: %w", err)
	}
	e.bootstraps.Add(1)
	e.metrics.Op(metrics.OpBootstrap)
	return Limb{ct: ct, degree: degree}, nil
}

// Refresh resets a's noise without changing its value.
func (e *Evaluator) Refresh(ctx context.Context, a Limb) (Limb, error) {
	r, err := e.Apply(ctx, a, fhe.Identity, a.degree)
	if err != nil {
		return Limb{}, err
	}
	e.refreshes.Add(1)
	e.metrics.Refresh()
	return r, nil
}

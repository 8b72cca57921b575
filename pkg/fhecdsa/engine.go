// Package fhecdsa produces ECDSA secp256k1 signatures over encrypted inputs.
//
// An Engine wires a backend into the limb evaluator, the two prime fields,
// the encrypted group law, the endomorphism-accelerated multiplier and the
// signer. Callers encrypt the private key, a nonce and a digest, hand them
// to Sign and receive an encrypted (r, s). Only a holder of the decryption
// capability can read the result.
package fhecdsa

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/smallyu/go-fhe-ecdsa/internal/config"
	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/curves"
	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/paillier"
	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/sim"
	"github.com/smallyu/go-fhe-ecdsa/internal/curve"
	"github.com/smallyu/go-fhe-ecdsa/internal/ecmult"
	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/internal/metrics"
	"github.com/smallyu/go-fhe-ecdsa/internal/modarith"
	"github.com/smallyu/go-fhe-ecdsa/internal/protocol/sign"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

type (
	// Element is an encrypted field element.
	Element = modarith.Element
	// Request is the input of one signing run.
	Request = sign.Request
	// Signature is an encrypted signature.
	Signature = sign.Signature
	// PlainSignature is a decrypted signature.
	PlainSignature = sign.PlainSignature
)

type options struct {
	workers   int
	threshold *int
	lowS      bool
	logger    zerolog.Logger
	reg       prom.Registerer
	dec       fhe.Decryptor
}

// Option configures an Engine.
type Option func(*options)

// WithWorkers bounds limb-level parallelism.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithNoiseThreshold overrides the refresh threshold of the evaluator. A
// threshold of 0 refreshes before every noisy operation.
func WithNoiseThreshold(n int) Option {
	return func(o *options) { o.threshold = &n }
}

// WithLowS normalises s to the lower half of the group order.
func WithLowS(on bool) Option {
	return func(o *options) { o.lowS = on }
}

// WithLogger sets the logger shared by all components.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the engine's counters on reg.
func WithRegisterer(reg prom.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithDecryptor sets the decryption capability used by Decrypt. Backends
// that decrypt themselves need not set it.
func WithDecryptor(dec fhe.Decryptor) Option {
	return func(o *options) { o.dec = dec }
}

// Engine is the composition root. It holds only public constants and is
// safe for concurrent use as long as requests do not share ciphertexts.
type Engine struct {
	backend fhe.Backend
	dec     fhe.Decryptor
	eval    *limb.Evaluator
	layout  limb.Layout
	params  *curves.Params
	fp, fn  *modarith.Field
	curve   *curve.Curve
	mult    *ecmult.Multiplier
	signer  *sign.Signer
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New builds an engine on backend. Inconsistent parameters surface here as
// *fhe.ConfigurationError or *fhe.BackendCapabilityError, before any
// ciphertext work.
func New(backend fhe.Backend, opts ...Option) (*Engine, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dec == nil {
		if dec, ok := backend.(fhe.Decryptor); ok {
			o.dec = dec
		}
	}

	params := curves.Secp256k1()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m, err := metrics.New(o.reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	evalOpts := []limb.Option{limb.WithMetrics(m), limb.WithLogger(o.logger)}
	if o.workers > 0 {
		evalOpts = append(evalOpts, limb.WithWorkers(o.workers))
	}
	if o.threshold != nil {
		evalOpts = append(evalOpts, limb.WithNoiseThreshold(*o.threshold))
	}
	eval, err := limb.NewEvaluator(backend, evalOpts...)
	if err != nil {
		return nil, err
	}
	lay, err := limb.ChooseLayout(backend.Descriptor(), params.P.BitLen())
	if err != nil {
		return nil, err
	}

	fp, err := modarith.NewField("p", eval, params.P, lay)
	if err != nil {
		return nil, err
	}
	fn, err := modarith.NewField("n", eval, params.N, lay)
	if err != nil {
		return nil, err
	}
	c, err := curve.New(fp, params)
	if err != nil {
		return nil, err
	}
	mult, err := ecmult.NewMultiplier(c, fn)
	if err != nil {
		return nil, err
	}
	signer, err := sign.NewSigner(mult,
		sign.WithLowS(o.lowS),
		sign.WithLogger(o.logger),
		sign.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("backend", backend.Descriptor().Name).
		Uint("limb_bits", lay.Width).
		Int("limbs", lay.Count).
		Bool("low_s", o.lowS).
		Msg("engine ready")

	return &Engine{
		backend: backend,
		dec:     o.dec,
		eval:    eval,
		layout:  lay,
		params:  params,
		fp:      fp,
		fn:      fn,
		curve:   c,
		mult:    mult,
		signer:  signer,
		metrics: m,
		logger:  o.logger,
	}, nil
}

// NewFromConfig builds the backend named by cfg and an engine on top of it.
// For the Paillier backend a fresh key is generated and held in process.
// Options given here override the configuration.
func NewFromConfig(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	desc, err := fhe.ParametersByName(cfg.Params)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithWorkers(cfg.Workers),
		WithLowS(cfg.LowS),
	}
	if cfg.NoiseThreshold != nil {
		base = append(base, WithNoiseThreshold(*cfg.NoiseThreshold))
	}
	switch cfg.Backend {
	case config.BackendSim:
		b, err := sim.New(desc)
		if err != nil {
			return nil, err
		}
		return New(b, append(base, opts...)...)
	case config.BackendPaillier:
		priv, err := paillier.GenerateKey(rand.Reader, cfg.PaillierBits)
		if err != nil {
			return nil, fmt.Errorf("paillier key: %w", err)
		}
		holder := paillier.NewLocalKeyHolder(priv, desc)
		b, err := paillier.NewBackend(&priv.PublicKey, holder, desc)
		if err != nil {
			return nil, err
		}
		return New(b, append(append(base, WithDecryptor(holder)), opts...)...)
	default:
		return nil, fhe.NewConfigurationError("backend", fmt.Sprintf("unknown backend %q", cfg.Backend), nil)
	}
}

// Descriptor returns the backend's parameter set.
func (e *Engine) Descriptor() fhe.Descriptor { return e.backend.Descriptor() }

// Layout returns the limb layout shared by both fields.
func (e *Engine) Layout() limb.Layout { return e.layout }

// Params returns the plaintext domain parameters.
func (e *Engine) Params() *curves.Params { return e.params }

// Backend returns the backend the engine evaluates on.
func (e *Engine) Backend() fhe.Backend { return e.backend }

// Stats reports evaluator activity since construction.
func (e *Engine) Stats() (bootstraps, refreshes int64) {
	return e.eval.Bootstraps(), e.eval.Refreshes()
}

// EncryptScalar encrypts v, which must lie in [0, N).
func (e *Engine) EncryptScalar(v *big.Int) (Element, error) {
	return e.fn.Encrypt(v)
}

// EncryptDigest encrypts the leftmost bits of hash as a wide digest, which
// the signer reduces modulo N.
func (e *Engine) EncryptDigest(hash []byte) ([]limb.Limb, error) {
	z := sign.DigestToInt(hash, e.params.N)
	return e.eval.EncryptInt(z, e.layout)
}

// NewRequest encrypts a private key, a nonce and a message hash into a
// signing request. It is a convenience for callers that hold the inputs in
// the clear, such as tests and the CLI.
func (e *Engine) NewRequest(privateKey, nonce *big.Int, hash []byte) (Request, error) {
	d, err := e.EncryptScalar(privateKey)
	if err != nil {
		return Request{}, fmt.Errorf("encrypt private key: %w", err)
	}
	k, err := e.EncryptScalar(nonce)
	if err != nil {
		return Request{}, fmt.Errorf("encrypt nonce: %w", err)
	}
	z, err := e.EncryptDigest(hash)
	if err != nil {
		return Request{}, fmt.Errorf("encrypt digest: %w", err)
	}
	return Request{PrivateKey: d, Nonce: k, WideDigest: z}, nil
}

// Sign runs the signing pipeline on req.
func (e *Engine) Sign(ctx context.Context, req Request) (*Signature, error) {
	return e.signer.Sign(ctx, req)
}

// SignBatch signs independent requests with at most parallel in flight.
func (e *Engine) SignBatch(ctx context.Context, reqs []Request, parallel int) ([]*Signature, error) {
	return e.signer.SignBatch(ctx, reqs, parallel)
}

// PublicKey computes d*G on an encrypted private key.
func (e *Engine) PublicKey(ctx context.Context, d Element) (curve.Point, error) {
	return e.mult.ScalarBaseMult(ctx, d)
}

// Decrypt reads an encrypted signature. It needs a decryption capability.
func (e *Engine) Decrypt(sig *Signature) (*PlainSignature, error) {
	if e.dec == nil {
		return nil, e.noDecryptor()
	}
	return e.signer.Decrypt(e.dec, sig)
}

// DecryptScalar reads an encrypted scalar.
func (e *Engine) DecryptScalar(v Element) (*big.Int, error) {
	if e.dec == nil {
		return nil, e.noDecryptor()
	}
	return e.fn.Decrypt(e.dec, v)
}

// DecryptPoint reads an encrypted affine point; infinity gives nil, nil.
func (e *Engine) DecryptPoint(p curve.Point) (*big.Int, *big.Int, error) {
	if e.dec == nil {
		return nil, nil, e.noDecryptor()
	}
	return e.curve.Decrypt(e.dec, p)
}

func (e *Engine) noDecryptor() error {
	return fhe.NewCapabilityError(e.Descriptor().Name, "no decryptor configured", fhe.ErrMissingCapability)
}

// Package sign runs ECDSA signing over encrypted inputs.
//
// The pipeline is R = k*G, r = R.x mod N, s = k^-1 * (z + r*d) mod N. It
// never branches on encrypted data and never sees a plaintext value.
package sign

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/smallyu/go-fhe-ecdsa/internal/ecmult"
	"github.com/smallyu/go-fhe-ecdsa/internal/metrics"
	"github.com/smallyu/go-fhe-ecdsa/internal/modarith"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Signer produces encrypted signatures. It holds only public constants and
// is safe for concurrent use.
type Signer struct {
	mult    *ecmult.Multiplier
	fp, fn  *modarith.Field
	lowS    bool
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Signer.
type Option func(*Signer)

// WithLowS makes Sign replace s by N - s when s > N/2.
func WithLowS(on bool) Option {
	return func(s *Signer) { s.lowS = on }
}

// WithLogger sets the logger for stage timings.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Signer) { s.logger = l }
}

// WithMetrics counts finished signatures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Signer) { s.metrics = m }
}

// NewSigner builds a signer on top of a scalar multiplier.
func NewSigner(mult *ecmult.Multiplier, opts ...Option) (*Signer, error) {
	s := &Signer{
		mult:   mult,
		fp:     mult.Curve().Field(),
		fn:     mult.ScalarField(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	p, n := s.fp.Modulus(), s.fn.Modulus()
	if p.Cmp(n.Lsh(n, 1)) >= 0 {
		return nil, fhe.NewConfigurationError("N", "coordinate modulus is not below twice the group order", nil)
	}
	return s, nil
}

// ScalarField returns the field modulo the group order.
func (s *Signer) ScalarField() *modarith.Field { return s.fn }

// Sign runs the signing pipeline. On error no part of the signature is
// returned.
func (s *Signer) Sign(ctx context.Context, req Request) (sig *Signature, err error) {
	defer func() { s.metrics.Signature(err) }()
	start := time.Now()
	log := s.logger.With().Str("component", "sign").Logger()

	// 1. Digest
	z := req.Digest
	if req.WideDigest != nil {
		if z, err = s.fn.Reduce(ctx, req.WideDigest); err != nil {
			return nil, fmt.Errorf("reduce digest: %w", err)
		}
	}

	// 2. R = k*G and k^-1 do not depend on each other
	stage := time.Now()
	var r, kInv modarith.Element
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pt, err := s.mult.ScalarBaseMult(gctx, req.Nonce)
		if err != nil {
			return fmt.Errorf("nonce point: %w", err)
		}
		// 3. r = R.x mod N
		r, err = s.fn.Convert(gctx, pt.X, s.fp)
		return err
	})
	g.Go(func() error {
		var err error
		if kInv, err = s.fn.Inv(gctx, req.Nonce); err != nil {
			return fmt.Errorf("nonce inverse: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug().Dur("took", time.Since(stage)).Msg("nonce point and inverse")

	// 4. s = k^-1 * (z + r*d)
	stage = time.Now()
	rd, err := s.fn.Mul(ctx, r, req.PrivateKey)
	if err != nil {
		return nil, err
	}
	sum, err := s.fn.Add(ctx, z, rd)
	if err != nil {
		return nil, err
	}
	sv, err := s.fn.Mul(ctx, kInv, sum)
	if err != nil {
		return nil, err
	}

	// 5. Optional low-s
	if s.lowS {
		high, err := s.fn.IsHigh(ctx, sv)
		if err != nil {
			return nil, err
		}
		if sv, err = s.fn.CondNeg(ctx, high, sv); err != nil {
			return nil, err
		}
	}
	log.Debug().Dur("took", time.Since(stage)).Bool("low_s", s.lowS).Msg("s computed")

	ev := s.fn.Evaluator()
	log.Debug().
		Dur("total", time.Since(start)).
		Int64("bootstraps", ev.Bootstraps()).
		Int64("refreshes", ev.Refreshes()).
		Msg("signature ready")
	return &Signature{R: r, S: sv}, nil
}

// Decrypt recovers the plaintext signature. It is for tests and for callers
// holding the decryption capability.
func (s *Signer) Decrypt(dec fhe.Decryptor, sig *Signature) (*PlainSignature, error) {
	r, err := s.fn.Decrypt(dec, sig.R)
	if err != nil {
		return nil, fmt.Errorf("decrypt r: %w", err)
	}
	sv, err := s.fn.Decrypt(dec, sig.S)
	if err != nil {
		return nil, fmt.Errorf("decrypt s: %w", err)
	}
	return &PlainSignature{R: r, S: sv}, nil
}

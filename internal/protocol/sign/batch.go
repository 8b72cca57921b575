package sign

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// SignBatch signs independent requests with at most parallel runs in
// flight. Requests share no ciphertexts, so they only compete for the
// backend. The first failure cancels the remaining runs and no signature is
// returned.
func (s *Signer) SignBatch(ctx context.Context, reqs []Request, parallel int) ([]*Signature, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("sign batch: no requests: %w", fhe.ErrInvalidParameters)
	}
	if parallel < 1 {
		parallel = 1
	}

	sigs := make([]*Signature, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := range reqs {
		i := i
		g.Go(func() error {
			sig, err := s.Sign(gctx, reqs[i])
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			sigs[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sigs, nil
}

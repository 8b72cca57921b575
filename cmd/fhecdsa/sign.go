package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/curves"
	"github.com/smallyu/go-fhe-ecdsa/internal/protocol/sign"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhecdsa"
)

type SignCmd struct {
	BaseCmd
}

type signFlags struct {
	key         string
	nonce       string
	message     string
	lowS        bool
	randomNonce bool
	stats       bool
}

func GetSignCmd(g *globalFlags) *SignCmd {
	signCmdIns := new(SignCmd)
	f := new(signFlags)

	signCmdIns.Cmd = &cobra.Command{
		Use:   "sign",
		Short: "Encrypt a key, a nonce and a digest, sign homomorphically and verify the decrypted signature.",
		Example: "fhecdsa sign --key 1 --message \"Satoshi Nakamoto\"\n" +
			"fhecdsa sign -c engine.yaml --key 0x2a --random-nonce --low-s",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("low-s") {
				cfg.LowS = f.lowS
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			reg := prom.NewRegistry()
			e, err := fhecdsa.NewFromConfig(cfg,
				fhecdsa.WithLogger(newLogger(cfg)),
				fhecdsa.WithRegisterer(reg))
			if err != nil {
				return err
			}
			if err := runSign(ctx, cmd.OutOrStdout(), e, f); err != nil {
				return err
			}
			if f.stats {
				return printCounters(cmd.OutOrStdout(), reg)
			}
			return nil
		},
	}

	flags := signCmdIns.Cmd.Flags()
	flags.StringVarP(&f.key, "key", "k", "1", "private key, decimal or 0x-prefixed hex")
	flags.StringVar(&f.nonce, "nonce", "", "nonce, decimal or 0x-prefixed hex; RFC 6979 when empty")
	flags.StringVarP(&f.message, "message", "m", "Satoshi Nakamoto", "message to hash and sign")
	flags.BoolVar(&f.lowS, "low-s", false, "normalise s to the lower half of the group order")
	flags.BoolVar(&f.randomNonce, "random-nonce", false, "draw the nonce at random instead of RFC 6979")
	flags.BoolVar(&f.stats, "stats", false, "print evaluator counters after signing")
	return signCmdIns
}

func runSign(ctx context.Context, w io.Writer, e *fhecdsa.Engine, f *signFlags) error {
	n := e.Params().N
	d, err := parseScalar(f.key, n)
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	hash := sign.HashMessage([]byte(f.message))

	var k *big.Int
	switch {
	case f.nonce != "":
		if k, err = parseScalar(f.nonce, n); err != nil {
			return fmt.Errorf("nonce: %w", err)
		}
	case f.randomNonce:
		if k, err = curves.NewSecp256k1().NewScalar(rand.Reader); err != nil {
			return err
		}
	default:
		k = fhecdsa.NonceRFC6979(d, hash)
	}

	req, err := e.NewRequest(d, k, hash)
	if err != nil {
		return err
	}
	start := time.Now()
	sig, err := e.Sign(ctx, req)
	if err != nil {
		return err
	}
	took := time.Since(start)

	plain, err := e.Decrypt(sig)
	if err != nil {
		return err
	}
	pub := fhecdsa.PublicKeyOf(d)
	ok := fhecdsa.Verify(pub, hash, plain)
	bootstraps, refreshes := e.Stats()

	fmt.Fprintf(w, "backend:    %s\n", e.Descriptor().Name)
	fmt.Fprintf(w, "public key: %x\n", pub.SerializeCompressed())
	fmt.Fprintf(w, "digest:     %x\n", hash)
	fmt.Fprintf(w, "r:          %064x\n", plain.R)
	fmt.Fprintf(w, "s:          %064x\n", plain.S)
	fmt.Fprintf(w, "verified:   %v\n", ok)
	fmt.Fprintf(w, "took:       %s (%d bootstraps, %d scheduled refreshes)\n", took.Round(time.Millisecond), bootstraps, refreshes)
	if !ok {
		return errors.New("decrypted signature does not verify")
	}
	return nil
}

// parseScalar accepts decimal or 0x-prefixed hex in [1, n).
func parseScalar(s string, n *big.Int) (*big.Int, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("cannot parse %q", s)
	}
	if v.Sign() <= 0 || v.Cmp(n) >= 0 {
		return nil, errors.New("outside [1, n)")
	}
	return v, nil
}

func printCounters(w io.Writer, g prom.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Fprintf(w, "%s{%s} %.0f\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/curves"
	"github.com/smallyu/go-fhe-ecdsa/internal/limb"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

type ParamsCmd struct {
	BaseCmd
}

func GetParamsCmd(g *globalFlags) *ParamsCmd {
	paramsCmdIns := new(ParamsCmd)
	paramsCmdIns.Cmd = &cobra.Command{
		Use:     "params",
		Short:   "List the known parameter sets and the limb layout each one yields.",
		Example: "fhecdsa params",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printParams(cmd.OutOrStdout())
		},
	}
	return paramsCmdIns
}

func printParams(w io.Writer) error {
	bits := curves.Secp256k1().P.BitLen()
	for _, name := range fhe.ParameterNames() {
		desc, err := fhe.ParametersByName(name)
		if err != nil {
			return err
		}
		layout := "unsupported"
		if lay, err := limb.ChooseLayout(desc, bits); err == nil {
			layout = fmt.Sprintf("%d x %d-bit limbs", lay.Count, lay.Width)
		}
		fmt.Fprintf(w, "%-30s T=2^%-3d max_noise=%-8d %s\n", name, desc.PlaintextBits(), desc.MaxNoise, layout)
	}
	return nil
}

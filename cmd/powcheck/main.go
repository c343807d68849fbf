// powcheck recomputes one faucet digest offline, e.g. to check a share the
// faucet rejected.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/AGPFMiner/sepominer/algorithms/argon2"
	"github.com/AGPFMiner/sepominer/driver"
	"github.com/AGPFMiner/sepominer/types"

	"github.com/spf13/cobra"
)

type options struct {
	preImage string
	nonce    string
	target   string
	counter  int64
	params   types.Argon2Params
}

func newCommand(out io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "powcheck",
		Short: "Recompute a faucet argon2 digest",
		Long:  `Hashes preimage||nonce with the given argon2 parameters and compares the digest with a target`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("nonce") && opts.counter >= 0 {
				opts.nonce = driver.FormatNonce(uint64(opts.counter))
			}
			return check(out, opts)
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.preImage, "preimage", "", "job pre-image")
	flags.StringVar(&opts.nonce, "nonce", "", "nonce in wire form")
	flags.Int64Var(&opts.counter, "counter", -1, "nonce counter, formatted to wire form when --nonce is not set")
	flags.StringVar(&opts.target, "target", "", "hex target; empty skips the comparison")
	flags.Uint8Var(&opts.params.Variant, "type", types.Argon2d, "0 argon2d, 1 argon2i, 2 argon2id")
	flags.Uint32Var(&opts.params.Version, "version", types.Argon2Version13, "16 (0x10) or 19 (0x13)")
	flags.Uint32Var(&opts.params.TimeCost, "time", 1, "time cost")
	flags.Uint32Var(&opts.params.MemoryCost, "memory", 4096, "memory cost in KiB")
	flags.Uint32Var(&opts.params.Parallelism, "parallelism", 1, "lanes")
	flags.Uint32Var(&opts.params.KeyLength, "keylen", 32, "digest length in bytes")
	return cmd
}

func check(out io.Writer, opts *options) error {
	digest, err := argon2.Hash([]byte(opts.preImage), []byte(opts.nonce), opts.params)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "params: %s\n", opts.params)
	fmt.Fprintf(out, "nonce:  %s\n", opts.nonce)
	fmt.Fprintf(out, "digest: %s\n", hex.EncodeToString(digest))
	if opts.target == "" {
		return nil
	}
	ok, err := argon2.MeetsTarget(digest, opts.target)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "meets target %s: %v\n", opts.target, ok)
	return nil
}

func main() {
	if err := newCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

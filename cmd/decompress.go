package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/capture"
	"firestige.xyz/schc/internal/compute"
	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/engine"
	"firestige.xyz/schc/internal/metrics"
	"firestige.xyz/schc/internal/rules"
)

var decompressCmd = &cobra.Command{
	Use:   "decompress",
	Short: "Reconstruct a packet from a SCHC packet",
	Long: `Reconstruct the original packet from a hex-encoded SCHC packet.

The rule is selected by the rule id bits at the front of the SCHC packet,
trying the candidates in rule-set order. SCHC packets are bit strings, so
pass --bits when the packet does not end on a byte boundary; by default
every bit of the hex input is consumed.

Examples:
  schc decompress -r rules.yaml --hex c68404c2... --bits 828`,
	Run: func(cmd *cobra.Command, args []string) {
		runDecompressCommand()
	},
}

var (
	decompressRulesFile string
	decompressHex       string
	decompressBits      int
	decompressDirection string
)

func init() {
	decompressCmd.Flags().StringVarP(&decompressRulesFile, "rules", "r", "", "rule set file (required)")
	decompressCmd.Flags().StringVar(&decompressHex, "hex", "", "SCHC packet as hex (required)")
	decompressCmd.Flags().IntVar(&decompressBits, "bits", 0, "SCHC packet length in bits (default: all hex bits)")
	decompressCmd.Flags().StringVar(&decompressDirection, "direction", "up", "traffic direction: up | down")
	decompressCmd.MarkFlagRequired("rules")
	decompressCmd.MarkFlagRequired("hex")
}

func runDecompressCommand() {
	candidates, err := rules.Load(decompressRulesFile)
	if err != nil {
		exitWithError(fmt.Sprintf("failed to load rules from %s", decompressRulesFile), err)
	}

	raw, err := hex.DecodeString(decompressHex)
	if err != nil {
		exitWithError("invalid hex input", err)
	}
	length := len(raw) * 8
	if decompressBits > 0 {
		if decompressBits > length {
			exitWithError(fmt.Sprintf("--bits %d exceeds the %d hex bits given", decompressBits, length), nil)
		}
		length = decompressBits
	}
	schc := bits.New(raw, length, bits.PadRight)

	packet, rule, err := decompressWithCandidates(schc, candidates)
	if err != nil {
		metrics.DecompressErrorsTotal.WithLabelValues("decompress").Inc()
		exitWithError("decompression failed", err)
	}
	metrics.DecompressPacketsTotal.WithLabelValues(rule.ID.String()).Inc()

	out, err := packet.Bytes()
	if err != nil {
		exitWithError("reconstructed packet is not byte aligned", err)
	}
	fmt.Printf("rule=%s packet=%d bytes\n%s\n", rule.ID, len(out), hex.EncodeToString(out))
}

// decompressWithCandidates tries the candidates in rule-set order and keeps
// the first whose id bits match the front of the SCHC packet.
func decompressWithCandidates(schc bits.Buffer, candidates []*rules.RuleDescriptor) (bits.Buffer, *rules.RuleDescriptor, error) {
	registry := compute.DefaultRegistry()
	dir := capture.DirectionFor(decompressDirection)
	for _, rule := range candidates {
		packet, err := engine.Decompress(schc, dir, rule, registry)
		if err != nil {
			if errors.Is(err, core.ErrRuleIDMismatch) {
				continue
			}
			return bits.Buffer{}, nil, err
		}
		return packet, rule, nil
	}
	return bits.Buffer{}, nil, fmt.Errorf("%w: no rule id matches the packet", core.ErrNoMatchingRule)
}

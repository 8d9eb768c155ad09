package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/schc/internal/rules"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a rule set file",
	Long: `Load and sanity-check a rule set file without compressing anything.

This is useful for pre-checking rules before deploying them to both
endpoints: duplicate rule ids, unknown operators or actions, malformed
target values and inconsistent match mappings are all rejected.

Examples:
  schc validate -r rules.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidateCommand()
	},
}

var validateRulesFile string

func init() {
	validateCmd.Flags().StringVarP(&validateRulesFile, "rules", "r", "",
		"rule set file to validate (required)")
	validateCmd.MarkFlagRequired("rules")
}

func runValidateCommand() {
	candidates, err := rules.Load(validateRulesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	compression, fallback := 0, 0
	for _, rule := range candidates {
		if rule.Nature == rules.NatureNoCompression {
			fallback++
		} else {
			compression++
		}
	}
	fmt.Printf("VALID: %d rule(s): %d compression, %d no-compression\n",
		len(candidates), compression, fallback)
}

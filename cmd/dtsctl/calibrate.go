package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	calibrateNamespace       string
	calibrateTargetFractions string
)

var calibrateCmd = &cobra.Command{
	Use:     "calibrate",
	Short:   "Fit layer bands against a namespace's recorded content",
	GroupID: "ops",
	Long: `Fits the Galois Loss Engine's layer bands so each layer captures
approximately its target fraction of a reference corpus, printing the
resulting bands as YAML. This is an explicit, operator-triggered step:
recalibrating mid-stream would retroactively change the meaning of
layers already assigned to existing records, so dtsctl only computes and
prints bands here — applying them to a running engine is a deploy-time
configuration change, not something this command does automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if calibrateNamespace == "" {
			return fmt.Errorf("dtsctl calibrate: --namespace is required")
		}

		fractions, err := parseTargetFractions(calibrateTargetFractions)
		if err != nil {
			return fmt.Errorf("dtsctl calibrate: %w", err)
		}

		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}

		var corpus []string
		for d, err := range eng.datumStore.List(cmd.Context(), calibrateNamespace, 0, 0) {
			if err != nil {
				return fmt.Errorf("dtsctl calibrate: %w", err)
			}
			corpus = append(corpus, string(d.Content))
		}
		if len(corpus) == 0 {
			return fmt.Errorf("dtsctl calibrate: namespace %q has no recorded content to calibrate against", calibrateNamespace)
		}

		bands, err := eng.lossEngine.Calibrate(cmd.Context(), corpus, fractions)
		if err != nil {
			return fmt.Errorf("dtsctl calibrate: %w", err)
		}

		fmt.Fprintf(os.Stderr, "%s fitted %d band(s) against %d record(s) in %q\n", renderAccent("calibrate"), len(bands), len(corpus), calibrateNamespace)
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(bands)
	},
}

// parseTargetFractions parses a comma-separated list of L1..L7 target
// fractions, e.g. "0.1,0.1,0.2,0.2,0.2,0.1,0.1". An empty string defers
// to loss.Calibrate's own even-split default.
func parseTargetFractions(raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	fractions := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid target fraction %q: %w", p, err)
		}
		fractions = append(fractions, f)
	}
	return fractions, nil
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateNamespace, "namespace", "", "Namespace to read the reference corpus from")
	calibrateCmd.Flags().StringVar(&calibrateTargetFractions, "target-fractions", "", "Comma-separated L1..L7 target fractions (default: even split)")
	rootCmd.AddCommand(calibrateCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duotrack/substrate/internal/types"
)

var (
	reclassifyNamespace string
	reclassifyRecord    string
)

var reclassifyCmd = &cobra.Command{
	Use:     "reclassify",
	Short:   "Trigger a reclassification pass over layer=unknown records, or force one record",
	GroupID: "ops",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reclassifyNamespace == "" && reclassifyRecord == "" {
			return fmt.Errorf("dtsctl reclassify: --namespace or --record is required")
		}

		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}

		if reclassifyRecord != "" {
			classification, err := eng.coord.ReclassifyRecord(cmd.Context(), types.ID(reclassifyRecord))
			if err != nil {
				return fmt.Errorf("dtsctl reclassify: %w", err)
			}
			fmt.Printf("%s forced reclassification of %q: layer=%s confidence=%.3f\n",
				renderAccent("reclassify"), reclassifyRecord, classification.Layer, classification.Confidence)
			return nil
		}

		n, err := eng.coord.ReclassifySweep(cmd.Context(), reclassifyNamespace)
		if err != nil {
			return fmt.Errorf("dtsctl reclassify: %w", err)
		}

		fmt.Printf("%s reclassified %d record(s) in namespace %q\n", renderAccent("reclassify"), n, reclassifyNamespace)
		return nil
	},
}

func init() {
	reclassifyCmd.Flags().StringVar(&reclassifyNamespace, "namespace", "", "Namespace to sweep for layer=unknown records")
	reclassifyCmd.Flags().StringVar(&reclassifyRecord, "record", "", "Force reclassification of a single record id regardless of its current layer")
}

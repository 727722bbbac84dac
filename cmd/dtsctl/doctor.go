package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duotrack/substrate/internal/datum"
	"github.com/duotrack/substrate/internal/types"
)

var (
	doctorNamespace string
	doctorMaxSteps  int
)

// doctorViolation is the --json shape for one record whose causal chain
// failed to terminate within --max-steps.
type doctorViolation struct {
	RecordID types.ID `json:"record_id"`
	Error    string   `json:"error"`
}

// runDoctor walks every record in namespace and reports which ones fail
// datum.VerifyAcyclic, separated from doctorCmd's RunE so it can be
// exercised directly against a store built without cobra or buildEngine.
func runDoctor(ctx context.Context, store datum.Store, namespace string, maxSteps int) (checked int, violations []doctorViolation, err error) {
	for d, listErr := range store.List(ctx, namespace, 0, 0) {
		if listErr != nil {
			return checked, violations, fmt.Errorf("listing %q: %w", namespace, listErr)
		}
		checked++
		if verr := datum.VerifyAcyclic(ctx, store, d.ID, maxSteps); verr != nil {
			violations = append(violations, doctorViolation{RecordID: d.ID, Error: verr.Error()})
		}
	}
	return checked, violations, nil
}

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Short:   "Verify the causal-parent chain of every Datum Store record in a namespace is acyclic",
	GroupID: "ops",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorNamespace == "" {
			return fmt.Errorf("dtsctl doctor: --namespace is required")
		}

		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}

		checked, violations, err := runDoctor(cmd.Context(), eng.datumStore, doctorNamespace, doctorMaxSteps)
		if err != nil {
			return fmt.Errorf("dtsctl doctor: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(struct {
				Namespace  string            `json:"namespace"`
				Checked    int               `json:"checked"`
				Violations []doctorViolation `json:"violations"`
			}{doctorNamespace, checked, violations})
		}

		if len(violations) == 0 {
			fmt.Fprintf(os.Stdout, "%s %s: %d record(s) checked, causal chains are acyclic\n", renderAccent("ok"), doctorNamespace, checked)
			return nil
		}

		fmt.Fprintf(os.Stderr, "%s %s: %d/%d record(s) with a non-terminating causal chain\n", renderWarn("violation"), doctorNamespace, len(violations), checked)
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "  %s %s\n", renderMuted(string(v.RecordID)), v.Error)
		}
		return types.Wrap("dtsctl doctor", types.ErrIntegrityViolation, nil)
	},
}

func init() {
	doctorCmd.Flags().StringVar(&doctorNamespace, "namespace", "", "Namespace to verify")
	doctorCmd.Flags().IntVar(&doctorMaxSteps, "max-steps", 100000, "Maximum causal-chain depth to walk before reporting a violation")
}

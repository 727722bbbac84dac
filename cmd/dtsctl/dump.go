package main

import (
	"fmt"
	"os"
	"strings"

	"charm.land/glamour/v2"
	"github.com/spf13/cobra"

	"github.com/duotrack/substrate/internal/export"
	"github.com/duotrack/substrate/internal/types"
)

var (
	dumpNamespace string
	dumpRescan    bool
	dumpReport    bool
)

var dumpCmd = &cobra.Command{
	Use:     "dump",
	Short:   "Dump the contradiction edge graph for a namespace as YAML",
	GroupID: "ops",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dumpNamespace == "" {
			return fmt.Errorf("dtsctl dump: --namespace is required")
		}

		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}

		if dumpRescan {
			n, err := eng.coord.ScanNamespace(cmd.Context(), dumpNamespace, types.TrackDatum)
			if err != nil {
				return fmt.Errorf("dtsctl dump: rescan: %w", err)
			}
			fmt.Fprintf(os.Stderr, "%s rescanned %q, found %d contradiction edge(s)\n", renderMuted("dump"), dumpNamespace, n)
		}

		if dumpReport {
			return renderIntegrityReport(eng, dumpNamespace)
		}
		return export.DumpEdges(os.Stdout, eng.edges, dumpNamespace)
	},
}

// renderIntegrityReport prints a human-facing markdown summary of a
// namespace's edges instead of the raw YAML dump, for operators reading
// a terminal rather than piping into another tool.
func renderIntegrityReport(eng *engine, namespace string) error {
	edges := eng.edges.Edges(namespace)

	var md strings.Builder
	fmt.Fprintf(&md, "# Integrity report: %s\n\n", namespace)
	fmt.Fprintf(&md, "%d contradiction edge(s) on record.\n\n", len(edges))
	if len(edges) > 0 {
		md.WriteString("| Source | Target | Kind |\n|---|---|---|\n")
		for _, r := range edges {
			fmt.Fprintf(&md, "| %s | %s | %s |\n", r.Edge.SourceID, r.Edge.TargetID, r.Edge.Kind)
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("dtsctl dump: building report renderer: %w", err)
	}
	out, err := renderer.Render(md.String())
	if err != nil {
		return fmt.Errorf("dtsctl dump: rendering report: %w", err)
	}
	fmt.Print(out)
	return nil
}

func init() {
	dumpCmd.Flags().StringVar(&dumpNamespace, "namespace", "", "Namespace to dump edges for")
	dumpCmd.Flags().BoolVar(&dumpRescan, "rescan", false, "Run an all-pairs contradiction scan before dumping, since edges accumulated by previous processes are not persisted")
	dumpCmd.Flags().BoolVar(&dumpReport, "report", false, "Render a markdown integrity report instead of raw YAML")
}

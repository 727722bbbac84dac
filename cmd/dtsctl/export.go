package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duotrack/substrate/internal/export"
)

var exportNamespace string

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export a namespace's Datum Store append log as YAML",
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportNamespace == "" {
			return fmt.Errorf("dtsctl export: --namespace is required")
		}

		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}

		if err := export.ExportAppendLog(cmd.Context(), eng.datumStore, exportNamespace, os.Stdout); err != nil {
			return fmt.Errorf("dtsctl export: %w", err)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportNamespace, "namespace", "", "Namespace to export")
}

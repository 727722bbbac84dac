package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duotrack/substrate/internal/schema"
)

var migrateManifestPath string

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Apply a TOML migration manifest to the Schema Track",
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateManifestPath == "" {
			return fmt.Errorf("dtsctl migrate: --manifest is required")
		}
		migrations, err := schema.LoadManifest(migrateManifestPath)
		if err != nil {
			return fmt.Errorf("dtsctl migrate: %w", err)
		}

		eng, err := buildEngine(cmd.Context())
		if err != nil {
			return err
		}

		if err := schema.ApplyOrdered(cmd.Context(), eng.schemaStore, migrations); err != nil {
			return fmt.Errorf("dtsctl migrate: %w", err)
		}

		fmt.Printf("%s applied %d migration(s) from %s\n", renderAccent("migrate"), len(migrations), migrateManifestPath)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateManifestPath, "manifest", "", "Path to a TOML migration manifest")
}

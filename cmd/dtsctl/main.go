// Command dtsctl is the administrative surface spec.md §6 names: run
// migrations, trigger a reclassification pass, dump the edge graph for a
// namespace, export a per-namespace append log. Its root command shape
// (persistent flags, command groups, a colorized help function) is
// grounded on the teacher's cmd/bd/main.go; its config subcommands on
// cmd/bd/config.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duotrack/substrate/internal/config"
	"github.com/duotrack/substrate/internal/coordinator"
	"github.com/duotrack/substrate/internal/datum"
	datummem "github.com/duotrack/substrate/internal/datum/memory"
	datumsqlite "github.com/duotrack/substrate/internal/datum/sqlite"
	"github.com/duotrack/substrate/internal/eventbus"
	"github.com/duotrack/substrate/internal/export"
	"github.com/duotrack/substrate/internal/loss"
	"github.com/duotrack/substrate/internal/oracle"
	"github.com/duotrack/substrate/internal/schema"
	schemamem "github.com/duotrack/substrate/internal/schema/memory"
	schemasqlite "github.com/duotrack/substrate/internal/schema/sqlite"
	"github.com/duotrack/substrate/internal/telemetry"
	"github.com/duotrack/substrate/internal/types"
)

// Exit codes per spec.md §6.
const (
	exitSuccess          = 0
	exitInvalidInvocation = 2
	exitTransientFailure  = 3
	exitIntegrityViolation = 4
)

var (
	configFile   string
	sqlitePath   string
	jsonOutput   bool
	verboseFlag  bool
	enableTracing bool
)

// engine bundles the wiring every subcommand needs: the two persistence
// tracks, the loss engine, the event bus, and the derived-edge log.
type engine struct {
	datumStore  datum.Store
	schemaStore schema.Store
	lossEngine  *loss.Engine
	bus         *eventbus.Bus
	edges       *export.EdgeLog
	coord       *coordinator.Coordinator
}

func buildEngine(ctx context.Context) (*engine, error) {
	var ds datum.Store
	var ss schema.Store

	path := sqlitePath
	if path == "" {
		path = config.GetString(config.KeySQLitePath)
	}
	if path == "" {
		ds = datummem.New()
		ss = schemamem.New()
	} else {
		sqliteDatum, err := datumsqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("dtsctl: opening datum store: %w", err)
		}
		sqliteSchema, err := schemasqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("dtsctl: opening schema store: %w", err)
		}
		ds = sqliteDatum
		ss = sqliteSchema
	}

	bus := eventbus.New()
	edges := export.NewEdgeLog()
	bus.Register(edges)

	eng := loss.New(config.LossConfig(), buildOracle(), nil)
	coord := coordinator.New(ds, ss, eng, bus, config.GetInt(config.KeyTailWindow))

	return &engine{
		datumStore:  ds,
		schemaStore: ss,
		lossEngine:  eng,
		bus:         bus,
		edges:       edges,
		coord:       coord,
	}, nil
}

// buildOracle wires the Semantic Oracle Interface's default ensemble:
// the dependency-free Mock member always runs, and an optional
// Anthropic-judge member joins it when ANTHROPIC_API_KEY is set, giving
// the LLM-judgment leg real weight in the ensemble's Distance average
// without making it a hard requirement to run dtsctl at all.
func buildOracle() oracle.Oracle {
	members := []oracle.Member{{Name: "mock", Weight: 1, Oracle: oracle.Mock{}}}
	if judge, err := oracle.NewAnthropicJudge("", ""); err == nil {
		members = append(members, oracle.Member{Name: "anthropic", Weight: 2, Oracle: judge})
	}
	return oracle.NewEnsemble(members, config.GetInt(config.KeyOracleConcurrency), config.GetInt(config.KeyOracleSampleRounds)).AsOracle()
}

var rootCmd = &cobra.Command{
	Use:   "dtsctl",
	Short: "dtsctl - Dual-Track Persistence Substrate administrative CLI",
	Long:  `Administers a Dual-Track Persistence Substrate: schema migrations, background reclassification, and edge-graph / append-log inspection.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		if configFile != "" {
			if err := config.BindConfigFile(configFile); err != nil {
				return err
			}
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Data & Migrations:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
	)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML/TOML/JSON config file")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "", "SQLite database path (default: in-memory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON where supported")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&enableTracing, "telemetry", false, "Emit OpenTelemetry traces/metrics to stdout")

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		var out string
		if cmd.Long != "" {
			out = cmd.Long + "\n\n"
		} else {
			out = cmd.Short + "\n\n"
		}
		out += cmd.UsageString()
		fmt.Print(colorizeHelpOutput(out))
	})

	rootCmd.AddCommand(migrateCmd, reclassifyCmd, dumpCmd, exportCmd, configCmd, doctorCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if enableTracing {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "dtsctl",
			Enabled:     true,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "dtsctl: telemetry init failed: %v\n", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	err := rootCmd.ExecuteContext(ctx)
	os.Exit(exitCodeFor(err))
}

// exitCodeFor maps an error returned from command execution to spec.md
// §6's exit-code taxonomy. A nil error and cobra's own usage errors
// (flag parsing, unknown subcommand) are distinguished by cobra itself
// returning before any subcommand's RunE runs; everything reaching this
// function from a RunE is classified by the error-kind sentinels in
// internal/types/errors.go.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case types.IsSchemaConflict(err), types.IsIntegrityViolation(err), types.IsAxiomTampered(err):
		return exitIntegrityViolation
	case types.IsOracleUnavailable(err):
		return exitTransientFailure
	default:
		fmt.Fprintf(os.Stderr, "dtsctl: %v\n", err)
		return exitInvalidInvocation
	}
}

// Package config holds the engine's tunable constants behind a
// viper-backed store with DTS_-prefixed environment binding and
// file-watch hot reload, grounded on the teacher's internal/config
// package (Initialize/GetBool/GetString/GetDuration, BD_-prefixed env
// vars) and generalized from its yaml-key set to this engine's
// tunables: the Galois Loss Engine's weights and thresholds, the
// Coordinator's tail window and oracle concurrency budget, and the
// storage backends' connection settings.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys for every bound setting. Using named constants instead of raw
// strings at call sites is a departure the teacher doesn't bother with
// (its key set is large and mostly referenced once); this engine's key
// set is read from several packages (loss, coordinator, cmd/dtsctl) so
// a typo in a string literal would silently fall back to a default
// rather than failing to compile.
const (
	KeyPrimaryWeight          = "loss.primary-weight"
	KeyDualWeight             = "loss.dual-weight"
	KeyDeterministicThreshold = "loss.deterministic-threshold"
	KeyProbabilisticThreshold = "loss.probabilistic-threshold"
	KeyFixedPointTolerance    = "loss.fixed-point-tolerance"
	KeyFixedPointMaxSteps     = "loss.fixed-point-max-steps"
	KeyContradictionMargin    = "loss.contradiction-margin"
	KeyEthicalFloor           = "loss.ethical-floor"
	KeyOracleTimeout          = "loss.oracle-timeout"

	KeyTailWindow        = "coordinator.tail-window"
	KeyOracleConcurrency = "oracle.concurrency"
	KeyOracleSampleRounds = "oracle.sample-rounds"

	KeySQLitePath = "storage.sqlite-path"

	KeyDoltHost     = "storage.dolt.host"
	KeyDoltPort     = "storage.dolt.port"
	KeyDoltUser     = "storage.dolt.user"
	KeyDoltPassword = "storage.dolt.password"
	KeyDoltDatabase = "storage.dolt.database"
)

var v *viper.Viper

// Initialize (re-)creates the package's viper instance, sets defaults,
// and binds the DTS_ environment prefix. Tests call it repeatedly to
// pick up environment changes, the same way the teacher's config tests
// re-run Initialize() after os.Setenv.
func Initialize() error {
	v = viper.New()

	v.SetDefault(KeyPrimaryWeight, 0.6)
	v.SetDefault(KeyDualWeight, 0.4)
	v.SetDefault(KeyDeterministicThreshold, 0.15)
	v.SetDefault(KeyProbabilisticThreshold, 0.45)
	v.SetDefault(KeyFixedPointTolerance, 1e-3)
	v.SetDefault(KeyFixedPointMaxSteps, 7)
	v.SetDefault(KeyContradictionMargin, 0.1)
	v.SetDefault(KeyEthicalFloor, 0.6)
	v.SetDefault(KeyOracleTimeout, 30*time.Second)
	v.SetDefault(KeyTailWindow, 128)
	v.SetDefault(KeyOracleConcurrency, 8)
	v.SetDefault(KeyOracleSampleRounds, 5)
	v.SetDefault(KeySQLitePath, "")
	v.SetDefault(KeyDoltHost, "127.0.0.1")
	v.SetDefault(KeyDoltPort, 3306)
	v.SetDefault(KeyDoltUser, "root")
	v.SetDefault(KeyDoltPassword, "")
	v.SetDefault(KeyDoltDatabase, "substrate")

	v.SetEnvPrefix("DTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return nil
}

func instance() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// GetBool returns the bound bool value for key.
func GetBool(key string) bool { return instance().GetBool(key) }

// GetString returns the bound string value for key.
func GetString(key string) string { return instance().GetString(key) }

// GetInt returns the bound int value for key.
func GetInt(key string) int { return instance().GetInt(key) }

// GetFloat64 returns the bound float64 value for key.
func GetFloat64(key string) float64 { return instance().GetFloat64(key) }

// GetDuration returns the bound duration value for key.
func GetDuration(key string) time.Duration { return instance().GetDuration(key) }

// AllSettings returns every bound key and its effective value (defaults
// overlaid by config file and environment), for the "config list" surface.
func AllSettings() map[string]any { return instance().AllSettings() }

// Set overrides key in-process for the remainder of the run, the same
// way viper.Set takes precedence over file and environment values. It
// does not persist: a key set this way reverts to its file/env/default
// value the next time Initialize runs.
func Set(key string, value any) { instance().Set(key, value) }

// BindConfigFile points the instance at a config file (YAML, TOML, or
// JSON, inferred from its extension) and reads it. The file's values
// override defaults; DTS_ environment variables still override the file.
// A missing file is not an error — defaults and environment variables
// alone are a valid configuration.
func BindConfigFile(path string) error {
	instance().SetConfigFile(path)
	if err := instance().ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

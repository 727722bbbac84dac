package config

import "github.com/duotrack/substrate/internal/loss"

// LossConfig builds a loss.Config from the currently bound values,
// falling back to loss.DefaultConfig's values where this package has
// no independent setting (DualLossWeights has no config key or env var
// and keeps its default).
func LossConfig() loss.Config {
	cfg := loss.DefaultConfig()
	cfg.PrimaryWeight = GetFloat64(KeyPrimaryWeight)
	cfg.DualWeight = GetFloat64(KeyDualWeight)
	cfg.DeterministicThreshold = GetFloat64(KeyDeterministicThreshold)
	cfg.ProbabilisticThreshold = GetFloat64(KeyProbabilisticThreshold)
	cfg.FixedPointTolerance = GetFloat64(KeyFixedPointTolerance)
	cfg.FixedPointMaxSteps = GetInt(KeyFixedPointMaxSteps)
	cfg.ContradictionMargin = GetFloat64(KeyContradictionMargin)
	cfg.EthicalFloor = GetFloat64(KeyEthicalFloor)
	cfg.OracleTimeout = GetDuration(KeyOracleTimeout)
	return cfg
}

package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's error taxonomy (spec.md §7). Each is
// returned or wrapped with operation context via the wrap helpers below,
// mirroring the teacher's wrapDBError convention.
var (
	// ErrCausalMissing: a declared causal parent is absent at write time.
	ErrCausalMissing = errors.New("causal parent missing")

	// ErrFocusMissing: a lens was applied to a value outside its domain.
	ErrFocusMissing = errors.New("lens focus missing")

	// ErrSchemaConflict: a migration is incompatible with the on-disk version.
	ErrSchemaConflict = errors.New("schema conflict")

	// ErrOracleUnavailable: the semantic oracle did not respond within budget.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrIntegrityViolation: a persisted causal chain cycles or does not terminate.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrBackpressureStall: event consumers blocked producers past the threshold.
	ErrBackpressureStall = errors.New("backpressure stall")

	// ErrAxiomTampered: a write attempted to restructure a frozen axiom candidate.
	ErrAxiomTampered = errors.New("axiom candidate tampered")

	// ErrNotFound: a get-by-id query found nothing.
	ErrNotFound = errors.New("not found")
)

// Wrap adds operation context to a sentinel error, the same way the
// teacher's wrapDBError wraps sql.ErrNoRows with a named operation.
func Wrap(op string, sentinel error, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, sentinel)
	}
	return fmt.Errorf("%s: %w: %v", op, sentinel, cause)
}

// IsCausalMissing reports whether err is or wraps ErrCausalMissing.
func IsCausalMissing(err error) bool { return errors.Is(err, ErrCausalMissing) }

// IsFocusMissing reports whether err is or wraps ErrFocusMissing.
func IsFocusMissing(err error) bool { return errors.Is(err, ErrFocusMissing) }

// IsSchemaConflict reports whether err is or wraps ErrSchemaConflict.
func IsSchemaConflict(err error) bool { return errors.Is(err, ErrSchemaConflict) }

// IsOracleUnavailable reports whether err is or wraps ErrOracleUnavailable.
func IsOracleUnavailable(err error) bool { return errors.Is(err, ErrOracleUnavailable) }

// IsIntegrityViolation reports whether err is or wraps ErrIntegrityViolation.
func IsIntegrityViolation(err error) bool { return errors.Is(err, ErrIntegrityViolation) }

// IsAxiomTampered reports whether err is or wraps ErrAxiomTampered.
func IsAxiomTampered(err error) bool { return errors.Is(err, ErrAxiomTampered) }

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

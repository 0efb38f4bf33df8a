// Package fault defines the error taxonomy shared by the fitting core.
// Configuration and data-integrity problems are fatal to the current fit
// and surface immediately; numerical degeneracies are recoverable and
// carry the offending channel so a minimizer can reject the parameter
// point and keep searching.
package fault

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks an unusable plugin setup: unrecognized statistic
// combinations, missing Gaussian error arrays, malformed selection
// strings, or a likelihood request with zero active channels.
var ErrConfiguration = errors.New("configuration error")

// ErrDataIntegrity marks data that cannot satisfy a request, such as a
// rebinning threshold unreachable with the counts at hand.
var ErrDataIntegrity = errors.New("data integrity error")

// DegeneracyError reports a numerically degenerate model evaluation,
// for instance negative differential flux on the true-energy grid.
type DegeneracyError struct {
	// Channel is the detector channel (or true-energy bin) index where
	// the degeneracy was first observed.
	Channel int
	Reason  string
}

func (e *DegeneracyError) Error() string {
	return fmt.Sprintf("numerical degeneracy at channel %d: %s", e.Channel, e.Reason)
}

// Configurationf wraps ErrConfiguration with a formatted description.
func Configurationf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConfiguration)...)
}

// DataIntegrityf wraps ErrDataIntegrity with a formatted description.
func DataIntegrityf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrDataIntegrity)...)
}

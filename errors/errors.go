// Package errors provides error handling for quilt.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := stage.Apply(ctx, cb); err != nil {
//	    return errors.Wrap(err, "refine merge failed")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrCacheIntegrity) {
//	    // corrupted cache entry, do not recompute silently
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the consolidation engine's failure taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrConfiguration indicates a stage's declared preconditions are unmet
	// (e.g. definition-aware refinement run before definitions were generated).
	// Fatal for the current pipeline run, never silently skipped.
	ErrConfiguration = New("configuration error")

	// ErrCollaborator indicates an LLM or embedding provider failure.
	// Propagated to the job runner unchanged; the engine never retries on its own.
	ErrCollaborator = New("collaborator error")

	// ErrCacheIntegrity indicates a hash file exists but its payload is
	// missing or unparsable. Never treated as a cache miss: an expensive
	// result would be discarded without operator awareness.
	ErrCacheIntegrity = New("cache integrity error")

	// ErrInvariant signals a bug in merge logic (e.g. a convergence loop
	// exceeding its structural bound).
	ErrInvariant = New("invariant violation")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")
)

// IsConfiguration checks if an error is or wraps ErrConfiguration
func IsConfiguration(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsCollaborator checks if an error is or wraps ErrCollaborator
func IsCollaborator(err error) bool {
	return err != nil && Is(err, ErrCollaborator)
}

// IsCacheIntegrity checks if an error is or wraps ErrCacheIntegrity
func IsCacheIntegrity(err error) bool {
	return err != nil && Is(err, ErrCacheIntegrity)
}

// IsInvariant checks if an error is or wraps ErrInvariant
func IsInvariant(err error) bool {
	return err != nil && Is(err, ErrInvariant)
}

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewConfigurationError creates a configuration error with a formatted message
func NewConfigurationError(format string, args ...interface{}) error {
	return Wrap(ErrConfiguration, Newf(format, args...).Error())
}

// WrapCollaborator wraps a provider failure so callers can classify it with
// errors.Is(err, ErrCollaborator) while the original failure remains
// inspectable through the chain.
func WrapCollaborator(err error, context string) error {
	return Wrap(WithSecondaryError(ErrCollaborator, err), context)
}

// NewInvariantViolation creates an invariant-violation error with a formatted message
func NewInvariantViolation(format string, args ...interface{}) error {
	return Wrap(ErrInvariant, Newf(format, args...).Error())
}

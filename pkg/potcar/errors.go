package potcar

import "errors"

var (
	// ErrPotentialExists is returned when the identical potential (same
	// identifiers and same content hash) is already stored.
	ErrPotentialExists = errors.New("identical potential already stored")

	// ErrPotentialConflict is returned when a potential with the same
	// (name, functional, version) identifiers but different contents is
	// already stored.
	ErrPotentialConflict = errors.New("potential with matching identifiers but different contents already stored")

	// ErrPotentialNotFound is returned when no stored potential matches the
	// given identifiers.
	ErrPotentialNotFound = errors.New("no matching potential stored")

	// ErrEmptyFilter is returned by Find when no identifier is constrained.
	ErrEmptyFilter = errors.New("potential query without any identifier")
)

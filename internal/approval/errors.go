package approval

import "errors"

// Domain errors shared by the approval workflow packages.
// Check with errors.Is().
var (
	// ErrInvalidBatch is returned when a command batch fails validation.
	ErrInvalidBatch = errors.New("approval: invalid batch")

	// ErrInvalidStatus is returned when a decision carries an unknown status.
	ErrInvalidStatus = errors.New("approval: invalid decision status")
)

package game

import "errors"

// Option failures are recovered locally: during a load the offending entry is
// logged and skipped, during an explicit set they surface to the caller.
var (
	// ErrInvalidOptionValue means a requested value is not in the option's
	// declared choice set.
	ErrInvalidOptionValue = errors.New("invalid option value")

	// ErrUnknownOption means the option id is not in the catalog.
	ErrUnknownOption = errors.New("unknown option")
)

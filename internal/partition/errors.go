package partition

import "errors"

var (
	// ErrLoadFailure is returned when a partition file exists but is not a valid image.
	ErrLoadFailure = errors.New("partition file is corrupt or incompatible")

	// ErrIOFailure is returned when the underlying storage fails.
	ErrIOFailure = errors.New("partition storage failure")

	// ErrResourceExhausted is returned when the memory budget refuses a column allocation.
	ErrResourceExhausted = errors.New("partition memory budget exhausted")

	// ErrAlreadyResident is returned when Initialize or LoadFromFile is called on a resident partition.
	ErrAlreadyResident = errors.New("partition already resident")

	// ErrNotResident is returned when row data is requested from an unloaded partition.
	ErrNotResident = errors.New("partition not resident")

	// ErrCorruptChain is returned when a history walk does not terminate.
	ErrCorruptChain = errors.New("history chain is corrupt")
)

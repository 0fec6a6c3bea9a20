package propstore

import (
	"errors"

	"github.com/hupe1980/propstore/internal/cache"
	"github.com/hupe1980/propstore/internal/column"
	"github.com/hupe1980/propstore/internal/partition"
)

var (
	// ErrCapacityExceeded is returned when a partition has no free row left.
	ErrCapacityExceeded = column.ErrCapacityExceeded

	// ErrIndexOutOfBounds is returned for rows outside the written extent.
	ErrIndexOutOfBounds = column.ErrIndexOutOfBounds

	// ErrKindMismatch is returned when a value's kind differs from the property's kind.
	ErrKindMismatch = column.ErrKindMismatch

	// ErrLoadFailure is returned when a partition file is corrupt or does not
	// match the property schema.
	ErrLoadFailure = partition.ErrLoadFailure

	// ErrIOFailure is returned when the blob store fails to read or write.
	ErrIOFailure = partition.ErrIOFailure

	// ErrResourceExhausted is returned when no partition can be made resident:
	// every cached partition is pinned, or the memory budget is spent.
	ErrResourceExhausted = partition.ErrResourceExhausted

	// ErrCorruptChain is returned when a history chain does not terminate.
	ErrCorruptChain = partition.ErrCorruptChain

	// ErrPartitionPinned is returned when closing a partition that is in use.
	ErrPartitionPinned = cache.ErrPartitionPinned

	// ErrClosed is returned after Close.
	ErrClosed = cache.ErrClosed

	// ErrUnknownProperty is returned when the topology has no schema for a property.
	ErrUnknownProperty = errors.New("unknown property")
)

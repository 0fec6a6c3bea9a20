// Package cache keeps a bounded set of property partitions resident.
//
// Partitions are admitted on demand and pinned for the lifetime of a Handle.
// When the cache is full, the least recently acquired unpinned partition is
// saved (if dirty), closed and dropped before a new one is admitted. Pinned
// partitions are never evicted.
//
// When every resident partition is pinned, Acquire of a missing partition
// fails with partition.ErrResourceExhausted, or, with Options.WaitForRelease,
// blocks until a handle is released or the context is done.
package cache

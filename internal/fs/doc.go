// Package fs abstracts the few filesystem calls the local blob store makes,
// so tests can inject write, sync and rename failures.
//
//   - [LocalFS]: production implementation over the os package
//   - [FaultyFS]: wrapper that fails matching files on demand
//
// [WriteFileAtomic] is the only way partition images reach disk: it writes a
// temp file in the target directory, syncs it, renames it over the target and
// syncs the directory, so an interrupted save never clobbers the previous
// image.
//
// Calls take no context.Context. Local file operations are not interruptible
// at the syscall level; slow remote storage goes through blobstore instead.
package fs

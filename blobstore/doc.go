// Package blobstore is where partition images live.
//
// A BlobStore maps the opaque names produced by the topology layer to whole
// partition images. Put must replace a blob atomically: readers observe
// either the previous image or the new one, never a torn write.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, temp-file + rename writes, mmap reads
//   - MemoryStore: in-process map, for tests
//   - s3.Store: Amazon S3 (aws-sdk-go-v2)
//   - minio.Store: MinIO and other S3-compatible servers
//
// Absent blobs are reported with an error satisfying errors.Is(err, ErrNotFound);
// partitions treat that as "no history yet", not as a failure.
package blobstore

// Package minio provides a MinIO (and generic S3-compatible) implementation
// of blobstore.BlobStore.
//
// Usage:
//
//	store, err := minio.Connect("localhost:9000", "access", "secret", "graphs", minio.WithSecure(false))
//	if err != nil {
//		return err
//	}
package minio

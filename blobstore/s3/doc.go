// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// Partition images are written as whole objects through the S3 upload
// manager, so a Put either publishes the complete image or nothing. Reads
// use ranged GETs.
//
// Usage:
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("graphs/social"))
//	if err != nil {
//		return err
//	}
//	db, err := propstore.Open(store, topology)
package s3

// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible storage (Ceph, Garage,
// SeaweedFS) and is the default remote backend for photo datasets and
// published snapshots.
//
//	store, err := minioblob.Dial(minioblob.Options{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "shelter",
//	    Prefix:    "dogs/",
//	})
package minio

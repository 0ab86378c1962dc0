// Package s3 provides a client for the versioned S3 bucket holding remote state.
//
// It creates the bucket on first use, turns on object versioning so every
// state write keeps its predecessor, and reads and writes state objects with
// optional server-side encryption.
package s3

// Package storage moves media between the local workspace and remote
// locations.
//
// Locators are URLs: s3://bucket/key addresses an S3 object through
// aws-sdk-go-v2, and file:///path addresses the local filesystem (used for
// NAS mounts and tests). Router picks the backend per locator, retries
// transient failures with bounded exponential backoff, and fans directory
// uploads out over a bounded errgroup.
package storage

// Package upload publishes rendered night directories to remote storage.
package upload

import "context"

// Uploader uploads a local night directory to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload uploads all files in localDir. The directory basename (the
	// night) is used as a sub-prefix under the configured remote prefix.
	Upload(ctx context.Context, localDir string) error

	// ListNights returns the night directories already present under the
	// configured remote prefix.
	ListNights(ctx context.Context) ([]string, error)
}

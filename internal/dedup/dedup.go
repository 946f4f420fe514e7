// Package dedup persists the set of voicemail message IDs that have already
// been claimed for processing, so a redelivered or near-simultaneous
// duplicate webhook never triggers a second pipeline run.
package dedup

// Store records processed message IDs. Claim combines the duplicate check
// and the record step in one call so that callers never observe a window
// between "checked" and "recorded".
type Store interface {
	// Claim records id as processed. It returns true if the id was fresh
	// (the caller owns processing) and false if it was already recorded.
	Claim(id string) (bool, error)

	// Close releases any underlying resources.
	Close() error
}

package storage

import (
	"context"
	"errors"
)

// objectPrefix is the namespace both variants store uploads under.
const objectPrefix = "uploads/"

// CompactLimit is the largest normalized payload, in bytes, routed to the
// compact variant. Anything larger goes to the general variant.
const CompactLimit = 140 * 1024

// ErrObjectNotFound signals that a backend could not retrieve the named
// object. Reconciliation treats it as absence, not as a fault.
var ErrObjectNotFound = errors.New("storage: object not found")

// Backend is the capability set shared by both object-storage variants.
type Backend interface {
	// Exists reports whether the named object is present. The check is
	// best-effort; a variant that cannot answer may report false.
	Exists(ctx context.Context, name string) (bool, error)

	// Save stores the payload under name and returns its public URL.
	// Idempotence by name is not guaranteed.
	Save(ctx context.Context, name string, data []byte) (string, error)

	// URL derives the public URL for name without a network call. The
	// object may not exist.
	URL(name string) string

	// Fetch retrieves the object's bytes, or ErrObjectNotFound.
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Select routes a normalized payload to a variant by size alone.
func Select(compact, general Backend, payloadSize int) Backend {
	if payloadSize <= CompactLimit {
		return compact
	}
	return general
}

// CanonicalName derives the content-addressed object name for a fingerprint.
// Naming off the fingerprint keeps object addressing collision-free across
// users.
func CanonicalName(fingerprint string) string {
	return fingerprint + "__compressed.jpg"
}

package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists indicates a create collided with an existing document.
	ErrAlreadyExists = errors.New("store: already exists")
)

// HashIndex is the global fingerprint-to-URL dedup index.
type HashIndex interface {
	// Find returns the entry for a fingerprint, or ErrNotFound.
	Find(ctx context.Context, hash string) (HashEntry, error)

	// Insert upserts the entry by fingerprint. Concurrent first writers
	// race; exactly one entry survives and later writers are no-ops.
	Insert(ctx context.Context, entry HashEntry) error

	// Delete removes the entry for a fingerprint. Deleting a missing
	// entry is not an error.
	Delete(ctx context.Context, hash string) error
}

// UserStore holds user accounts and their embedded upload ledgers.
type UserStore interface {
	// Find returns the account for a username, or ErrNotFound.
	Find(ctx context.Context, username string) (UserAccount, error)

	// Create inserts a new account, or ErrAlreadyExists.
	Create(ctx context.Context, account UserAccount) error

	// AddUpload appends a record to the user's ledger with set semantics:
	// re-adding an identical record is a no-op.
	AddUpload(ctx context.Context, username string, record UploadRecord) error

	// ReplaceUploads overwrites the user's whole ledger.
	ReplaceUploads(ctx context.Context, username string, records []UploadRecord) error
}

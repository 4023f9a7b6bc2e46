package store

import (
	"context"
	"sync"
)

// Memory implements HashIndex and UserStore in process memory. It exists
// for tests and local development; the Mongo implementation is the
// production store.
type Memory struct {
	mu     sync.Mutex
	hashes map[string]HashEntry
	users  map[string]UserAccount
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		hashes: map[string]HashEntry{},
		users:  map[string]UserAccount{},
	}
}

func (m *Memory) Find(_ context.Context, hash string) (HashEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.hashes[hash]
	if !ok {
		return HashEntry{}, ErrNotFound
	}
	return entry, nil
}

func (m *Memory) Insert(_ context.Context, entry HashEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// First writer wins, matching the unique-index upsert in Mongo.
	if _, ok := m.hashes[entry.Hash]; !ok {
		m.hashes[entry.Hash] = entry
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, hash)
	return nil
}

// Users returns the UserStore view of the same in-memory state.
func (m *Memory) Users() UserStore {
	return (*memoryUsers)(m)
}

type memoryUsers Memory

func (m *memoryUsers) Find(_ context.Context, username string) (UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.users[username]
	if !ok {
		return UserAccount{}, ErrNotFound
	}
	account.Uploads = append([]UploadRecord(nil), account.Uploads...)
	return account, nil
}

func (m *memoryUsers) Create(_ context.Context, account UserAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[account.Username]; ok {
		return ErrAlreadyExists
	}
	if account.Uploads == nil {
		account.Uploads = []UploadRecord{}
	}
	m.users[account.Username] = account
	return nil
}

func (m *memoryUsers) AddUpload(_ context.Context, username string, record UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.users[username]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range account.Uploads {
		if existing == record {
			return nil
		}
	}
	account.Uploads = append(account.Uploads, record)
	m.users[username] = account
	return nil
}

func (m *memoryUsers) ReplaceUploads(_ context.Context, username string, records []UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.users[username]
	if !ok {
		return ErrNotFound
	}
	account.Uploads = append([]UploadRecord{}, records...)
	m.users[username] = account
	return nil
}

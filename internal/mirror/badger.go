package mirror

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend is the default on-disk home of the guest collection.
type BadgerBackend struct {
	db *badger.DB
}

func NewBadgerBackend(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Silence default logger
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// NewInMemoryBackend opens a Badger instance that never touches disk.
// Used by tests and by callers that only need a scratch mirror.
func NewInMemoryBackend() (*BadgerBackend, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(StorageKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

func (b *BadgerBackend) Store(ctx context.Context, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(StorageKey), data)
	})
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

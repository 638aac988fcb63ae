package mirror

import (
	"context"
	"errors"
)

// StorageKey is the fixed key the serialized guest collection lives
// under, in whichever backend holds it.
const StorageKey = "arkeep_guest_articles_v1"

var (
	ErrNotFound  = errors.New("article not found")
	ErrDuplicate = errors.New("article already saved")
)

// Backend persists the guest collection wholesale: one opaque blob
// under StorageKey, read and written in full. Load returns (nil, nil)
// when nothing has been stored yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error
	Close() error
}

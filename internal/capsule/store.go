package capsule

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multihash"
)

var log = logging.Logger("capsule")

var (
	ErrNotFound  = errors.New("capsule: not found")
	ErrBadID     = errors.New("capsule: invalid content id")
	ErrCorrupted = errors.New("capsule: content does not match id")
)

var prefix = cid.Prefix{
	Version:  1,
	Codec:    cid.Raw,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

// Store persists capsule blobs under their content id.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
}

// ContentID returns the CIDv1 (raw, sha2-256) of data. Its string form is 59
// characters, inside the 64-byte cid limit of listings and purchases.
func ContentID(data []byte) (string, error) {
	c, err := prefix.Sum(data)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// Verify checks that data hashes to id.
func Verify(id string, data []byte) error {
	want, err := cid.Decode(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadID, err)
	}
	got, err := want.Prefix().Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(want) {
		return ErrCorrupted
	}
	return nil
}

// MemoryStore keeps capsules in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, data []byte) (string, error) {
	id, err := ContentID(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.blobs[id] = append([]byte(nil), data...)
	m.mu.Unlock()
	return id, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

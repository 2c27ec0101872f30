package identity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"renderworker/internal/pkg/errors"
	"renderworker/internal/ports"
	"renderworker/internal/repositories"
)

// Store persists the accepted name of each worker slot. Load returns an
// empty name when nothing was saved.
type Store interface {
	Load(ctx context.Context, slot int) (string, error)
	Save(ctx context.Context, slot int, name string) error
	Clear(ctx context.Context, slot int) error
}

// Key returns the storage key of slot.
func Key(slot int) string {
	return fmt.Sprintf("worker%d", slot)
}

// MemoryStore keeps names for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	names map[int]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{names: make(map[int]string)}
}

func (s *MemoryStore) Load(_ context.Context, slot int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names[slot], nil
}

func (s *MemoryStore) Save(_ context.Context, slot int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[slot] = name
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, slot)
	return nil
}

// ObjectStore keeps one small object per slot under identity/.
type ObjectStore struct {
	provider ports.StorageProvider
}

func NewObjectStore(provider ports.StorageProvider) *ObjectStore {
	return &ObjectStore{provider: provider}
}

func objectKey(slot int) string {
	return "identity/" + Key(slot)
}

func (s *ObjectStore) Load(ctx context.Context, slot int) (string, error) {
	rc, _, _, err := s.provider.GetObject(ctx, objectKey(slot))
	if errors.Is(err, ports.ErrObjectNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "identity.load", "read identity")
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return "", errors.Wrap(err, "identity.load", "read identity")
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *ObjectStore) Save(ctx context.Context, slot int, name string) error {
	data := []byte(name + "\n")
	_, err := s.provider.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   objectKey(slot),
		ContentType: "text/plain",
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		return errors.Wrap(err, "identity.save", "write identity")
	}
	return nil
}

func (s *ObjectStore) Clear(ctx context.Context, slot int) error {
	err := s.provider.DeleteObject(ctx, objectKey(slot))
	if err != nil && !errors.Is(err, ports.ErrObjectNotFound) {
		return errors.Wrap(err, "identity.clear", "delete identity")
	}
	return nil
}

// PostgresStore keeps names in the worker_identities table.
type PostgresStore struct {
	repo *repositories.IdentityRepository
}

func NewPostgresStore(repo *repositories.IdentityRepository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

func (s *PostgresStore) Load(ctx context.Context, slot int) (string, error) {
	id, err := s.repo.Get(ctx, slot)
	if errors.IsCode(err, errors.CodeNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id.Name, nil
}

func (s *PostgresStore) Save(ctx context.Context, slot int, name string) error {
	return s.repo.Upsert(ctx, slot, name)
}

func (s *PostgresStore) Clear(ctx context.Context, slot int) error {
	err := s.repo.Delete(ctx, slot)
	if errors.IsCode(err, errors.CodeNotFound) {
		return nil
	}
	return err
}

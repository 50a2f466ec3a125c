package quota

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// Usage is the persisted record for one provider and day
type Usage struct {
	Key       string `badgerhold:"key"`
	Provider  string
	Day       string
	Calls     int
	UpdatedAt time.Time
}

// BadgerStore persists usage in a Badger database so the daily ceiling holds
// across process invocations within a calendar day
type BadgerStore struct {
	store    *badgerhold.Store
	provider string
}

// OpenBadgerStore opens (or creates) the database at path. An empty path
// opens an in-memory database.
func OpenBadgerStore(path, provider string) (*BadgerStore, error) {
	options := badgerhold.DefaultOptions
	options.Logger = nil

	if path == "" {
		options.InMemory = true
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create quota directory: %w", err)
		}
		options.Dir = path
		options.ValueDir = path
	}

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open quota database: %w", err)
	}

	return &BadgerStore{store: store, provider: provider}, nil
}

func (s *BadgerStore) key(day string) string {
	return s.provider + ":" + day
}

// Load implements Store
func (s *BadgerStore) Load(ctx context.Context, day string) (int, error) {
	var usage Usage
	err := s.store.Get(s.key(day), &usage)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}
	return usage.Calls, nil
}

// Save implements Store
func (s *BadgerStore) Save(ctx context.Context, day string, calls int) error {
	key := s.key(day)
	usage := Usage{
		Key:       key,
		Provider:  s.provider,
		Day:       day,
		Calls:     calls,
		UpdatedAt: time.Now(),
	}
	if err := s.store.Upsert(key, &usage); err != nil {
		return fmt.Errorf("failed to upsert usage: %w", err)
	}
	return nil
}

// Close implements Store
func (s *BadgerStore) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

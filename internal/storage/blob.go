package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Blob is a JSON-encoded value stored under one key.
type Blob[T any] struct {
	store Store
	key   string
}

// NewBlob binds a typed blob to key in store.
func NewBlob[T any](store Store, key string) *Blob[T] {
	return &Blob[T]{store: store, key: key}
}

// Key returns the store key.
func (b *Blob[T]) Key() string {
	return b.key
}

// Load reads and decodes the blob. found is false when the key is absent.
// Malformed JSON is returned as an error, never coerced to the zero value.
func (b *Blob[T]) Load(ctx context.Context) (value T, found bool, err error) {
	raw, err := b.store.Get(ctx, b.key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("failed to read %s: %w", b.key, err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("malformed %s: %w", b.key, err)
	}
	return value, true, nil
}

// Save encodes and writes the blob.
func (b *Blob[T]) Save(ctx context.Context, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", b.key, err)
	}
	if err := b.store.Put(ctx, b.key, raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", b.key, err)
	}
	return nil
}

// Clear removes the blob.
func (b *Blob[T]) Clear(ctx context.Context) error {
	if err := b.store.Delete(ctx, b.key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", b.key, err)
	}
	return nil
}

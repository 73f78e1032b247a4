package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/dshills/repoindex/pkg/types"
)

var bucketManifests = []byte("manifests")

// BoltStore keeps all manifests in one bbolt database, one key per repository.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketManifests); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketManifests, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Load implements Store.
func (s *BoltStore) Load(ctx context.Context, name string) (*types.IndexManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var m *types.IndexManifest
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketManifests).Get([]byte(Key(name)))
		if data == nil {
			return ErrNotFound
		}
		m = &types.IndexManifest{}
		return json.Unmarshal(data, m)
	})
	if err != nil {
		return nil, err
	}
	return normalize(m), nil
}

// Save implements Store.
func (s *BoltStore) Save(ctx context.Context, name string, manifest *types.IndexManifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketManifests).Put([]byte(Key(name)), data)
	})
}

// Delete implements Store.
func (s *BoltStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketManifests).Delete([]byte(Key(name)))
	})
}

// List implements Store. bbolt iterates keys in byte order.
func (s *BoltStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketManifests).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

package vars

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var variablesBucket = []byte("variables")

// Bolt stores variables in an embedded bbolt file, keyed "<userID>/<name>".
// It serves single-host deployments that do not run Postgres.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (or creates) the bbolt database at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("vars: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(variablesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vars: create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close releases the underlying file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func boltKey(userID int64, name string) []byte {
	return []byte(fmt.Sprintf("%d/%s", userID, name))
}

// Get reads and unwraps a variable value.
func (b *Bolt) Get(_ context.Context, userID int64, name string) (string, bool, error) {
	var raw []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(variablesBucket).Get(boltKey(userID, name)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("vars: bolt get %s: %w", name, err)
	}
	if raw == nil {
		return "", false, nil
	}
	return Unwrap(raw), true, nil
}

// Set persists the variable as a JSON value.
func (b *Bolt) Set(_ context.Context, userID int64, name, value string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("vars: marshal %s: %w", name, err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(variablesBucket).Put(boltKey(userID, name), data)
	})
	if err != nil {
		return fmt.Errorf("vars: bolt put %s: %w", name, err)
	}
	return nil
}

// HasValue reports whether a non-blank value exists.
func (b *Bolt) HasValue(ctx context.Context, userID int64, name string) (bool, error) {
	v, ok, err := b.Get(ctx, userID, name)
	if err != nil || !ok {
		return false, err
	}
	return nonBlank(v), nil
}

// Clear removes all variables of a user.
func (b *Bolt) Clear(_ context.Context, userID int64) error {
	prefix := []byte(fmt.Sprintf("%d/", userID))
	err := b.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(variablesBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("vars: bolt clear user %d: %w", userID, err)
	}
	return nil
}

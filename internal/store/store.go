// Package store persists conversation state in a single embedded BoltDB
// file. Two buckets mirror the two per-conversation namespaces: "owners"
// maps conversation id to the owning user id, "history" maps conversation
// id to the serialized history log. Keys and owner values are 8-byte
// big-endian integers; history values are opaque to this package.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/laoshi-bot/laoshi/internal/log"
	"github.com/laoshi-bot/laoshi/internal/session"
)

var (
	// ErrOwnerExists indicates a second ownership write for the same
	// conversation. Ownership is write-once; a duplicate write is a bug
	// in the caller, not a recoverable condition.
	ErrOwnerExists = errors.New("conversation owner already recorded")
)

// Bucket names. Bolt keeps both datasets in one DB file.
var (
	bucketOwners  = []byte("owners")
	bucketHistory = []byte("history")
)

// Store is the durable History Store and Ownership Table. Safe for
// concurrent use; Bolt serializes writers internally and every operation
// runs inside a scoped transaction that closes on all exit paths.
type Store struct {
	db     *bolt.DB
	logger log.Logger
}

// Open opens (creating if needed) the store at path. The parent directory
// is created with restrictive permissions.
func Open(path string, logger log.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketOwners, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}

	logger.Info("conversation store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordOwner writes the conversation's owner. Write-once: a second call
// for the same conversation returns ErrOwnerExists.
func (s *Store) RecordOwner(conv session.ConversationID, owner session.UserID) error {
	key := encodeID(uint64(conv))
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOwners)
		if b.Get(key) != nil {
			return fmt.Errorf("%w: %d", ErrOwnerExists, conv)
		}
		return b.Put(key, encodeID(uint64(owner)))
	})
	if err != nil {
		return err
	}
	s.logger.Debug("recorded conversation owner", "conversation", uint64(conv), "owner", uint64(owner))
	return nil
}

// Owner resolves the conversation's owner. ok is false for an unknown
// conversation.
func (s *Store) Owner(conv session.ConversationID) (owner session.UserID, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketOwners).Get(encodeID(uint64(conv)))
		if raw == nil {
			return nil
		}
		if len(raw) != 8 {
			return fmt.Errorf("corrupt owner record for conversation %d: %d bytes", conv, len(raw))
		}
		owner = session.UserID(binary.BigEndian.Uint64(raw))
		ok = true
		return nil
	})
	return owner, ok, err
}

// History returns the last committed history log for the conversation,
// or nil when none has been committed.
func (s *Store) History(conv session.ConversationID) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketHistory).Get(encodeID(uint64(conv)))
		if raw != nil {
			// Bolt-owned memory is only valid inside the transaction.
			out = make([]byte, len(raw))
			copy(out, raw)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading history for conversation %d: %w", conv, err)
	}
	return out, nil
}

// PutHistory atomically replaces the conversation's history log. There is
// no partial-append: the full log is written each time.
func (s *Store) PutHistory(conv session.ConversationID, raw []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHistory).Put(encodeID(uint64(conv)), raw)
	})
	if err != nil {
		return fmt.Errorf("committing history for conversation %d: %w", conv, err)
	}
	return nil
}

// encodeID renders an id as an 8-byte big-endian key.
func encodeID(id uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], id)
	return key[:]
}

package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/laoshi-bot/laoshi/internal/log"
	"github.com/laoshi-bot/laoshi/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "threads.db"), log.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestOwner_WriteOnce(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordOwner(100, 7); err != nil {
		t.Fatalf("RecordOwner: %v", err)
	}

	owner, ok, err := s.Owner(100)
	if err != nil {
		t.Fatalf("Owner: %v", err)
	}
	if !ok || owner != 7 {
		t.Errorf("Owner = %d, %v; want 7, true", owner, ok)
	}

	if err := s.RecordOwner(100, 8); !errors.Is(err, ErrOwnerExists) {
		t.Errorf("second RecordOwner: got %v, want ErrOwnerExists", err)
	}

	// The original owner must be untouched.
	owner, _, _ = s.Owner(100)
	if owner != 7 {
		t.Errorf("owner mutated to %d", owner)
	}
}

func TestOwner_UnknownConversation(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Owner(999)
	if err != nil {
		t.Fatalf("Owner: %v", err)
	}
	if ok {
		t.Error("unknown conversation reported as known")
	}
}

func TestHistory_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	got, err := s.History(5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if got != nil {
		t.Errorf("fresh conversation should have nil history, got %q", got)
	}

	logBytes := []byte(`[{"role":"user"},{"role":"model"}]`)
	if err := s.PutHistory(5, logBytes); err != nil {
		t.Fatalf("PutHistory: %v", err)
	}

	got, err = s.History(5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !bytes.Equal(got, logBytes) {
		t.Errorf("History = %q, want %q", got, logBytes)
	}

	// Idempotence: re-reading without an intervening commit yields the
	// identical value.
	again, err := s.History(5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !bytes.Equal(again, got) {
		t.Errorf("re-read diverged: %q vs %q", again, got)
	}
}

func TestHistory_FullReplace(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutHistory(5, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutHistory(5, []byte("second")); err != nil {
		t.Fatal(err)
	}

	got, err := s.History(5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("History = %q, want full replacement", got)
	}
}

func TestHistory_IsolatedPerConversation(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutHistory(1, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutHistory(2, []byte("two")); err != nil {
		t.Fatal(err)
	}

	got, _ := s.History(1)
	if string(got) != "one" {
		t.Errorf("conversation 1: got %q", got)
	}
	got, _ = s.History(2)
	if string(got) != "two" {
		t.Errorf("conversation 2: got %q", got)
	}
}

func TestKeyLayout_BigEndian(t *testing.T) {
	s := openTestStore(t)

	conv := session.ConversationID(0x0102030405060708)
	if err := s.RecordOwner(conv, session.UserID(0x1112131415161718)); err != nil {
		t.Fatal(err)
	}

	var key, value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(bucketOwners).Cursor().First()
		key = append([]byte(nil), k...)
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	wantKey := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(key, wantKey) {
		t.Errorf("key = %x, want %x", key, wantKey)
	}
	if len(value) != 8 || binary.BigEndian.Uint64(value) != 0x1112131415161718 {
		t.Errorf("value = %x, want big-endian user id", value)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "threads.db")

	s, err := Open(path, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutHistory(9, []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := s2.Close(); err != nil {
			t.Error(err)
		}
	}()

	got, err := s2.History(9)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "persisted" {
		t.Errorf("History after reopen = %q", got)
	}
}

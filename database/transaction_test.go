package database_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/database/leveldb"
)

func openTestDB(t *testing.T) database.Database {
	t.Helper()
	db, err := leveldb.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open unexpectedly failed: %s", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Close unexpectedly failed: %s", err)
		}
	})
	return db
}

func TestTransactionPut(t *testing.T) {
	db := openTestDB(t)

	dbTx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin unexpectedly failed: %s", err)
	}
	defer dbTx.RollbackUnlessClosed()

	key := database.MakeBucket([]byte{0x01}).Key([]byte("key"))
	value1 := []byte("value1")
	if err := dbTx.Put(key, value1); err != nil {
		t.Fatalf("Put unexpectedly failed: %s", err)
	}

	value2 := []byte("value2")
	if err := dbTx.Put(key, value2); err != nil {
		t.Fatalf("Put unexpectedly failed: %s", err)
	}

	if err := dbTx.Commit(); err != nil {
		t.Fatalf("Commit unexpectedly failed: %s", err)
	}

	returnedValue, err := db.Get(key)
	if err != nil {
		t.Fatalf("Get unexpectedly failed: %s", err)
	}
	if !bytes.Equal(returnedValue, value2) {
		t.Fatalf("Get returned wrong value. Want: %s, got: %s", value2, returnedValue)
	}
}

func TestTransactionGetIsolation(t *testing.T) {
	db := openTestDB(t)

	key1 := database.MakeBucket([]byte{0x01}).Key([]byte("key1"))
	value1 := []byte("value1")
	if err := db.Put(key1, value1); err != nil {
		t.Fatalf("Put unexpectedly failed: %s", err)
	}

	dbTx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin unexpectedly failed: %s", err)
	}
	defer dbTx.RollbackUnlessClosed()

	returnedValue, err := dbTx.Get(key1)
	if err != nil {
		t.Fatalf("Get unexpectedly failed: %s", err)
	}
	if !bytes.Equal(returnedValue, value1) {
		t.Fatalf("Get returned wrong value. Want: %s, got: %s", value1, returnedValue)
	}

	missing := database.MakeBucket([]byte{0x01}).Key([]byte("doesn't exist"))
	if _, err := dbTx.Get(missing); !database.IsNotFoundError(err) {
		t.Fatalf("Get returned wrong error: %s", err)
	}
}

func TestTransactionHas(t *testing.T) {
	db := openTestDB(t)

	key1 := database.MakeBucket([]byte{0x01}).Key([]byte("key1"))
	if err := db.Put(key1, []byte("value1")); err != nil {
		t.Fatalf("Put unexpectedly failed: %s", err)
	}

	exists, err := db.Has(key1)
	if err != nil {
		t.Fatalf("Has unexpectedly failed: %s", err)
	}
	if !exists {
		t.Fatalf("Has unexpectedly returned that the value does not exist")
	}

	missing := database.MakeBucket([]byte{0x01}).Key([]byte("doesn't exist"))
	exists, err = db.Has(missing)
	if err != nil {
		t.Fatalf("Has unexpectedly failed: %s", err)
	}
	if exists {
		t.Fatalf("Has unexpectedly returned that the value exists")
	}
}

func TestTransactionDeleteRollback(t *testing.T) {
	db := openTestDB(t)

	key := database.MakeBucket([]byte{0x01}).Key([]byte("key"))
	if err := db.Put(key, []byte("value")); err != nil {
		t.Fatalf("Put unexpectedly failed: %s", err)
	}

	dbTx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin unexpectedly failed: %s", err)
	}
	if err := dbTx.Delete(key); err != nil {
		t.Fatalf("Delete unexpectedly failed: %s", err)
	}
	if err := dbTx.Rollback(); err != nil {
		t.Fatalf("Rollback unexpectedly failed: %s", err)
	}

	exists, err := db.Has(key)
	if err != nil {
		t.Fatalf("Has unexpectedly failed: %s", err)
	}
	if !exists {
		t.Fatalf("Rollback should have left key untouched")
	}
}

func TestCursorPrefixScan(t *testing.T) {
	db := openTestDB(t)

	bucket := database.MakeBucket([]byte{0x02})
	entries := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range entries {
		if err := db.Put(bucket.Key([]byte(k)), []byte(v)); err != nil {
			t.Fatalf("Put unexpectedly failed: %s", err)
		}
	}
	// a key under a different bucket must never show up in the scan.
	if err := db.Put(database.MakeBucket([]byte{0x03}).Key([]byte("a")), []byte("x")); err != nil {
		t.Fatalf("Put unexpectedly failed: %s", err)
	}

	cursor, err := db.Cursor(bucket.Path())
	if err != nil {
		t.Fatalf("Cursor unexpectedly failed: %s", err)
	}
	defer cursor.Close()

	seen := make(map[string]string)
	for ok := cursor.First(); ok; ok = cursor.Next() {
		k, err := cursor.Key()
		if err != nil {
			t.Fatalf("Key unexpectedly failed: %s", err)
		}
		v, err := cursor.Value()
		if err != nil {
			t.Fatalf("Value unexpectedly failed: %s", err)
		}
		seen[string(k)] = string(v)
	}
	if len(seen) != len(entries) {
		t.Fatalf("expected %d entries, got %d (%v)", len(entries), len(seen), seen)
	}
	for k, v := range entries {
		if seen[k] != v {
			t.Fatalf("entry %s: want %s, got %s", k, v, seen[k])
		}
	}
}

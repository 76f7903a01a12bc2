package storage

import (
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("listing migrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no migrations applied")
	}
	if versions[0] != 1 {
		t.Errorf("first migration = %d, want 1", versions[0])
	}
}

func TestPutGetRecord_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutRecord(KeyPersonas, []byte(`[{"id":"p1"}]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.GetRecord(KeyPersonas)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `[{"id":"p1"}]` {
		t.Errorf("got %s", got)
	}

	// Upsert replaces.
	if err := s.PutRecord(KeyPersonas, []byte(`[]`)); err != nil {
		t.Fatalf("put again: %v", err)
	}
	got, err = s.GetRecord(KeyPersonas)
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("after upsert got %s", got)
	}
}

func TestGetRecord_Missing(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetRecord("no-such-key"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadJSON_MissingIsEmptyCollection(t *testing.T) {
	s := openTestStore(t)

	got := []string{"sentinel"}
	if err := s.LoadJSON(KeyGroups, &got); err != nil {
		t.Fatalf("load missing: %v", err)
	}
	// Target untouched: absence means empty, not error.
	if len(got) != 1 || got[0] != "sentinel" {
		t.Errorf("target mutated on missing record: %v", got)
	}
}

func TestSaveLoadJSON_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	type pet struct {
		Name   string  `json:"name"`
		Energy float64 `json:"energy"`
	}
	if err := s.SaveJSON(KeyPet, pet{Name: "NOVA", Energy: 80}); err != nil {
		t.Fatalf("save: %v", err)
	}
	var got pet
	if err := s.LoadJSON(KeyPet, &got); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Name != "NOVA" || got.Energy != 80 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestDeleteRecord(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutRecord(KeyFeed, []byte(`[]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.DeleteRecord(KeyFeed); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetRecord(KeyFeed); err != ErrNotFound {
		t.Errorf("record survived delete: err = %v", err)
	}
	// Deleting a missing key is not an error.
	if err := s.DeleteRecord(KeyFeed); err != nil {
		t.Errorf("deleting missing key: %v", err)
	}
}

func TestListKeys(t *testing.T) {
	s := openTestStore(t)

	for _, k := range []string{KeyPersonas, KeyFeed, KeyGroups} {
		if err := s.PutRecord(k, []byte(`[]`)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	keys, err := s.ListKeys()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("got %d keys, want 3", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Errorf("keys not sorted: %v", keys)
		}
	}
}

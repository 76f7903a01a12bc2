package entity

import (
	"testing"
)

// recordingPersist captures persistence flushes for assertions.
type recordingPersist struct {
	keys []string
}

func (r *recordingPersist) fn(key string, _ any) {
	r.keys = append(r.keys, key)
}

func (r *recordingPersist) count(key string) int {
	n := 0
	for _, k := range r.keys {
		if k == key {
			n++
		}
	}
	return n
}

func TestAddPersona_AssignsIDAndPersists(t *testing.T) {
	rec := &recordingPersist{}
	s := NewStore(rec.fn)

	p := s.AddPersona(Persona{Name: "Mika"})
	if p.ID == "" {
		t.Fatal("expected generated id")
	}
	if rec.count(RecordPersonas) != 1 {
		t.Errorf("persona flushes = %d, want 1", rec.count(RecordPersonas))
	}

	got, err := s.Persona(p.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Name != "Mika" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestPersona_ReturnsCopyNotAlias(t *testing.T) {
	s := NewStore(nil)
	p := s.AddPersona(Persona{Name: "Mika", Tags: []string{"a"}})

	got, _ := s.Persona(p.ID)
	got.Name = "changed"
	got.Tags[0] = "mutated"

	again, _ := s.Persona(p.ID)
	if again.Name != "Mika" {
		t.Errorf("store name mutated through returned value: %q", again.Name)
	}
	if again.Tags[0] != "a" {
		t.Errorf("store tags mutated through returned value: %q", again.Tags[0])
	}
}

func TestSetActiveProfile_ExactlyOneActive(t *testing.T) {
	s := NewStore(nil)
	a := s.AddProfile(ConnectionProfile{Name: "a"})
	b := s.AddProfile(ConnectionProfile{Name: "b"})

	if err := s.SetActiveProfile(a.ID); err != nil {
		t.Fatalf("activate a: %v", err)
	}
	if err := s.SetActiveProfile(b.ID); err != nil {
		t.Fatalf("activate b: %v", err)
	}

	active := 0
	for _, p := range s.Profiles() {
		if p.Active {
			active++
			if p.ID != b.ID {
				t.Errorf("wrong profile active: %s", p.Name)
			}
		}
	}
	if active != 1 {
		t.Errorf("active profiles = %d, want 1", active)
	}

	// Empty id deactivates everything.
	if err := s.SetActiveProfile(""); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, ok := s.ActiveProfile(); ok {
		t.Error("expected no active profile")
	}
}

func TestSetActiveProfile_UnknownID(t *testing.T) {
	s := NewStore(nil)
	if err := s.SetActiveProfile("nope"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBackfillModel_OnlyFillsEmpty(t *testing.T) {
	rec := &recordingPersist{}
	s := NewStore(rec.fn)
	p := s.AddProfile(ConnectionProfile{Name: "a"})

	s.BackfillModel(p.ID, "gpt-x")
	got, _ := s.BeginEditProfile(p.ID)
	if got.Model != "gpt-x" {
		t.Errorf("model = %q, want gpt-x", got.Model)
	}

	// A second backfill must not overwrite an existing choice.
	s.BackfillModel(p.ID, "other")
	got, _ = s.BeginEditProfile(p.ID)
	if got.Model != "gpt-x" {
		t.Errorf("model overwritten: %q", got.Model)
	}
}

func TestDraft_CommitMergesByID(t *testing.T) {
	s := NewStore(nil)
	p := s.AddPersona(Persona{Name: "Mika", Description: "old"})

	draft, err := s.BeginEditPersona(p.ID)
	if err != nil {
		t.Fatalf("begin edit: %v", err)
	}
	draft.Description = "new"

	// Store unchanged until commit.
	before, _ := s.Persona(p.ID)
	if before.Description != "old" {
		t.Errorf("store changed before commit: %q", before.Description)
	}

	if err := s.CommitPersona(draft); err != nil {
		t.Fatalf("commit: %v", err)
	}
	after, _ := s.Persona(p.ID)
	if after.Description != "new" {
		t.Errorf("description = %q, want new", after.Description)
	}
}

func TestDraft_CommitUnknownID(t *testing.T) {
	s := NewStore(nil)
	if err := s.CommitPersona(Persona{ID: "ghost"}); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHydrate_DoesNotPersist(t *testing.T) {
	rec := &recordingPersist{}
	s := NewStore(rec.fn)

	s.Hydrate(
		[]ConnectionProfile{{ID: "c1", Active: true}, {ID: "c2", Active: true}},
		[]Persona{{ID: "p1"}},
		nil, nil,
	)
	if len(rec.keys) != 0 {
		t.Errorf("hydrate flushed %v", rec.keys)
	}

	// Hydrate repairs a persisted double-active state: first wins.
	active := 0
	for _, p := range s.Profiles() {
		if p.Active {
			active++
		}
	}
	if active != 1 {
		t.Errorf("active after hydrate = %d, want 1", active)
	}
}

func TestFlattenedContent(t *testing.T) {
	p := PromptPreset{
		Segments: []Segment{
			{Title: "a", Content: "one", Enabled: true},
			{Title: "b", Content: "off", Enabled: false},
			{Title: "c", Content: "two", Enabled: true},
		},
	}
	if got := p.FlattenedContent(); got != "one\n\ntwo" {
		t.Errorf("flattened = %q", got)
	}

	// Segment-less presets fall back to the cached content.
	p2 := PromptPreset{Content: "raw"}
	if got := p2.FlattenedContent(); got != "raw" {
		t.Errorf("fallback = %q", got)
	}
}

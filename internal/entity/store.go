package entity

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an entity id resolves to nothing.
var ErrNotFound = errors.New("entity not found")

// PersistFunc is the Persistence Bridge hook. The store invokes it with
// a record key and a snapshot of the changed collection after every
// mutation. Flushes are fire-and-forget best effort: the callback has
// no return value and is never retried.
type PersistFunc func(key string, value any)

// Record keys passed to the PersistFunc. They mirror the storage
// package's record layout; the store itself has no storage dependency.
const (
	RecordProfiles   = "connection_profiles"
	RecordPersonas   = "personas"
	RecordWorldPacks = "world_knowledge_packs"
	RecordPresets    = "prompt_presets"
)

// Store owns the persisted entity collections: connection profiles,
// personas, world-knowledge packs, and prompt presets. All reads return
// deep copies; edits go through the checkout/commit draft workflow.
type Store struct {
	mu       sync.RWMutex
	profiles []ConnectionProfile
	personas []Persona
	packs    []WorldKnowledgePack
	presets  []PromptPreset
	user     UserProfile
	persist  PersistFunc
}

// NewStore creates an empty Store. persist may be nil (no persistence).
func NewStore(persist PersistFunc) *Store {
	if persist == nil {
		persist = func(string, any) {}
	}
	return &Store{persist: persist}
}

// Hydrate replaces all collections with previously-persisted state
// without triggering persistence. Called once at startup.
func (s *Store) Hydrate(profiles []ConnectionProfile, personas []Persona, packs []WorldKnowledgePack, presets []PromptPreset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = profiles
	s.personas = personas
	s.packs = packs
	s.presets = presets
	s.enforceSingleActiveLocked("")
}

// --- Connection profiles ---

// AddProfile inserts a profile, assigning an id if empty, and returns
// the stored copy.
func (s *Store) AddProfile(p ConnectionProfile) ConnectionProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Active {
		s.enforceSingleActiveLocked(p.ID)
	}
	s.profiles = append(s.profiles, p)
	s.persist(RecordProfiles, cloneProfiles(s.profiles))
	return p
}

// DeleteProfile removes a profile by id.
func (s *Store) DeleteProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.profiles {
		if p.ID == id {
			s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
			s.persist(RecordProfiles, cloneProfiles(s.profiles))
			return nil
		}
	}
	return ErrNotFound
}

// SetActiveProfile marks the given profile active and every other
// profile inactive. An empty id deactivates all profiles.
func (s *Store) SetActiveProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		found := false
		for _, p := range s.profiles {
			if p.ID == id {
				found = true
				break
			}
		}
		if !found {
			return ErrNotFound
		}
	}
	s.enforceSingleActiveLocked(id)
	s.persist(RecordProfiles, cloneProfiles(s.profiles))
	return nil
}

func (s *Store) enforceSingleActiveLocked(activeID string) {
	seen := false
	for i := range s.profiles {
		switch {
		case activeID != "":
			s.profiles[i].Active = s.profiles[i].ID == activeID
		case s.profiles[i].Active && !seen:
			seen = true
		default:
			s.profiles[i].Active = false
		}
	}
}

// ActiveProfile returns a copy of the active profile, if any.
func (s *Store) ActiveProfile() (ConnectionProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Active {
			return cloneProfile(p), true
		}
	}
	return ConnectionProfile{}, false
}

// Profiles returns copies of all profiles.
func (s *Store) Profiles() []ConnectionProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProfiles(s.profiles)
}

// BackfillModel records the model id chosen by the completion client's
// first-model fallback onto the profile. This is the only mid-flight
// profile mutation in the system.
func (s *Store) BackfillModel(profileID, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.profiles {
		if s.profiles[i].ID == profileID && s.profiles[i].Model == "" {
			s.profiles[i].Model = model
			s.persist(RecordProfiles, cloneProfiles(s.profiles))
			return
		}
	}
}

// --- Personas ---

func (s *Store) AddPersona(p Persona) Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.personas = append(s.personas, clonePersona(p))
	s.persist(RecordPersonas, clonePersonas(s.personas))
	return p
}

// Persona returns a copy of the persona with the given id.
func (s *Store) Persona(id string) (Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.personas {
		if p.ID == id {
			return clonePersona(p), nil
		}
	}
	return Persona{}, ErrNotFound
}

func (s *Store) Personas() []Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePersonas(s.personas)
}

func (s *Store) DeletePersona(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.personas {
		if p.ID == id {
			s.personas = append(s.personas[:i], s.personas[i+1:]...)
			s.persist(RecordPersonas, clonePersonas(s.personas))
			return nil
		}
	}
	return ErrNotFound
}

// --- World-knowledge packs ---

func (s *Store) AddWorldPack(w WorldKnowledgePack) WorldKnowledgePack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	s.packs = append(s.packs, clonePack(w))
	s.persist(RecordWorldPacks, clonePacks(s.packs))
	return w
}

func (s *Store) WorldPack(id string) (WorldKnowledgePack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.packs {
		if w.ID == id {
			return clonePack(w), nil
		}
	}
	return WorldKnowledgePack{}, ErrNotFound
}

func (s *Store) WorldPacks() []WorldKnowledgePack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePacks(s.packs)
}

func (s *Store) DeleteWorldPack(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.packs {
		if w.ID == id {
			s.packs = append(s.packs[:i], s.packs[i+1:]...)
			s.persist(RecordWorldPacks, clonePacks(s.packs))
			return nil
		}
	}
	return ErrNotFound
}

// --- Prompt presets ---

func (s *Store) AddPreset(p PromptPreset) PromptPreset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.presets = append(s.presets, clonePreset(p))
	s.persist(RecordPresets, clonePresets(s.presets))
	return p
}

func (s *Store) Preset(id string) (PromptPreset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.presets {
		if p.ID == id {
			return clonePreset(p), nil
		}
	}
	return PromptPreset{}, ErrNotFound
}

func (s *Store) Presets() []PromptPreset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePresets(s.presets)
}

func (s *Store) DeletePreset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.presets {
		if p.ID == id {
			s.presets = append(s.presets[:i], s.presets[i+1:]...)
			s.persist(RecordPresets, clonePresets(s.presets))
			return nil
		}
	}
	return ErrNotFound
}

// --- Deep copies ---

func cloneProfile(p ConnectionProfile) ConnectionProfile {
	if p.Temperature != nil {
		temp := *p.Temperature
		p.Temperature = &temp
	}
	return p
}

func cloneProfiles(in []ConnectionProfile) []ConnectionProfile {
	out := make([]ConnectionProfile, len(in))
	for i, p := range in {
		out[i] = cloneProfile(p)
	}
	return out
}

func clonePersona(p Persona) Persona {
	cp := p
	if p.Tags != nil {
		cp.Tags = append([]string(nil), p.Tags...)
	}
	if p.Facts != nil {
		cp.Facts = append([]Fact(nil), p.Facts...)
	}
	return cp
}

func clonePersonas(in []Persona) []Persona {
	out := make([]Persona, len(in))
	for i, p := range in {
		out[i] = clonePersona(p)
	}
	return out
}

func clonePack(w WorldKnowledgePack) WorldKnowledgePack {
	cp := w
	if w.Entries != nil {
		cp.Entries = make([]Entry, len(w.Entries))
		for i, e := range w.Entries {
			cp.Entries[i] = e
			if e.Keywords != nil {
				cp.Entries[i].Keywords = append([]string(nil), e.Keywords...)
			}
		}
	}
	return cp
}

func clonePacks(in []WorldKnowledgePack) []WorldKnowledgePack {
	out := make([]WorldKnowledgePack, len(in))
	for i, w := range in {
		out[i] = clonePack(w)
	}
	return out
}

func clonePreset(p PromptPreset) PromptPreset {
	cp := p
	if p.Segments != nil {
		cp.Segments = append([]Segment(nil), p.Segments...)
	}
	return cp
}

func clonePresets(in []PromptPreset) []PromptPreset {
	out := make([]PromptPreset, len(in))
	for i, p := range in {
		out[i] = clonePreset(p)
	}
	return out
}

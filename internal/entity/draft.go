package entity

// Editing follows a checkout/commit pattern: BeginEdit hands out a deep
// copy (the draft is a value, never an alias into the store), Commit
// merges it back by id, and discarding is simply dropping the value.

// BeginEditPersona checks out a persona draft.
func (s *Store) BeginEditPersona(id string) (Persona, error) {
	return s.Persona(id)
}

// CommitPersona merges a persona draft back into the store by id.
// The id itself is immutable and must already exist.
func (s *Store) CommitPersona(draft Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.personas {
		if s.personas[i].ID == draft.ID {
			s.personas[i] = clonePersona(draft)
			s.persist(RecordPersonas, clonePersonas(s.personas))
			return nil
		}
	}
	return ErrNotFound
}

// BeginEditProfile checks out a connection-profile draft.
func (s *Store) BeginEditProfile(id string) (ConnectionProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.ID == id {
			return cloneProfile(p), nil
		}
	}
	return ConnectionProfile{}, ErrNotFound
}

// CommitProfile merges a profile draft back by id, re-enforcing the
// single-active invariant afterwards.
func (s *Store) CommitProfile(draft ConnectionProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.profiles {
		if s.profiles[i].ID == draft.ID {
			s.profiles[i] = cloneProfile(draft)
			if draft.Active {
				s.enforceSingleActiveLocked(draft.ID)
			}
			s.persist(RecordProfiles, cloneProfiles(s.profiles))
			return nil
		}
	}
	return ErrNotFound
}

// BeginEditWorldPack checks out a world-knowledge-pack draft.
func (s *Store) BeginEditWorldPack(id string) (WorldKnowledgePack, error) {
	return s.WorldPack(id)
}

// CommitWorldPack merges a pack draft back by id.
func (s *Store) CommitWorldPack(draft WorldKnowledgePack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.packs {
		if s.packs[i].ID == draft.ID {
			s.packs[i] = clonePack(draft)
			s.persist(RecordWorldPacks, clonePacks(s.packs))
			return nil
		}
	}
	return ErrNotFound
}

// BeginEditPreset checks out a prompt-preset draft.
func (s *Store) BeginEditPreset(id string) (PromptPreset, error) {
	return s.Preset(id)
}

// CommitPreset merges a preset draft back by id.
func (s *Store) CommitPreset(draft PromptPreset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.presets {
		if s.presets[i].ID == draft.ID {
			s.presets[i] = clonePreset(draft)
			s.persist(RecordPresets, clonePresets(s.presets))
			return nil
		}
	}
	return ErrNotFound
}

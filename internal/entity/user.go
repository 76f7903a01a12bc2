package entity

// RecordUserProfile names the persisted user profile record.
const RecordUserProfile = "user_profile"

// UserProfile is the operator's own identity: the name that signs feed
// likes and comments, and the avatar shown next to their messages.
type UserProfile struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Bio    string `json:"bio,omitempty"`
	Joined string `json:"joined,omitempty"`
}

// UserProfile returns a copy of the user profile.
func (s *Store) UserProfile() UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetUserProfile replaces the user profile.
func (s *Store) SetUserProfile(u UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
	s.persist(RecordUserProfile, u)
}

// HydrateUserProfile restores the persisted user profile without
// flushing.
func (s *Store) HydrateUserProfile(u UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
// For collection records, absence means "empty collection" — callers
// decode it as such rather than treating it as a failure.
var ErrNotFound = errors.New("not found")

// Record keys. One logical record per persisted collection; the value is
// the JSON-serialized form of the owning store's state.
const (
	KeyProfiles    = "connection_profiles"
	KeyPersonas    = "personas"
	KeyWorldPacks  = "world_knowledge_packs"
	KeyPresets     = "prompt_presets"
	KeyHistories   = "persona_histories"
	KeyGroups      = "groups"
	KeyQuickChats  = "quick_chats"
	KeyPet         = "pet_state"
	KeyFeed        = "feed_posts"
	KeyUserProfile = "user_profile"
)

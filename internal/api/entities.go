package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/soullink/internal/cardimport"
	"github.com/kalambet/soullink/internal/entity"
)

func handleListPersonas(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Entities.Personas())
	}
}

func handleCreatePersona(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p entity.Persona
		if !decodeBody(w, r, &p) {
			return
		}
		writeJSON(w, deps.Entities.AddPersona(p))
	}
}

// handleImportPersona accepts a raw character card: a PNG avatar with
// the embedded payload, or a bare JSON document.
func handleImportPersona(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxCardBodySize)
		defer r.Body.Close()
		data, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading card: %v", err)
			return
		}
		card, err := cardimport.Decode(data)
		if errors.Is(err, cardimport.ErrNoCardData) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "png carries no character data")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "decoding card: %v", err)
			return
		}
		persona, pack := cardimport.Materialize(card)
		if pack != nil {
			deps.Entities.AddWorldPack(*pack)
		}
		writeJSON(w, deps.Entities.AddPersona(persona))
	}
}

func handleGetPersona(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Entities.Persona(chi.URLParam(r, "id"))
		if errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "persona not found")
			return
		}
		writeJSON(w, p)
	}
}

func handleUpdatePersona(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := deps.Entities.BeginEditPersona(chi.URLParam(r, "id"))
		if errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "persona not found")
			return
		}
		id := draft.ID
		if !decodeBody(w, r, &draft) {
			return
		}
		draft.ID = id
		if err := deps.Entities.CommitPersona(draft); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "commit failed: %v", err)
			return
		}
		writeJSON(w, draft)
	}
}

func handleDeletePersona(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Entities.DeletePersona(id); errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "persona not found")
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleOpenCharacterChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Chat.OpenCharacterChat(chi.URLParam(r, "id")))
	}
}

// --- Connection profiles ---

func handleListProfiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Entities.Profiles())
	}
}

func handleCreateProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p entity.ConnectionProfile
		if !decodeBody(w, r, &p) {
			return
		}
		writeJSON(w, deps.Entities.AddProfile(p))
	}
}

func handleUpdateProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := deps.Entities.BeginEditProfile(chi.URLParam(r, "id"))
		if errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		id := draft.ID
		if !decodeBody(w, r, &draft) {
			return
		}
		draft.ID = id
		if err := deps.Entities.CommitProfile(draft); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "commit failed: %v", err)
			return
		}
		writeJSON(w, draft)
	}
}

func handleDeleteProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Entities.DeleteProfile(chi.URLParam(r, "id")); errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleActivateProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Entities.SetActiveProfile(chi.URLParam(r, "id")); errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		writeJSON(w, map[string]string{"status": "activated"})
	}
}

// --- World-knowledge packs ---

func handleListWorldPacks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Entities.WorldPacks())
	}
}

func handleCreateWorldPack(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p entity.WorldKnowledgePack
		if !decodeBody(w, r, &p) {
			return
		}
		writeJSON(w, deps.Entities.AddWorldPack(p))
	}
}

func handleUpdateWorldPack(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := deps.Entities.BeginEditWorldPack(chi.URLParam(r, "id"))
		if errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "world pack not found")
			return
		}
		id := draft.ID
		if !decodeBody(w, r, &draft) {
			return
		}
		draft.ID = id
		if err := deps.Entities.CommitWorldPack(draft); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "commit failed: %v", err)
			return
		}
		writeJSON(w, draft)
	}
}

func handleDeleteWorldPack(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Entities.DeleteWorldPack(chi.URLParam(r, "id")); errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "world pack not found")
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- Prompt presets ---

func handleListPresets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Entities.Presets())
	}
}

func handleCreatePreset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p entity.PromptPreset
		if !decodeBody(w, r, &p) {
			return
		}
		writeJSON(w, deps.Entities.AddPreset(p))
	}
}

func handleUpdatePreset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := deps.Entities.BeginEditPreset(chi.URLParam(r, "id"))
		if errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "preset not found")
			return
		}
		id := draft.ID
		if !decodeBody(w, r, &draft) {
			return
		}
		draft.ID = id
		if err := deps.Entities.CommitPreset(draft); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "commit failed: %v", err)
			return
		}
		writeJSON(w, draft)
	}
}

func handleDeletePreset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Entities.DeletePreset(chi.URLParam(r, "id")); errors.Is(err, entity.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "preset not found")
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- User profile ---

func handleGetUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Entities.UserProfile())
	}
}

func handlePutUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u entity.UserProfile
		if !decodeBody(w, r, &u) {
			return
		}
		deps.Entities.SetUserProfile(u)
		writeJSON(w, deps.Entities.UserProfile())
	}
}

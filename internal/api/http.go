// Package api exposes the engine over a local HTTP surface and an MCP
// server. Both are thin: all semantics live in the chat, session, feed
// and pet packages.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/soullink/internal/chat"
	"github.com/kalambet/soullink/internal/entity"
	"github.com/kalambet/soullink/internal/feed"
	"github.com/kalambet/soullink/internal/pet"
	"github.com/kalambet/soullink/internal/session"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxCardBodySize = 10 << 20 // 10MB, card PNGs carry the avatar

// Deps holds everything the HTTP and MCP surfaces serve.
type Deps struct {
	Entities *entity.Store
	Sessions *session.Store
	Feed     *feed.Store
	FeedSvc  *feed.Service
	Pets     *pet.Keeper
	Chat     *chat.Service
	Client   chat.Completer
	Token    string
}

// NewHandler returns the local REST API. Health stays unauthenticated;
// everything else sits behind the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Route("/chat/{kind}/{id}", func(r chi.Router) {
			r.Get("/messages", handleHistory(deps))
			r.Post("/messages", handleSend(deps))
			r.Post("/attachments", handleSendAttachment(deps))
			r.Delete("/messages/{messageID}", handleDeleteMessage(deps))
			r.Post("/messages/{messageID}/recall", handleRecall(deps))
			r.Post("/messages/{messageID}/star", handleToggleStar(deps))
			r.Get("/messages/{messageID}/quote", handleQuote(deps))
			r.Post("/messages/{messageID}/transfer", handleResolveTransfer(deps))
			r.Post("/pat", handlePat(deps))
		})
		r.Get("/starred", handleStarred(deps))

		r.Route("/personas", func(r chi.Router) {
			r.Get("/", handleListPersonas(deps))
			r.Post("/", handleCreatePersona(deps))
			r.Post("/import", handleImportPersona(deps))
			r.Get("/{id}", handleGetPersona(deps))
			r.Put("/{id}", handleUpdatePersona(deps))
			r.Delete("/{id}", handleDeletePersona(deps))
			r.Post("/{id}/open", handleOpenCharacterChat(deps))
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", handleListProfiles(deps))
			r.Post("/", handleCreateProfile(deps))
			r.Put("/{id}", handleUpdateProfile(deps))
			r.Delete("/{id}", handleDeleteProfile(deps))
			r.Post("/{id}/activate", handleActivateProfile(deps))
		})

		r.Route("/worldpacks", func(r chi.Router) {
			r.Get("/", handleListWorldPacks(deps))
			r.Post("/", handleCreateWorldPack(deps))
			r.Put("/{id}", handleUpdateWorldPack(deps))
			r.Delete("/{id}", handleDeleteWorldPack(deps))
		})

		r.Route("/presets", func(r chi.Router) {
			r.Get("/", handleListPresets(deps))
			r.Post("/", handleCreatePreset(deps))
			r.Put("/{id}", handleUpdatePreset(deps))
			r.Delete("/{id}", handleDeletePreset(deps))
		})

		r.Get("/user", handleGetUser(deps))
		r.Put("/user", handlePutUser(deps))

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", handleListGroups(deps))
			r.Post("/", handleCreateGroup(deps))
			r.Patch("/{id}", handlePatchGroup(deps))
			r.Delete("/{id}", handleDeleteGroup(deps))
		})

		r.Get("/quick-chats", handleListQuickChats(deps))
		r.Post("/quick-chats", handleCreateQuickChat(deps))

		r.Route("/feed", func(r chi.Router) {
			r.Get("/", handleListFeed(deps))
			r.Post("/", handleCreateFeedPost(deps))
			r.Post("/generate", handleGenerateFeedPost(deps))
			r.Delete("/{id}", handleDeleteFeedPost(deps))
			r.Post("/{id}/like", handleToggleLike(deps))
			r.Post("/{id}/favorite", handleToggleFavorite(deps))
			r.Post("/{id}/comments", handleAddComment(deps))
		})

		r.Get("/pet", handleGetPet(deps))
		r.Post("/pet/interact", handlePetInteract(deps))
		r.Patch("/pet", handlePatchPet(deps))

		r.Get("/offline", handleOfflineStatus(deps))
		r.Post("/offline/activate", handleOfflineActivate(deps))
		r.Post("/offline/deactivate", handleOfflineDeactivate(deps))

		r.Get("/models", handleListModels(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// surfaceFromRequest resolves the {kind}/{id} route pair.
func surfaceFromRequest(r *http.Request) (session.Surface, error) {
	kind := session.SurfaceKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")
	switch kind {
	case session.SurfaceCharacter, session.SurfaceGroup, session.SurfaceQuick:
	default:
		return session.Surface{}, fmt.Errorf("unknown surface kind %q", kind)
	}
	if id == "" {
		return session.Surface{}, errors.New("surface id is required")
	}
	return session.Surface{Kind: kind, ID: id}, nil
}

func messageIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, err := surfaceFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, deps.Sessions.VisibleHistory(sf))
	}
}

type sendRequest struct {
	Text    string            `json:"text"`
	ReplyTo *session.ReplyRef `json:"replyTo,omitempty"`
}

func handleSend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, err := surfaceFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		var req sendRequest
		if !decodeBody(w, r, &req) {
			return
		}
		msg, err := deps.Chat.Send(r.Context(), sf, req.Text, req.ReplyTo)
		if errors.Is(err, chat.ErrEmptyMessage) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message text is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "send failed: %v", err)
			return
		}
		writeJSON(w, msg)
	}
}

type attachmentRequest struct {
	Kind         session.Kind `json:"kind"`
	Text         string       `json:"text,omitempty"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	Amount       float64      `json:"amount,omitempty"`
	Note         string       `json:"note,omitempty"`
	Duration     string       `json:"duration,omitempty"`
	UserLocation string       `json:"userLocation,omitempty"`
	AILocation   string       `json:"aiLocation,omitempty"`
	Distance     string       `json:"distance,omitempty"`
	Waypoints    []string     `json:"waypoints,omitempty"`
}

func handleSendAttachment(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, err := surfaceFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		var req attachmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		msg, err := deps.Chat.SendAttachment(r.Context(), sf, session.Message{
			Kind:         req.Kind,
			Text:         req.Text,
			ImageURL:     req.ImageURL,
			Amount:       req.Amount,
			Note:         req.Note,
			Duration:     req.Duration,
			UserLocation: req.UserLocation,
			AILocation:   req.AILocation,
			Distance:     req.Distance,
			Waypoints:    req.Waypoints,
		})
		if errors.Is(err, chat.ErrNotAttachment) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "kind %q is not an attachment", req.Kind)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "attachment failed: %v", err)
			return
		}
		writeJSON(w, msg)
	}
}

func handleRecall(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, err := surfaceFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		id, err := messageIDFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid message id")
			return
		}
		switch err := deps.Sessions.Recall(sf, id); {
		case errors.Is(err, session.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "message not found")
		case errors.Is(err, session.ErrRecallForbidden):
			httpError(w, http.StatusForbidden, "recall_forbidden", "only your own messages can be recalled")
		case errors.Is(err, session.ErrRecallWindowExpired):
			httpError(w, http.StatusConflict, "recall_window_expired", "the recall window has passed")
		case errors.Is(err, session.ErrMessageRecalled):
			httpError(w, http.StatusConflict, "already_recalled", "message is already recalled")
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "recall failed: %v", err)
		default:
			writeJSON(w, map[string]string{"status": "recalled"})
		}
	}
}

func handleDeleteMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, err := surfaceFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		id, err := messageIDFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid message id")
			return
		}
		if err := deps.Sessions.Delete(sf, id); errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "message not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "delete failed: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleToggleStar(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, err := surfaceFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		id, err := messageIDFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid message id")
			return
		}
		starred, err := deps.Sessions.ToggleStar(sf, id)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "message not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "star failed: %v", err)
			return
		}
		writeJSON(w, map[string]bool{"starred": starred})
	}
}

func handleQuote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, err := surfaceFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		id, err := messageIDFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid message id")
			return
		}
		ref, err := deps.Sessions.Quote(sf, id, surfaceDisplayName(deps, sf))
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "message not found")
			return
		}
		if errors.Is(err, session.ErrMessageRecalled) {
			httpError(w, http.StatusConflict, "already_recalled", "recalled messages cannot be quoted")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "quote failed: %v", err)
			return
		}
		writeJSON(w, ref)
	}
}

type resolveTransferRequest struct {
	Accept bool `json:"accept"`
}

func handleResolveTransfer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, err := surfaceFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		id, err := messageIDFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid message id")
			return
		}
		var req resolveTransferRequest
		if !decodeBody(w, r, &req) {
			return
		}
		msg, err := deps.Chat.ResolveTransfer(sf, id, req.Accept)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "message not found")
			return
		}
		if errors.Is(err, session.ErrTransferNotPending) {
			httpError(w, http.StatusConflict, "transfer_settled", "transfer is already settled")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resolve failed: %v", err)
			return
		}
		writeJSON(w, msg)
	}
}

type patRequest struct {
	Name string `json:"name"`
}

func handlePat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sf, err := surfaceFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		var req patRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name == "" {
			req.Name = surfaceDisplayName(deps, sf)
		}
		writeJSON(w, deps.Chat.Pat(sf, req.Name))
	}
}

func handleStarred(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		starred := deps.Sessions.Starred(func(sf session.Surface) string {
			return surfaceDisplayName(deps, sf)
		})
		if starred == nil {
			starred = []session.StarredMessage{}
		}
		writeJSON(w, starred)
	}
}

// surfaceDisplayName resolves a human name for a surface: the persona's
// display name, the group's name, or the quick chat's title.
func surfaceDisplayName(deps Deps, sf session.Surface) string {
	switch sf.Kind {
	case session.SurfaceCharacter:
		if p, err := deps.Entities.Persona(sf.ID); err == nil {
			return p.DisplayName()
		}
	case session.SurfaceGroup:
		if g, ok := deps.Sessions.Group(sf.ID); ok && g.Name != "" {
			return g.Name
		}
		return "群聊"
	case session.SurfaceQuick:
		for _, q := range deps.Sessions.QuickChats() {
			if q.ID == sf.ID && q.Title != "" {
				return q.Title
			}
		}
	}
	return "角色"
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

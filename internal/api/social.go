package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/soullink/internal/chat"
	"github.com/kalambet/soullink/internal/feed"
	"github.com/kalambet/soullink/internal/pet"
	"github.com/kalambet/soullink/internal/session"
)

// --- Groups ---

func handleListGroups(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Sessions.Groups())
	}
}

type createGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func handleCreateGroup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGroupRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "group name is required")
			return
		}
		writeJSON(w, deps.Sessions.CreateGroup(req.Name, req.Members))
	}
}

type patchGroupRequest struct {
	Name    *string   `json:"name,omitempty"`
	Members *[]string `json:"members,omitempty"`
}

func handlePatchGroup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req patchGroupRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name != nil {
			if err := deps.Sessions.RenameGroup(id, *req.Name); errors.Is(err, session.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "group not found")
				return
			}
		}
		if req.Members != nil {
			if err := deps.Sessions.SetGroupMembers(id, *req.Members); errors.Is(err, session.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "group not found")
				return
			}
		}
		g, ok := deps.Sessions.Group(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "group not found")
			return
		}
		writeJSON(w, g)
	}
}

func handleDeleteGroup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		deps.Chat.Teardown(session.GroupSurface(id))
		if err := deps.Sessions.DeleteGroup(id); errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "group not found")
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// --- Quick chats ---

func handleListQuickChats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Sessions.QuickChats())
	}
}

type createQuickChatRequest struct {
	Title string `json:"title"`
}

func handleCreateQuickChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createQuickChatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		writeJSON(w, deps.Sessions.CreateQuickChat(req.Title))
	}
}

// --- Feed ---

func feedPostIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func handleListFeed(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts := deps.Feed.Posts()
		if posts == nil {
			posts = []feed.Post{}
		}
		writeJSON(w, posts)
	}
}

type createFeedPostRequest struct {
	Type          string   `json:"type"`
	Content       string   `json:"content"`
	PublicText    string   `json:"publicText,omitempty"`
	HiddenContent string   `json:"hiddenContent,omitempty"`
	ImageURL      string   `json:"imageUrl,omitempty"`
	ImageURLs     []string `json:"imageUrls,omitempty"`
	HideComments  bool     `json:"hideComments,omitempty"`
}

// handleCreateFeedPost publishes a post by the user and kicks off the
// companions' comment round in the background.
func handleCreateFeedPost(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createFeedPostRequest
		if !decodeBody(w, r, &req) {
			return
		}
		post := deps.Feed.Add(feed.Post{
			AuthorID:      feed.UserAuthorID,
			Type:          req.Type,
			Content:       req.Content,
			PublicText:    req.PublicText,
			HiddenContent: req.HiddenContent,
			ImageURL:      req.ImageURL,
			ImageURLs:     req.ImageURLs,
			HideComments:  req.HideComments,
		})

		if deps.FeedSvc != nil {
			candidates := deps.Entities.Personas()
			name := deps.Entities.UserProfile().Name
			if name == "" {
				name = "我"
			}
			go deps.FeedSvc.GenerateComments(context.Background(), post.ID, candidates, nil, name)
		}
		writeJSON(w, post)
	}
}

type generateFeedPostRequest struct {
	AuthorID    string `json:"authorId"`
	ChatContext string `json:"chatContext,omitempty"`
}

func handleGenerateFeedPost(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateFeedPostRequest
		if !decodeBody(w, r, &req) {
			return
		}
		post, err := deps.FeedSvc.GeneratePost(r.Context(), req.AuthorID, req.ChatContext)
		if errors.Is(err, feed.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "persona not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "generate failed: %v", err)
			return
		}
		writeJSON(w, post)
	}
}

func handleDeleteFeedPost(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := feedPostIDFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid post id")
			return
		}
		if err := deps.Feed.Delete(id); errors.Is(err, feed.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "post not found")
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

type likeRequest struct {
	Name string `json:"name,omitempty"`
}

func handleToggleLike(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := feedPostIDFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid post id")
			return
		}
		var req likeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name == "" {
			req.Name = deps.Entities.UserProfile().Name
		}
		if req.Name == "" {
			req.Name = "我"
		}
		liked, err := deps.Feed.ToggleLike(id, req.Name)
		if errors.Is(err, feed.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "post not found")
			return
		}
		writeJSON(w, map[string]bool{"liked": liked})
	}
}

func handleToggleFavorite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := feedPostIDFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid post id")
			return
		}
		favorited, err := deps.Feed.ToggleFavorite(id)
		if errors.Is(err, feed.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "post not found")
			return
		}
		writeJSON(w, map[string]bool{"favorited": favorited})
	}
}

type addCommentRequest struct {
	Text    string `json:"text"`
	ReplyTo string `json:"replyTo,omitempty"`
}

func handleAddComment(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := feedPostIDFromRequest(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid post id")
			return
		}
		var req addCommentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "comment text is required")
			return
		}
		name := deps.Entities.UserProfile().Name
		if name == "" {
			name = "我"
		}
		err = deps.Feed.AddComment(id, feed.Comment{CommenterName: name, Text: req.Text, ReplyTo: req.ReplyTo})
		if errors.Is(err, feed.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "post not found")
			return
		}
		post, err := deps.Feed.Post(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reloading post: %v", err)
			return
		}
		writeJSON(w, post)
	}
}

// --- Pet ---

func handleGetPet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Pets.Tick()
		writeJSON(w, deps.Pets.Snapshot())
	}
}

type petInteractRequest struct {
	Action string `json:"action"`
}

func handlePetInteract(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req petInteractRequest
		if !decodeBody(w, r, &req) {
			return
		}
		switch req.Action {
		case "feed", "play", "rest":
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown action %q", req.Action)
			return
		}
		state, reaction := deps.Pets.Interact(pet.Action(req.Action))
		writeJSON(w, map[string]any{"state": state, "reaction": reaction})
	}
}

type patchPetRequest struct {
	Name  string `json:"name,omitempty"`
	Emoji string `json:"emoji,omitempty"`
}

func handlePatchPet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req patchPetRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name != "" {
			deps.Pets.Rename(req.Name)
		}
		if req.Emoji != "" {
			deps.Pets.SetEmoji(req.Emoji)
		}
		writeJSON(w, deps.Pets.Snapshot())
	}
}

// --- Offline mode ---

type offlineActivateRequest struct {
	PresetIDs []string            `json:"presetIds"`
	Kind      session.SurfaceKind `json:"kind"`
	ID        string              `json:"id"`
}

func handleOfflineActivate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req offlineActivateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		switch req.Kind {
		case session.SurfaceCharacter, session.SurfaceGroup:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "offline mode needs a character or group surface")
			return
		}
		sf := session.Surface{Kind: req.Kind, ID: req.ID}
		if err := deps.Chat.ActivateOffline(r.Context(), req.PresetIDs, sf); errors.Is(err, chat.ErrNoPresets) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no usable presets selected")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "activation failed: %v", err)
			return
		}
		writeJSON(w, map[string]bool{"active": true})
	}
}

func handleOfflineDeactivate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Chat.DeactivateOffline()
		writeJSON(w, map[string]bool{"active": false})
	}
}

func handleOfflineStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]bool{"active": deps.Chat.OfflineActive()})
	}
}

// --- Models ---

func handleListModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := deps.Entities.ActiveProfile()
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no active connection profile")
			return
		}
		models, err := deps.Client.ListModels(r.Context(), profile)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list models: %v", err)
			return
		}
		writeJSON(w, models)
	}
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/soullink/internal/pet"
	"github.com/kalambet/soullink/internal/session"
)

// NewMCPServer exposes the companion over MCP so external agents can
// talk to personas, read the feed, and care for the pet.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"soullink",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("soullink — local companion chat engine: personas, group chats, social feed, and a pixel pet."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a chat message to a persona, group, or quick chat and return the appended user message."),
			mcp.WithString("kind", mcp.Description("Surface kind: character, group, or quick"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Surface id (persona id, group id, or quick chat id)"), mcp.Required()),
			mcp.WithString("text", mcp.Description("Message text"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("get_history",
			mcp.WithDescription("Return the visible message history of a surface."),
			mcp.WithString("kind", mcp.Description("Surface kind: character, group, or quick"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Surface id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of trailing messages (default 20)")),
		),
		mcpGetHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("list_personas",
			mcp.WithDescription("List the defined personas with their ids and display names."),
		),
		mcpListPersonas(deps),
	)

	s.AddTool(
		mcp.NewTool("pet_interact",
			mcp.WithDescription("Feed, play with, or rest the pixel pet."),
			mcp.WithString("action", mcp.Description("One of: feed, play, rest"), mcp.Required()),
		),
		mcpPetInteract(deps),
	)

	s.AddTool(
		mcp.NewTool("feed_timeline",
			mcp.WithDescription("Return the most recent social feed posts."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of posts (default 10)")),
		),
		mcpFeedTimeline(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"soullink://pet",
			"Pixel Pet",
			mcp.WithResourceDescription("Current pet state as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePet(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"soullink://starred",
			"Starred Messages",
			mcp.WithResourceDescription("Starred messages across all surfaces"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStarred(deps),
	)

	return s
}

func mcpSurface(req mcp.CallToolRequest) (session.Surface, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return session.Surface{}, fmt.Errorf("kind is required")
	}
	id, err := req.RequireString("id")
	if err != nil {
		return session.Surface{}, fmt.Errorf("id is required")
	}
	switch session.SurfaceKind(kind) {
	case session.SurfaceCharacter, session.SurfaceGroup, session.SurfaceQuick:
	default:
		return session.Surface{}, fmt.Errorf("unknown surface kind %q", kind)
	}
	return session.Surface{Kind: session.SurfaceKind(kind), ID: id}, nil
}

func mcpSendMessage(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sf, err := mcpSurface(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		msg, err := deps.Chat.Send(ctx, sf, text, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("send failed: %v", err)), nil
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal message: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetHistory(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sf, err := mcpSurface(req)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		history := deps.Sessions.VisibleHistory(sf)
		if len(history) > limit {
			history = history[len(history)-limit:]
		}
		b, err := json.Marshal(history)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListPersonas(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		type personaSummary struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description,omitempty"`
		}
		personas := deps.Entities.Personas()
		summaries := make([]personaSummary, len(personas))
		for i, p := range personas {
			desc := p.Description
			if utf8.RuneCountInString(desc) > 200 {
				runes := []rune(desc)
				desc = string(runes[:200]) + "..."
			}
			summaries[i] = personaSummary{ID: p.ID, Name: p.DisplayName(), Description: desc}
		}
		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal personas: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPetInteract(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action, err := req.RequireString("action")
		if err != nil {
			return mcpError("action is required"), nil
		}
		switch action {
		case "feed", "play", "rest":
		default:
			return mcpError(fmt.Sprintf("unknown action %q", action)), nil
		}
		state, reaction := deps.Pets.Interact(pet.Action(action))
		return mcpText(fmt.Sprintf("%s\n%s", reaction, state.StatusLine())), nil
	}
}

func mcpFeedTimeline(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		posts := deps.Feed.Posts()
		if len(posts) > limit {
			posts = posts[:limit]
		}
		type postSummary struct {
			ID       int64  `json:"id"`
			AuthorID string `json:"author_id"`
			Summary  string `json:"summary"`
			Likes    int    `json:"likes"`
			Comments int    `json:"comments"`
		}
		summaries := make([]postSummary, len(posts))
		for i, p := range posts {
			summaries[i] = postSummary{
				ID:       p.ID,
				AuthorID: p.AuthorID,
				Summary:  p.Summary(),
				Likes:    len(p.Likes),
				Comments: len(p.Comments),
			}
		}
		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal posts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourcePet(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		deps.Pets.Tick()
		b, err := json.Marshal(deps.Pets.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pet state: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceStarred(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		starred := deps.Sessions.Starred(func(sf session.Surface) string {
			return surfaceDisplayName(deps, sf)
		})
		if starred == nil {
			starred = []session.StarredMessage{}
		}
		b, err := json.Marshal(starred)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal starred messages: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

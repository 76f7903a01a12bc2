package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/soullink/internal/entity"
	"github.com/kalambet/soullink/internal/feed"
	"github.com/kalambet/soullink/internal/session"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPSendMessage(t *testing.T) {
	deps := newTestDeps(t)
	deps.Entities.AddProfile(entity.ConnectionProfile{Name: "m", BaseURL: "http://api", APIKey: "k", Model: "x", Active: true})
	handler := mcpSendMessage(deps)

	result, err := handler(context.Background(), makeCallToolRequest("send_message", map[string]interface{}{
		"kind": "character",
		"id":   "p1",
		"text": "你好",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var msg session.Message
	if err := json.Unmarshal([]byte(toolText(t, result)), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Sender != session.SenderUser || msg.Text != "你好" {
		t.Errorf("message = %+v", msg)
	}
}

func TestMCPSendMessage_BadKind(t *testing.T) {
	handler := mcpSendMessage(newTestDeps(t))
	result, err := handler(context.Background(), makeCallToolRequest("send_message", map[string]interface{}{
		"kind": "banana",
		"id":   "p1",
		"text": "hi",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for unknown kind")
	}
}

func TestMCPGetHistory(t *testing.T) {
	deps := newTestDeps(t)
	sf := session.CharacterSurface("p1")
	for i := 0; i < 5; i++ {
		deps.Sessions.Append(sf, session.Message{Sender: session.SenderUser, Kind: session.KindText, Text: "m"})
	}
	handler := mcpGetHistory(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_history", map[string]interface{}{
		"kind":  "character",
		"id":    "p1",
		"limit": float64(3),
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var history []session.Message
	if err := json.Unmarshal([]byte(toolText(t, result)), &history); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("history len = %d, want 3", len(history))
	}
}

func TestMCPListPersonas(t *testing.T) {
	deps := newTestDeps(t)
	deps.Entities.AddPersona(entity.Persona{Name: "Mika", Nickname: "小咖", Description: "咖啡师"})
	handler := mcpListPersonas(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_personas", nil))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	text := toolText(t, result)
	if !strings.Contains(text, "小咖") {
		t.Errorf("personas = %s", text)
	}
}

func TestMCPPetInteract(t *testing.T) {
	handler := mcpPetInteract(newTestDeps(t))

	result, err := handler(context.Background(), makeCallToolRequest("pet_interact", map[string]interface{}{
		"action": "rest",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(toolText(t, result), "Zzz...系统待机。") {
		t.Errorf("reaction = %s", toolText(t, result))
	}

	result, err = handler(context.Background(), makeCallToolRequest("pet_interact", map[string]interface{}{
		"action": "dance",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for unknown action")
	}
}

func TestMCPFeedTimeline(t *testing.T) {
	deps := newTestDeps(t)
	deps.Feed.Add(feed.Post{AuthorID: "p1", Type: "text", Content: "第一条"})
	deps.Feed.Add(feed.Post{AuthorID: "p2", Type: "text", Content: "第二条"})
	handler := mcpFeedTimeline(deps)

	result, err := handler(context.Background(), makeCallToolRequest("feed_timeline", map[string]interface{}{
		"limit": float64(1),
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	var posts []map[string]interface{}
	if err := json.Unmarshal([]byte(toolText(t, result)), &posts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(posts) != 1 || posts[0]["summary"] != "第二条" {
		t.Errorf("posts = %v", posts)
	}
}

func TestMCPResourcePet(t *testing.T) {
	handler := mcpResourcePet(newTestDeps(t))

	contents, err := handler(context.Background(), makeReadResourceRequest("soullink://pet"))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %+v", contents)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "PIXEL PET") {
		t.Errorf("pet resource = %s", text)
	}
}

func TestMCPResourceStarred(t *testing.T) {
	deps := newTestDeps(t)
	sf := session.CharacterSurface("p1")
	msg := deps.Sessions.Append(sf, session.Message{Sender: session.SenderAI, Kind: session.KindText, Text: "收藏我"})
	if _, err := deps.Sessions.ToggleStar(sf, msg.ID); err != nil {
		t.Fatalf("star: %v", err)
	}
	handler := mcpResourceStarred(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("soullink://starred"))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, "收藏我") {
		t.Errorf("starred resource = %s", text)
	}
}

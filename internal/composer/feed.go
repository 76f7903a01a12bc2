package composer

import (
	"strings"

	"github.com/kalambet/soullink/internal/entity"
)

// FeedPost composes the payload for generating a social feed post in a
// persona's voice. chatContext, when non-empty, anchors the post to the
// persona's recent chat tone.
func FeedPost(persona entity.Persona, chatContext string) []ChatMessage {
	charName := persona.DisplayName()
	lines := []string{
		"你是角色「" + charName + "」。",
	}
	if persona.Description != "" {
		lines = append(lines, "人设: "+persona.Description)
	}
	if chatContext != "" {
		lines = append(lines,
			"请基于下方聊天记录内容，生成一条与你聊天风格一致的动态。",
			"聊天记录:\n"+chatContext,
		)
	} else {
		lines = append(lines, "请生成一条自然的日常动态。")
	}
	lines = append(lines, "要求: 1-3句，口语自然，避免引用符号，不要加标题或标签。")

	return []ChatMessage{
		{Role: RoleSystem, Content: strings.Join(lines, "\n")},
		{Role: RoleUser, Content: "生成动态内容。"},
	}
}

// NPCCandidate is one bystander persona offered to the model when
// generating feed comments.
type NPCCandidate struct {
	Name    string
	Persona string
}

// FeedCommentsInput describes a post awaiting NPC comments.
type FeedCommentsInput struct {
	AuthorName     string
	Summary        string         // post content, truncated by the caller
	RecentComments []string       // "name: text", newest last
	Candidates     []NPCCandidate // at most 5 are offered
	Owner          *entity.Persona
}

// FeedComments composes the payload asking the model for 1-3 NPC
// comments as a strict JSON array.
func FeedComments(in FeedCommentsInput) []ChatMessage {
	var lines []string
	lines = append(lines, "你是一个多角色扮演AI，需要为一条动态生成NPC评论。")
	if in.Owner != nil {
		ownerName := in.Owner.DisplayName()
		lines = append(lines, "关系背景: 这些NPC与"+ownerName+"有关联，主人设定："+orUnknown(in.Owner.Description))
	}
	lines = append(lines, "作者: "+in.AuthorName)
	summary := in.Summary
	if summary == "" {
		summary = "(图片动态)"
	}
	lines = append(lines, "内容摘要: "+summary)
	recent := strings.Join(in.RecentComments, "\n")
	if recent == "" {
		recent = "(暂无评论)"
	}
	lines = append(lines, "最近评论:\n"+recent)

	candidates := in.Candidates
	if len(candidates) > 5 {
		candidates = candidates[:5]
	}
	var npcLines []string
	for _, npc := range candidates {
		name := npc.Name
		if name == "" {
			name = "NPC"
		}
		npcLines = append(npcLines, "- "+name+" (人设: "+orUnknown(npc.Persona)+")")
	}
	lines = append(lines, "NPC列表:\n"+strings.Join(npcLines, "\n"))
	lines = append(lines, `规则：只从NPC列表中选择1-3人，每人回复1-2句，每句不超过20字，口语自然，输出严格JSON数组，格式: [{"commenterName":"NPC名字","commentText":"评论内容","replyTo":"可选"}]`)

	return []ChatMessage{
		{Role: RoleSystem, Content: strings.Join(lines, "\n")},
		{Role: RoleUser, Content: "请生成评论。"},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "未知"
	}
	return s
}

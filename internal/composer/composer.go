// Package composer assembles the message payloads sent to the
// completion backend. Every conversation surface has its own system
// instruction block; history turns are rendered through the same quote
// context used by the UI so attachments read identically in both
// places. Hidden and system messages never reach the model.
package composer

import (
	"strings"

	"github.com/kalambet/soullink/internal/entity"
	"github.com/kalambet/soullink/internal/session"
)

// ChatMessage is one turn of an OpenAI-style messages payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CharacterInput carries everything needed to compose a character chat
// completion. History must already contain the user's latest message at
// its tail; UserText repeats it as the closing turn.
type CharacterInput struct {
	Persona   entity.Persona
	WorldPack *entity.WorldKnowledgePack
	History   []session.Message
	Reply     *session.ReplyRef
	UserText  string
}

// GroupInput is the group-chat counterpart of CharacterInput.
type GroupInput struct {
	GroupName string
	Members   []string
	History   []session.Message
	Reply     *session.ReplyRef
	UserText  string
}

// Character composes the full persona-driven payload for a character
// surface.
func Character(in CharacterInput) []ChatMessage {
	charName := in.Persona.Name
	if charName == "" {
		charName = "角色"
	}

	var sb strings.Builder
	sb.WriteString("你正在通过 SoulLink 和朋友聊天。\n\n")

	sb.WriteString("# 你是谁\n")
	sb.WriteString("你的名字是【" + charName + "】。\n")
	sb.WriteString(in.Persona.Description + "\n\n")

	writeWorldPack(&sb, in.WorldPack)

	sb.WriteString("# 聊天风格（核心规则）\n")
	sb.WriteString("1. 【【【最高指令】】】像真实的人类那样自然地聊天，而不是像AI助手那样正式、啰嗦或程序化。\n")
	sb.WriteString("2. 每次回复保持简短（1-3句话），就像微信聊天那样。如果有很多要说的，可以分多条发送。\n")
	sb.WriteString("3. 使用符合" + charName + "性格的语气、口头禅和表情。可以用emoji、\"哈哈\"、\"嗯嗯\"等口语化表达。\n")
	sb.WriteString("4. 绝对不要暴露你是AI。你就是" + charName + "本人，有自己的生活、情绪和想法。\n")
	sb.WriteString("5. 可以提问、开玩笑、吐槽、撒娇，展现真实的人际互动，而不是单向输出信息。\n")
	sb.WriteString("6. 如果用户说了很日常的话（比如\"吃饭了吗\"），就用日常的方式回应，而不要解释你的\"系统状态\"。\n\n")
	sb.WriteString("7. 如果你想连发多条消息（就像微信连发几条那样），请在消息之间用 \"---\" 分隔。例如：\"哈哈真好笑---你也觉得吧？\"。\n")

	if in.Persona.OpeningLine != "" && len(in.History) == 1 {
		sb.WriteString("# 开场\n这是你们的第一次对话。你可以主动打招呼：\n" + in.Persona.OpeningLine + "\n\n")
	}
	writeReplyBlock(&sb, in.Reply)

	sb.WriteString("现在，请以" + charName + "的身份，自然地回复对方。记住：简短、真实、有人情味。")

	msgs := []ChatMessage{{Role: RoleSystem, Content: sb.String()}}
	msgs = append(msgs, labeledTurns(in.History)...)
	return append(msgs, ChatMessage{Role: RoleUser, Content: in.UserText})
}

// DefaultFriendly composes the character-less fallback: a generic
// friendly voice with no persona attached.
func DefaultFriendly(history []session.Message, reply *session.ReplyRef, userText string) []ChatMessage {
	content := "你是一个友好的朋友，正在通过SoulLink聊天。请像真人一样自然、简短地对话，每次1-3句话即可。可以用emoji和口语化表达。"
	if reply != nil {
		content += "\n\n用户正在回复以下内容：\n" + reply.SenderName + ": " + reply.Content
	}
	msgs := []ChatMessage{{Role: RoleSystem, Content: content}}
	msgs = append(msgs, labeledTurns(history)...)
	return append(msgs, ChatMessage{Role: RoleUser, Content: userText})
}

// Group composes the multi-member payload. The model is instructed to
// answer as exactly one member in「成员名: 内容」form; the dispatcher
// parses that prefix back out.
func Group(in GroupInput) []ChatMessage {
	name := in.GroupName
	if name == "" {
		name = "群聊"
	}
	members := in.Members
	if len(members) == 0 {
		members = []string{"成员A", "成员B", "成员C"}
	}

	var sb strings.Builder
	sb.WriteString("你正在群聊【" + name + "】中与用户对话。\n\n")
	sb.WriteString("# 群成员\n" + strings.Join(members, "、") + "\n\n")
	sb.WriteString("# 行为规则\n1. 回复要简短自然，像真实群聊一样。\n2. 每次回复只扮演其中一名群成员。\n3. 回复格式为「成员名: 内容」。\n4. 可以用emoji和口语表达。\n\n")
	writeReplyBlock(&sb, in.Reply)
	sb.WriteString("现在请开始回复。")

	msgs := []ChatMessage{{Role: RoleSystem, Content: sb.String()}}
	msgs = append(msgs, labeledTurns(in.History)...)
	return append(msgs, ChatMessage{Role: RoleUser, Content: "我: " + in.UserText})
}

// Quick composes the lightweight quick-chat payload: no persona, no
// labels, plain text turns only.
func Quick(history []session.Message) []ChatMessage {
	msgs := []ChatMessage{{
		Role:    RoleSystem,
		Content: "你正在通过兔K聊天和用户对话。请像真人一样自然、简短地回复，每次1-3句话即可。可以用emoji和口语化表达。",
	}}
	for _, m := range history {
		if m.IsSystem || m.IsHidden {
			continue
		}
		switch m.Sender {
		case session.SenderUser:
			msgs = append(msgs, ChatMessage{Role: RoleUser, Content: m.Text})
		case session.SenderAI:
			msgs = append(msgs, ChatMessage{Role: RoleAssistant, Content: m.Text})
		}
	}
	return msgs
}

// OfflineInput selects the narrative mode's subject. A nil Persona (or
// a group surface) produces the persona-less variant.
type OfflineInput struct {
	Persona    *entity.Persona
	WorldPack  *entity.WorldKnowledgePack
	Preset     string
	History    []session.Message
	UserText   string
	Labeled    bool // group surfaces label their turns
	Activation bool // opening narrative right after the mode turns on
}

// Offline composes the long-form narrative payload used when offline
// mode is on: novel-style prose instead of chat bubbles.
func Offline(in OfflineInput) []ChatMessage {
	prefix := "离线模式。"
	if in.Activation {
		prefix = "离线模式已开启。"
	}
	var sb strings.Builder
	if in.Persona != nil && in.Persona.Description != "" {
		charName := in.Persona.Name
		if charName == "" {
			charName = "角色"
		}
		sb.WriteString(prefix + "你是【" + charName + "】。\n")
		sb.WriteString(in.Persona.Description + "\n")
		sb.WriteString("根据以下预设生成带描写的长文本，采用小说式叙述，细节丰富、氛围浓厚、连贯自然，不要使用列表或标题：\n")
		sb.WriteString(in.Preset)
		if in.WorldPack != nil {
			for _, e := range in.WorldPack.Entries {
				if e.Key != "" && e.Body != "" {
					sb.WriteString("\n[" + e.Key + "]\n" + e.Body)
				}
			}
		}
	} else {
		sb.WriteString(prefix + "根据预设生成带描写的长文本，采用小说式叙述，细节丰富、氛围浓厚、连贯自然，不要使用列表或标题。\n预设：\n")
		sb.WriteString(in.Preset)
	}

	msgs := []ChatMessage{{Role: RoleSystem, Content: sb.String()}}
	msgs = append(msgs, labeledTurns(in.History)...)
	if in.Activation {
		// The opening narrative is unprompted; history alone drives it.
		return msgs
	}
	text := in.UserText
	if in.Labeled {
		text = "我: " + text
	}
	return append(msgs, ChatMessage{Role: RoleUser, Content: text})
}

// CharacterAttachment composes the narrower payload used when an
// attachment (image, voice, transfer, location) triggers an automatic
// reply on a character surface. The attachment itself is rendered
// through its quote context as the closing turn.
func CharacterAttachment(persona entity.Persona, pack *entity.WorldKnowledgePack, history []session.Message, attachment session.Message) []ChatMessage {
	var sb strings.Builder
	if persona.Description != "" {
		charName := persona.Name
		if charName == "" {
			charName = "角色"
		}
		sb.WriteString("你正在通过 SoulLink 和朋友聊天。\n\n")
		sb.WriteString("你的名字是【" + charName + "】。\n")
		sb.WriteString(persona.Description + "\n\n")
		if pack != nil && len(pack.Entries) > 0 {
			sb.WriteString("# 世界观与背景知识（必须严格遵守）\n")
			for _, e := range pack.Entries {
				if e.Key != "" && e.Body != "" {
					sb.WriteString("[" + e.Key + "]\n" + e.Body + "\n\n")
				}
			}
		}
		sb.WriteString("1. 像真实的人类那样自然地聊天。\n2. 回复保持简短（1-3句）。\n3. 使用符合角色的语气与口头禅。")
	} else {
		sb.WriteString("你是一个友好的朋友，正在通过SoulLink聊天。请自然、简短地对话。")
	}

	msgs := []ChatMessage{{Role: RoleSystem, Content: sb.String()}}
	msgs = append(msgs, labeledTurns(history)...)
	return append(msgs, ChatMessage{Role: RoleUser, Content: attachmentText(attachment)})
}

// GroupAttachment is the group-surface attachment reply payload.
func GroupAttachment(groupName string, members []string, history []session.Message, attachment session.Message) []ChatMessage {
	name := groupName
	if name == "" {
		name = "群聊"
	}
	if len(members) == 0 {
		members = []string{"成员A", "成员B", "成员C"}
	}

	var sb strings.Builder
	sb.WriteString("你正在群聊【" + name + "】中与用户交流附件内容。\n\n")
	sb.WriteString("群成员\n" + strings.Join(members, "、") + "\n\n")
	sb.WriteString("回复要简短自然。每次回复以其中一名成员口吻，格式为「成员名: 内容」。")

	msgs := []ChatMessage{{Role: RoleSystem, Content: sb.String()}}
	msgs = append(msgs, labeledTurns(history)...)
	return append(msgs, ChatMessage{Role: RoleUser, Content: attachmentText(attachment)})
}

func attachmentText(m session.Message) string {
	if c := session.QuoteContext(m, "").Content; c != "" {
		return c
	}
	return m.Text
}

func writeWorldPack(sb *strings.Builder, pack *entity.WorldKnowledgePack) {
	if pack == nil || len(pack.Entries) == 0 {
		return
	}
	sb.WriteString("# 世界观与背景知识（必须严格遵守）\n")
	sb.WriteString("以下是关于你所在世界的重要设定，你必须在对话中遵循这些设定：\n\n")
	for _, e := range pack.Entries {
		if e.Key != "" && e.Body != "" {
			sb.WriteString("[" + e.Key + "]\n" + e.Body + "\n\n")
		}
	}
	sb.WriteString("--- 世界观设定结束 ---\n\n")
}

func writeReplyBlock(sb *strings.Builder, reply *session.ReplyRef) {
	if reply == nil {
		return
	}
	sb.WriteString("# 引用回复\n用户正在回复以下内容：\n" + reply.SenderName + ": " + reply.Content + "\n\n")
}

// labeledTurns renders visible history as role turns, each prefixed
// with its sender label so multi-party context survives the flattening.
func labeledTurns(history []session.Message) []ChatMessage {
	var out []ChatMessage
	for _, m := range history {
		if m.IsSystem || m.IsHidden {
			continue
		}
		label := m.SenderName
		if label == "" {
			if m.Sender == session.SenderUser {
				label = "我"
			} else {
				label = "成员"
			}
		}
		raw := session.QuoteContext(m, "").Content
		if raw == "" {
			raw = m.Text
		}
		content := label + ": " + raw
		switch m.Sender {
		case session.SenderUser:
			out = append(out, ChatMessage{Role: RoleUser, Content: content})
		case session.SenderAI:
			out = append(out, ChatMessage{Role: RoleAssistant, Content: content})
		}
	}
	return out
}

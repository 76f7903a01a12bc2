package session

import (
	"fmt"
	"strings"
)

// QuoteContext renders a message into the textual form shared by prompt
// construction and the UI reply preview. aiName is the display name
// used for AI messages that carry no explicit senderName (character
// surfaces); user messages without one render as "我".
func QuoteContext(m Message, aiName string) ReplyRef {
	name := m.SenderName
	if name == "" {
		if m.Sender == SenderUser {
			name = "我"
		} else {
			name = aiName
		}
	}

	var content string
	switch m.Kind {
	case KindImage:
		content = m.Text
		if content == "" {
			content = "[图片]"
		}
	case KindVoice:
		content = m.Text
		if content == "" {
			content = "[语音]"
		}
	case KindTransfer:
		amount := ""
		if m.Amount > 0 {
			amount = fmt.Sprintf("¥%g", m.Amount)
		}
		note := ""
		if m.Note != "" {
			note = " " + m.Note
		}
		content = strings.TrimSpace("转账 " + amount + note)
	case KindLocation:
		var parts []string
		if m.UserLocation != "" {
			parts = append(parts, "我的位置: "+m.UserLocation)
		}
		if m.AILocation != "" {
			parts = append(parts, "Ta的位置: "+m.AILocation)
		}
		if m.Distance != "" {
			parts = append(parts, "相距: "+m.Distance)
		}
		if len(m.Waypoints) > 0 {
			parts = append(parts, "途经点: "+strings.Join(m.Waypoints, ", "))
		}
		if len(parts) > 0 {
			content = "定位 " + strings.Join(parts, " | ")
		} else {
			content = "定位"
		}
	default:
		content = m.Text
	}

	return ReplyRef{ID: m.ID, SenderName: name, Content: content}
}

// PreviewText shortens a quote rendering for display. Non-text kinds
// are already compact; plain text is cut at 50 runes.
func PreviewText(m Message, ref ReplyRef) string {
	if m.Kind != "" && m.Kind != KindText {
		return ref.Content
	}
	runes := []rune(ref.Content)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return ref.Content
}

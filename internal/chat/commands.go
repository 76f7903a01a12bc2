package chat

import (
	"regexp"
	"strings"

	"github.com/kalambet/soullink/internal/pet"
	"github.com/kalambet/soullink/internal/session"
)

var (
	groupCommandPattern = regexp.MustCompile(`(?i)^/group\b`)
	petCommandPattern   = regexp.MustCompile(`(?i)^/pet\b`)
)

// runCommand intercepts slash commands before a message reaches the
// model. The returned message is the system line mirrored into the
// surface.
func (s *Service) runCommand(sf session.Surface, text string) (session.Message, bool) {
	switch {
	case groupCommandPattern.MatchString(text):
		return s.groupCommand(sf, text), true
	case petCommandPattern.MatchString(text):
		return s.petCommand(sf, text), true
	}
	return session.Message{}, false
}

func splitCommand(text, prefix string) (action, payload string) {
	rest := strings.TrimSpace(text[len(prefix):])
	fields := strings.SplitN(rest, " ", 2)
	action = fields[0]
	if len(fields) > 1 {
		payload = strings.TrimSpace(fields[1])
	}
	return action, payload
}

func (s *Service) groupCommand(sf session.Surface, text string) session.Message {
	action, payload := splitCommand(text, "/group")
	switch action {
	case "list":
		groups := s.sessions.Groups()
		if len(groups) == 0 {
			return s.appendSystem(sf, "暂无群聊记录。")
		}
		var entries []string
		for _, g := range groups {
			name := g.Name
			if name == "" {
				name = "未命名"
			}
			entries = append(entries, name+" (#"+g.ID+")")
		}
		return s.appendSystem(sf, "群聊列表："+strings.Join(entries, "、"))

	case "create":
		parts := strings.SplitN(payload, "|", 2)
		name := strings.TrimSpace(parts[0])
		if name == "" {
			return s.appendSystem(sf, "创建群聊失败：请提供群聊名称。")
		}
		var members []string
		if len(parts) > 1 {
			for _, m := range strings.Split(parts[1], ",") {
				if m = strings.TrimSpace(m); m != "" {
					members = append(members, m)
				}
			}
		}
		s.sessions.CreateGroup(name, members)
		return s.appendSystem(sf, "群聊已创建："+name)

	case "open":
		target, ok := s.sessions.FindGroup(payload)
		if !ok {
			return s.appendSystem(sf, "未找到对应群聊。")
		}
		name := target.Name
		if name == "" {
			name = "未命名"
		}
		return s.appendSystem(sf, "已进入群聊："+name)

	case "delete":
		target, ok := s.sessions.FindGroup(payload)
		if !ok {
			return s.appendSystem(sf, "未找到对应群聊。")
		}
		s.Teardown(session.GroupSurface(target.ID))
		s.sessions.DeleteGroup(target.ID)
		name := target.Name
		if name == "" {
			name = "未命名"
		}
		return s.appendSystem(sf, "群聊已删除："+name)

	case "rename":
		if sf.Kind != session.SurfaceGroup {
			return s.appendSystem(sf, "请先进入需要改名的群聊。")
		}
		if payload == "" {
			return s.appendSystem(sf, "群聊名称不能为空。")
		}
		s.sessions.RenameGroup(sf.ID, payload)
		return s.appendSystem(sf, "群聊已改名为："+payload)

	case "members":
		if sf.Kind != session.SurfaceGroup {
			return s.appendSystem(sf, "请先进入需要修改成员的群聊。")
		}
		var members []string
		for _, m := range strings.Split(payload, ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		s.sessions.SetGroupMembers(sf.ID, members)
		joined := strings.Join(members, "、")
		if joined == "" {
			joined = "暂无"
		}
		return s.appendSystem(sf, "群成员已更新："+joined)
	}
	return s.appendSystem(sf, "群聊指令无效。可用：/group list, /group create 名称|成员1,成员2, /group open 名称, /group rename 新名称, /group members 成员1,成员2, /group delete 名称")
}

func (s *Service) petCommand(sf session.Surface, text string) session.Message {
	action, payload := splitCommand(text, "/pet")
	switch action {
	case "status":
		return s.appendSystem(sf, s.pets.Snapshot().StatusLine())

	case "feed", "play", "rest":
		state, reaction := s.pets.Interact(pet.Action(action))
		return s.sessions.Append(sf, session.Message{
			Sender:     session.SenderAI,
			SenderName: state.Name,
			Kind:       session.KindPet,
			Text:       reaction,
		})

	case "name":
		if payload == "" {
			return s.appendSystem(sf, "宠物名字不能为空。")
		}
		s.pets.Rename(payload)
		return s.appendSystem(sf, "宠物已更名："+payload)

	case "emoji":
		if payload == "" {
			return s.appendSystem(sf, "宠物表情不能为空。")
		}
		s.pets.SetEmoji(payload)
		return s.appendSystem(sf, "宠物表情已更新："+payload)
	}
	return s.appendSystem(sf, "宠物指令无效。可用：/pet status, /pet feed, /pet play, /pet rest, /pet name 新名字, /pet emoji 😀")
}

package composer

import (
	"strings"
	"testing"

	"github.com/kalambet/soullink/internal/entity"
	"github.com/kalambet/soullink/internal/session"
)

func TestCharacter_SystemBlockContents(t *testing.T) {
	msgs := Character(CharacterInput{
		Persona: entity.Persona{Name: "Mika", Description: "温柔的咖啡师", OpeningLine: "今天想喝点什么？"},
		History: []session.Message{{Sender: session.SenderUser, Text: "你好"}},
		UserText: "你好",
	})

	if msgs[0].Role != RoleSystem {
		t.Fatalf("first role = %q", msgs[0].Role)
	}
	sys := msgs[0].Content
	for _, want := range []string{
		"你的名字是【Mika】。",
		"温柔的咖啡师",
		"# 聊天风格（核心规则）",
		`用 "---" 分隔`,
		"这是你们的第一次对话",
		"今天想喝点什么？",
	} {
		if !strings.Contains(sys, want) {
			t.Errorf("system block missing %q", want)
		}
	}
	last := msgs[len(msgs)-1]
	if last.Role != RoleUser || last.Content != "你好" {
		t.Errorf("closing turn = %+v", last)
	}
}

func TestCharacter_OpeningOnlyOnFirstContact(t *testing.T) {
	in := CharacterInput{
		Persona: entity.Persona{Name: "Mika", Description: "p", OpeningLine: "嗨"},
		History: []session.Message{
			{Sender: session.SenderUser, Text: "a"},
			{Sender: session.SenderAI, Text: "b"},
			{Sender: session.SenderUser, Text: "c"},
		},
		UserText: "c",
	}
	if strings.Contains(Character(in)[0].Content, "# 开场") {
		t.Error("opening block present past first contact")
	}
}

func TestCharacter_WorldPackInjected(t *testing.T) {
	pack := &entity.WorldKnowledgePack{Entries: []entity.Entry{
		{Key: "王都", Body: "位于北境的都城"},
		{Key: "", Body: "skipped"},
	}}
	sys := Character(CharacterInput{
		Persona:   entity.Persona{Name: "Mika", Description: "p"},
		WorldPack: pack,
	})[0].Content

	if !strings.Contains(sys, "# 世界观与背景知识（必须严格遵守）") {
		t.Error("worldpack header missing")
	}
	if !strings.Contains(sys, "[王都]\n位于北境的都城") {
		t.Error("entry missing")
	}
	if strings.Contains(sys, "skipped") {
		t.Error("keyless entry injected")
	}
	if !strings.Contains(sys, "--- 世界观设定结束 ---") {
		t.Error("closing marker missing")
	}
}

func TestTurns_ExcludeHiddenAndSystem(t *testing.T) {
	history := []session.Message{
		{Sender: session.SenderUser, Text: "visible"},
		{Sender: session.SenderSystem, Text: "recall notice", IsSystem: true, IsHidden: true},
		{Sender: session.SenderUser, Text: "配置缺失", IsSystem: true},
		{Sender: session.SenderAI, Text: "reply"},
	}
	msgs := Character(CharacterInput{Persona: entity.Persona{Name: "M", Description: "p"}, History: history, UserText: "x"})

	// system block + 2 surviving turns + closing user turn
	if len(msgs) != 4 {
		t.Fatalf("len = %d: %+v", len(msgs), msgs)
	}
	if msgs[1].Content != "我: visible" || msgs[1].Role != RoleUser {
		t.Errorf("turn 1 = %+v", msgs[1])
	}
	if msgs[2].Content != "成员: reply" || msgs[2].Role != RoleAssistant {
		t.Errorf("turn 2 = %+v", msgs[2])
	}
}

func TestTurns_AttachmentsRenderAsQuoteContext(t *testing.T) {
	history := []session.Message{
		{Sender: session.SenderUser, Kind: session.KindTransfer, Amount: 52, Note: "奶茶"},
	}
	msgs := Character(CharacterInput{Persona: entity.Persona{Name: "M", Description: "p"}, History: history, UserText: "x"})
	if msgs[1].Content != "我: 转账 ¥52 奶茶" {
		t.Errorf("attachment turn = %q", msgs[1].Content)
	}
}

func TestCharacter_ReplyBlock(t *testing.T) {
	sys := Character(CharacterInput{
		Persona: entity.Persona{Name: "M", Description: "p"},
		Reply:   &session.ReplyRef{SenderName: "Mika", Content: "早安"},
	})[0].Content
	if !strings.Contains(sys, "# 引用回复\n用户正在回复以下内容：\nMika: 早安") {
		t.Error("reply block missing")
	}
}

func TestGroup_MembersAndClosingTurn(t *testing.T) {
	msgs := Group(GroupInput{
		GroupName: "周末小队",
		Members:   []string{"Mika", "Ren"},
		UserText:  "都在吗",
	})
	sys := msgs[0].Content
	if !strings.Contains(sys, "你正在群聊【周末小队】中与用户对话。") {
		t.Error("group header missing")
	}
	if !strings.Contains(sys, "# 群成员\nMika、Ren") {
		t.Error("member list missing")
	}
	if !strings.Contains(sys, "回复格式为「成员名: 内容」") {
		t.Error("format rule missing")
	}
	if got := msgs[len(msgs)-1].Content; got != "我: 都在吗" {
		t.Errorf("closing turn = %q", got)
	}
}

func TestGroup_EmptyMembersFallBack(t *testing.T) {
	sys := Group(GroupInput{UserText: "hi"})[0].Content
	if !strings.Contains(sys, "成员A、成员B、成员C") {
		t.Error("placeholder members missing")
	}
	if !strings.Contains(sys, "你正在群聊【群聊】") {
		t.Error("placeholder name missing")
	}
}

func TestQuick_PlainUnlabeledTurns(t *testing.T) {
	msgs := Quick([]session.Message{
		{Sender: session.SenderUser, Text: "在吗"},
		{Sender: session.SenderAI, Text: "在的在的", IsSystem: false},
		{Sender: session.SenderAI, Text: "配置缺失", IsSystem: true},
		{Sender: session.SenderUser, Text: "撤回的原文", IsHidden: true},
	})
	if len(msgs) != 3 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[1].Content != "在吗" || msgs[1].Role != RoleUser {
		t.Errorf("turn = %+v", msgs[1])
	}
	if msgs[2].Content != "在的在的" || msgs[2].Role != RoleAssistant {
		t.Errorf("turn = %+v", msgs[2])
	}
	for _, m := range msgs {
		if strings.Contains(m.Content, "撤回的原文") {
			t.Errorf("hidden message surfaced as turn: %+v", m)
		}
	}
}

func TestOffline_PersonaVariant(t *testing.T) {
	p := &entity.Persona{Name: "Mika", Description: "温柔的咖啡师"}
	pack := &entity.WorldKnowledgePack{Entries: []entity.Entry{{Key: "店", Body: "街角咖啡店"}}}
	sys := Offline(OfflineInput{Persona: p, WorldPack: pack, Preset: "雨夜的城市", UserText: "继续"})[0].Content

	if !strings.Contains(sys, "离线模式。你是【Mika】。") {
		t.Error("persona header missing")
	}
	if !strings.Contains(sys, "雨夜的城市") {
		t.Error("preset missing")
	}
	if !strings.Contains(sys, "\n[店]\n街角咖啡店") {
		t.Error("worldpack entry missing")
	}
}

func TestOffline_PersonaLessVariant(t *testing.T) {
	sys := Offline(OfflineInput{Preset: "雨夜", UserText: "继续"})[0].Content
	if !strings.HasPrefix(sys, "离线模式。根据预设生成带描写的长文本") {
		t.Errorf("header = %q", sys)
	}
}

func TestCharacterAttachment_ClosingTurnIsQuoteContext(t *testing.T) {
	att := session.Message{Sender: session.SenderUser, Kind: session.KindLocation, UserLocation: "市图书馆"}
	msgs := CharacterAttachment(entity.Persona{Name: "Mika", Description: "p"}, nil, nil, att)
	if got := msgs[len(msgs)-1].Content; got != "定位 我的位置: 市图书馆" {
		t.Errorf("closing turn = %q", got)
	}
}

func TestFeedPost_ChatAnchoredVsDaily(t *testing.T) {
	p := entity.Persona{Name: "Mika", Nickname: "小米", Description: "咖啡师"}

	anchored := FeedPost(p, "我: 今天好累\n小米: 抱抱")[0].Content
	if !strings.Contains(anchored, "你是角色「小米」。") {
		t.Error("nickname not preferred")
	}
	if !strings.Contains(anchored, "请基于下方聊天记录内容") {
		t.Error("chat-anchored instruction missing")
	}

	daily := FeedPost(p, "")[0].Content
	if !strings.Contains(daily, "请生成一条自然的日常动态。") {
		t.Error("daily instruction missing")
	}
	if strings.Contains(daily, "聊天记录:") {
		t.Error("empty context injected")
	}
}

func TestFeedComments_CandidateCapAndFallbacks(t *testing.T) {
	in := FeedCommentsInput{
		AuthorName: "Mika",
		Candidates: []NPCCandidate{
			{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}, {Name: "e"}, {Name: "f"},
		},
	}
	sys := FeedComments(in)[0].Content
	if strings.Contains(sys, "- f ") {
		t.Error("candidate list not capped at 5")
	}
	if !strings.Contains(sys, "内容摘要: (图片动态)") {
		t.Error("empty summary placeholder missing")
	}
	if !strings.Contains(sys, "(暂无评论)") {
		t.Error("empty comments placeholder missing")
	}
	if !strings.Contains(sys, "输出严格JSON数组") {
		t.Error("json instruction missing")
	}
}

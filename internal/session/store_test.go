package session

import (
	"errors"
	"testing"
	"time"
)

// fakeClock hands out a controllable time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewStoreWithClock(nil, clock), clock
}

func TestAppend_TailOrderAndIncreasingIDs(t *testing.T) {
	s, _ := newTestStore(t)
	sf := CharacterSurface("p1")

	a := s.Append(sf, Message{Sender: SenderUser, Text: "one"})
	b := s.Append(sf, Message{Sender: SenderAI, Text: "two"})

	if b.ID <= a.ID {
		t.Errorf("ids not strictly increasing: %d then %d", a.ID, b.ID)
	}
	hist := s.History(sf)
	if len(hist) != 2 || hist[0].Text != "one" || hist[1].Text != "two" {
		t.Errorf("history order wrong: %+v", hist)
	}
}

func TestAppend_SameMillisecondBumpsID(t *testing.T) {
	s, _ := newTestStore(t)
	sf := CharacterSurface("p1")

	// Frozen clock: both appends see the same UnixMilli.
	a := s.Append(sf, Message{Sender: SenderUser, Text: "a"})
	b := s.Append(sf, Message{Sender: SenderUser, Text: "b"})
	if b.ID != a.ID+1 {
		t.Errorf("collision bump: got %d after %d", b.ID, a.ID)
	}
}

func TestAppend_SurfacesAreIndependent(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(CharacterSurface("p1"), Message{Sender: SenderUser, Text: "hi"})

	if got := s.History(CharacterSurface("p2")); len(got) != 0 {
		t.Errorf("unrelated surface has %d messages", len(got))
	}
	if got := s.History(GroupSurface("g1")); len(got) != 0 {
		t.Errorf("group surface has %d messages", len(got))
	}
}

func TestRecall_WithinWindow(t *testing.T) {
	s, clock := newTestStore(t)
	sf := CharacterSurface("p1")
	m := s.Append(sf, Message{Sender: SenderUser, Kind: KindImage, ImageURL: "http://x/y.png", Text: "look"})

	clock.advance(119 * time.Second)
	if err := s.Recall(sf, m.ID); err != nil {
		t.Fatalf("recall: %v", err)
	}

	hist := s.History(sf)
	got := hist[0]
	if !got.IsRecalled || got.Text != "你撤回了一条消息" || got.Kind != KindText {
		t.Errorf("marker not applied: %+v", got)
	}
	if got.ImageURL != "" {
		t.Error("payload not stripped")
	}
	if got.Recalled == nil || got.Recalled.ImageURL != "http://x/y.png" || got.Recalled.Kind != KindImage {
		t.Errorf("audit payload missing: %+v", got.Recalled)
	}

	// A hidden system notice follows the recalled message.
	notice := hist[len(hist)-1]
	if !notice.IsHidden || notice.Sender != SenderSystem {
		t.Errorf("notice flags wrong: %+v", notice)
	}
	if notice.Text != "[系统提示：用户撤回了一条消息。你不知道具体内容，只需知道这个事件。]" {
		t.Errorf("notice text = %q", notice.Text)
	}
	if vis := s.VisibleHistory(sf); len(vis) != 1 {
		t.Errorf("visible history = %d, want 1", len(vis))
	}
}

func TestRecall_WindowExpired(t *testing.T) {
	s, clock := newTestStore(t)
	sf := CharacterSurface("p1")
	m := s.Append(sf, Message{Sender: SenderUser, Text: "hi"})

	clock.advance(121 * time.Second)
	if err := s.Recall(sf, m.ID); !errors.Is(err, ErrRecallWindowExpired) {
		t.Errorf("err = %v, want ErrRecallWindowExpired", err)
	}
}

func TestRecall_AIMessageForbidden(t *testing.T) {
	s, _ := newTestStore(t)
	sf := CharacterSurface("p1")
	m := s.Append(sf, Message{Sender: SenderAI, Text: "hi"})

	if err := s.Recall(sf, m.ID); !errors.Is(err, ErrRecallForbidden) {
		t.Errorf("err = %v, want ErrRecallForbidden", err)
	}
}

func TestRecall_UnknownMessage(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Recall(CharacterSurface("p1"), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete_RemovesMessage(t *testing.T) {
	s, _ := newTestStore(t)
	sf := CharacterSurface("p1")
	a := s.Append(sf, Message{Sender: SenderUser, Text: "a"})
	s.Append(sf, Message{Sender: SenderUser, Text: "b"})

	if err := s.Delete(sf, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	hist := s.History(sf)
	if len(hist) != 1 || hist[0].Text != "b" {
		t.Errorf("history after delete: %+v", hist)
	}
}

func TestToggleStar_FlipsAndLists(t *testing.T) {
	s, _ := newTestStore(t)
	sf := CharacterSurface("p1")
	m := s.Append(sf, Message{Sender: SenderAI, Text: "memorable"})

	on, err := s.ToggleStar(sf, m.ID)
	if err != nil || !on {
		t.Fatalf("star on: %v %v", on, err)
	}

	starred := s.Starred(func(Surface) string { return "Mika" })
	if len(starred) != 1 || starred[0].Text != "memorable" || starred[0].SurfaceName != "Mika" {
		t.Errorf("starred listing: %+v", starred)
	}

	off, _ := s.ToggleStar(sf, m.ID)
	if off {
		t.Error("second toggle should clear the star")
	}
	if got := s.Starred(func(Surface) string { return "" }); len(got) != 0 {
		t.Errorf("starred after unstar = %d", len(got))
	}
}

func TestQuote_SnapshotIsImmutable(t *testing.T) {
	s, _ := newTestStore(t)
	sf := CharacterSurface("p1")
	m := s.Append(sf, Message{Sender: SenderAI, Text: "original words"})

	ref, err := s.Quote(sf, m.ID, "Mika")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if ref.SenderName != "Mika" || ref.Content != "original words" {
		t.Errorf("ref = %+v", ref)
	}

	// Deleting the quoted message leaves the snapshot untouched.
	if err := s.Delete(sf, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ref.Content != "original words" {
		t.Errorf("snapshot mutated: %q", ref.Content)
	}
}

func TestQuote_RecalledMessageRefused(t *testing.T) {
	s, _ := newTestStore(t)
	sf := CharacterSurface("p1")
	m := s.Append(sf, Message{Sender: SenderUser, Text: "oops"})
	if err := s.Recall(sf, m.ID); err != nil {
		t.Fatalf("recall: %v", err)
	}

	if _, err := s.Quote(sf, m.ID, "Mika"); !errors.Is(err, ErrMessageRecalled) {
		t.Errorf("err = %v, want ErrMessageRecalled", err)
	}
}

func TestQuoteContext_Kinds(t *testing.T) {
	cases := []struct {
		name string
		m    Message
		want string
	}{
		{"image with caption", Message{Kind: KindImage, Text: "a cat"}, "a cat"},
		{"image bare", Message{Kind: KindImage}, "[图片]"},
		{"voice bare", Message{Kind: KindVoice}, "[语音]"},
		{"transfer", Message{Kind: KindTransfer, Amount: 52, Note: "请你喝奶茶"}, "转账 ¥52 请你喝奶茶"},
		{"location", Message{Kind: KindLocation, UserLocation: "市图书馆", Distance: "3km"}, "定位 我的位置: 市图书馆 | 相距: 3km"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := QuoteContext(tc.m, "Mika").Content; got != tc.want {
				t.Errorf("content = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveTransfer_Lifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	sf := CharacterSurface("p1")
	m := s.Append(sf, Message{Sender: SenderUser, Kind: KindTransfer, Amount: 20, TransferStatus: TransferPending})

	got, err := s.ResolveTransfer(sf, m.ID, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.TransferStatus != TransferAccepted {
		t.Errorf("status = %q", got.TransferStatus)
	}

	// Terminal states are final.
	if _, err := s.ResolveTransfer(sf, m.ID, false); !errors.Is(err, ErrTransferNotPending) {
		t.Errorf("second resolve err = %v, want ErrTransferNotPending", err)
	}
}

func TestGroups_DenormalizedLastMessage(t *testing.T) {
	s, clock := newTestStore(t)
	g := s.CreateGroup("周末小队", []string{"Mika", "Ren"})

	s.Append(GroupSurface(g.ID), Message{Sender: SenderUser, Text: "hello all"})
	clock.advance(time.Second)
	s.Append(GroupSurface(g.ID), Message{Sender: SenderAI, SenderName: "Mika", Kind: KindVoice, Text: "嗨"})

	stored, ok := s.Group(g.ID)
	if !ok {
		t.Fatal("group missing")
	}
	if stored.LastMessage != "嗨" {
		t.Errorf("lastMessage = %q", stored.LastMessage)
	}
	if !stored.LastTime.Equal(clock.now) {
		t.Errorf("lastTime = %v", stored.LastTime)
	}
}

func TestPersist_FlushPerRecord(t *testing.T) {
	var keys []string
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := NewStoreWithClock(func(key string, _ any) { keys = append(keys, key) }, clock)

	s.Append(CharacterSurface("p1"), Message{Sender: SenderUser, Text: "hi"})
	g := s.CreateGroup("g", nil)
	s.Append(GroupSurface(g.ID), Message{Sender: SenderUser, Text: "yo"})
	s.CreateQuickChat("scratch")

	want := []string{RecordHistories, RecordGroups, RecordGroups, RecordQuickChats}
	if len(keys) != len(want) {
		t.Fatalf("flushes = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("flush %d = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestHydrate_RestoresWithoutPersist(t *testing.T) {
	var flushes int
	s := NewStoreWithClock(func(string, any) { flushes++ }, &fakeClock{now: time.Unix(0, 0)})

	s.Hydrate(
		map[string][]Message{"p1": {{ID: 1, Sender: SenderUser, Text: "old"}}},
		[]Group{{ID: "g1", Name: "crew"}},
		[]QuickChat{{ID: "q1", Title: "scratch"}},
	)
	if flushes != 0 {
		t.Errorf("hydrate flushed %d times", flushes)
	}
	if got := s.History(CharacterSurface("p1")); len(got) != 1 || got[0].Text != "old" {
		t.Errorf("restored history: %+v", got)
	}
	if _, ok := s.Group("g1"); !ok {
		t.Error("group not restored")
	}
}

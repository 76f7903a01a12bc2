package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recall is only allowed for the user's own messages, and only within
// this window of the message timestamp.
const RecallWindow = 2 * time.Minute

const (
	recalledMarker = "你撤回了一条消息"
	recallNotice   = "[系统提示：用户撤回了一条消息。你不知道具体内容，只需知道这个事件。]"
)

var (
	// ErrNotFound is returned when a message id resolves to nothing.
	ErrNotFound = errors.New("message not found")
	// ErrRecallForbidden rejects recall of a non-user message.
	ErrRecallForbidden = errors.New("only your own messages can be recalled")
	// ErrRecallWindowExpired rejects recall after the 2-minute window.
	ErrRecallWindowExpired = errors.New("recall window expired")
	// ErrMessageRecalled rejects quoting a recalled message.
	ErrMessageRecalled = errors.New("message was recalled")
	// ErrTransferNotPending rejects resolving a settled transfer.
	ErrTransferNotPending = errors.New("transfer already resolved")
)

// Record keys passed to the PersistFunc.
const (
	RecordHistories  = "persona_histories"
	RecordGroups     = "groups"
	RecordQuickChats = "quick_chats"
)

// PersistFunc is the Persistence Bridge hook; see entity.PersistFunc.
type PersistFunc func(key string, value any)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store owns every surface's message history. Surfaces are independent:
// an operation on one never mutates another's history. The history
// slice is the sole source of truth for rendering and prompt
// construction alike.
type Store struct {
	mu        sync.Mutex
	histories map[string][]Message // character surfaces, keyed by persona id
	groups    []Group
	quick     []QuickChat
	clock     Clock
	persist   PersistFunc
}

// NewStore creates an empty Store. persist may be nil.
func NewStore(persist PersistFunc) *Store {
	return NewStoreWithClock(persist, realClock{})
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(persist PersistFunc, clock Clock) *Store {
	if persist == nil {
		persist = func(string, any) {}
	}
	return &Store{
		histories: make(map[string][]Message),
		clock:     clock,
		persist:   persist,
	}
}

// Hydrate replaces all surface state with previously-persisted data
// without triggering persistence. Called once at startup.
func (s *Store) Hydrate(histories map[string][]Message, groups []Group, quick []QuickChat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if histories != nil {
		s.histories = histories
	}
	s.groups = groups
	s.quick = quick
}

// withHistory runs fn with the surface's history and writes the result
// back, then flushes the backing record. The callback returns the new
// slice and whether a mutation happened.
func (s *Store) withHistory(sf Surface, fn func(hist []Message) ([]Message, bool)) {
	switch sf.Kind {
	case SurfaceGroup:
		idx := -1
		for i := range s.groups {
			if s.groups[i].ID == sf.ID {
				idx = i
				break
			}
		}
		if idx == -1 {
			s.groups = append(s.groups, Group{ID: sf.ID, Name: sf.ID})
			idx = len(s.groups) - 1
		}
		hist, changed := fn(s.groups[idx].History)
		s.groups[idx].History = hist
		if changed {
			s.refreshGroupDenormLocked(idx)
			s.persist(RecordGroups, cloneGroups(s.groups))
		}
	case SurfaceQuick:
		idx := -1
		for i := range s.quick {
			if s.quick[i].ID == sf.ID {
				idx = i
				break
			}
		}
		if idx == -1 {
			s.quick = append(s.quick, QuickChat{ID: sf.ID, Title: sf.ID})
			idx = len(s.quick) - 1
		}
		hist, changed := fn(s.quick[idx].History)
		s.quick[idx].History = hist
		if changed {
			s.refreshQuickDenormLocked(idx)
			s.persist(RecordQuickChats, cloneQuickChats(s.quick))
		}
	default:
		hist, changed := fn(s.histories[sf.ID])
		s.histories[sf.ID] = hist
		if changed {
			s.persist(RecordHistories, cloneHistories(s.histories))
		}
	}
}

func (s *Store) refreshGroupDenormLocked(idx int) {
	g := &s.groups[idx]
	if len(g.History) == 0 {
		g.LastMessage = ""
		g.LastTime = time.Time{}
		return
	}
	last := g.History[len(g.History)-1]
	g.LastMessage = QuoteContext(last, last.SenderName).Content
	g.LastTime = last.Timestamp
}

func (s *Store) refreshQuickDenormLocked(idx int) {
	q := &s.quick[idx]
	if len(q.History) == 0 {
		q.LastMessage = ""
		q.LastTime = time.Time{}
		return
	}
	last := q.History[len(q.History)-1]
	q.LastMessage = QuoteContext(last, last.SenderName).Content
	q.LastTime = last.Timestamp
}

// nextID derives a time-based id, bumped past the previous tail so ids
// stay unique and strictly increasing within a surface.
func (s *Store) nextID(hist []Message) int64 {
	id := s.clock.Now().UnixMilli()
	if n := len(hist); n > 0 && id <= hist[n-1].ID {
		id = hist[n-1].ID + 1
	}
	return id
}

// Append inserts a message at the surface's tail, assigning its id and
// timestamp when unset, and returns the stored copy.
func (s *Store) Append(sf Surface, m Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored Message
	s.withHistory(sf, func(hist []Message) ([]Message, bool) {
		if m.Timestamp.IsZero() {
			m.Timestamp = s.clock.Now()
		}
		if m.ID == 0 {
			m.ID = s.nextID(hist)
		}
		if m.Kind == "" {
			m.Kind = KindText
		}
		stored = cloneMessage(m)
		return append(hist, cloneMessage(m)), true
	})
	return stored
}

// History returns a copy of the surface's full history, hidden messages
// included.
func (s *Store) History(sf Surface) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	s.withHistory(sf, func(hist []Message) ([]Message, bool) {
		out = cloneHistory(hist)
		return hist, false
	})
	return out
}

// VisibleHistory returns the history without hidden messages — the
// rendering view.
func (s *Store) VisibleHistory(sf Surface) []Message {
	all := s.History(sf)
	out := make([]Message, 0, len(all))
	for _, m := range all {
		if !m.IsHidden {
			out = append(out, m)
		}
	}
	return out
}

// Recall retracts a user message within the recall window: the visible
// payload becomes a fixed marker, the original payload moves to the
// audit field, and a hidden system notice is appended so future prompts
// know a recall happened without learning the content.
func (s *Store) Recall(sf Surface, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var opErr error
	s.withHistory(sf, func(hist []Message) ([]Message, bool) {
		idx := indexOf(hist, messageID)
		if idx == -1 {
			opErr = ErrNotFound
			return hist, false
		}
		m := hist[idx]
		if m.Sender != SenderUser {
			opErr = ErrRecallForbidden
			return hist, false
		}
		if s.clock.Now().Sub(m.Timestamp) > RecallWindow {
			opErr = ErrRecallWindowExpired
			return hist, false
		}

		hist[idx].Recalled = &RecalledPayload{
			Kind:         m.Kind,
			Text:         m.Text,
			ImageURL:     m.ImageURL,
			Amount:       m.Amount,
			Note:         m.Note,
			Duration:     m.Duration,
			UserLocation: m.UserLocation,
			AILocation:   m.AILocation,
			Distance:     m.Distance,
			Waypoints:    m.Waypoints,
		}
		hist[idx].Kind = KindText
		hist[idx].Text = recalledMarker
		hist[idx].ImageURL = ""
		hist[idx].Amount = 0
		hist[idx].Note = ""
		hist[idx].Duration = ""
		hist[idx].UserLocation = ""
		hist[idx].AILocation = ""
		hist[idx].Distance = ""
		hist[idx].Waypoints = nil
		hist[idx].IsRecalled = true
		hist[idx].IsSystem = true

		notice := Message{
			ID:        s.nextID(hist),
			Sender:    SenderSystem,
			Kind:      KindText,
			Text:      recallNotice,
			Timestamp: s.clock.Now(),
			IsSystem:  true,
			IsHidden:  true,
		}
		return append(hist, notice), true
	})
	return opErr
}

// Delete removes a message from the surface's history.
func (s *Store) Delete(sf Surface, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var opErr error
	s.withHistory(sf, func(hist []Message) ([]Message, bool) {
		idx := indexOf(hist, messageID)
		if idx == -1 {
			opErr = ErrNotFound
			return hist, false
		}
		return append(hist[:idx], hist[idx+1:]...), true
	})
	return opErr
}

// ToggleStar flips a message's star flag and returns the new state.
func (s *Store) ToggleStar(sf Surface, messageID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var starred bool
	var opErr error
	s.withHistory(sf, func(hist []Message) ([]Message, bool) {
		idx := indexOf(hist, messageID)
		if idx == -1 {
			opErr = ErrNotFound
			return hist, false
		}
		hist[idx].IsStarred = !hist[idx].IsStarred
		starred = hist[idx].IsStarred
		return hist, true
	})
	return starred, opErr
}

// Quote produces the replyTo snapshot for a message. Recalled messages
// cannot be quoted. aiName names AI messages without a senderName.
func (s *Store) Quote(sf Surface, messageID int64, aiName string) (ReplyRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ref ReplyRef
	var opErr error
	s.withHistory(sf, func(hist []Message) ([]Message, bool) {
		idx := indexOf(hist, messageID)
		if idx == -1 {
			opErr = ErrNotFound
			return hist, false
		}
		if hist[idx].IsRecalled {
			opErr = ErrMessageRecalled
			return hist, false
		}
		ref = QuoteContext(hist[idx], aiName)
		return hist, false
	})
	return ref, opErr
}

// ResolveTransfer moves a pending transfer message to its terminal
// state and returns the updated copy.
func (s *Store) ResolveTransfer(sf Surface, messageID int64, accepted bool) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Message
	var opErr error
	s.withHistory(sf, func(hist []Message) ([]Message, bool) {
		idx := indexOf(hist, messageID)
		if idx == -1 {
			opErr = ErrNotFound
			return hist, false
		}
		if hist[idx].Kind != KindTransfer || hist[idx].TransferStatus != TransferPending {
			opErr = ErrTransferNotPending
			return hist, false
		}
		if accepted {
			hist[idx].TransferStatus = TransferAccepted
		} else {
			hist[idx].TransferStatus = TransferRejected
		}
		out = cloneMessage(hist[idx])
		return hist, true
	})
	return out, opErr
}

// Starred lists every starred message across all surfaces. nameFor maps
// a surface to its display name for the listing.
func (s *Store) Starred(nameFor func(Surface) string) []StarredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []StarredMessage
	collect := func(sf Surface, hist []Message) {
		for _, m := range hist {
			if !m.IsStarred {
				continue
			}
			out = append(out, StarredMessage{
				Surface:     sf,
				SurfaceName: nameFor(sf),
				MessageID:   m.ID,
				Text:        m.Text,
				Timestamp:   m.Timestamp,
			})
		}
	}
	for id, hist := range s.histories {
		collect(CharacterSurface(id), hist)
	}
	for _, g := range s.groups {
		collect(GroupSurface(g.ID), g.History)
	}
	for _, q := range s.quick {
		collect(QuickSurface(q.ID), q.History)
	}
	return out
}

// --- Groups ---

// CreateGroup registers a group chat and returns the stored copy.
func (s *Store) CreateGroup(name string, members []string) Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := Group{
		ID:      uuid.NewString(),
		Name:    name,
		Members: append([]string(nil), members...),
	}
	s.groups = append(s.groups, g)
	s.persist(RecordGroups, cloneGroups(s.groups))
	return cloneGroup(g)
}

// Group returns a copy of a group by id.
func (s *Store) Group(id string) (Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.ID == id {
			return cloneGroup(g), true
		}
	}
	return Group{}, false
}

// Groups returns copies of all groups.
func (s *Store) Groups() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneGroups(s.groups)
}

// RenameGroup changes a group's display name.
func (s *Store) RenameGroup(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].ID == id {
			s.groups[i].Name = name
			s.persist(RecordGroups, cloneGroups(s.groups))
			return nil
		}
	}
	return ErrNotFound
}

// SetGroupMembers replaces a group's member list.
func (s *Store) SetGroupMembers(id string, members []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].ID == id {
			s.groups[i].Members = append([]string(nil), members...)
			s.persist(RecordGroups, cloneGroups(s.groups))
			return nil
		}
	}
	return ErrNotFound
}

// FindGroup resolves a group by exact id or case-insensitive name.
func (s *Store) FindGroup(idOrName string) (Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.TrimSpace(idOrName)
	if needle == "" {
		return Group{}, false
	}
	for _, g := range s.groups {
		if g.ID == needle {
			return cloneGroup(g), true
		}
	}
	lowered := strings.ToLower(needle)
	for _, g := range s.groups {
		if strings.ToLower(g.Name) == lowered {
			return cloneGroup(g), true
		}
	}
	return Group{}, false
}

// DeleteGroup removes a group and its history.
func (s *Store) DeleteGroup(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.groups {
		if g.ID == id {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			s.persist(RecordGroups, cloneGroups(s.groups))
			return nil
		}
	}
	return ErrNotFound
}

// --- Quick chats ---

// CreateQuickChat registers a quick-chat surface.
func (s *Store) CreateQuickChat(title string) QuickChat {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := QuickChat{ID: uuid.NewString(), Title: title}
	s.quick = append(s.quick, q)
	s.persist(RecordQuickChats, cloneQuickChats(s.quick))
	return q
}

// QuickChats returns copies of all quick-chat surfaces.
func (s *Store) QuickChats() []QuickChat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneQuickChats(s.quick)
}

func indexOf(hist []Message, id int64) int {
	for i := range hist {
		if hist[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneGroup(g Group) Group {
	cp := g
	cp.Members = append([]string(nil), g.Members...)
	cp.History = cloneHistory(g.History)
	return cp
}

func cloneGroups(in []Group) []Group {
	out := make([]Group, len(in))
	for i, g := range in {
		out[i] = cloneGroup(g)
	}
	return out
}

func cloneQuickChats(in []QuickChat) []QuickChat {
	out := make([]QuickChat, len(in))
	for i, q := range in {
		out[i] = q
		out[i].History = cloneHistory(q.History)
	}
	return out
}

func cloneHistories(in map[string][]Message) map[string][]Message {
	out := make(map[string][]Message, len(in))
	for k, v := range in {
		out[k] = cloneHistory(v)
	}
	return out
}

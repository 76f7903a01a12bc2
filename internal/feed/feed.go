// Package feed is the social feed: posts, likes, comments, and the
// model-driven generation of both posts and NPC bystander comments.
package feed

import (
	"errors"
	"sync"
	"time"
)

// UserAuthorID marks posts written by the user rather than a persona.
const UserAuthorID = "user"

// RecordKey names the persisted feed record.
const RecordKey = "feed_posts"

// ErrNotFound is returned when a post id resolves to nothing.
var ErrNotFound = errors.New("post not found")

// Comment is one comment under a post. NPC comments carry the
// commenter's display name directly; there is no back-reference to a
// persona.
type Comment struct {
	CommenterName string    `json:"commenterName"`
	Text          string    `json:"text"`
	ReplyTo       string    `json:"replyTo,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Post is one feed entry. Likes hold display names, toggled per name.
type Post struct {
	ID              int64     `json:"id"`
	AuthorID        string    `json:"authorId"`
	Type            string    `json:"type"`
	Content         string    `json:"content,omitempty"`
	PublicText      string    `json:"publicText,omitempty"`
	HiddenContent   string    `json:"hiddenContent,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	ImageURLs       []string  `json:"imageUrls,omitempty"`
	HideComments    bool      `json:"hideComments,omitempty"`
	Likes           []string  `json:"likes"`
	Comments        []Comment `json:"comments"`
	IsFavorited     bool      `json:"isFavorited,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Summary condenses a post for prompt injection: first available text,
// cut at 150 characters.
func (p Post) Summary() string {
	text := p.Content
	if text == "" {
		text = p.PublicText
	}
	if text == "" {
		text = p.HiddenContent
	}
	runes := []rune(text)
	if len(runes) > 150 {
		return string(runes[:150])
	}
	return text
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// PersistFunc flushes the feed record; see entity.PersistFunc.
type PersistFunc func(key string, value any)

// Store owns the feed timeline, newest post first.
type Store struct {
	mu      sync.Mutex
	posts   []Post
	clock   Clock
	persist PersistFunc
}

// NewStore creates an empty feed Store. persist may be nil.
func NewStore(persist PersistFunc) *Store {
	return NewStoreWithClock(persist, realClock{})
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(persist PersistFunc, clock Clock) *Store {
	if persist == nil {
		persist = func(string, any) {}
	}
	return &Store{clock: clock, persist: persist}
}

// Hydrate replaces the timeline with persisted data without flushing.
func (s *Store) Hydrate(posts []Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = make([]Post, len(posts))
	for i, p := range posts {
		s.posts[i] = normalize(p, s.clock)
	}
}

// normalize backfills the defaults a freshly-created or persisted post
// may lack.
func normalize(p Post, clock Clock) Post {
	if p.ID == 0 {
		p.ID = clock.Now().UnixMilli()
	}
	if p.AuthorID == "" {
		p.AuthorID = UserAuthorID
	}
	if p.Type == "" {
		p.Type = "shuoshuo"
	}
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Comments == nil {
		p.Comments = []Comment{}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = clock.Now()
	}
	return p
}

// Add prepends a post to the timeline and returns the stored copy.
func (s *Store) Add(p Post) Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = normalize(p, s.clock)
	s.posts = append([]Post{p}, s.posts...)
	s.persist(RecordKey, clonePosts(s.posts))
	return clonePost(p)
}

// Posts returns a copy of the timeline, newest first.
func (s *Store) Posts() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePosts(s.posts)
}

// Delete removes a post.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == id {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
			s.persist(RecordKey, clonePosts(s.posts))
			return nil
		}
	}
	return ErrNotFound
}

// ToggleLike flips name's like on a post and returns whether the like
// is now present.
func (s *Store) ToggleLike(id int64, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findLocked(id)
	if p == nil {
		return false, ErrNotFound
	}
	for i, liker := range p.Likes {
		if liker == name {
			p.Likes = append(p.Likes[:i], p.Likes[i+1:]...)
			s.persist(RecordKey, clonePosts(s.posts))
			return false, nil
		}
	}
	p.Likes = append(p.Likes, name)
	s.persist(RecordKey, clonePosts(s.posts))
	return true, nil
}

// ToggleFavorite flips a post's favorite flag.
func (s *Store) ToggleFavorite(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findLocked(id)
	if p == nil {
		return false, ErrNotFound
	}
	p.IsFavorited = !p.IsFavorited
	s.persist(RecordKey, clonePosts(s.posts))
	return p.IsFavorited, nil
}

// AddComment appends one comment, stamping its time when unset.
func (s *Store) AddComment(id int64, c Comment) error {
	return s.AddComments(id, []Comment{c})
}

// AddComments appends a batch of comments to a post.
func (s *Store) AddComments(id int64, comments []Comment) error {
	if len(comments) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findLocked(id)
	if p == nil {
		return ErrNotFound
	}
	for _, c := range comments {
		if c.Timestamp.IsZero() {
			c.Timestamp = s.clock.Now()
		}
		p.Comments = append(p.Comments, c)
	}
	s.persist(RecordKey, clonePosts(s.posts))
	return nil
}

// Post returns a copy of one post.
func (s *Store) Post(id int64) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findLocked(id)
	if p == nil {
		return Post{}, ErrNotFound
	}
	return clonePost(*p), nil
}

// OthersPosts returns up to limit most recent posts not authored by
// authorID. The autonomy loop comments on the first of these.
func (s *Store) OthersPosts(authorID string, limit int) []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Post
	for _, p := range s.posts {
		if p.AuthorID == authorID {
			continue
		}
		out = append(out, clonePost(p))
		if len(out) == limit {
			break
		}
	}
	return out
}

func (s *Store) findLocked(id int64) *Post {
	for i := range s.posts {
		if s.posts[i].ID == id {
			return &s.posts[i]
		}
	}
	return nil
}

func clonePost(p Post) Post {
	cp := p
	cp.ImageURLs = append([]string(nil), p.ImageURLs...)
	cp.Likes = append([]string(nil), p.Likes...)
	cp.Comments = append([]Comment(nil), p.Comments...)
	return cp
}

func clonePosts(in []Post) []Post {
	out := make([]Post, len(in))
	for i, p := range in {
		out[i] = clonePost(p)
	}
	return out
}

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kalambet/soullink/internal/composer"
	"github.com/kalambet/soullink/internal/dispatch"
	"github.com/kalambet/soullink/internal/entity"
)

// Completer is the slice of the backend client the feed needs.
type Completer interface {
	Complete(ctx context.Context, profile entity.ConnectionProfile, msgs []composer.ChatMessage) (string, error)
}

// Probabilities drive the autonomy draw: a single roll posts below
// Post, comments between Post and Post+Comment, and does nothing above.
type Probabilities struct {
	Post    float64
	Comment float64
}

// Service generates feed content through the completion backend.
type Service struct {
	store    *Store
	entities *entity.Store
	client   Completer
	log      *slog.Logger
	roll     dispatch.Roll
	probs    Probabilities
}

// NewService wires the feed generator. roll may be nil to use the
// default random source.
func NewService(store *Store, entities *entity.Store, client Completer, probs Probabilities, log *slog.Logger, roll dispatch.Roll) *Service {
	if roll == nil {
		roll = dispatch.DefaultRoll
	}
	return &Service{
		store:    store,
		entities: entities,
		client:   client,
		log:      log,
		roll:     roll,
		probs:    probs,
	}
}

// GeneratePost asks the model for a post in the persona's voice and
// prepends it to the timeline. chatContext, when non-empty, anchors the
// post to the persona's recent conversation.
func (s *Service) GeneratePost(ctx context.Context, authorID, chatContext string) (Post, error) {
	persona, err := s.entities.Persona(authorID)
	if err != nil {
		return Post{}, fmt.Errorf("looking up author: %w", err)
	}
	profile, ok := s.entities.ActiveProfile()
	if !ok {
		return Post{}, fmt.Errorf("no active connection profile")
	}

	reply, err := s.client.Complete(ctx, profile, composer.FeedPost(persona, chatContext))
	if err != nil {
		return Post{}, fmt.Errorf("generating post: %w", err)
	}
	content := strings.TrimSpace(reply)
	if content == "" {
		return Post{}, fmt.Errorf("model returned empty post")
	}

	return s.store.Add(Post{AuthorID: authorID, Content: content}), nil
}

// GenerateComments asks the model for 1-3 bystander comments on a post
// and appends whatever parses. candidates are the personas offered;
// owner, when set, describes whose circle they belong to.
func (s *Service) GenerateComments(ctx context.Context, postID int64, candidates []entity.Persona, owner *entity.Persona, authorName string) error {
	if len(candidates) == 0 {
		return nil
	}
	post, err := s.store.Post(postID)
	if err != nil {
		return err
	}
	profile, ok := s.entities.ActiveProfile()
	if !ok {
		return fmt.Errorf("no active connection profile")
	}

	in := composer.FeedCommentsInput{
		AuthorName: authorName,
		Summary:    post.Summary(),
		Owner:      owner,
	}
	recent := post.Comments
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	for _, c := range recent {
		in.RecentComments = append(in.RecentComments, c.CommenterName+": "+c.Text)
	}
	for _, p := range candidates {
		in.Candidates = append(in.Candidates, composer.NPCCandidate{Name: p.DisplayName(), Persona: p.Description})
	}

	reply, err := s.client.Complete(ctx, profile, composer.FeedComments(in))
	if err != nil {
		return fmt.Errorf("generating comments: %w", err)
	}
	comments := ParseNPCComments(reply)
	if len(comments) == 0 {
		return nil
	}
	return s.store.AddComments(postID, comments)
}

// MaybeAutonomousActivity runs one autonomy draw for a persona: post
// about the recent chat, comment on someone else's post, or stay quiet.
// Failures are logged, never propagated; autonomy must not break chat.
func (s *Service) MaybeAutonomousActivity(ctx context.Context, authorID, chatContext string) {
	persona, err := s.entities.Persona(authorID)
	if err != nil {
		return
	}
	if _, ok := s.entities.ActiveProfile(); !ok {
		return
	}

	r := s.roll()
	switch {
	case r < s.probs.Post:
		if _, err := s.GeneratePost(ctx, authorID, chatContext); err != nil {
			s.log.Warn("autonomous post failed", "author", authorID, "error", err)
		}
	case r < s.probs.Post+s.probs.Comment:
		targets := s.store.OthersPosts(authorID, 3)
		if len(targets) == 0 {
			return
		}
		authorName := s.authorName(targets[0])
		if err := s.GenerateComments(ctx, targets[0].ID, []entity.Persona{persona}, &persona, authorName); err != nil {
			s.log.Warn("autonomous comment failed", "author", authorID, "error", err)
		}
	}
}

// authorName resolves a post's author display name. The user's posts
// fall back to a generic self label when no profile name is set.
func (s *Service) authorName(p Post) string {
	if p.AuthorID == UserAuthorID {
		if up := s.entities.UserProfile(); up.Name != "" {
			return up.Name
		}
		return "我"
	}
	if persona, err := s.entities.Persona(p.AuthorID); err == nil {
		return persona.DisplayName()
	}
	return "角色"
}

// npcComment is the wire shape the model is instructed to emit.
type npcComment struct {
	CommenterName string `json:"commenterName"`
	CommentText   string `json:"commentText"`
	ReplyTo       string `json:"replyTo,omitempty"`
}

var jsonArrayPattern = regexp.MustCompile(`\[[\s\S]*\]`)

// ParseNPCComments extracts comments from a model reply. The reply
// should be a bare JSON array but often arrives wrapped in prose or
// code fences, so the first bracketed span is tried as a fallback.
// Entries missing a name or text are dropped.
func ParseNPCComments(reply string) []Comment {
	var parsed []npcComment
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		m := jsonArrayPattern.FindString(reply)
		if m == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(m), &parsed); err != nil {
			return nil
		}
	}
	var out []Comment
	for _, c := range parsed {
		if c.CommenterName == "" || c.CommentText == "" {
			continue
		}
		out = append(out, Comment{
			CommenterName: c.CommenterName,
			Text:          c.CommentText,
			ReplyTo:       c.ReplyTo,
		})
	}
	return out
}

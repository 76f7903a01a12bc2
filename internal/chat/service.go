// Package chat orchestrates a conversation turn end to end: append the
// user's message, compose the surface's prompt, call the completion
// backend, and dispatch the reply fragments back into the session.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/soullink/internal/backend"
	"github.com/kalambet/soullink/internal/composer"
	"github.com/kalambet/soullink/internal/dispatch"
	"github.com/kalambet/soullink/internal/entity"
	"github.com/kalambet/soullink/internal/feed"
	"github.com/kalambet/soullink/internal/pet"
	"github.com/kalambet/soullink/internal/session"
)

// ErrEmptyMessage rejects a send with no content.
var ErrEmptyMessage = errors.New("message is empty")

// Inline system notices mirrored into the history when a turn cannot
// reach the model.
const (
	noticeNoProfile     = "未检测到任何 API 配置，请先在 Console 中创建并选择一个配置。"
	noticeIncompleteCfg = "当前配置缺少 API 地址或密钥，请在 Console 中补全后重试。"
)

// Completer is the slice of the backend client the orchestrator needs.
type Completer interface {
	Complete(ctx context.Context, profile entity.ConnectionProfile, msgs []composer.ChatMessage) (string, error)
	ListModels(ctx context.Context, profile entity.ConnectionProfile) ([]backend.Model, error)
}

// Options are the dispatch tunables, normally taken from config.
type Options struct {
	GeneralWeights     dispatch.KindWeights
	AttachmentWeights  dispatch.KindWeights
	DurationFactor     int
	TransferAcceptProb float64
	TransferDelay      time.Duration
	AutonomyDelay      time.Duration
}

// Service is the conversation orchestrator.
type Service struct {
	entities *entity.Store
	sessions *session.Store
	pets     *pet.Keeper
	feed     *feed.Service
	client   Completer
	sched    *dispatch.Scheduler
	opts     Options
	log      *slog.Logger
	roll     dispatch.Roll

	offline offlineState
}

// NewService wires the orchestrator. feedSvc may be nil (no autonomy);
// roll may be nil to use the default random source.
func NewService(entities *entity.Store, sessions *session.Store, pets *pet.Keeper, feedSvc *feed.Service, client Completer, sched *dispatch.Scheduler, opts Options, log *slog.Logger, roll dispatch.Roll) *Service {
	if roll == nil {
		roll = dispatch.DefaultRoll
	}
	return &Service{
		entities: entities,
		sessions: sessions,
		pets:     pets,
		feed:     feedSvc,
		client:   client,
		sched:    sched,
		opts:     opts,
		log:      log,
		roll:     roll,
	}
}

// Send runs one user turn. The user message is appended first and
// returned regardless of what happens to the model call: backend
// problems surface as inline system notices, not errors.
func (s *Service) Send(ctx context.Context, sf session.Surface, text string, reply *session.ReplyRef) (session.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return session.Message{}, ErrEmptyMessage
	}

	if cmd, handled := s.runCommand(sf, text); handled {
		return cmd, nil
	}

	if sf.Kind == session.SurfaceQuick {
		return s.sendQuick(ctx, sf, text)
	}

	userMsg := session.Message{Sender: session.SenderUser, Kind: session.KindText, Text: text, ReplyTo: reply}
	if sf.Kind == session.SurfaceGroup {
		userMsg.SenderName = "我"
	}
	userMsg = s.sessions.Append(sf, userMsg)

	s.scheduleAutonomy(sf)

	profile, ok := s.checkProfile(sf)
	if !ok {
		return userMsg, nil
	}
	s.backfillModel(ctx, &profile)

	payload := s.composePayload(sf, text, reply)
	replyText, err := s.client.Complete(ctx, profile, payload)
	if err != nil {
		s.appendFailure(sf, err)
		return userMsg, nil
	}

	s.dispatchReply(sf, replyText, s.opts.GeneralWeights, sf.Kind == session.SurfaceGroup)
	return userMsg, nil
}

// sendQuick is the lightweight path: no persona, plain text fragments.
func (s *Service) sendQuick(ctx context.Context, sf session.Surface, text string) (session.Message, error) {
	userMsg := s.sessions.Append(sf, session.Message{Sender: session.SenderUser, Kind: session.KindText, Text: text})

	profile, ok := s.checkProfile(sf)
	if !ok {
		return userMsg, nil
	}
	s.backfillModel(ctx, &profile)

	history := s.sessions.History(sf)
	replyText, err := s.client.Complete(ctx, profile, composer.Quick(history))
	if err != nil {
		s.appendFailure(sf, err)
		return userMsg, nil
	}

	key := sf.String()
	s.sched.Deliver(key, dispatch.Split(replyText), func(f dispatch.Fragment) {
		s.sessions.Append(sf, session.Message{Sender: session.SenderAI, Kind: session.KindText, Text: f.Text})
	})
	return userMsg, nil
}

// checkProfile resolves the active profile, mirroring a system notice
// into the surface when configuration is absent or incomplete.
func (s *Service) checkProfile(sf session.Surface) (entity.ConnectionProfile, bool) {
	profile, ok := s.entities.ActiveProfile()
	if !ok {
		s.appendSystem(sf, noticeNoProfile)
		return entity.ConnectionProfile{}, false
	}
	if strings.TrimSpace(profile.BaseURL) == "" || strings.TrimSpace(profile.APIKey) == "" {
		s.appendSystem(sf, noticeIncompleteCfg)
		return entity.ConnectionProfile{}, false
	}
	return profile, true
}

// backfillModel fills a profile's missing model with the provider's
// first listed one, persisting the choice for later turns.
func (s *Service) backfillModel(ctx context.Context, profile *entity.ConnectionProfile) {
	if profile.Model != "" {
		return
	}
	models, err := s.client.ListModels(ctx, *profile)
	if err != nil || len(models) == 0 {
		return
	}
	profile.Model = models[0].ID
	s.entities.BackfillModel(profile.ID, models[0].ID)
}

// composePayload builds the messages payload for a character or group
// turn, honoring offline mode.
func (s *Service) composePayload(sf session.Surface, text string, reply *session.ReplyRef) []composer.ChatMessage {
	history := s.sessions.History(sf)

	if offline, preset := s.offline.snapshot(); offline {
		in := composer.OfflineInput{Preset: preset, History: history, UserText: text}
		if sf.Kind == session.SurfaceGroup {
			in.Labeled = true
		} else if persona, err := s.entities.Persona(sf.ID); err == nil {
			in.Persona = &persona
			in.WorldPack = s.worldPackFor(persona)
		}
		return composer.Offline(in)
	}

	if sf.Kind == session.SurfaceGroup {
		g, _ := s.sessions.Group(sf.ID)
		return composer.Group(composer.GroupInput{
			GroupName: g.Name,
			Members:   g.Members,
			History:   history,
			Reply:     reply,
			UserText:  text,
		})
	}

	persona, err := s.entities.Persona(sf.ID)
	if err != nil || persona.Description == "" {
		return composer.DefaultFriendly(history, reply, text)
	}
	return composer.Character(composer.CharacterInput{
		Persona:   persona,
		WorldPack: s.worldPackFor(persona),
		History:   history,
		Reply:     reply,
		UserText:  text,
	})
}

func (s *Service) worldPackFor(persona entity.Persona) *entity.WorldKnowledgePack {
	if persona.WorldPackID == "" {
		return nil
	}
	pack, err := s.entities.WorldPack(persona.WorldPackID)
	if err != nil {
		return nil
	}
	return &pack
}

// dispatchReply splits a reply and schedules each fragment. Character
// fragments draw a presentation kind; group fragments stay text but get
// speaker attribution parsed from the「成员名: 内容」prefix.
func (s *Service) dispatchReply(sf session.Surface, replyText string, weights dispatch.KindWeights, group bool) {
	fragments := dispatch.Split(replyText)
	key := sf.String()
	s.sched.Deliver(key, fragments, func(f dispatch.Fragment) {
		if group {
			g, _ := s.sessions.Group(sf.ID)
			name, content := dispatch.ParseGroupReply(f.Text, func() string {
				return dispatch.PickMember(s.roll, g.Members)
			})
			s.sessions.Append(sf, session.Message{Sender: session.SenderAI, SenderName: name, Kind: session.KindText, Text: content})
			return
		}
		s.appendClassified(sf, f.Text, weights, "")
	})
}

// appendClassified draws a kind for an AI fragment and appends it.
func (s *Service) appendClassified(sf session.Surface, text string, weights dispatch.KindWeights, senderName string) {
	out := dispatch.Classify(s.roll, weights, text, s.opts.DurationFactor)
	msg := session.Message{Sender: session.SenderAI, SenderName: senderName, Text: out.Text}
	switch out.Kind {
	case "voice":
		msg.Kind = session.KindVoice
		msg.Duration = out.Duration
	case "image":
		msg.Kind = session.KindImage
	default:
		msg.Kind = session.KindText
	}
	s.sessions.Append(sf, msg)
}

func (s *Service) appendSystem(sf session.Surface, text string) session.Message {
	return s.sessions.Append(sf, session.Message{
		Sender:   session.SenderSystem,
		Kind:     session.KindText,
		Text:     text,
		IsSystem: true,
	})
}

func (s *Service) appendFailure(sf session.Surface, err error) {
	s.appendSystem(sf, "请求模型时出错："+err.Error())
	s.log.Error("completion failed", "surface", sf.String(), "error", err)
}

// scheduleAutonomy queues the persona's feed autonomy draw shortly
// after a character turn, keyed to the surface so teardown cancels it.
func (s *Service) scheduleAutonomy(sf session.Surface) {
	if s.feed == nil || sf.Kind != session.SurfaceCharacter {
		return
	}
	if _, err := s.entities.Persona(sf.ID); err != nil {
		return
	}
	chatContext := s.feedChatContext(sf)
	s.sched.After(sf.String(), s.opts.AutonomyDelay, func() {
		s.feed.MaybeAutonomousActivity(context.Background(), sf.ID, chatContext)
	})
}

// feedChatContext condenses the last turns of a character surface for
// feed post generation.
func (s *Service) feedChatContext(sf session.Surface) string {
	history := s.sessions.History(sf)
	if len(history) > 8 {
		history = history[len(history)-8:]
	}
	var lines []string
	for _, m := range history {
		role := "角色"
		if m.Sender == session.SenderUser {
			role = "用户"
		}
		line := strings.TrimSpace(role + ": " + m.Text)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// OpenCharacterChat seeds a first-time character conversation with the
// persona's opening line.
func (s *Service) OpenCharacterChat(personaID string) []session.Message {
	sf := session.CharacterSurface(personaID)
	history := s.sessions.History(sf)
	if len(history) == 0 {
		if persona, err := s.entities.Persona(personaID); err == nil && persona.OpeningLine != "" {
			s.sessions.Append(sf, session.Message{Sender: session.SenderAI, Kind: session.KindText, Text: persona.OpeningLine})
		}
	}
	return s.sessions.VisibleHistory(sf)
}

// Pat appends the playful head-pat system line.
func (s *Service) Pat(sf session.Surface, targetName string) session.Message {
	return s.appendSystem(sf, "You patted "+targetName+"'s head.")
}

// Teardown cancels every pending delivery for a surface. Called when a
// conversation is closed or deleted mid-reply.
func (s *Service) Teardown(sf session.Surface) {
	s.sched.Cancel(sf.String())
}

// Close cancels all pending deliveries across surfaces.
func (s *Service) Close() {
	s.sched.CancelAll()
}

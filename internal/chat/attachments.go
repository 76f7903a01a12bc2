package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/kalambet/soullink/internal/composer"
	"github.com/kalambet/soullink/internal/dispatch"
	"github.com/kalambet/soullink/internal/entity"
	"github.com/kalambet/soullink/internal/session"
)

var transferAcceptReplies = []string{"收到了~ 谢谢", "OK，已签收", "已收到，谢谢你"}
var transferRejectReplies = []string{"抱歉这次不收款", "暂时不方便收款", "这次先算了哈"}

// ErrNotAttachment rejects SendAttachment calls with a plain-text kind.
var ErrNotAttachment = errors.New("not an attachment kind")

// SendAttachment appends a rich user message. Images, voice clips and
// locations trigger an automatic model reply; transfers instead start
// the unattended-resolution timer.
func (s *Service) SendAttachment(ctx context.Context, sf session.Surface, m session.Message) (session.Message, error) {
	switch m.Kind {
	case session.KindImage, session.KindVoice, session.KindLocation, session.KindTransfer:
	default:
		return session.Message{}, ErrNotAttachment
	}

	m.Sender = session.SenderUser
	if sf.Kind == session.SurfaceGroup {
		m.SenderName = "我"
	}
	if m.Kind == session.KindTransfer {
		m.TransferStatus = session.TransferPending
	}
	m = s.sessions.Append(sf, m)

	if m.Kind == session.KindTransfer {
		s.scheduleTransferResolution(sf, m.ID)
		return m, nil
	}

	s.scheduleAutonomy(sf)
	s.autoReply(ctx, sf, m)
	return m, nil
}

// autoReply answers an attachment through the narrower attachment
// prompt, with the attachment-specific kind weights.
func (s *Service) autoReply(ctx context.Context, sf session.Surface, attachment session.Message) {
	profile, ok := s.entities.ActiveProfile()
	if !ok || strings.TrimSpace(profile.BaseURL) == "" || strings.TrimSpace(profile.APIKey) == "" {
		return
	}
	s.backfillModel(ctx, &profile)

	history := s.sessions.History(sf)
	var payload []composer.ChatMessage
	if sf.Kind == session.SurfaceGroup {
		g, _ := s.sessions.Group(sf.ID)
		payload = composer.GroupAttachment(g.Name, g.Members, history, attachment)
	} else {
		persona, err := s.entities.Persona(sf.ID)
		if err != nil {
			persona = entity.Persona{}
		}
		payload = composer.CharacterAttachment(persona, s.worldPackFor(persona), history, attachment)
	}

	replyText, err := s.client.Complete(ctx, profile, payload)
	if err != nil {
		s.log.Warn("attachment reply failed", "surface", sf.String(), "error", err)
		return
	}
	if strings.TrimSpace(replyText) == "" {
		replyText = "收到。"
	}

	group := sf.Kind == session.SurfaceGroup
	key := sf.String()
	s.sched.Deliver(key, dispatch.Split(replyText), func(f dispatch.Fragment) {
		text := f.Text
		senderName := ""
		if group {
			g, _ := s.sessions.Group(sf.ID)
			senderName, text = dispatch.ParseGroupReply(text, func() string {
				return dispatch.PickMember(s.roll, g.Members)
			})
		}
		s.appendClassified(sf, text, s.opts.AttachmentWeights, senderName)
	})
}

// scheduleTransferResolution resolves a pending transfer after the
// unattended delay: mostly accepted, sometimes declined, each with a
// short acknowledgement in the companion's voice.
func (s *Service) scheduleTransferResolution(sf session.Surface, messageID int64) {
	s.sched.After(sf.String(), s.opts.TransferDelay, func() {
		accept := s.roll() < s.opts.TransferAcceptProb
		if _, err := s.sessions.ResolveTransfer(sf, messageID, accept); err != nil {
			// Already settled by hand; nothing to acknowledge.
			return
		}
		pool := transferAcceptReplies
		if !accept {
			pool = transferRejectReplies
		}
		reply := pool[int(s.roll()*float64(len(pool)))%len(pool)]
		s.sessions.Append(sf, session.Message{Sender: session.SenderAI, Kind: session.KindText, Text: reply})
	})
}

// ResolveTransfer settles a pending transfer by hand and appends the
// companion's acknowledgement.
func (s *Service) ResolveTransfer(sf session.Surface, messageID int64, accept bool) (session.Message, error) {
	resolved, err := s.sessions.ResolveTransfer(sf, messageID, accept)
	if err != nil {
		return session.Message{}, err
	}
	ack := "已收款~ 谢谢"
	if !accept {
		ack = "这次不收哦"
	}
	s.sessions.Append(sf, session.Message{Sender: session.SenderAI, Kind: session.KindText, Text: ack})
	return resolved, nil
}

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kalambet/soullink/internal/composer"
	"github.com/kalambet/soullink/internal/session"
)

// ErrNoPresets rejects offline activation without any preset selected.
var ErrNoPresets = errors.New("no presets selected")

// offlineState holds the offline-mode toggle and the flattened preset
// text shared by every subsequent turn.
type offlineState struct {
	mu     sync.Mutex
	active bool
	preset string
}

func (o *offlineState) snapshot() (bool, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active, o.preset
}

// ActivateOffline flattens the selected presets, switches every
// subsequent turn to narrative mode, and opens with an unprompted
// scene on the given surface. The opening generation is best effort:
// the mode activates even when the model call fails.
func (s *Service) ActivateOffline(ctx context.Context, presetIDs []string, sf session.Surface) error {
	var parts []string
	for _, id := range presetIDs {
		p, err := s.entities.Preset(id)
		if err != nil {
			continue
		}
		if content := p.FlattenedContent(); content != "" {
			parts = append(parts, content)
		}
	}
	if len(parts) == 0 {
		return ErrNoPresets
	}
	preset := strings.Join(parts, "\n\n")

	s.offline.mu.Lock()
	s.offline.active = true
	s.offline.preset = preset
	s.offline.mu.Unlock()

	s.appendSystem(sf, "[线下模式已激活] 预设场景已加载")
	s.openingNarrative(ctx, sf, preset)
	return nil
}

// DeactivateOffline returns the surface to ordinary chat.
func (s *Service) DeactivateOffline() {
	s.offline.mu.Lock()
	s.offline.active = false
	s.offline.preset = ""
	s.offline.mu.Unlock()
}

// OfflineActive reports whether offline mode is on.
func (s *Service) OfflineActive() bool {
	active, _ := s.offline.snapshot()
	return active
}

// openingNarrative generates the scene-setting first narrative after
// activation. Failures are logged only.
func (s *Service) openingNarrative(ctx context.Context, sf session.Surface, preset string) {
	profile, ok := s.entities.ActiveProfile()
	if !ok || strings.TrimSpace(profile.BaseURL) == "" || strings.TrimSpace(profile.APIKey) == "" {
		return
	}
	s.backfillModel(ctx, &profile)

	in := composer.OfflineInput{
		Preset:     preset,
		History:    s.sessions.History(sf),
		Activation: true,
	}
	if sf.Kind == session.SurfaceCharacter {
		if persona, err := s.entities.Persona(sf.ID); err == nil {
			in.Persona = &persona
			in.WorldPack = s.worldPackFor(persona)
		}
	}

	reply, err := s.client.Complete(ctx, profile, composer.Offline(in))
	if err != nil {
		s.log.Warn("offline narrative failed", "surface", sf.String(), "error", err)
		return
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = "..."
	}
	s.sessions.Append(sf, session.Message{Sender: session.SenderAI, Kind: session.KindText, Text: reply})
}

// Package dispatch turns a raw model reply into the messages that
// actually land in a conversation: fragment splitting, presentation
// kind classification, group speaker attribution, and staggered
// delivery.
package dispatch

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

// FragmentSeparator splits one reply into several consecutive messages.
const FragmentSeparator = "---"

// Fragment is one piece of a split reply. Index is the position in the
// original split, empty pieces included, so delivery stagger follows
// the model's own pacing.
type Fragment struct {
	Index int
	Text  string
}

// Split breaks a reply on the fragment separator, dropping blank pieces
// but keeping original indexes. A reply without the separator comes
// back as a single fragment at index 0.
func Split(reply string) []Fragment {
	if !strings.Contains(reply, FragmentSeparator) {
		trimmed := strings.TrimSpace(reply)
		if trimmed == "" {
			return nil
		}
		return []Fragment{{Index: 0, Text: trimmed}}
	}
	var out []Fragment
	for i, part := range strings.Split(reply, FragmentSeparator) {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, Fragment{Index: i, Text: trimmed})
	}
	return out
}

// KindWeights are the probability cuts for rendering a reply fragment
// as voice or image instead of plain text. Voice wins below Voice,
// image between Voice and Voice+Image.
type KindWeights struct {
	Voice float64
	Image float64
}

// Outcome is a classified fragment ready for appending.
type Outcome struct {
	Kind     string // "text", "voice" or "image"
	Text     string
	Duration string // voice only, "0:NN"
}

// Roll produces a pseudo-random value in [0,1). Injectable for tests.
type Roll func() float64

// DefaultRoll uses the shared math/rand/v2 source.
func DefaultRoll() float64 { return rand.Float64() }

// Classify draws one roll and decides how a fragment presents. Voice
// fragments get a synthesized duration derived from text length.
func Classify(roll Roll, w KindWeights, text string, durationFactor int) Outcome {
	r := roll()
	switch {
	case r < w.Voice:
		return Outcome{Kind: "voice", Text: text, Duration: VoiceDuration(text, durationFactor)}
	case r < w.Voice+w.Image:
		return Outcome{Kind: "image", Text: text}
	default:
		return Outcome{Kind: "text", Text: text}
	}
}

// VoiceDuration synthesizes a plausible clip length from text length:
// one second per durationFactor characters, clamped to [1,60].
func VoiceDuration(text string, durationFactor int) string {
	if durationFactor <= 0 {
		durationFactor = 3
	}
	secs := len([]rune(text)) / durationFactor
	if secs < 1 {
		secs = 1
	}
	if secs > 60 {
		secs = 60
	}
	return fmt.Sprintf("0:%02d", secs)
}

// groupReplyPattern matches「成员名: 内容」with either colon form. The
// name is capped at 12 characters so ordinary prose with a late colon
// is not mistaken for attribution.
var groupReplyPattern = regexp.MustCompile(`^\s*([^:：]{1,12})[:：]\s*([\s\S]+)$`)

// ParseGroupReply extracts the speaking member from a group reply. When
// the model skipped the prefix, pick supplies a fallback member name.
func ParseGroupReply(raw string, pick func() string) (senderName, content string) {
	if m := groupReplyPattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return pick(), strings.TrimSpace(raw)
}

// PickMember chooses a random member name, or a placeholder when the
// group has none.
func PickMember(roll Roll, members []string) string {
	if len(members) == 0 {
		return "成员"
	}
	return members[int(roll()*float64(len(members)))%len(members)]
}

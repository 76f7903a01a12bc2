package entity

// ConnectionProfile configures one completion backend. At most one
// profile is active at a time. Temperature is a pointer so an explicit
// 0 is distinguishable from "not set" (which falls back to the client
// default).
type ConnectionProfile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	BaseURL     string   `json:"baseUrl"`
	APIKey      string   `json:"apiKey"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	Active      bool     `json:"active"`
}

// Fact is one free-form key/value pair attached to a persona.
type Fact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Persona is a defined AI character. The ID is immutable; everything
// else is editable through the draft workflow. Personas are owned by
// the Store and always handed out as copies.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Nickname    string `json:"nickname"`
	Description string `json:"description"`
	OpeningLine string `json:"openingLine"`
	Tags        []string `json:"tags"`
	Facts       []Fact   `json:"facts"`
	WorldPackID string   `json:"worldPackId"`
}

// DisplayName prefers the nickname over the internal name.
func (p Persona) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	if p.Name != "" {
		return p.Name
	}
	return "角色"
}

// Entry is one keyed fact inside a world-knowledge pack.
type Entry struct {
	Key      string   `json:"key"`
	Keywords []string `json:"keywords"`
	Body     string   `json:"body"`
}

// WorldKnowledgePack is an ordered set of entries injected into a
// linked persona's prompt context.
type WorldKnowledgePack struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Entries     []Entry `json:"entries"`
}

// Segment is one toggleable block of a prompt preset.
type Segment struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Enabled bool   `json:"enabled"`
}

// PromptPreset drives the offline/narrative composer mode. Content is
// the flattened cache used when a preset has no segments.
type PromptPreset struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Segments []Segment `json:"segments"`
	Content  string    `json:"content"`
}

// FlattenedContent joins the enabled segment bodies, falling back to
// the cached content for segment-less presets.
func (p PromptPreset) FlattenedContent() string {
	if len(p.Segments) == 0 {
		return p.Content
	}
	var parts []string
	for _, s := range p.Segments {
		if s.Enabled && s.Content != "" {
			parts = append(parts, s.Content)
		}
	}
	return joinBlocks(parts)
}

func joinBlocks(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

// Package cardimport decodes portable character cards: the tavern-style
// JSON document, either raw or embedded in a PNG avatar's tEXt chunk,
// and turns them into personas and world-knowledge packs.
package cardimport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kalambet/soullink/internal/entity"
)

// Card is the decoded character card. Fields follow the card formats in
// the wild; most are optional.
type Card struct {
	Name         string     `json:"name"`
	Summary      string     `json:"summary"`
	Description  string     `json:"description"`
	Personality  string     `json:"personality"`
	Scenario     string     `json:"scenario"`
	MesExample   string     `json:"mes_example"`
	FirstMes     string     `json:"first_mes"`
	FirstMessage string     `json:"first_message"`
	Tags         TagList    `json:"tags"`
	Book         *Book      `json:"character_book"`
	WorldEntries []BookItem `json:"world_entries"`
	WorldInfo    string     `json:"world_info"`
	World        string     `json:"world"`
}

// Book is the embedded lorebook.
type Book struct {
	Entries []BookItem `json:"entries"`
}

// BookItem is one lorebook entry. Exporters disagree on field names, so
// several aliases are accepted.
type BookItem struct {
	Keys     []string `json:"keys"`
	Comment  string   `json:"comment"`
	Key      string   `json:"key"`
	Keyword  string   `json:"keyword"`
	Keywords string   `json:"keywords"`
	Content  string   `json:"content"`
	Enabled  *bool    `json:"enabled"`
}

// TagList accepts either a JSON array of tags or a comma-separated
// string.
type TagList []string

func (t *TagList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*t = normalizeTags(arr)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = normalizeTags(strings.Split(s, ","))
	return nil
}

func normalizeTags(in []string) []string {
	var out []string
	for _, tag := range in {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// Decode parses card bytes: a PNG avatar with an embedded payload, or a
// bare JSON document (optionally wrapped in a {"data": ...} envelope).
func Decode(data []byte) (Card, error) {
	if IsPNG(data) {
		payload, err := extractPNGPayload(data)
		if err != nil {
			return Card{}, err
		}
		data = payload
	}
	return decodeJSON(data)
}

// envelope is the v2-card wrapper some exporters emit.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func decodeJSON(data []byte) (Card, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && len(env.Data) > 0 && env.Data[0] == '{' {
		data = env.Data
	}
	var c Card
	if err := json.Unmarshal(data, &c); err != nil {
		return Card{}, fmt.Errorf("parsing character card: %w", err)
	}
	return c, nil
}

// Materialize turns the card into a persona and, when the card carries
// world data, a world-knowledge pack already linked to the persona.
func Materialize(c Card) (entity.Persona, *entity.WorldKnowledgePack) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "未命名角色"
	}

	var parts []string
	for _, p := range []string{c.Description, c.Personality, c.Scenario, c.MesExample} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	opening := strings.TrimSpace(c.FirstMes)
	if opening == "" {
		opening = strings.TrimSpace(c.FirstMessage)
	}

	tags := []string(c.Tags)
	if len(tags) == 0 {
		tags = []string{"导入"}
	}

	persona := entity.Persona{
		ID:          uuid.NewString(),
		Name:        name,
		Nickname:    name,
		Description: strings.Join(parts, "\n"),
		OpeningLine: opening,
		Tags:        tags,
	}

	pack := worldPack(c, name)
	if pack != nil {
		persona.WorldPackID = pack.ID
	}
	return persona, pack
}

// worldPack builds the pack from whichever world source the card has,
// in priority order: embedded lorebook, flat entry list, free text.
func worldPack(c Card, name string) *entity.WorldKnowledgePack {
	switch {
	case c.Book != nil && len(c.Book.Entries) > 0:
		return packFromEntries(c.Book.Entries, name)
	case len(c.WorldEntries) > 0:
		return packFromEntries(c.WorldEntries, name)
	case strings.TrimSpace(c.World) != "":
		return packFromText(c.World, name)
	case strings.TrimSpace(c.WorldInfo) != "":
		return packFromText(c.WorldInfo, name)
	}
	return nil
}

func packFromEntries(items []BookItem, name string) *entity.WorldKnowledgePack {
	var entries []entity.Entry
	for _, item := range items {
		if item.Enabled != nil && !*item.Enabled {
			continue
		}
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		joined := strings.Join(normalizeTags(item.Keys), ", ")
		key := firstNonEmpty(item.Comment, joined, item.Key, item.Keyword)
		if key == "" {
			key = "未命名条目"
		}
		keywords := firstNonEmpty(joined, item.Keywords, item.Key, item.Keyword)
		entries = append(entries, entity.Entry{
			Key:      key,
			Keywords: normalizeTags(strings.Split(keywords, ",")),
			Body:     item.Content,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	return &entity.WorldKnowledgePack{
		ID:          uuid.NewString(),
		Name:        name + " 世界书",
		Description: "导入自角色卡",
		Entries:     entries,
	}
}

func packFromText(text, name string) *entity.WorldKnowledgePack {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &entity.WorldKnowledgePack{
		ID:          uuid.NewString(),
		Name:        name + " 世界书",
		Description: "导入自角色卡",
		Entries: []entity.Entry{{
			Key:  name + " 世界设定",
			Body: text,
		}},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

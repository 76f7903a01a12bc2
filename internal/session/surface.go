package session

import "time"

// SurfaceKind distinguishes the three conversation contexts.
type SurfaceKind string

const (
	SurfaceCharacter SurfaceKind = "character"
	SurfaceGroup     SurfaceKind = "group"
	SurfaceQuick     SurfaceKind = "quick"
)

// Surface addresses one conversation context and its history.
type Surface struct {
	Kind SurfaceKind
	ID   string
}

func CharacterSurface(personaID string) Surface {
	return Surface{Kind: SurfaceCharacter, ID: personaID}
}

func GroupSurface(groupID string) Surface {
	return Surface{Kind: SurfaceGroup, ID: groupID}
}

func QuickSurface(chatID string) Surface {
	return Surface{Kind: SurfaceQuick, ID: chatID}
}

func (s Surface) String() string {
	return string(s.Kind) + ":" + s.ID
}

// Group is a multi-member chat. Members are free-text display names,
// not persona ids. LastMessage/LastTime are denormalized for listing.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar,omitempty"`
	Members     []string  `json:"members"`
	History     []Message `json:"history"`
	LastMessage string    `json:"lastMessage,omitempty"`
	LastTime    time.Time `json:"lastTime,omitempty"`
}

// QuickChat is a lightweight secondary chat surface with its own history.
type QuickChat struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	History     []Message `json:"history"`
	LastMessage string    `json:"lastMessage,omitempty"`
	LastTime    time.Time `json:"lastTime,omitempty"`
}

// StarredMessage is one entry of the cross-surface starred listing.
type StarredMessage struct {
	Surface     Surface
	SurfaceName string
	MessageID   int64
	Text        string
	Timestamp   time.Time
}

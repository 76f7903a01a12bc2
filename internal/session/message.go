package session

import "time"

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAI     Sender = "ai"
	SenderSystem Sender = "system"
)

// Kind is the message payload type.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVoice    Kind = "voice"
	KindTransfer Kind = "transfer"
	KindLocation Kind = "location"
	KindPet      Kind = "pet"
)

// TransferStatus is the lifecycle state of a transfer message.
type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferAccepted TransferStatus = "accepted"
	TransferRejected TransferStatus = "rejected"
)

// ReplyRef is the snapshot captured when a message is quoted. It is a
// value, not a live reference: recalling or deleting the quoted message
// later does not touch the snapshot.
type ReplyRef struct {
	ID         int64  `json:"id"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
}

// RecalledPayload preserves a recalled message's original payload for
// audit. It is never rendered and never re-surfaced into prompts.
type RecalledPayload struct {
	Kind         Kind     `json:"kind"`
	Text         string   `json:"text,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Amount       float64  `json:"amount,omitempty"`
	Note         string   `json:"note,omitempty"`
	Duration     string   `json:"duration,omitempty"`
	UserLocation string   `json:"userLocation,omitempty"`
	AILocation   string   `json:"aiLocation,omitempty"`
	Distance     string   `json:"distance,omitempty"`
	Waypoints    []string `json:"waypoints,omitempty"`
}

// Message is one entry in a surface's history. IDs are time-derived,
// unique within a surface, and strictly increasing in insertion order.
type Message struct {
	ID         int64  `json:"id"`
	Sender     Sender `json:"sender"`
	SenderName string `json:"senderName,omitempty"`
	Kind       Kind   `json:"kind"`

	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`

	Amount         float64        `json:"amount,omitempty"`
	Note           string         `json:"note,omitempty"`
	TransferStatus TransferStatus `json:"transferStatus,omitempty"`

	Duration string `json:"duration,omitempty"`

	UserLocation string   `json:"userLocation,omitempty"`
	AILocation   string   `json:"aiLocation,omitempty"`
	Distance     string   `json:"distance,omitempty"`
	Waypoints    []string `json:"waypoints,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	IsSystem   bool `json:"isSystem,omitempty"`
	IsHidden   bool `json:"isHidden,omitempty"`
	IsStarred  bool `json:"isStarred,omitempty"`
	IsRecalled bool `json:"isRecalled,omitempty"`

	ReplyTo  *ReplyRef        `json:"replyTo,omitempty"`
	Recalled *RecalledPayload `json:"recalled,omitempty"`
}

func cloneMessage(m Message) Message {
	cp := m
	if m.Waypoints != nil {
		cp.Waypoints = append([]string(nil), m.Waypoints...)
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		cp.ReplyTo = &r
	}
	if m.Recalled != nil {
		r := *m.Recalled
		if m.Recalled.Waypoints != nil {
			r.Waypoints = append([]string(nil), m.Recalled.Waypoints...)
		}
		cp.Recalled = &r
	}
	return cp
}

func cloneHistory(in []Message) []Message {
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = cloneMessage(m)
	}
	return out
}

// Package pet keeps the desk pet's state. Stats decay continuously but
// are integrated lazily: nothing updates while idle, and any read or
// interaction first folds in the elapsed time since the last tick.
package pet

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Per-minute decay rates.
const (
	hungerPerMinute = 1.5
	energyPerMinute = 1.2
	moodPerMinute   = 0.8
)

// Action is a pet interaction.
type Action string

const (
	ActionFeed Action = "feed"
	ActionPlay Action = "play"
	ActionRest Action = "rest"
)

// State is the pet snapshot. Stats live in [0,100].
type State struct {
	Name     string    `json:"name"`
	Emoji    string    `json:"emoji"`
	Energy   float64   `json:"energy"`
	Hunger   float64   `json:"hunger"`
	Mood     float64   `json:"mood"`
	LastTick time.Time `json:"lastTick"`
}

// MoodLabel buckets the mood stat for display.
func (s State) MoodLabel() string {
	switch {
	case s.Mood >= 70:
		return "HAPPY"
	case s.Mood >= 40:
		return "NEUTRAL"
	default:
		return "LOW"
	}
}

// StatusLine renders the one-line status used by the /pet command.
func (s State) StatusLine() string {
	return fmt.Sprintf("宠物状态：%s %s | 能量 %d | 饥饿 %d | 心情 %d (%s)",
		s.Name, s.Emoji,
		int(math.Round(s.Energy)), int(math.Round(s.Hunger)), int(math.Round(s.Mood)),
		s.MoodLabel())
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// PersistFunc flushes the pet record; see entity.PersistFunc.
type PersistFunc func(key string, value any)

// RecordKey names the persisted pet record.
const RecordKey = "pet_state"

// Keeper owns the pet state behind a mutex.
type Keeper struct {
	mu      sync.Mutex
	state   State
	clock   Clock
	persist PersistFunc
}

// NewKeeper creates a Keeper with the default newborn pet.
func NewKeeper(persist PersistFunc) *Keeper {
	return NewKeeperWithClock(persist, realClock{})
}

// NewKeeperWithClock creates a Keeper with a custom clock (for testing).
func NewKeeperWithClock(persist PersistFunc, clock Clock) *Keeper {
	if persist == nil {
		persist = func(string, any) {}
	}
	return &Keeper{
		state: State{
			Name:     "PIXEL PET",
			Emoji:    "🐾",
			Energy:   80,
			Hunger:   20,
			Mood:     70,
			LastTick: clock.Now(),
		},
		clock:   clock,
		persist: persist,
	}
}

// Hydrate replaces the state with persisted data without flushing.
func (k *Keeper) Hydrate(s State) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s.LastTick.IsZero() {
		s.LastTick = k.clock.Now()
	}
	k.state = s
}

// Snapshot integrates elapsed decay and returns the current state.
func (k *Keeper) Snapshot() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tickLocked()
	return k.state
}

// Tick integrates elapsed decay. The autonomy loop calls this so the
// persisted state stays roughly current even without interactions.
func (k *Keeper) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.tickLocked() {
		k.persist(RecordKey, k.state)
	}
}

// tickLocked folds elapsed time into the stats. Returns whether any
// time passed. Integrating from LastTick makes the result independent
// of how often it runs: two quick ticks and one long one land on the
// same stats.
func (k *Keeper) tickLocked() bool {
	now := k.clock.Now()
	elapsed := now.Sub(k.state.LastTick).Minutes()
	if elapsed <= 0 {
		return false
	}
	k.state.Hunger = clamp(k.state.Hunger + elapsed*hungerPerMinute)
	k.state.Energy = clamp(k.state.Energy - elapsed*energyPerMinute)
	k.state.Mood = clamp(k.state.Mood - elapsed*moodPerMinute)
	k.state.LastTick = now
	return true
}

// Interact applies one action on top of freshly-integrated decay and
// returns the new state plus the pet's reaction line.
func (k *Keeper) Interact(action Action) (State, string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tickLocked()

	var reaction string
	switch action {
	case ActionFeed:
		k.state.Hunger = clamp(k.state.Hunger - 30)
		k.state.Mood = clamp(k.state.Mood + 10)
		reaction = "咔嚓咔嚓...能量补充完毕。"
	case ActionPlay:
		k.state.Energy = clamp(k.state.Energy - 15)
		k.state.Mood = clamp(k.state.Mood + 20)
		k.state.Hunger = clamp(k.state.Hunger + 5)
		reaction = "喵呜！再来一局！"
	case ActionRest:
		k.state.Energy = clamp(k.state.Energy + 25)
		k.state.Mood = clamp(k.state.Mood + 5)
		reaction = "Zzz...系统待机。"
	}
	k.persist(RecordKey, k.state)
	return k.state, reaction
}

// Rename changes the pet's display name.
func (k *Keeper) Rename(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.Name = name
	k.persist(RecordKey, k.state)
}

// SetEmoji changes the pet's emoji.
func (k *Keeper) SetEmoji(emoji string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.Emoji = emoji
	k.persist(RecordKey, k.state)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

package pet

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestKeeper(t *testing.T) (*Keeper, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	return NewKeeperWithClock(nil, clock), clock
}

func TestTick_DecayPerMinute(t *testing.T) {
	k, clock := newTestKeeper(t)
	clock.now = clock.now.Add(10 * time.Minute)

	s := k.Snapshot()
	if math.Abs(s.Hunger-35) > 1e-9 { // 20 + 10*1.5
		t.Errorf("hunger = %v, want 35", s.Hunger)
	}
	if math.Abs(s.Energy-68) > 1e-9 { // 80 - 10*1.2
		t.Errorf("energy = %v, want 68", s.Energy)
	}
	if math.Abs(s.Mood-62) > 1e-9 { // 70 - 10*0.8
		t.Errorf("mood = %v, want 62", s.Mood)
	}
}

func TestTick_SplitEqualsSingleIntegration(t *testing.T) {
	a, clockA := newTestKeeper(t)
	b, clockB := newTestKeeper(t)

	// One 30-minute integration versus three 10-minute ones.
	clockA.now = clockA.now.Add(30 * time.Minute)
	a.Tick()
	for range 3 {
		clockB.now = clockB.now.Add(10 * time.Minute)
		b.Tick()
	}

	sa, sb := a.Snapshot(), b.Snapshot()
	if math.Abs(sa.Hunger-sb.Hunger) > 1e-9 || math.Abs(sa.Energy-sb.Energy) > 1e-9 || math.Abs(sa.Mood-sb.Mood) > 1e-9 {
		t.Errorf("split integration diverged: %+v vs %+v", sa, sb)
	}
}

func TestTick_ClampsAtBounds(t *testing.T) {
	k, clock := newTestKeeper(t)
	clock.now = clock.now.Add(24 * time.Hour)

	s := k.Snapshot()
	if s.Hunger != 100 || s.Energy != 0 || s.Mood != 0 {
		t.Errorf("state after a day = %+v", s)
	}
	if s.MoodLabel() != "LOW" {
		t.Errorf("mood label = %q", s.MoodLabel())
	}
}

func TestTick_NoElapsedTimeIsNoop(t *testing.T) {
	k, _ := newTestKeeper(t)
	before := k.Snapshot()
	after := k.Snapshot()
	if before != after {
		t.Errorf("state changed without time passing: %+v vs %+v", before, after)
	}
}

func TestInteract_Feed(t *testing.T) {
	k, _ := newTestKeeper(t)
	s, reaction := k.Interact(ActionFeed)
	if s.Hunger != 0 { // 20-30 clamped
		t.Errorf("hunger = %v", s.Hunger)
	}
	if s.Mood != 80 {
		t.Errorf("mood = %v", s.Mood)
	}
	if reaction != "咔嚓咔嚓...能量补充完毕。" {
		t.Errorf("reaction = %q", reaction)
	}
}

func TestInteract_PlayAndRest(t *testing.T) {
	k, _ := newTestKeeper(t)

	s, _ := k.Interact(ActionPlay)
	if s.Energy != 65 || s.Mood != 90 || s.Hunger != 25 {
		t.Errorf("after play = %+v", s)
	}

	s, reaction := k.Interact(ActionRest)
	if s.Energy != 90 || s.Mood != 95 {
		t.Errorf("after rest = %+v", s)
	}
	if reaction != "Zzz...系统待机。" {
		t.Errorf("reaction = %q", reaction)
	}
}

func TestInteract_AppliesPendingDecayFirst(t *testing.T) {
	k, clock := newTestKeeper(t)
	clock.now = clock.now.Add(10 * time.Minute)

	s, _ := k.Interact(ActionFeed)
	if math.Abs(s.Hunger-5) > 1e-9 { // (20+15) - 30
		t.Errorf("hunger = %v, want 5", s.Hunger)
	}
}

func TestPersist_OnInteractionAndEffectiveTick(t *testing.T) {
	flushes := 0
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	k := NewKeeperWithClock(func(key string, _ any) {
		if key != RecordKey {
			t.Errorf("key = %q", key)
		}
		flushes++
	}, clock)

	k.Tick() // no elapsed time, no flush
	if flushes != 0 {
		t.Errorf("flushes after idle tick = %d", flushes)
	}
	clock.now = clock.now.Add(time.Minute)
	k.Tick()
	k.Interact(ActionRest)
	if flushes != 2 {
		t.Errorf("flushes = %d, want 2", flushes)
	}
}

func TestStatusLine(t *testing.T) {
	k, _ := newTestKeeper(t)
	want := "宠物状态：PIXEL PET 🐾 | 能量 80 | 饥饿 20 | 心情 70 (HAPPY)"
	if got := k.Snapshot().StatusLine(); got != want {
		t.Errorf("status = %q", got)
	}
}

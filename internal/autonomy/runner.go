// Package autonomy runs the background life of the companion app: the
// pet's stats decay on the clock, and from time to time a persona posts
// or comments on the feed without being asked.
package autonomy

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/soullink/internal/dispatch"
	"github.com/kalambet/soullink/internal/entity"
)

// PetTicker integrates elapsed decay into the pet's stats.
type PetTicker interface {
	Tick()
}

// FeedActor rolls for and performs a persona's spontaneous feed
// activity. It never returns an error; failures are its own problem.
type FeedActor interface {
	MaybeAutonomousActivity(ctx context.Context, authorID, chatContext string)
}

// PersonaLister provides the pool of personas eligible for autonomous
// feed activity.
type PersonaLister interface {
	Personas() []entity.Persona
}

// Runner drives the periodic autonomy pass.
type Runner struct {
	pets     PetTicker
	feed     FeedActor
	personas PersonaLister
	roll     dispatch.Roll
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a Runner. feed and personas may be nil (pet decay
// only). If interval is <= 0, it defaults to one minute.
func NewRunner(pets PetTicker, feed FeedActor, personas PersonaLister, roll dispatch.Roll, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	if roll == nil {
		roll = dispatch.DefaultRoll
	}
	return &Runner{
		pets:     pets,
		feed:     feed,
		personas: personas,
		roll:     roll,
		interval: interval,
		logger:   slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (r *Runner) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Run ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single autonomy pass: integrate pet decay, then
// give one randomly chosen persona its feed activity draw. The pass
// never fails; anything that goes wrong downstream is logged there.
func (r *Runner) RunOnce(ctx context.Context) {
	if r.pets != nil {
		r.pets.Tick()
	}
	if r.feed == nil || r.personas == nil {
		return
	}
	pool := r.personas.Personas()
	if len(pool) == 0 {
		return
	}
	p := pool[int(r.roll()*float64(len(pool)))%len(pool)]
	r.feed.MaybeAutonomousActivity(ctx, p.ID, "")
}

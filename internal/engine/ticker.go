package engine

import (
	"context"
	"time"
)

// tickInterval is the progress broadcast cadence
const tickInterval = time.Second

// ensureTicker starts the 1 Hz progress ticker for a guild if it is not
// already running. Runs inside the actor.
func (e *Engine) ensureTicker(g *guildState) {
	if g.tickerCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.tickerCancel = cancel
	guildID := g.guildID

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.submitAsync(guildID, func(g *guildState) {
					e.tick(g)
				})
			}
		}
	}()
}

// tick emits one progress delta, or shuts the ticker down once the voice
// session is idle and nothing is current. Runs inside the actor.
func (e *Engine) tick(g *guildState) {
	session := e.sessionFor(g)
	active := session.IsPlaying() || session.IsPaused()

	if !active && e.store.NowPlaying(g.guildID) == nil {
		e.cancelTicker(g)
		return
	}
	if !active {
		return
	}

	if e.emitter != nil {
		e.metrics.BroadcastSent()
		e.emitter.BroadcastPlaylistUpdate(g.guildID, e.progress(g))
	}
}

// cancelTicker stops the guild's progress ticker. Runs inside the actor.
func (e *Engine) cancelTicker(g *guildState) {
	if g.tickerCancel != nil {
		g.tickerCancel()
		g.tickerCancel = nil
	}
}

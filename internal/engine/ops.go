package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	errs "github.com/paul-berdier/greg-voice/internal/errors"
	"github.com/paul-berdier/greg-voice/internal/priority"
	"github.com/paul-berdier/greg-voice/internal/voice"
)

// EnqueueResult is the engine's answer to an enqueue or play request
type EnqueueResult struct {
	Track      *entities.Track `json:"track"`
	InsertedAt int             `json:"inserted_at"`
	Autoplay   *AutoplayResult `json:"autoplay,omitempty"`
}

// AutoplayResult reports the best-effort autoplay attempt made when a
// request lands on an idle guild. Failures live here, never in the
// enqueue error.
type AutoplayResult struct {
	Attempted bool   `json:"attempted"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
}

// Enqueue normalizes the item, enforces the per-user cap, computes the
// requester's priority and inserts into the guild queue. When the guild
// was fully idle and the requester sits in a voice channel, playback is
// started best-effort and reported in the result's Autoplay field.
func (e *Engine) Enqueue(ctx context.Context, guildID, userID string, item *entities.Track) (*EnqueueResult, error) {
	var res *EnqueueResult
	err := e.submit(ctx, guildID, "enqueue", func(g *guildState) error {
		wasIdle := e.store.Len(guildID) == 0 && e.store.NowPlaying(guildID) == nil && !g.isPlaying

		out, err := e.enqueueInGuild(g, userID, item)
		if err != nil {
			return err
		}
		res = out

		if wasIdle {
			res.Autoplay = e.autoplay(g, userID)
		}
		return nil
	})
	return res, err
}

// enqueueInGuild is the actor-side enqueue shared with PlayForUser.
// Emits the full state on success.
func (e *Engine) enqueueInGuild(g *guildState, userID string, item *entities.Track) (*EnqueueResult, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: empty item", errs.ErrBadArgument)
	}
	track := item.Clone()
	if track.ID == "" {
		track = entities.NewTrack(track.URL, track.Title, userID)
		track.Artist = item.Artist
		track.Thumbnail = item.Thumbnail
		track.DurationS = item.DurationS
		track.Provider = item.Provider
	}
	track.RequestedBy = userID

	e.normalizer.Normalize(context.Background(), track)
	if !track.HasSource() {
		return nil, fmt.Errorf("%w: item has neither url nor title", errs.ErrEnqueueFailed)
	}

	if !e.resolver.BypassQuota(g.guildID, userID) {
		count := 0
		for _, t := range e.store.PeekAll(g.guildID) {
			if t.RequestedBy == userID {
				count++
			}
		}
		if count >= e.cfg.PerUserCap {
			return nil, fmt.Errorf("%w: cap %d", errs.ErrQuotaExceeded, e.cfg.PerUserCap)
		}
	}

	track.Priority = e.resolver.Weight(g.guildID, userID)
	idx := e.store.Add(g.guildID, track)

	e.logger.WithFields(map[string]interface{}{
		"guild":    g.guildID,
		"track":    track.DisplayName(),
		"priority": track.Priority,
		"index":    idx,
	}).Info("Track enqueued")

	e.emitState(g)
	return &EnqueueResult{Track: track, InsertedAt: idx}, nil
}

// autoplay joins the requester's voice channel and starts playback.
// Best-effort: every failure is folded into the returned reason.
func (e *Engine) autoplay(g *guildState, userID string) *AutoplayResult {
	res := &AutoplayResult{Attempted: true}

	if !e.dir.GuildExists(g.guildID) {
		res.Reason = "GUILD_NOT_FOUND"
		return res
	}
	member, err := e.dir.Member(g.guildID, userID)
	if err != nil || member == nil || member.VoiceChannelID == "" {
		res.Reason = "USER_NOT_IN_VOICE"
		return res
	}

	if err := e.sessionFor(g).EnsureConnected(context.Background(), member.VoiceChannelID); err != nil {
		res.Reason = "VOICE_CONNECT_FAILED"
		return res
	}

	e.playNext(g)
	res.OK = e.sessionFor(g).IsPlaying()
	if !res.OK {
		res.Reason = "EXTRACTION_FAILED"
	}
	return res
}

// PlayForUser joins the requester's channel, expands bundle URLs (head
// plays first, tail queues behind it) and starts playback when idle.
func (e *Engine) PlayForUser(ctx context.Context, guildID, userID string, item *entities.Track) (*EnqueueResult, error) {
	var res *EnqueueResult
	err := e.submit(ctx, guildID, "play_for_user", func(g *guildState) error {
		if !e.dir.GuildExists(guildID) {
			return errs.ErrGuildNotFound
		}
		member, err := e.dir.Member(guildID, userID)
		if err != nil || member == nil || member.VoiceChannelID == "" {
			return errs.ErrUserNotInVoice
		}
		if err := e.sessionFor(g).EnsureConnected(ctx, member.VoiceChannelID); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrVoiceConnectFailed, err)
		}

		head := item
		var tail []*entities.Track
		if item != nil && item.URL != "" && e.registry.IsBundleURL(item.URL) {
			entries, err := e.registry.ExpandBundle(ctx, item.URL, e.cfg.BundleLimit)
			if err != nil {
				e.logger.WithError(err).Guild(guildID).Warn("Bundle expansion failed, playing head only")
			} else if len(entries) > 0 {
				head = entries[0]
				tail = entries[1:]
			}
		}

		out, err := e.enqueueInGuild(g, userID, head)
		if err != nil {
			return err
		}
		res = out

		for _, t := range tail {
			if _, err := e.enqueueInGuild(g, userID, t); err != nil {
				e.logger.WithError(err).Guild(guildID).Debug("Skipping bundle entry")
			}
		}

		if !g.isPlaying {
			e.playNext(g)
		}
		return nil
	})
	return res, err
}

// playNext advances the queue. Guarded: a session that is actively playing
// means another play already owns the slot. Runs inside the actor.
func (e *Engine) playNext(g *guildState) {
	session := e.sessionFor(g)
	if session.IsPlaying() {
		return
	}
	if session.IsPaused() {
		session.Stop()
		// The player settles its stop asynchronously; give it a moment so
		// the Play below is not refused as overlapping.
		for i := 0; i < 50 && (session.IsPlaying() || session.IsPaused()); i++ {
			time.Sleep(10 * time.Millisecond)
		}
	}

	for {
		item := e.store.PopNext(g.guildID)
		if item == nil {
			g.isPlaying = false
			g.playStartedAt = zeroTime
			g.pausedSince = zeroTime
			g.pausedTotal = 0
			e.store.SetNowPlaying(g.guildID, nil)
			e.emitState(g)
			return
		}

		// repeat-all re-enqueues at pop time, so a skip on a one-item
		// queue restarts the same item
		if g.repeatAll {
			e.store.Add(g.guildID, item.Clone())
		}

		e.normalizer.Normalize(context.Background(), item)
		e.store.SetNowPlaying(g.guildID, item)

		e.metrics.ExtractionAttempt()
		handle, realTitle, err := e.registry.Resolve(context.Background(), item, e.extractorOptions(g))
		if err != nil {
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"guild": g.guildID,
				"track": item.DisplayName(),
			}).Warn("Failed to resolve source, skipping track")
			e.store.SetNowPlaying(g.guildID, nil)
			continue
		}
		if handle.IsPipe() {
			e.metrics.PipeFallback()
		}

		if realTitle != "" {
			item.Title = realTitle
			e.store.SetNowPlaying(g.guildID, item)
		}

		g.currentHandle = handle
		g.playStartedAt = now()
		g.pausedTotal = 0
		g.pausedSince = zeroTime
		g.isPlaying = true

		err = session.Play(handle, func(playErr error) {
			if playErr != nil {
				e.logger.WithError(playErr).Guild(g.guildID).Warn("Playback ended with error")
			}
			e.submitAsync(g.guildID, func(g *guildState) {
				if g.currentHandle == handle {
					g.currentHandle.Close()
					g.currentHandle = nil
				}
				g.isPlaying = false
				e.playNext(g)
			})
		})
		if err != nil {
			handle.Close()
			g.currentHandle = nil
			g.isPlaying = false
			if errs.Is(err, voice.ErrAlreadyPlaying) {
				// Another play won the slot; put the track back at the head
				// and let that play's completion drive the queue.
				idx := e.store.Add(g.guildID, item)
				if idx != 0 {
					e.store.Move(g.guildID, idx, 0)
				}
				e.store.SetNowPlaying(g.guildID, nil)
				return
			}
			e.logger.WithError(err).Guild(g.guildID).Error("Voice session refused playback")
			e.store.SetNowPlaying(g.guildID, nil)
			continue
		}

		e.logger.WithFields(map[string]interface{}{
			"guild": g.guildID,
			"track": item.DisplayName(),
		}).Info("Now playing")

		e.ensureTicker(g)
		e.emitState(g)
		return
	}
}

// Stop clears the queue, stops the voice session and cancels the ticker.
// The session stays connected but idle.
func (e *Engine) Stop(ctx context.Context, guildID, requesterID string) error {
	return e.submit(ctx, guildID, "stop", func(g *guildState) error {
		if err := e.ensureCanControl(g, requesterID); err != nil {
			return err
		}

		e.store.Stop(guildID)

		session := e.sessionFor(g)
		if session.IsPlaying() || session.IsPaused() {
			session.Stop()
		}

		e.cancelTicker(g)
		if g.currentHandle != nil {
			g.currentHandle.Close()
			g.currentHandle = nil
		}
		g.isPlaying = false
		g.playStartedAt = zeroTime
		g.pausedSince = zeroTime
		g.pausedTotal = 0

		e.emitState(g)
		return nil
	})
}

// Skip ends the current track. With an active source the session's stop
// lets the completion callback drive the next play; otherwise the queue
// advances directly.
func (e *Engine) Skip(ctx context.Context, guildID, requesterID string) error {
	return e.submit(ctx, guildID, "skip", func(g *guildState) error {
		if err := e.ensureCanControl(g, requesterID); err != nil {
			return err
		}

		session := e.sessionFor(g)
		if session.IsPlaying() || session.IsPaused() {
			session.Stop()
		} else {
			e.playNext(g)
		}
		e.emitState(g)
		return nil
	})
}

// Pause suspends playback. Returns false when nothing was playing.
func (e *Engine) Pause(ctx context.Context, guildID, requesterID string) (bool, error) {
	ok := false
	err := e.submit(ctx, guildID, "pause", func(g *guildState) error {
		if err := e.ensureCanControl(g, requesterID); err != nil {
			return err
		}
		if !e.sessionFor(g).Pause() {
			return nil
		}
		g.pausedSince = now()
		ok = true
		e.emitState(g)
		return nil
	})
	return ok, err
}

// Resume continues paused playback. Returns false when nothing was paused.
func (e *Engine) Resume(ctx context.Context, guildID, requesterID string) (bool, error) {
	ok := false
	err := e.submit(ctx, guildID, "resume", func(g *guildState) error {
		if err := e.ensureCanControl(g, requesterID); err != nil {
			return err
		}
		if !e.sessionFor(g).Resume() {
			return nil
		}
		if !g.pausedSince.IsZero() {
			g.pausedTotal += now().Sub(g.pausedSince)
			g.pausedSince = zeroTime
		}
		ok = true
		e.emitState(g)
		return nil
	})
	return ok, err
}

// TogglePause flips between pause and resume and returns the action taken
func (e *Engine) TogglePause(ctx context.Context, guildID, requesterID string) (string, error) {
	action := ""
	err := e.submit(ctx, guildID, "toggle_pause", func(g *guildState) error {
		if err := e.ensureCanControl(g, requesterID); err != nil {
			return err
		}

		session := e.sessionFor(g)
		switch {
		case session.IsPaused():
			if session.Resume() {
				if !g.pausedSince.IsZero() {
					g.pausedTotal += now().Sub(g.pausedSince)
					g.pausedSince = zeroTime
				}
				action = "resume"
				e.emitState(g)
			}
			return nil
		case session.IsPlaying():
			if session.Pause() {
				g.pausedSince = now()
				action = "pause"
				e.emitState(g)
			}
			return nil
		case !session.IsConnected():
			return errs.ErrNoVoice
		default:
			return errs.ErrNotPlaying
		}
	})
	return action, err
}

// RemoveAt removes the queued track at index after a can-edit check.
// Returns false on out-of-range.
func (e *Engine) RemoveAt(ctx context.Context, guildID, userID string, index int) (bool, error) {
	ok := false
	err := e.submit(ctx, guildID, "remove_at", func(g *guildState) error {
		tracks := e.store.PeekAll(guildID)
		if index < 0 || index >= len(tracks) {
			return nil
		}
		if !e.resolver.CanEditItem(guildID, userID, tracks[index]) {
			return errs.ErrPriorityForbidden
		}
		ok = e.store.RemoveAt(guildID, index)
		if ok {
			e.emitState(g)
		}
		return nil
	})
	return ok, err
}

// Move relocates a queued track. Crossing the priority boundary requires
// quota bypass; the moved track itself needs a can-edit check. Returns
// false on out-of-range indices.
func (e *Engine) Move(ctx context.Context, guildID, userID string, src, dst int) (bool, error) {
	ok := false
	err := e.submit(ctx, guildID, "move", func(g *guildState) error {
		tracks := e.store.PeekAll(guildID)
		n := len(tracks)
		if src < 0 || src >= n || dst < 0 || dst >= n {
			return nil
		}

		barrier := priority.FirstNonPriorityIndex(tracks)
		if (src < barrier) != (dst < barrier) && !e.resolver.BypassQuota(guildID, userID) {
			return errs.ErrPriorityForbidden
		}
		if !e.resolver.CanEditItem(guildID, userID, tracks[src]) {
			return errs.ErrPriorityForbidden
		}

		ok = e.store.Move(guildID, src, dst)
		if ok {
			e.emitState(g)
		}
		return nil
	})
	return ok, err
}

// PlayAt pulls the queued track at index to the head and plays it: an
// active session is skipped into it, an idle one starts playing.
func (e *Engine) PlayAt(ctx context.Context, guildID, userID string, index int) error {
	moved, err := e.Move(ctx, guildID, userID, index, 0)
	if err != nil {
		return err
	}
	if !moved {
		return errs.ErrMoveFailed
	}

	return e.submit(ctx, guildID, "play_at", func(g *guildState) error {
		session := e.sessionFor(g)
		if session.IsPlaying() || session.IsPaused() {
			if err := e.ensureCanControl(g, userID); err != nil {
				return err
			}
			session.Stop()
			return nil
		}

		member, err := e.dir.Member(guildID, userID)
		if err != nil || member == nil || member.VoiceChannelID == "" {
			return errs.ErrUserNotInVoice
		}
		if err := session.EnsureConnected(ctx, member.VoiceChannelID); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrVoiceConnectFailed, err)
		}
		e.playNext(g)
		return nil
	})
}

// Restart re-enqueues the current track at the queue head and skips into
// it, restarting playback from zero.
func (e *Engine) Restart(ctx context.Context, guildID, requesterID string) error {
	return e.submit(ctx, guildID, "restart", func(g *guildState) error {
		if err := e.ensureCanControl(g, requesterID); err != nil {
			return err
		}

		current := e.store.NowPlaying(guildID)
		if current == nil {
			return errs.ErrNotPlaying
		}

		replay := current.Clone()
		idx := e.store.Add(guildID, replay)
		if idx != 0 {
			e.store.Move(guildID, idx, 0)
		}

		session := e.sessionFor(g)
		if session.IsPlaying() || session.IsPaused() {
			session.Stop()
		} else {
			e.playNext(g)
		}
		return nil
	})
}

// ToggleRepeat sets repeat-all and returns the new value. mode is one of
// "on", "off" or "toggle" (empty means toggle).
func (e *Engine) ToggleRepeat(ctx context.Context, guildID, mode string) (bool, error) {
	val := false
	err := e.submit(ctx, guildID, "repeat", func(g *guildState) error {
		switch mode {
		case "", "toggle":
			g.repeatAll = !g.repeatAll
		case "on", "true", "1", "all":
			g.repeatAll = true
		default:
			g.repeatAll = false
		}
		val = g.repeatAll
		e.emitState(g)
		return nil
	})
	return val, err
}

// SetMusicMode switches the EQ preset between "music" and "off" and
// returns whether the music preset is active. Takes effect on the next
// stream resolution.
func (e *Engine) SetMusicMode(ctx context.Context, guildID, mode string) (bool, error) {
	music := false
	err := e.submit(ctx, guildID, "music_mode", func(g *guildState) error {
		switch mode {
		case "on":
			g.audioMode = "music"
		case "off":
			g.audioMode = "off"
		default:
			if g.audioMode == "off" {
				g.audioMode = "music"
			} else {
				g.audioMode = "off"
			}
		}
		music = g.audioMode == "music"
		return nil
	})
	return music, err
}

// JoinVoice connects the guild's session to the requester's channel
func (e *Engine) JoinVoice(ctx context.Context, guildID, userID string) error {
	return e.submit(ctx, guildID, "voice_join", func(g *guildState) error {
		if !e.dir.GuildExists(guildID) {
			return errs.ErrGuildNotFound
		}
		member, err := e.dir.Member(guildID, userID)
		if err != nil || member == nil || member.VoiceChannelID == "" {
			return errs.ErrUserNotInVoice
		}
		if err := e.sessionFor(g).EnsureConnected(ctx, member.VoiceChannelID); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrVoiceConnectFailed, err)
		}
		return nil
	})
}

// GetState returns the projected overlay state
func (e *Engine) GetState(ctx context.Context, guildID string) (*ProjectedState, error) {
	var state *ProjectedState
	err := e.submit(ctx, guildID, "get_state", func(g *guildState) error {
		state = e.project(g)
		return nil
	})
	return state, err
}

// Debug reports the engine's view of a guild for GET /voice/debug
func (e *Engine) Debug(ctx context.Context, guildID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := e.submit(ctx, guildID, "debug", func(g *guildState) error {
		session := e.sessionFor(g)
		inMemory, onDisk, rerr := e.store.Reconcile(guildID)
		out = map[string]interface{}{
			"guild_id":        guildID,
			"guild_known":     e.dir.GuildExists(guildID),
			"connected":       session.IsConnected(),
			"channel_id":      session.CurrentChannel(),
			"is_playing":      session.IsPlaying(),
			"is_paused":       session.IsPaused(),
			"repeat_all":      g.repeatAll,
			"audio_mode":      g.audioMode,
			"queue_in_memory": inMemory,
			"queue_on_disk":   onDisk,
		}
		if rerr != nil {
			out["snapshot_error"] = rerr.Error()
		}
		return nil
	})
	return out, err
}

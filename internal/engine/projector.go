package engine

import (
	"time"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/priority"
)

// maxQueueUsers bounds the per-requester index in the projected state
const maxQueueUsers = 25

var zeroTime = time.Time{}

func now() time.Time { return time.Now() }

// ProjectedState is the read-only snapshot shared with overlay subscribers
type ProjectedState struct {
	GuildID         string                        `json:"guild_id"`
	Queue           []*entities.Track             `json:"queue"`
	Current         *entities.Track               `json:"current"`
	Paused          bool                          `json:"paused"`
	PositionS       int                           `json:"position_s"`
	DurationS       *int                          `json:"duration_s"`
	Thumbnail       string                        `json:"thumbnail,omitempty"`
	RepeatAll       bool                          `json:"repeat_all"`
	RequestedByUser *priority.UserMeta            `json:"requested_by_user,omitempty"`
	QueueUsers      map[string]*priority.UserMeta `json:"queue_users,omitempty"`
}

// ProgressUpdate is the lightweight 1 Hz delta pushed while playing
type ProgressUpdate struct {
	OnlyElapsed bool `json:"only_elapsed"`
	Paused      bool `json:"paused"`
	PositionS   int  `json:"position_s"`
	DurationS   *int `json:"duration_s"`
}

// elapsedSeconds computes the playback position: wall time since start,
// minus accumulated pause time, frozen at pausedSince while paused.
func (e *Engine) elapsedSeconds(g *guildState) int {
	if g.playStartedAt.IsZero() {
		return 0
	}
	base := now()
	if !g.pausedSince.IsZero() {
		base = g.pausedSince
	}
	elapsed := base.Sub(g.playStartedAt) - g.pausedTotal
	if elapsed < 0 {
		return 0
	}
	return int(elapsed.Seconds())
}

// project builds the full overlay state. Runs inside the actor.
func (e *Engine) project(g *guildState) *ProjectedState {
	session := e.sessionFor(g)
	current := e.store.NowPlaying(g.guildID)
	tracks := e.store.PeekAll(g.guildID)

	position := 0
	var duration *int
	thumbnail := ""
	var requestedBy *priority.UserMeta

	if current != nil {
		position = e.elapsedSeconds(g)
		if current.DurationS > 0 {
			d := current.DurationS
			if position > d {
				position = d
			}
			duration = &d
		}
		thumbnail = current.Thumbnail
		if current.RequestedBy != "" {
			requestedBy = e.resolver.UserMeta(g.guildID, current.RequestedBy)
		}
	}

	queueUsers := make(map[string]*priority.UserMeta)
	for _, t := range tracks {
		if t.RequestedBy == "" {
			continue
		}
		if _, seen := queueUsers[t.RequestedBy]; seen {
			continue
		}
		queueUsers[t.RequestedBy] = e.resolver.UserMeta(g.guildID, t.RequestedBy)
		if len(queueUsers) >= maxQueueUsers {
			break
		}
	}

	return &ProjectedState{
		GuildID:         g.guildID,
		Queue:           tracks,
		Current:         current,
		Paused:          session.IsPaused(),
		PositionS:       position,
		DurationS:       duration,
		Thumbnail:       thumbnail,
		RepeatAll:       g.repeatAll,
		RequestedByUser: requestedBy,
		QueueUsers:      queueUsers,
	}
}

// progress builds the 1 Hz partial update. Runs inside the actor.
func (e *Engine) progress(g *guildState) *ProgressUpdate {
	var duration *int
	position := e.elapsedSeconds(g)
	if current := e.store.NowPlaying(g.guildID); current != nil && current.DurationS > 0 {
		d := current.DurationS
		if position > d {
			position = d
		}
		duration = &d
	}
	return &ProgressUpdate{
		OnlyElapsed: true,
		Paused:      e.sessionFor(g).IsPaused(),
		PositionS:   position,
		DurationS:   duration,
	}
}

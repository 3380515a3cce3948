package voice

import (
	"context"

	"github.com/paul-berdier/greg-voice/internal/extractor"
)

// FinishFunc is invoked exactly once when a played source ends or fails
type FinishFunc func(err error)

// Session is the per-guild connection to a voice channel. Implementations
// hide the voice-gateway details; the engine is the only caller of the
// mutating operations.
type Session interface {
	// EnsureConnected joins channelID, moving if connected elsewhere.
	// A no-op when already on the requested channel.
	EnsureConnected(ctx context.Context, channelID string) error

	// IsConnected reports whether the session is attached to a channel
	IsConnected() bool

	// CurrentChannel returns the connected channel id, or ""
	CurrentChannel() string

	// Play starts the source without blocking and arranges for onFinish
	// to fire exactly once when it ends or fails.
	Play(handle *extractor.SourceHandle, onFinish FinishFunc) error

	// Stop ends playback, leaving the session connected but idle
	Stop()

	// Pause suspends playback; returns false when nothing is playing
	Pause() bool

	// Resume continues paused playback; returns false when not paused
	Resume() bool

	IsPlaying() bool
	IsPaused() bool
}

// Provider hands out the session owned by a guild, creating it on first use
type Provider interface {
	Session(guildID string) Session
}

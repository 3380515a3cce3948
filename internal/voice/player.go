package voice

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/paul-berdier/greg-voice/internal/extractor"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

var (
	// ErrAlreadyPlaying is returned when a play overlaps an active one
	ErrAlreadyPlaying = errors.New("already playing")
	// ErrNoVoiceConnection is returned when there's no voice connection
	ErrNoVoiceConnection = errors.New("no voice connection")
)

// player streams one source at a time into a guild's voice connection
type player struct {
	guildID string
	encoder *Encoder
	logger  *logger.Logger

	isPlaying  atomic.Bool
	isPaused   atomic.Bool
	stopSignal chan struct{}

	mu sync.Mutex
}

func newPlayer(guildID string, encoder *Encoder, log *logger.Logger) *player {
	return &player{
		guildID:    guildID,
		encoder:    encoder,
		logger:     log,
		stopSignal: make(chan struct{}),
	}
}

// play starts streaming the handle. Non-blocking; onFinish fires exactly
// once when the source ends, fails, or is stopped.
func (p *player) play(vc *discordgo.VoiceConnection, handle *extractor.SourceHandle, onFinish FinishFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isPlaying.Load() {
		return ErrAlreadyPlaying
	}
	if vc == nil {
		return ErrNoVoiceConnection
	}

	p.stopSignal = make(chan struct{})
	p.isPlaying.Store(true)
	p.isPaused.Store(false)

	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			handle.Close()
			p.isPlaying.Store(false)
			p.isPaused.Store(false)
			if onFinish != nil {
				onFinish(err)
			}
		})
	}

	go p.playbackLoop(vc, handle, finish)
	return nil
}

// playbackLoop streams opus frames until the source ends or stop fires
func (p *player) playbackLoop(vc *discordgo.VoiceConnection, handle *extractor.SourceHandle, finish FinishFunc) {
	if err := vc.Speaking(true); err != nil {
		p.logger.WithError(err).Guild(p.guildID).Error("Failed to set speaking status")
		finish(err)
		return
	}
	defer vc.Speaking(false)

	frameChannel, errorChannel, err := p.encoder.EncodeStream(handle, DefaultEncodeOptions())
	if err != nil {
		p.logger.WithError(err).Guild(p.guildID).Error("Failed to start encoding")
		finish(err)
		return
	}

	frameCount := 0
	for {
		select {
		case <-p.stopSignal:
			p.logger.Guild(p.guildID).Debug("Playback stopped")
			finish(nil)
			return

		case err := <-errorChannel:
			if err != nil {
				p.logger.WithError(err).Guild(p.guildID).Error("Encoding error")
				finish(err)
				return
			}

		case frame, ok := <-frameChannel:
			if !ok {
				p.logger.WithFields(map[string]interface{}{"guild": p.guildID, "frames": frameCount}).Debug("Playback completed")
				finish(nil)
				return
			}

			for p.isPaused.Load() {
				select {
				case <-p.stopSignal:
					finish(nil)
					return
				case <-time.After(100 * time.Millisecond):
				}
			}

			select {
			case vc.OpusSend <- frame:
				frameCount++
			case <-p.stopSignal:
				finish(nil)
				return
			}
		}
	}
}

// stop ends the current playback, if any
func (p *player) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isPlaying.Load() {
		return
	}
	select {
	case <-p.stopSignal:
		// already closed
	default:
		close(p.stopSignal)
	}
}

// pause suspends frame delivery; returns false when nothing is playing
func (p *player) pause() bool {
	if !p.isPlaying.Load() || p.isPaused.Load() {
		return false
	}
	p.isPaused.Store(true)
	return true
}

// resume continues paused playback; returns false when not paused
func (p *player) resume() bool {
	if !p.isPlaying.Load() || !p.isPaused.Load() {
		return false
	}
	p.isPaused.Store(false)
	return true
}

func (p *player) playing() bool { return p.isPlaying.Load() && !p.isPaused.Load() }
func (p *player) paused() bool  { return p.isPlaying.Load() && p.isPaused.Load() }
func (p *player) active() bool  { return p.isPlaying.Load() }

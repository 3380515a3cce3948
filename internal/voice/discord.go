package voice

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/paul-berdier/greg-voice/internal/errors"
	"github.com/paul-berdier/greg-voice/internal/extractor"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

const connectReadyTimeout = 10 * time.Second

// DiscordProvider owns one DiscordSession per guild
type DiscordProvider struct {
	session    *discordgo.Session
	encoder    *Encoder
	introPath  string
	logger     *logger.Logger

	// introDone is invoked after the intro asset finishes so the engine
	// can chain into play_next. Set once during wiring.
	introDone func(guildID string)

	sessions map[string]*DiscordSession
	mu       sync.Mutex
}

// NewDiscordProvider creates the provider. introPath may be empty.
func NewDiscordProvider(session *discordgo.Session, ffmpegPath, introPath string, log *logger.Logger) *DiscordProvider {
	return &DiscordProvider{
		session:   session,
		encoder:   NewEncoder(ffmpegPath, log),
		introPath: introPath,
		logger:    log,
		sessions:  make(map[string]*DiscordSession),
	}
}

// SetIntroCallback wires the engine's play_next scheduling into intro
// completion. Must be called before the first connect.
func (p *DiscordProvider) SetIntroCallback(fn func(guildID string)) {
	p.introDone = fn
}

// Session implements Provider
func (p *DiscordProvider) Session(guildID string) Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[guildID]; ok {
		return s
	}
	s := &DiscordSession{
		guildID:  guildID,
		provider: p,
		player:   newPlayer(guildID, p.encoder, p.logger),
		logger:   p.logger,
	}
	p.sessions[guildID] = s
	return s
}

// CleanupAll disconnects every guild. Called on shutdown.
func (p *DiscordProvider) CleanupAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for guildID, s := range p.sessions {
		s.Stop()
		s.disconnect()
		p.logger.Guild(guildID).Debug("Disconnected voice session")
	}
	p.sessions = make(map[string]*DiscordSession)
}

// DiscordSession is the voice.Session implementation over discordgo
type DiscordSession struct {
	guildID  string
	provider *DiscordProvider
	player   *player
	logger   *logger.Logger

	vc           *discordgo.VoiceConnection
	channelID    string
	introPlaying bool
	mu           sync.Mutex
}

// EnsureConnected implements Session. A fresh connection (not a move)
// plays the intro asset when configured and nothing is playing.
func (s *DiscordSession) EnsureConnected(ctx context.Context, channelID string) error {
	if channelID == "" {
		return errors.ErrUserNotInVoice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc != nil && s.vc.Status == discordgo.VoiceConnectionStatusReady {
		if s.channelID == channelID {
			return nil
		}
		// Move: reconnect on the new channel, no intro
		s.logger.Guild(s.guildID).Info("Moving to another voice channel")
		s.disconnectLocked(ctx)
		return s.connectLocked(ctx, channelID, false)
	}

	return s.connectLocked(ctx, channelID, true)
}

// connectLocked joins the channel and waits for the gateway ready signal
func (s *DiscordSession) connectLocked(ctx context.Context, channelID string, fresh bool) error {
	s.logger.WithFields(map[string]interface{}{"guild": s.guildID, "channel": channelID}).Info("Connecting to voice channel...")

	// mute=false, deaf=true
	vc, err := s.provider.session.ChannelVoiceJoin(ctx, s.guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrVoiceConnectFailed, err)
	}

	deadline := time.Now().Add(connectReadyTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for vc.Status != discordgo.VoiceConnectionStatusReady {
		select {
		case <-ctx.Done():
			vc.Disconnect(ctx)
			return fmt.Errorf("%w: %v", errors.ErrVoiceConnectFailed, ctx.Err())
		case <-ticker.C:
			if time.Now().After(deadline) {
				vc.Disconnect(ctx)
				return fmt.Errorf("%w: connection not ready after %s", errors.ErrVoiceConnectFailed, connectReadyTimeout)
			}
		}
	}

	s.vc = vc
	s.channelID = channelID
	s.logger.WithFields(map[string]interface{}{"guild": s.guildID, "channel": channelID}).Info("Connected to voice channel")

	if fresh {
		s.playIntroLocked()
	}
	return nil
}

// playIntroLocked plays the configured intro asset and chains into the
// engine's play_next from its completion callback.
func (s *DiscordSession) playIntroLocked() {
	path := s.provider.introPath
	if path == "" || s.introPlaying || s.player.active() {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	s.introPlaying = true
	handle := extractor.NewDirectHandle(path, nil, "")
	err := s.player.play(s.vc, handle, func(err error) {
		s.mu.Lock()
		s.introPlaying = false
		s.mu.Unlock()
		if err != nil {
			s.logger.WithError(err).Guild(s.guildID).Warn("Intro sound failed")
		}
		if s.provider.introDone != nil {
			s.provider.introDone(s.guildID)
		}
	})
	if err != nil {
		s.introPlaying = false
		s.logger.WithError(err).Guild(s.guildID).Warn("Intro sound failed to start")
	}
}

// disconnect drops the voice connection
func (s *DiscordSession) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked(context.Background())
}

func (s *DiscordSession) disconnectLocked(ctx context.Context) {
	if s.vc == nil {
		return
	}
	if err := s.vc.Disconnect(ctx); err != nil {
		s.logger.WithError(err).Guild(s.guildID).Warn("Failed to disconnect voice")
	}
	s.vc = nil
	s.channelID = ""
}

// IsConnected implements Session
func (s *DiscordSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vc != nil && s.vc.Status == discordgo.VoiceConnectionStatusReady
}

// CurrentChannel implements Session
func (s *DiscordSession) CurrentChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// Play implements Session
func (s *DiscordSession) Play(handle *extractor.SourceHandle, onFinish FinishFunc) error {
	s.mu.Lock()
	vc := s.vc
	s.mu.Unlock()

	if vc == nil || vc.Status != discordgo.VoiceConnectionStatusReady {
		return errors.ErrNoVoice
	}
	return s.player.play(vc, handle, onFinish)
}

// Stop implements Session: ends playback but stays connected
func (s *DiscordSession) Stop() {
	s.player.stop()
}

// Pause implements Session
func (s *DiscordSession) Pause() bool {
	if !s.player.pause() {
		return false
	}
	s.mu.Lock()
	vc := s.vc
	s.mu.Unlock()
	if vc != nil {
		vc.Speaking(false)
	}
	return true
}

// Resume implements Session
func (s *DiscordSession) Resume() bool {
	if !s.player.resume() {
		return false
	}
	s.mu.Lock()
	vc := s.vc
	s.mu.Unlock()
	if vc != nil {
		vc.Speaking(true)
	}
	return true
}

// IsPlaying implements Session
func (s *DiscordSession) IsPlaying() bool {
	return s.player.playing()
}

// IsPaused implements Session
func (s *DiscordSession) IsPaused() bool {
	return s.player.paused()
}

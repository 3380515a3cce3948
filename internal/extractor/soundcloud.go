package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/domain/valueobjects"
	"github.com/paul-berdier/greg-voice/internal/errors"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

var soundcloudPattern = regexp.MustCompile(`^https?://(www\.)?soundcloud\.com/.+$`)

// SoundCloud resolves soundcloud.com URLs through yt-dlp
type SoundCloud struct {
	run    *ytdlpRunner
	logger *logger.Logger
}

// NewSoundCloud creates the SoundCloud extractor
func NewSoundCloud(ytdlpPath string, log *logger.Logger) *SoundCloud {
	return &SoundCloud{run: newYtdlpRunner(ytdlpPath, log), logger: log}
}

// Name implements Extractor
func (s *SoundCloud) Name() valueobjects.Provider {
	return valueobjects.ProviderSoundCloud
}

// IsValid implements Extractor
func (s *SoundCloud) IsValid(url string) bool {
	return soundcloudPattern.MatchString(url)
}

// Stream resolves the direct stream URL plus the real title
func (s *SoundCloud) Stream(ctx context.Context, url string, opts Options) (*SourceHandle, string, error) {
	info, err := s.run.extractInfo(ctx, url, opts)
	if err != nil {
		return nil, "", err
	}
	if info.StreamURL == "" {
		return nil, "", fmt.Errorf("%w: no stream URL for %s", errors.ErrExtractionFailed, url)
	}
	return NewDirectHandle(info.StreamURL, nil, opts.AudioFilter), info.Title, nil
}

// StreamPipe starts a yt-dlp child process emitting raw audio on stdout
func (s *SoundCloud) StreamPipe(ctx context.Context, url string, opts Options) (*SourceHandle, string, error) {
	title := ""
	if info, err := s.run.extractInfo(ctx, url, opts); err == nil {
		title = info.Title
	}

	proc, stdout, err := s.run.pipe(ctx, url, opts)
	if err != nil {
		return nil, "", err
	}
	s.logger.WithField("url", url).Info("Started yt-dlp piped stream")
	return NewPipeHandle(proc, stdout, opts.AudioFilter), title, nil
}

// Search returns up to limit tracks for a free-text query
func (s *SoundCloud) Search(ctx context.Context, query string, limit int) ([]*entities.Track, error) {
	infos, err := s.run.search(ctx, "scsearch", query, limit)
	if err != nil {
		return nil, err
	}
	tracks := make([]*entities.Track, 0, len(infos))
	for _, info := range infos {
		tracks = append(tracks, infoToTrack(info, valueobjects.ProviderSoundCloud))
	}
	return tracks, nil
}

// IsBundleURL reports whether the URL is a SoundCloud set
func (s *SoundCloud) IsBundleURL(url string) bool {
	return s.IsValid(url) && strings.Contains(url, "/sets/")
}

// ExpandBundle returns up to limit tracks from a set URL
func (s *SoundCloud) ExpandBundle(ctx context.Context, url string, limit int) ([]*entities.Track, error) {
	infos, err := s.run.flatPlaylist(ctx, url, limit, Options{})
	if err != nil {
		return nil, err
	}
	tracks := make([]*entities.Track, 0, len(infos))
	for _, info := range infos {
		tracks = append(tracks, infoToTrack(info, valueobjects.ProviderSoundCloud))
	}
	return tracks, nil
}

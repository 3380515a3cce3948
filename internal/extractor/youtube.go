package extractor

import (
	"context"
	"fmt"
	"regexp"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/domain/valueobjects"
	"github.com/paul-berdier/greg-voice/internal/errors"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

var (
	youtubePattern  = regexp.MustCompile(`^(https?://)?(www\.|music\.)?(youtube\.com|youtu\.be)/.+$`)
	youtubeBundle   = regexp.MustCompile(`[?&]list=`)
	browserUAHeader = map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	}
)

// YouTube resolves youtube.com / youtu.be URLs and free-text search through
// yt-dlp. It is the default extractor when nothing else matches.
type YouTube struct {
	run    *ytdlpRunner
	logger *logger.Logger
}

// NewYouTube creates the YouTube extractor
func NewYouTube(ytdlpPath string, log *logger.Logger) *YouTube {
	return &YouTube{run: newYtdlpRunner(ytdlpPath, log), logger: log}
}

// Name implements Extractor
func (y *YouTube) Name() valueobjects.Provider {
	return valueobjects.ProviderYouTube
}

// IsValid implements Extractor
func (y *YouTube) IsValid(url string) bool {
	return youtubePattern.MatchString(url)
}

// Stream resolves the direct best-audio stream URL plus the real title.
// The returned handle points at a remote URL the transcoder fetches itself.
func (y *YouTube) Stream(ctx context.Context, url string, opts Options) (*SourceHandle, string, error) {
	info, err := y.run.extractInfo(ctx, url, opts)
	if err != nil {
		return nil, "", err
	}
	if info.StreamURL == "" {
		return nil, "", fmt.Errorf("%w: no stream URL for %s", errors.ErrExtractionFailed, url)
	}
	return NewDirectHandle(info.StreamURL, browserUAHeader, opts.AudioFilter), info.Title, nil
}

// StreamPipe starts a yt-dlp child process emitting raw audio on stdout.
// Used when the direct stream URL is rejected upstream (403s and the like).
func (y *YouTube) StreamPipe(ctx context.Context, url string, opts Options) (*SourceHandle, string, error) {
	title := ""
	if info, err := y.run.extractInfo(ctx, url, opts); err == nil {
		title = info.Title
	}

	proc, stdout, err := y.run.pipe(ctx, url, opts)
	if err != nil {
		return nil, "", err
	}
	y.logger.WithField("url", url).Info("Started yt-dlp piped stream")
	return NewPipeHandle(proc, stdout, opts.AudioFilter), title, nil
}

// Search returns up to limit tracks for a free-text query
func (y *YouTube) Search(ctx context.Context, query string, limit int) ([]*entities.Track, error) {
	infos, err := y.run.search(ctx, "ytsearch", query, limit)
	if err != nil {
		return nil, err
	}
	tracks := make([]*entities.Track, 0, len(infos))
	for _, info := range infos {
		tracks = append(tracks, infoToTrack(info, valueobjects.ProviderYouTube))
	}
	return tracks, nil
}

// IsBundleURL reports whether the URL is a playlist or mix
func (y *YouTube) IsBundleURL(url string) bool {
	return y.IsValid(url) && youtubeBundle.MatchString(url)
}

// ExpandBundle returns up to limit tracks from a playlist/mix URL
func (y *YouTube) ExpandBundle(ctx context.Context, url string, limit int) ([]*entities.Track, error) {
	infos, err := y.run.flatPlaylist(ctx, url, limit, Options{})
	if err != nil {
		return nil, err
	}
	tracks := make([]*entities.Track, 0, len(infos))
	for _, info := range infos {
		t := infoToTrack(info, valueobjects.ProviderYouTube)
		if t.URL == "" && info.ID != "" {
			t.URL = "https://www.youtube.com/watch?v=" + info.ID
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// infoToTrack maps a yt-dlp entry to the canonical track shape
func infoToTrack(info ytdlpInfo, provider valueobjects.Provider) *entities.Track {
	url := info.WebpageURL
	if url == "" {
		url = info.StreamURL
	}
	return &entities.Track{
		Title:     info.Title,
		URL:       url,
		Artist:    info.Uploader,
		Thumbnail: info.Thumbnail,
		DurationS: int(info.Duration),
		Provider:  provider,
	}
}

package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/domain/valueobjects"
	"github.com/paul-berdier/greg-voice/internal/errors"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

// DefaultBundleLimit caps how many tracks a playlist/mix URL expands into
const DefaultBundleLimit = 10

// Registry holds the extractors in matching order. The first extractor
// whose IsValid accepts a URL wins; free text falls through to the default
// (YouTube search).
type Registry struct {
	extractors []Extractor
	fallback   *YouTube
	logger     *logger.Logger
}

// NewRegistry builds the standard registry: spotify, youtube, soundcloud
func NewRegistry(yt *YouTube, sc *SoundCloud, sp *Spotify, log *logger.Logger) *Registry {
	return &Registry{
		extractors: []Extractor{sp, yt, sc},
		fallback:   yt,
		logger:     log,
	}
}

// IsURL reports whether s looks like a fetchable URL
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ByURL returns the extractor whose predicate matches, or nil
func (r *Registry) ByURL(url string) Extractor {
	s := strings.TrimSpace(url)
	for _, ex := range r.extractors {
		if ex.IsValid(s) {
			return ex
		}
	}
	return nil
}

// Get returns the extractor for a URL or query. Unrecognized input gets the
// default extractor, which treats it as a search.
func (r *Registry) Get(urlOrQuery string) Extractor {
	if ex := r.ByURL(urlOrQuery); ex != nil {
		return ex
	}
	return r.fallback
}

// DetectProvider returns the provider tag for a URL or query
func (r *Registry) DetectProvider(urlOrQuery string) valueobjects.Provider {
	if ex := r.ByURL(urlOrQuery); ex != nil {
		return ex.Name()
	}
	return r.fallback.Name()
}

// IsBundleURL reports whether the URL expands into multiple tracks
func (r *Registry) IsBundleURL(url string) bool {
	ex := r.ByURL(url)
	if ex == nil {
		return false
	}
	be, ok := ex.(BundleExpander)
	return ok && be.IsBundleURL(url)
}

// ExpandBundle returns up to limit tracks for a playlist/mix URL. A URL
// whose provider cannot expand bundles yields an empty slice, not an error.
func (r *Registry) ExpandBundle(ctx context.Context, url string, limit int) ([]*entities.Track, error) {
	ex := r.ByURL(url)
	if ex == nil {
		return nil, nil
	}
	be, ok := ex.(BundleExpander)
	if !ok || !be.IsBundleURL(url) {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultBundleLimit
	}
	return be.ExpandBundle(ctx, url, limit)
}

// Resolve turns a track into a playable source handle. A track without a
// URL is first resolved by searching its title on the default provider.
// Direct stream resolution is tried first; extractors with a pipe fallback
// get a second chance before the failure escapes.
func (r *Registry) Resolve(ctx context.Context, track *entities.Track, opts Options) (*SourceHandle, string, error) {
	url := track.URL
	if url == "" {
		if track.Title == "" {
			return nil, "", fmt.Errorf("%w: track has no source", errors.ErrExtractionFailed)
		}
		results, err := r.fallback.Search(ctx, track.Title, 1)
		if err != nil {
			return nil, "", err
		}
		if len(results) == 0 {
			return nil, "", fmt.Errorf("%w: no result for %q", errors.ErrExtractionFailed, track.Title)
		}
		url = results[0].URL
		track.URL = url
		track.Provider = results[0].Provider
	}

	ex := r.Get(url)

	handle, title, directErr := ex.Stream(ctx, url, opts)
	if directErr == nil {
		return handle, title, nil
	}
	r.logger.WithError(directErr).WithField("url", url).Debug("Direct stream failed, trying pipe")

	ps, ok := ex.(PipeStreamer)
	if !ok {
		return nil, "", directErr
	}
	return ps.StreamPipe(ctx, url, opts)
}

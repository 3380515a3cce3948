package entities

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/paul-berdier/greg-voice/internal/domain/valueobjects"
)

// Track is a single queued request. Instances are owned by the guild engine
// once enqueued; callers must not mutate a track after handing it over.
type Track struct {
	ID          string                 `json:"id,omitempty"`
	Title       string                 `json:"title"`
	URL         string                 `json:"url"`
	Artist      string                 `json:"artist,omitempty"`
	Thumbnail   string                 `json:"thumbnail,omitempty"`
	DurationS   int                    `json:"duration_s,omitempty"` // 0 = unknown
	Provider    valueobjects.Provider  `json:"provider,omitempty"`
	RequestedBy string                 `json:"requested_by"`
	Priority    int                    `json:"priority"`
	EnqueuedAt  int64                  `json:"enqueued_at,omitempty"`
}

// NewTrack creates a track for a request. Either url or title must be
// non-empty: a track without a URL is played as a search query.
func NewTrack(url, title, requestedBy string) *Track {
	return &Track{
		ID:          uuid.New().String(),
		Title:       title,
		URL:         url,
		RequestedBy: requestedBy,
	}
}

// HasSource reports whether the track can be resolved to audio: a source
// URL, or a title usable as a search query.
func (t *Track) HasSource() bool {
	return t.URL != "" || t.Title != ""
}

// DisplayName returns the best display name for the track
func (t *Track) DisplayName() string {
	switch {
	case t.Artist != "" && t.Title != "":
		return fmt.Sprintf("%s - %s", t.Artist, t.Title)
	case t.Title != "":
		return t.Title
	default:
		return t.URL
	}
}

// DurationFormatted returns duration in MM:SS format
func (t *Track) DurationFormatted() string {
	if t.DurationS <= 0 {
		return "00:00"
	}
	minutes := t.DurationS / 60
	seconds := t.DurationS % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// Clone returns a copy safe to hand to another goroutine.
func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

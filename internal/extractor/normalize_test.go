package extractor

import (
	"context"
	"testing"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/domain/valueobjects"
	"github.com/paul-berdier/greg-voice/internal/metadata"
)

func trackWithURL(url string) *entities.Track {
	return &entities.Track{Title: "t", URL: url}
}

func TestParseDurationSeconds(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"273", 273},
		{"4:31", 271},
		{"1:02:03", 3723},
		{"0:59", 59},
		{"  90 ", 90},
		{"", 0},
		{"abc", 0},
		{"-5", 0},
		{"1:2:3:4", 0},
		{"4:xx", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseDurationSeconds(tt.input); got != tt.want {
				t.Errorf("ParseDurationSeconds(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func newTestNormalizer() *Normalizer {
	log := testLogger()
	yt := NewYouTube("yt-dlp", log)
	sc := NewSoundCloud("yt-dlp", log)
	sp := NewSpotify("", "", yt, log)
	r := NewRegistry(yt, sc, sp, log)
	return NewNormalizer(r, metadata.NewClient(log), log)
}

func TestNormalizeTagsProvider(t *testing.T) {
	n := newTestNormalizer()

	track := &entities.Track{
		Title:     "  Song  ",
		URL:       "https://soundcloud.com/a/b",
		Artist:    "Artist",
		Thumbnail: "https://img",
	}
	n.Normalize(context.Background(), track)

	if track.Provider != valueobjects.ProviderSoundCloud {
		t.Errorf("Expected soundcloud provider, got %s", track.Provider)
	}
	if track.Title != "Song" {
		t.Errorf("Title should be trimmed, got %q", track.Title)
	}
}

func TestNormalizeFallsBackToURLTitle(t *testing.T) {
	n := newTestNormalizer()

	// example.com has no oEmbed provider, so no lookup happens and the
	// URL becomes the display title
	track := &entities.Track{URL: "https://example.com/x", Artist: "a", Thumbnail: "t"}
	n.Normalize(context.Background(), track)

	if track.Title != "https://example.com/x" {
		t.Errorf("Expected URL as title fallback, got %q", track.Title)
	}
}

func TestNormalizeKeepsExistingProvider(t *testing.T) {
	n := newTestNormalizer()

	track := &entities.Track{
		Title:     "x",
		URL:       "https://www.youtube.com/watch?v=1",
		Artist:    "a",
		Thumbnail: "t",
		Provider:  valueobjects.ProviderSpotify,
	}
	n.Normalize(context.Background(), track)

	if track.Provider != valueobjects.ProviderSpotify {
		t.Errorf("Pre-set provider should be kept, got %s", track.Provider)
	}
}

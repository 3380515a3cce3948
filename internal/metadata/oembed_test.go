package metadata

import (
	"context"
	"testing"

	"github.com/paul-berdier/greg-voice/pkg/logger"
)

func TestEndpointFor(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc", "https://www.youtube.com/oembed"},
		{"https://youtu.be/abc", "https://www.youtube.com/oembed"},
		{"https://soundcloud.com/a/b", "https://soundcloud.com/oembed"},
		{"https://open.spotify.com/track/1", "https://open.spotify.com/oembed"},
		{"https://example.com/x", ""},
	}

	for _, tt := range tests {
		if got := endpointFor(tt.url); got != tt.want {
			t.Errorf("endpointFor(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestLookupUnknownProviderReturnsNil(t *testing.T) {
	c := NewClient(logger.New(logger.Config{Level: "error"}))

	emb, err := c.Lookup(context.Background(), "https://example.com/whatever")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if emb != nil {
		t.Errorf("Unknown provider should yield nil, got %+v", emb)
	}
}

func TestLookupServesFromCache(t *testing.T) {
	c := NewClient(logger.New(logger.Config{Level: "error"}))

	want := &Embed{Title: "cached", AuthorName: "a"}
	c.cache.Set("https://www.youtube.com/watch?v=x", want)

	emb, err := c.Lookup(context.Background(), "https://www.youtube.com/watch?v=x")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if emb != want {
		t.Errorf("Expected the cached embed, got %+v", emb)
	}
}

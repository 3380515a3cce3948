package metadata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/paul-berdier/greg-voice/internal/utils"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

const (
	cacheSize     = 512
	cacheTTL      = 6 * time.Hour
	lookupTimeout = 3 * time.Second
)

// Embed is the subset of an oEmbed response the normalizer cares about
type Embed struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Client fills missing track metadata with a single cheap oEmbed GET per
// URL. Results are cached so repeated enqueues of the same URL never hit
// the network twice.
type Client struct {
	http   *resty.Client
	cache  *utils.LRUCache
	logger *logger.Logger
}

// NewClient creates an oEmbed client
func NewClient(log *logger.Logger) *Client {
	return &Client{
		http: resty.New().
			SetTimeout(lookupTimeout).
			SetHeader("User-Agent", "greg-voice/1.0"),
		cache:  utils.NewLRUCache(cacheSize, cacheTTL),
		logger: log,
	}
}

// endpointFor returns the provider oEmbed endpoint for a URL, or "" when no
// provider matches.
func endpointFor(url string) string {
	switch {
	case strings.Contains(url, "youtube.com") || strings.Contains(url, "youtu.be"):
		return "https://www.youtube.com/oembed"
	case strings.Contains(url, "soundcloud.com"):
		return "https://soundcloud.com/oembed"
	case strings.Contains(url, "open.spotify.com"):
		return "https://open.spotify.com/oembed"
	default:
		return ""
	}
}

// Lookup fetches title/author/thumbnail for a URL. A nil Embed with nil
// error means the URL has no known oEmbed provider.
func (c *Client) Lookup(ctx context.Context, url string) (*Embed, error) {
	if cached, ok := c.cache.Get(url); ok {
		return cached.(*Embed), nil
	}

	endpoint := endpointFor(url)
	if endpoint == "" {
		return nil, nil
	}

	var out Embed
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"url": url, "format": "json"}).
		SetResult(&out).
		Get(endpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("oembed lookup returned %s", resp.Status())
	}

	c.cache.Set(url, &out)
	return &out, nil
}

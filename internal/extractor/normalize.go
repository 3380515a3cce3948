package extractor

import (
	"context"
	"strconv"
	"strings"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/metadata"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

// Normalizer coerces arbitrary request items into the canonical track
// shape, filling missing metadata with a cached oEmbed lookup.
type Normalizer struct {
	registry *Registry
	meta     *metadata.Client
	logger   *logger.Logger
}

// NewNormalizer creates a normalizer
func NewNormalizer(registry *Registry, meta *metadata.Client, log *logger.Logger) *Normalizer {
	return &Normalizer{registry: registry, meta: meta, logger: log}
}

// Normalize trims fields, tags the provider and fills title/artist/
// thumbnail from oEmbed when the track carries a URL but lacks them.
// Lookup failures are non-fatal; the track keeps whatever it had.
func (n *Normalizer) Normalize(ctx context.Context, t *entities.Track) {
	t.Title = strings.TrimSpace(t.Title)
	t.URL = strings.TrimSpace(t.URL)
	t.Artist = strings.TrimSpace(t.Artist)

	if t.URL != "" && !t.Provider.IsValid() {
		t.Provider = n.registry.DetectProvider(t.URL)
	}

	if t.URL != "" && (t.Title == "" || t.Artist == "" || t.Thumbnail == "") {
		if emb, err := n.meta.Lookup(ctx, t.URL); err != nil {
			n.logger.WithError(err).WithField("url", t.URL).Debug("oEmbed lookup failed")
		} else if emb != nil {
			if t.Title == "" {
				t.Title = emb.Title
			}
			if t.Artist == "" {
				t.Artist = emb.AuthorName
			}
			if t.Thumbnail == "" {
				t.Thumbnail = emb.ThumbnailURL
			}
		}
	}

	if t.Title == "" {
		t.Title = t.URL
	}
}

// ParseDurationSeconds coerces duration strings to integer seconds:
// "273" → 273, "4:31" → 271, "1:02:03" → 3723. Unparseable input yields 0.
func ParseDurationSeconds(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	if !strings.Contains(s, ":") {
		return 0
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

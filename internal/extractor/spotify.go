package extractor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/domain/valueobjects"
	"github.com/paul-berdier/greg-voice/internal/errors"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

var (
	spotifyTrackRegex    = regexp.MustCompile(`open\.spotify\.com/track/([a-zA-Z0-9]+)`)
	spotifyPlaylistRegex = regexp.MustCompile(`open\.spotify\.com/playlist/([a-zA-Z0-9]+)`)
	spotifyAlbumRegex    = regexp.MustCompile(`open\.spotify\.com/album/([a-zA-Z0-9]+)`)
)

// Spotify resolves open.spotify.com URLs. Spotify has no public audio
// streams, so tracks are resolved to metadata through the Web API and
// played through the YouTube extractor by "artist title" search.
type Spotify struct {
	api    *spotifyAPI // nil when credentials are not configured
	yt     *YouTube
	logger *logger.Logger
}

// NewSpotify creates the Spotify extractor. Empty credentials leave the
// extractor registered for URL detection but unable to resolve audio.
func NewSpotify(clientID, clientSecret string, yt *YouTube, log *logger.Logger) *Spotify {
	var api *spotifyAPI
	if clientID != "" && clientSecret != "" {
		api = newSpotifyAPI(clientID, clientSecret)
		log.Info("Spotify resolution enabled")
	} else {
		log.Info("Spotify credentials not provided - Spotify links cannot be resolved")
	}
	return &Spotify{api: api, yt: yt, logger: log}
}

// Name implements Extractor
func (s *Spotify) Name() valueobjects.Provider {
	return valueobjects.ProviderSpotify
}

// IsValid implements Extractor
func (s *Spotify) IsValid(u string) bool {
	lower := strings.ToLower(u)
	return strings.Contains(lower, "open.spotify.com/") || strings.HasPrefix(lower, "spotify:")
}

// Stream resolves the Spotify track to metadata and delegates playback to
// the YouTube extractor.
func (s *Spotify) Stream(ctx context.Context, u string, opts Options) (*SourceHandle, string, error) {
	query, err := s.searchQueryFor(ctx, u)
	if err != nil {
		return nil, "", err
	}

	results, err := s.yt.Search(ctx, query, 1)
	if err != nil {
		return nil, "", err
	}
	if len(results) == 0 {
		return nil, "", fmt.Errorf("%w: no match for %q", errors.ErrExtractionFailed, query)
	}
	return s.yt.Stream(ctx, results[0].URL, opts)
}

// StreamPipe is the piped variant of Stream
func (s *Spotify) StreamPipe(ctx context.Context, u string, opts Options) (*SourceHandle, string, error) {
	query, err := s.searchQueryFor(ctx, u)
	if err != nil {
		return nil, "", err
	}

	results, err := s.yt.Search(ctx, query, 1)
	if err != nil {
		return nil, "", err
	}
	if len(results) == 0 {
		return nil, "", fmt.Errorf("%w: no match for %q", errors.ErrExtractionFailed, query)
	}
	return s.yt.StreamPipe(ctx, results[0].URL, opts)
}

// searchQueryFor builds the "artist title" query for a Spotify track URL
func (s *Spotify) searchQueryFor(ctx context.Context, u string) (string, error) {
	m := spotifyTrackRegex.FindStringSubmatch(u)
	if m == nil {
		return "", fmt.Errorf("%w: not a Spotify track URL", errors.ErrExtractionFailed)
	}
	if s.api == nil {
		return "", fmt.Errorf("%w: spotify credentials not configured", errors.ErrExtractionFailed)
	}

	track, err := s.api.getTrack(ctx, m[1])
	if err != nil {
		return "", err
	}
	return track.searchQuery(), nil
}

// IsBundleURL reports whether the URL is a Spotify album or playlist
func (s *Spotify) IsBundleURL(u string) bool {
	return spotifyPlaylistRegex.MatchString(u) || spotifyAlbumRegex.MatchString(u)
}

// ExpandBundle resolves an album/playlist into tracks. Each track keeps its
// Spotify URL so playback re-enters this extractor.
func (s *Spotify) ExpandBundle(ctx context.Context, u string, limit int) ([]*entities.Track, error) {
	if s.api == nil {
		return nil, fmt.Errorf("%w: spotify credentials not configured", errors.ErrExtractionFailed)
	}

	var (
		items []spotifyTrack
		err   error
	)
	if m := spotifyPlaylistRegex.FindStringSubmatch(u); m != nil {
		items, err = s.api.getPlaylistTracks(ctx, m[1], limit)
	} else if m := spotifyAlbumRegex.FindStringSubmatch(u); m != nil {
		items, err = s.api.getAlbumTracks(ctx, m[1], limit)
	} else {
		return nil, fmt.Errorf("%w: not a Spotify bundle URL", errors.ErrExtractionFailed)
	}
	if err != nil {
		return nil, err
	}

	tracks := make([]*entities.Track, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, &entities.Track{
			Title:     it.Name,
			URL:       "https://open.spotify.com/track/" + it.ID,
			Artist:    it.artistName(),
			DurationS: it.DurationMs / 1000,
			Provider:  valueobjects.ProviderSpotify,
		})
	}
	return tracks, nil
}

// --- Spotify Web API client (client-credentials flow) ---

type spotifyTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

func (t *spotifyTrack) artistName() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

func (t *spotifyTrack) searchQuery() string {
	if a := t.artistName(); a != "" {
		return a + " " + t.Name
	}
	return t.Name
}

type spotifyAPI struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func newSpotifyAPI(clientID, clientSecret string) *spotifyAPI {
	return &spotifyAPI{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// token returns a valid access token, refreshing when expired
func (a *spotifyAPI) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://accounts.spotify.com/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(a.clientID + ":" + a.clientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: spotify token: %v", errors.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: spotify token endpoint returned %s", errors.ErrNetworkError, resp.Status)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}

	a.accessToken = tok.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return a.accessToken, nil
}

// get performs an authenticated GET against the Web API
func (a *spotifyAPI) get(ctx context.Context, endpoint string, out interface{}) error {
	tok, err := a.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.spotify.com/v1"+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: spotify api: %v", errors.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: spotify api returned %s: %s", errors.ErrExtractionFailed, resp.Status, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *spotifyAPI) getTrack(ctx context.Context, id string) (*spotifyTrack, error) {
	var t spotifyTrack
	if err := a.get(ctx, "/tracks/"+id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (a *spotifyAPI) getPlaylistTracks(ctx context.Context, id string, limit int) ([]spotifyTrack, error) {
	var out struct {
		Items []struct {
			Track spotifyTrack `json:"track"`
		} `json:"items"`
	}
	if err := a.get(ctx, fmt.Sprintf("/playlists/%s/tracks?limit=%d", id, limit), &out); err != nil {
		return nil, err
	}
	tracks := make([]spotifyTrack, 0, len(out.Items))
	for _, it := range out.Items {
		tracks = append(tracks, it.Track)
	}
	return tracks, nil
}

func (a *spotifyAPI) getAlbumTracks(ctx context.Context, id string, limit int) ([]spotifyTrack, error) {
	var out struct {
		Items []spotifyTrack `json:"items"`
	}
	if err := a.get(ctx, fmt.Sprintf("/albums/%s/tracks?limit=%d", id, limit), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

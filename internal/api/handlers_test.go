package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/paul-berdier/greg-voice/internal/api"
	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/engine"
	"github.com/paul-berdier/greg-voice/internal/extractor"
	"github.com/paul-berdier/greg-voice/internal/metadata"
	"github.com/paul-berdier/greg-voice/internal/presence"
	"github.com/paul-berdier/greg-voice/internal/priority"
	"github.com/paul-berdier/greg-voice/internal/queue"
	"github.com/paul-berdier/greg-voice/internal/voice"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

// --- fakes ---

type fakeDirectory struct {
	members map[string]*priority.Member
}

func (d *fakeDirectory) Member(guildID, userID string) (*priority.Member, error) {
	if m, ok := d.members[userID]; ok {
		return m, nil
	}
	return &priority.Member{ID: userID}, nil
}

func (d *fakeDirectory) GuildExists(guildID string) bool { return true }

type fakeSession struct {
	mu        sync.Mutex
	connected bool
	channel   string
	playing   bool
	paused    bool
	onFinish  voice.FinishFunc
}

func (s *fakeSession) EnsureConnected(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected, s.channel = true, channelID
	return nil
}
func (s *fakeSession) IsConnected() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.connected }
func (s *fakeSession) CurrentChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}
func (s *fakeSession) Play(handle *extractor.SourceHandle, onFinish voice.FinishFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing || s.paused {
		return voice.ErrAlreadyPlaying
	}
	s.playing, s.onFinish = true, onFinish
	return nil
}
func (s *fakeSession) Stop() {
	s.mu.Lock()
	fn := s.onFinish
	s.onFinish = nil
	s.playing, s.paused = false, false
	s.mu.Unlock()
	if fn != nil {
		fn(nil)
	}
}
func (s *fakeSession) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return false
	}
	s.playing, s.paused = false, true
	return true
}
func (s *fakeSession) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return false
	}
	s.playing, s.paused = true, false
	return true
}
func (s *fakeSession) IsPlaying() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.playing }
func (s *fakeSession) IsPaused() bool  { s.mu.Lock(); defer s.mu.Unlock(); return s.paused }

type fakeProvider struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
}

func (p *fakeProvider) Session(guildID string) voice.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessions == nil {
		p.sessions = make(map[string]*fakeSession)
	}
	if s, ok := p.sessions[guildID]; ok {
		return s
	}
	s := &fakeSession{}
	p.sessions[guildID] = s
	return s
}

type fakeSource struct{}

func (f *fakeSource) IsBundleURL(url string) bool { return false }
func (f *fakeSource) ExpandBundle(ctx context.Context, url string, limit int) ([]*entities.Track, error) {
	return nil, nil
}
func (f *fakeSource) Resolve(ctx context.Context, track *entities.Track, opts extractor.Options) (*extractor.SourceHandle, string, error) {
	return extractor.NewDirectHandle("resolved://"+track.Title, nil, ""), "", nil
}

// --- harness ---

type apiHarness struct {
	server *httptest.Server
	hub    *presence.Hub
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})

	snap, err := queue.NewFileSnapshotter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := queue.NewStore(snap, log)

	dir := &fakeDirectory{members: map[string]*priority.Member{
		"dj":    {ID: "dj", Roles: []string{"DJ"}},
		"voicy": {ID: "voicy", VoiceChannelID: "vc1"},
		"pleb":  {ID: "pleb"},
	}}
	resolver := priority.NewResolver(dir, nil, "")

	yt := extractor.NewYouTube("yt-dlp", log)
	sc := extractor.NewSoundCloud("yt-dlp", log)
	sp := extractor.NewSpotify("", "", yt, log)
	registry := extractor.NewRegistry(yt, sc, sp, log)
	normalizer := extractor.NewNormalizer(registry, metadata.NewClient(log), log)

	hub := presence.NewHub(presence.NewRegistry(time.Minute), log)

	eng := engine.New(store, resolver, dir, &fakeSource{}, normalizer, &fakeProvider{}, hub, nil, engine.Config{
		PerUserCap:     10,
		CommandTimeout: 2 * time.Second,
	}, log)

	srv := api.NewServer(eng, hub, nil, nil, log)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &apiHarness{server: ts, hub: hub}
}

func (h *apiHarness) post(t *testing.T, path string, body map[string]interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (h *apiHarness) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// --- tests ---

func TestGetPlaylistRequiresGuildID(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.get(t, "/playlist")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if out["error"] != "MISSING_GUILD_ID" {
		t.Errorf("Expected MISSING_GUILD_ID, got %v", out["error"])
	}
}

func TestGetPlaylistReturnsState(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.get(t, "/playlist?guild_id=g1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	state, ok := out["state"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected a state object, got %v", out)
	}
	if state["guild_id"] != "g1" {
		t.Errorf("State should carry the guild id, got %v", state["guild_id"])
	}
}

func TestQueueAdd(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.post(t, "/queue/add", map[string]interface{}{
		"guild_id": "g1",
		"user_id":  "pleb",
		"query":    "some song",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, out)
	}
	if out["ok"] != true {
		t.Errorf("Expected ok=true, got %v", out)
	}
	autoplay, ok := out["autoplay"].(map[string]interface{})
	if !ok {
		t.Fatal("First enqueue should report an autoplay attempt")
	}
	if autoplay["reason"] != "USER_NOT_IN_VOICE" {
		t.Errorf("Expected USER_NOT_IN_VOICE autoplay reason, got %v", autoplay["reason"])
	}
}

func TestQueueAddRejectsEmptyInput(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.post(t, "/queue/add", map[string]interface{}{
		"guild_id": "g1",
		"user_id":  "pleb",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d (%v)", resp.StatusCode, out)
	}
}

func TestQueueAddNumericIDs(t *testing.T) {
	h := newAPIHarness(t)

	resp, _ := h.post(t, "/queue/add", map[string]interface{}{
		"guild_id": 123456789,
		"user_id":  987654321,
		"title":    "numeric ids",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Numeric ids should be accepted, got %d", resp.StatusCode)
	}
}

func TestGuildIDHeaderPrecedence(t *testing.T) {
	h := newAPIHarness(t)

	data, _ := json.Marshal(map[string]interface{}{"user_id": "pleb", "title": "x"})
	req, _ := http.NewRequest(http.MethodPost, h.server.URL+"/queue/add", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guild-ID", "gHeader")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 with header guild id, got %d", resp.StatusCode)
	}

	_, out := h.get(t, "/playlist?guild_id=gHeader")
	state := out["state"].(map[string]interface{})
	queueList, _ := state["queue"].([]interface{})
	if len(queueList) != 1 {
		t.Errorf("Track should land in the header-named guild, got %v", state["queue"])
	}
}

func TestSkipRequiresUserID(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.post(t, "/queue/skip", map[string]interface{}{"guild_id": "g1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if out["error"] != "MISSING_USER_ID" {
		t.Errorf("Expected MISSING_USER_ID, got %v", out["error"])
	}
}

func TestMoveForbiddenAcrossBoundary(t *testing.T) {
	h := newAPIHarness(t)

	h.post(t, "/queue/add", map[string]interface{}{"guild_id": "g1", "user_id": "dj", "title": "priority item"})
	h.post(t, "/queue/add", map[string]interface{}{"guild_id": "g1", "user_id": "pleb", "title": "normal item"})

	resp, out := h.post(t, "/queue/move", map[string]interface{}{
		"guild_id": "g1", "user_id": "pleb", "src": 0, "dst": 1,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %d (%v)", resp.StatusCode, out)
	}
	if out["error"] != "PRIORITY_FORBIDDEN" {
		t.Errorf("Expected PRIORITY_FORBIDDEN, got %v", out["error"])
	}
}

func TestRemoveOutOfRangeConflicts(t *testing.T) {
	h := newAPIHarness(t)

	resp, _ := h.post(t, "/queue/remove", map[string]interface{}{
		"guild_id": "g1", "user_id": "pleb", "index": 7,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for out-of-range remove, got %d", resp.StatusCode)
	}
}

func TestRemoveRequiresIndex(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.post(t, "/queue/remove", map[string]interface{}{
		"guild_id": "g1", "user_id": "pleb",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if out["error"] != "MISSING_INDEX" {
		t.Errorf("Expected MISSING_INDEX, got %v", out["error"])
	}
}

func TestRepeatToggle(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.post(t, "/playlist/repeat", map[string]interface{}{
		"guild_id": "g1", "mode": "on",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if out["repeat_all"] != true {
		t.Errorf("Expected repeat_all=true, got %v", out)
	}
}

func TestPlaylistPlayStartsPlayback(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.post(t, "/playlist/play", map[string]interface{}{
		"guild_id": "g1", "user_id": "voicy", "title": "banger",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, out)
	}

	_, stateOut := h.get(t, "/playlist?guild_id=g1")
	state := stateOut["state"].(map[string]interface{})
	current, _ := state["current"].(map[string]interface{})
	if current == nil || current["title"] != "banger" {
		t.Errorf("Expected banger to be current, got %v", state["current"])
	}
}

func TestPlaylistPlayUserNotInVoice(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.post(t, "/playlist/play", map[string]interface{}{
		"guild_id": "g1", "user_id": "pleb", "title": "banger",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
	if out["error"] != "USER_NOT_IN_VOICE" {
		t.Errorf("Expected USER_NOT_IN_VOICE, got %v", out["error"])
	}
}

func TestVoiceDebug(t *testing.T) {
	h := newAPIHarness(t)

	resp, out := h.get(t, "/voice/debug?guild_id=g1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	debug, ok := out["debug"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected debug payload, got %v", out)
	}
	if debug["guild_id"] != "g1" {
		t.Errorf("Debug should name the guild, got %v", debug["guild_id"])
	}
}

func TestHealthz(t *testing.T) {
	h := newAPIHarness(t)

	resp, _ := h.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from healthz, got %d", resp.StatusCode)
	}
}

func TestWebSocketOverlayFlow(t *testing.T) {
	h := newAPIHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(h.server.URL, "http://", "ws://", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	readEvent := func() presence.Envelope {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var env presence.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		return env
	}

	if env := readEvent(); env.Event != "connected" {
		t.Fatalf("Expected connected frame, got %s", env.Event)
	}

	register, _ := json.Marshal(map[string]interface{}{
		"event": "overlay_register",
		"data":  map[string]interface{}{"user_id": "u1", "guild_id": "g1"},
	})
	if err := conn.Write(ctx, websocket.MessageText, register); err != nil {
		t.Fatal(err)
	}
	if env := readEvent(); env.Event != "overlay_registered" {
		t.Fatalf("Expected overlay_registered, got %s", env.Event)
	}

	h.hub.BroadcastPlaylistUpdate("g1", map[string]string{"ping": "pong"})
	if env := readEvent(); env.Event != "playlist_update" {
		t.Fatalf("Expected playlist_update, got %s", env.Event)
	}

	ping, _ := json.Marshal(map[string]interface{}{"event": "overlay_ping"})
	if err := conn.Write(ctx, websocket.MessageText, ping); err != nil {
		t.Fatal(err)
	}
	if env := readEvent(); env.Event != "pong" {
		t.Fatalf("Expected pong, got %s", env.Event)
	}
}

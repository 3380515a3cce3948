package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	"github.com/paul-berdier/greg-voice/internal/domain/valueobjects"
	errs "github.com/paul-berdier/greg-voice/internal/errors"
	"github.com/paul-berdier/greg-voice/internal/extractor"
	"github.com/paul-berdier/greg-voice/internal/validation"
)

// fail writes the taxonomy-mapped error response
func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(errs.HTTPStatus(err), gin.H{"ok": false, "error": errs.Code(err)})
}

// trackBody is the request item shape shared by queue/add and playlist/play
type trackBody struct {
	GuildID  FlexString `json:"guild_id"`
	UserID   FlexString `json:"user_id"`
	Query    string     `json:"query"`
	URL      string     `json:"url"`
	Title    string     `json:"title"`
	Artist   string     `json:"artist"`
	Thumb    string     `json:"thumb"`
	Duration FlexString `json:"duration"`
	Provider string     `json:"provider"`
}

// item builds the engine's track item from the request body. Free text
// lands in the title and is resolved as a search at play time.
func (b *trackBody) item() *entities.Track {
	raw := validation.SanitizeInput(b.URL)
	if raw == "" {
		raw = validation.SanitizeInput(b.Query)
	}
	if raw == "" {
		raw = validation.SanitizeInput(b.Title)
	}

	t := &entities.Track{
		Artist:    b.Artist,
		Thumbnail: b.Thumb,
		DurationS: extractor.ParseDurationSeconds(b.Duration.String()),
		Provider:  valueobjects.Provider(b.Provider),
	}
	if isURL(raw) {
		t.URL = raw
		t.Title = b.Title
	} else {
		t.Title = raw
	}
	return t
}

func (b *trackBody) empty() bool {
	return b.URL == "" && b.Query == "" && b.Title == ""
}

// handleGetPlaylist serves GET /playlist?guild_id
func (s *Server) handleGetPlaylist(c *gin.Context) {
	gid := guildIDFrom(c, "")
	if gid == "" {
		s.fail(c, errs.ErrMissingGuildID)
		return
	}

	state, err := s.engine.GetState(c.Request.Context(), gid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "state": state})
}

// handleQueueAdd serves POST /queue/add
func (s *Server) handleQueueAdd(c *gin.Context) {
	var body trackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, errs.ErrBadArgument)
		return
	}
	if body.empty() {
		s.fail(c, errs.ErrBadArgument)
		return
	}

	gid := guildIDFrom(c, body.GuildID)
	uid := userIDFrom(c, body.UserID)
	if gid == "" {
		s.fail(c, errs.ErrMissingGuildID)
		return
	}
	if uid == "" {
		s.fail(c, errs.ErrMissingUserID)
		return
	}

	res, err := s.engine.Enqueue(c.Request.Context(), gid, uid, body.item())
	if err != nil {
		s.fail(c, err)
		return
	}

	out := gin.H{"ok": true, "result": res}
	if res.Autoplay != nil {
		out["autoplay"] = res.Autoplay
	}
	c.JSON(http.StatusOK, out)
}

// controlBody is the {guild_id, user_id} shape of the simple control ops
type controlBody struct {
	GuildID FlexString `json:"guild_id"`
	UserID  FlexString `json:"user_id"`
	Mode    string     `json:"mode"`
	Index   FlexInt    `json:"index"`
	Src     FlexInt    `json:"src"`
	Dst     FlexInt    `json:"dst"`
}

// parseControl extracts and validates guild and user ids
func (s *Server) parseControl(c *gin.Context, needUser bool) (*controlBody, string, string, bool) {
	var body controlBody
	_ = c.ShouldBindJSON(&body) // empty body is fine when ids come from query/header

	gid := guildIDFrom(c, body.GuildID)
	uid := userIDFrom(c, body.UserID)
	if gid == "" {
		s.fail(c, errs.ErrMissingGuildID)
		return nil, "", "", false
	}
	if needUser && uid == "" {
		s.fail(c, errs.ErrMissingUserID)
		return nil, "", "", false
	}
	return &body, gid, uid, true
}

// handleQueueSkip serves POST /queue/skip
func (s *Server) handleQueueSkip(c *gin.Context) {
	_, gid, uid, ok := s.parseControl(c, true)
	if !ok {
		return
	}
	if err := s.engine.Skip(c.Request.Context(), gid, uid); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleQueueStop serves POST /queue/stop
func (s *Server) handleQueueStop(c *gin.Context) {
	_, gid, uid, ok := s.parseControl(c, true)
	if !ok {
		return
	}
	if err := s.engine.Stop(c.Request.Context(), gid, uid); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleQueueRemove serves POST /queue/remove
func (s *Server) handleQueueRemove(c *gin.Context) {
	body, gid, uid, ok := s.parseControl(c, true)
	if !ok {
		return
	}
	if !body.Index.Set {
		s.fail(c, errs.ErrMissingIndex)
		return
	}

	removed, err := s.engine.RemoveAt(c.Request.Context(), gid, uid, body.Index.Value)
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	if !removed {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"ok": removed})
}

// handleQueueMove serves POST /queue/move
func (s *Server) handleQueueMove(c *gin.Context) {
	body, gid, uid, ok := s.parseControl(c, true)
	if !ok {
		return
	}
	if !body.Src.Set || !body.Dst.Set {
		s.fail(c, errs.ErrMissingIndex)
		return
	}

	moved, err := s.engine.Move(c.Request.Context(), gid, uid, body.Src.Value, body.Dst.Value)
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	if !moved {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"ok": moved})
}

// handlePlaylistPlay serves POST /playlist/play
func (s *Server) handlePlaylistPlay(c *gin.Context) {
	var body trackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, errs.ErrBadArgument)
		return
	}
	if body.empty() {
		s.fail(c, errs.ErrBadArgument)
		return
	}

	gid := guildIDFrom(c, body.GuildID)
	uid := userIDFrom(c, body.UserID)
	if gid == "" {
		s.fail(c, errs.ErrMissingGuildID)
		return
	}
	if uid == "" {
		s.fail(c, errs.ErrMissingUserID)
		return
	}

	res, err := s.engine.PlayForUser(c.Request.Context(), gid, uid, body.item())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

// handlePlaylistPlayAt serves POST /playlist/play_at
func (s *Server) handlePlaylistPlayAt(c *gin.Context) {
	body, gid, uid, ok := s.parseControl(c, true)
	if !ok {
		return
	}
	if !body.Index.Set {
		s.fail(c, errs.ErrMissingIndex)
		return
	}

	if err := s.engine.PlayAt(c.Request.Context(), gid, uid, body.Index.Value); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleTogglePause serves POST /playlist/toggle_pause
func (s *Server) handleTogglePause(c *gin.Context) {
	_, gid, uid, ok := s.parseControl(c, true)
	if !ok {
		return
	}

	action, err := s.engine.TogglePause(c.Request.Context(), gid, uid)
	if err != nil {
		s.fail(c, err)
		return
	}
	if action == "" {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "action": "noop"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "action": action})
}

// handleRepeat serves POST /playlist/repeat
func (s *Server) handleRepeat(c *gin.Context) {
	body, gid, _, ok := s.parseControl(c, false)
	if !ok {
		return
	}

	val, err := s.engine.ToggleRepeat(c.Request.Context(), gid, body.Mode)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "repeat_all": val})
}

// handleRestart serves POST /playlist/restart
func (s *Server) handleRestart(c *gin.Context) {
	_, gid, uid, ok := s.parseControl(c, true)
	if !ok {
		return
	}
	if err := s.engine.Restart(c.Request.Context(), gid, uid); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleMusicMode serves POST /playlist/music_mode
func (s *Server) handleMusicMode(c *gin.Context) {
	body, gid, _, ok := s.parseControl(c, false)
	if !ok {
		return
	}

	music, err := s.engine.SetMusicMode(c.Request.Context(), gid, body.Mode)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "music": music})
}

// handleVoiceJoin serves POST /voice/join
func (s *Server) handleVoiceJoin(c *gin.Context) {
	_, gid, uid, ok := s.parseControl(c, true)
	if !ok {
		return
	}
	if err := s.engine.JoinVoice(c.Request.Context(), gid, uid); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleVoiceDebug serves GET /voice/debug
func (s *Server) handleVoiceDebug(c *gin.Context) {
	gid := guildIDFrom(c, "")
	if gid == "" {
		s.fail(c, errs.ErrMissingGuildID)
		return
	}

	debug, err := s.engine.Debug(c.Request.Context(), gid)
	if err != nil {
		s.fail(c, err)
		return
	}
	debug["presence"] = s.hub.Stats()
	c.JSON(http.StatusOK, gin.H{"ok": true, "debug": debug})
}

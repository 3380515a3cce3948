package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paul-berdier/greg-voice/internal/engine"
	"github.com/paul-berdier/greg-voice/internal/metrics"
	"github.com/paul-berdier/greg-voice/internal/presence"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

// ReadyChecker is a named readiness probe evaluated by GET /readyz
type ReadyChecker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the HTTP control surface. It validates requests, forwards them
// to the engine and maps taxonomy errors onto HTTP statuses. It never
// touches engine state directly.
type Server struct {
	engine   *engine.Engine
	hub      *presence.Hub
	metrics  *metrics.Metrics
	checkers []ReadyChecker
	logger   *logger.Logger
}

// NewServer wires the control API
func NewServer(eng *engine.Engine, hub *presence.Hub, m *metrics.Metrics, checkers []ReadyChecker, log *logger.Logger) *Server {
	return &Server{
		engine:   eng,
		hub:      hub,
		metrics:  m,
		checkers: checkers,
		logger:   log,
	}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/readyz", s.handleReadyz)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	r.GET("/playlist", s.handleGetPlaylist)
	r.POST("/queue/add", s.handleQueueAdd)
	r.POST("/queue/skip", s.handleQueueSkip)
	r.POST("/queue/stop", s.handleQueueStop)
	r.POST("/queue/remove", s.handleQueueRemove)
	r.POST("/queue/move", s.handleQueueMove)

	r.POST("/playlist/play", s.handlePlaylistPlay)
	r.POST("/playlist/play_at", s.handlePlaylistPlayAt)
	r.POST("/playlist/toggle_pause", s.handleTogglePause)
	r.POST("/playlist/repeat", s.handleRepeat)
	r.POST("/playlist/restart", s.handleRestart)
	r.POST("/playlist/music_mode", s.handleMusicMode)

	r.POST("/voice/join", s.handleVoiceJoin)
	r.GET("/voice/debug", s.handleVoiceDebug)

	r.GET("/ws", s.handleWS)

	return r
}

// handleHealthz is the liveness probe
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReadyz evaluates every registered checker
func (s *Server) handleReadyz(c *gin.Context) {
	checks := make(map[string]string, len(s.checkers))
	status := http.StatusOK

	for _, chk := range s.checkers {
		if err := chk.Check(c.Request.Context()); err != nil {
			checks[chk.Name] = "fail: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[chk.Name] = "ok"
		}
	}

	body := gin.H{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "fail"
	}
	c.JSON(status, body)
}

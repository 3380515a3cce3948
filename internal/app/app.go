package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/paul-berdier/greg-voice/internal/api"
	"github.com/paul-berdier/greg-voice/internal/config"
	"github.com/paul-berdier/greg-voice/internal/database"
	"github.com/paul-berdier/greg-voice/internal/engine"
	"github.com/paul-berdier/greg-voice/internal/extractor"
	"github.com/paul-berdier/greg-voice/internal/metadata"
	"github.com/paul-berdier/greg-voice/internal/metrics"
	"github.com/paul-berdier/greg-voice/internal/platform"
	"github.com/paul-berdier/greg-voice/internal/presence"
	"github.com/paul-berdier/greg-voice/internal/priority"
	"github.com/paul-berdier/greg-voice/internal/queue"
	"github.com/paul-berdier/greg-voice/internal/voice"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

// App owns every service of the controller. No process-wide singletons:
// everything is wired here and torn down in Stop.
type App struct {
	cfg    *config.Config
	logger *logger.Logger

	session       *discordgo.Session
	db            *database.DB
	store         *queue.Store
	hub           *presence.Hub
	engine        *engine.Engine
	voiceProvider *voice.DiscordProvider
	httpServer    *http.Server
}

// New wires the application
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates
	session.StateEnabled = true

	// Snapshot storage: Postgres when configured, JSON files otherwise
	var (
		db   *database.DB
		snap queue.Snapshotter
	)
	if cfg.DatabaseURL != "" {
		ctx := context.Background()
		db, err = database.Connect(ctx, database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		snap = database.NewSnapshotStore(db)
		log.Info("Using database for queue snapshots")
	} else {
		snap, err = queue.NewFileSnapshotter(cfg.PlaylistDir)
		if err != nil {
			return nil, err
		}
		log.Info("Using file-based queue snapshots")
	}

	store := queue.NewStore(snap, log)

	// Extraction pipeline
	yt := extractor.NewYouTube(cfg.YtDlpPath, log)
	sc := extractor.NewSoundCloud(cfg.YtDlpPath, log)
	sp := extractor.NewSpotify(cfg.SpotifyClientID, cfg.SpotifyClientSecret, yt, log)
	registry := extractor.NewRegistry(yt, sc, sp, log)
	normalizer := extractor.NewNormalizer(registry, metadata.NewClient(log), log)

	// Priority + presence
	dir := platform.NewDiscordDirectory(session, log)
	resolver := priority.NewResolver(dir, cfg.PriorityRoleWeights, cfg.OwnerID)
	hub := presence.NewHub(presence.NewRegistry(cfg.PresenceTTL), log)

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	voiceProvider := voice.NewDiscordProvider(session, cfg.FFmpegPath, cfg.IntroSound, log)

	eng := engine.New(store, resolver, dir, registry, normalizer, voiceProvider, hub, m, engine.Config{
		PerUserCap:     cfg.PerUserCap,
		CommandTimeout: cfg.CommandTimeout,
		RateLimitBPS:   cfg.RateLimitBPS,
		CookiesFile:    cfg.CookiesFile,
		EQPresets:      cfg.EQPresets,
	}, log)
	voiceProvider.SetIntroCallback(eng.SchedulePlayNext)

	checkers := []api.ReadyChecker{
		{Name: "discord", Check: func(ctx context.Context) error {
			if session.State == nil || session.State.User == nil {
				return fmt.Errorf("gateway session not ready")
			}
			return nil
		}},
	}
	if db != nil {
		checkers = append(checkers, api.ReadyChecker{Name: "database", Check: db.Health})
	}

	server := api.NewServer(eng, hub, m, checkers, log)

	app := &App{
		cfg:           cfg,
		logger:        log,
		session:       session,
		db:            db,
		store:         store,
		hub:           hub,
		engine:        eng,
		voiceProvider: voiceProvider,
		httpServer: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.Router(),
		},
	}

	session.AddHandler(app.onReady)
	return app, nil
}

// Run opens the gateway, serves HTTP and sweeps presence until ctx ends
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Opening Discord connection...")
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.WithField("addr", a.cfg.HTTPAddr).Info("HTTP API listening")
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.hub.StartSweeper(ctx, a.cfg.PresenceSweep)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown tears services down in dependency order
func (a *App) shutdown() {
	a.logger.Info("Shutting down services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("HTTP shutdown failed")
	}

	a.voiceProvider.CleanupAll()

	if a.db != nil {
		a.db.Close()
	}

	a.logger.Info("Closing Discord connection...")
	if err := a.session.Close(); err != nil {
		a.logger.WithError(err).Error("Failed to close Discord session")
	}
}

// onReady is called when the gateway session is ready
func (a *App) onReady(s *discordgo.Session, event *discordgo.Ready) {
	a.logger.Infof("Bot is ready! Logged in as %s", event.User.Username)
	a.logger.Infof("Connected to %d guilds", len(event.Guilds))

	if err := s.UpdateGameStatus(0, "🎵 /play"); err != nil {
		a.logger.WithError(err).Warn("Failed to update status")
	}
}

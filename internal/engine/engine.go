package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paul-berdier/greg-voice/internal/domain/entities"
	errs "github.com/paul-berdier/greg-voice/internal/errors"
	"github.com/paul-berdier/greg-voice/internal/extractor"
	"github.com/paul-berdier/greg-voice/internal/metrics"
	"github.com/paul-berdier/greg-voice/internal/priority"
	"github.com/paul-berdier/greg-voice/internal/queue"
	"github.com/paul-berdier/greg-voice/internal/voice"
	"github.com/paul-berdier/greg-voice/pkg/logger"
)

// Emitter receives every state broadcast the engine produces
type Emitter interface {
	BroadcastPlaylistUpdate(guildID string, payload interface{})
}

// SourceResolver is the engine's view of the extractor pipeline.
// Satisfied by *extractor.Registry.
type SourceResolver interface {
	IsBundleURL(url string) bool
	ExpandBundle(ctx context.Context, url string, limit int) ([]*entities.Track, error)
	Resolve(ctx context.Context, track *entities.Track, opts extractor.Options) (*extractor.SourceHandle, string, error)
}

// Config is the engine's policy knobs
type Config struct {
	PerUserCap     int
	CommandTimeout time.Duration
	BundleLimit    int
	RateLimitBPS   int
	CookiesFile    string
	EQPresets      map[string]string
}

// Engine is the per-guild playback engine. Each guild's state is owned by a
// single actor goroutine; commands are closures posted to the guild's inbox
// and executed serially, which is the per-guild mutual exclusion. Different
// guilds run fully in parallel.
type Engine struct {
	store      *queue.Store
	resolver   *priority.Resolver
	dir        priority.Directory
	registry   SourceResolver
	normalizer *extractor.Normalizer
	voice      voice.Provider
	emitter    Emitter
	metrics    *metrics.Metrics
	cfg        Config
	logger     *logger.Logger

	guilds map[string]*guildActor
	mu     sync.Mutex
}

// New wires the engine. emitter and metrics may be nil.
func New(
	store *queue.Store,
	resolver *priority.Resolver,
	dir priority.Directory,
	registry SourceResolver,
	normalizer *extractor.Normalizer,
	voiceProvider voice.Provider,
	emitter Emitter,
	m *metrics.Metrics,
	cfg Config,
	log *logger.Logger,
) *Engine {
	if cfg.PerUserCap <= 0 {
		cfg.PerUserCap = 10
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if cfg.BundleLimit <= 0 {
		cfg.BundleLimit = extractor.DefaultBundleLimit
	}
	return &Engine{
		store:      store,
		resolver:   resolver,
		dir:        dir,
		registry:   registry,
		normalizer: normalizer,
		voice:      voiceProvider,
		emitter:    emitter,
		metrics:    m,
		cfg:        cfg,
		logger:     log,
		guilds:     make(map[string]*guildActor),
	}
}

// guildState is everything one guild's actor owns
type guildState struct {
	guildID string

	session       voice.Session
	isPlaying     bool
	repeatAll     bool
	audioMode     string
	playStartedAt time.Time
	pausedSince   time.Time
	pausedTotal   time.Duration
	currentHandle *extractor.SourceHandle

	tickerCancel context.CancelFunc
}

// guildActor serializes all state access for one guild
type guildActor struct {
	guildID string
	cmds    chan func()
	state   *guildState
}

// actor returns the guild's actor, creating it on first reference
func (e *Engine) actor(guildID string) *guildActor {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a, ok := e.guilds[guildID]; ok {
		return a
	}
	a := &guildActor{
		guildID: guildID,
		cmds:    make(chan func(), 128),
		state:   &guildState{guildID: guildID, audioMode: "music"},
	}
	e.guilds[guildID] = a
	go e.runActor(a)
	return a
}

// runActor drains the inbox for the life of the process. A panicking
// command must not kill the actor: the recover keeps the guild serviceable
// and the panic surfaces as an internal error in the log.
func (e *Engine) runActor(a *guildActor) {
	for fn := range a.cmds {
		e.runSafe(a.guildID, fn)
	}
}

func (e *Engine) runSafe(guildID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("panic", r).Guild(guildID).Error("Engine command panicked")
		}
	}()
	fn()
}

// submit posts a command and waits for it to finish or for the deadline.
// A deadline miss abandons the wait; the command still runs to completion
// and its effects (state change, broadcast) land normally.
func (e *Engine) submit(ctx context.Context, guildID string, op string, fn func(g *guildState) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrEngineTimeout, op)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CommandTimeout)
		defer cancel()
	}

	a := e.actor(guildID)
	e.metrics.CommandProcessed(op)

	done := make(chan error, 1)
	cmd := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("engine command %s panicked: %v", op, r)
				panic(r)
			}
		}()
		done <- fn(a.state)
	}

	select {
	case a.cmds <- cmd:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", errs.ErrEngineTimeout, op)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", errs.ErrEngineTimeout, op)
	}
}

// submitAsync posts a command without waiting. Used by completion
// callbacks and the ticker, which must never block on a full inbox.
func (e *Engine) submitAsync(guildID string, fn func(g *guildState)) {
	a := e.actor(guildID)
	cmd := func() { fn(a.state) }
	select {
	case a.cmds <- cmd:
	default:
		go func() { a.cmds <- cmd }()
	}
}

// sessionFor lazily binds the guild's voice session
func (e *Engine) sessionFor(g *guildState) voice.Session {
	if g.session == nil {
		g.session = e.voice.Session(g.guildID)
	}
	return g.session
}

// extractorOptions builds the per-guild extraction options
func (e *Engine) extractorOptions(g *guildState) extractor.Options {
	return extractor.Options{
		CookiesFile:  e.cfg.CookiesFile,
		RateLimitBPS: e.cfg.RateLimitBPS,
		AudioFilter:  e.cfg.EQPresets[g.audioMode],
	}
}

// emitState broadcasts the full projected state for a guild. Runs inside
// the actor; a failing emitter must never leak into the command's result.
func (e *Engine) emitState(g *guildState) {
	if e.emitter == nil {
		return
	}
	payload := e.project(g)
	e.metrics.BroadcastSent()
	e.emitter.BroadcastPlaylistUpdate(g.guildID, payload)
}

// SchedulePlayNext asynchronously advances the queue. Wired into the voice
// provider's intro-completion callback and usable by event handlers.
func (e *Engine) SchedulePlayNext(guildID string) {
	e.submitAsync(guildID, func(g *guildState) {
		e.playNext(g)
	})
}

// ensureCanControl enforces the control-op authorization ordering:
// owner-of-currently-playing OR quota bypass OR strictly greater weight
// than the current owner's. Must run before any mutation.
func (e *Engine) ensureCanControl(g *guildState, requesterID string) error {
	if requesterID == "" {
		return nil
	}
	if e.resolver.BypassQuota(g.guildID, requesterID) {
		return nil
	}

	current := e.store.NowPlaying(g.guildID)
	if current != nil && current.RequestedBy == requesterID {
		return nil
	}
	if current == nil {
		return nil
	}

	ownerWeight := e.currentOwnerWeight(g, current)
	if !e.resolver.CanBumpOver(g.guildID, requesterID, ownerWeight) {
		return errs.ErrPriorityForbidden
	}
	return nil
}

// currentOwnerWeight is the weight protecting the currently playing track:
// the priority captured at enqueue, falling back to the owner's live weight.
func (e *Engine) currentOwnerWeight(g *guildState, current *entities.Track) int {
	if current == nil {
		return 0
	}
	if current.Priority > 0 {
		return current.Priority
	}
	if current.RequestedBy == "" {
		return 0
	}
	return e.resolver.Weight(g.guildID, current.RequestedBy)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
	"github.com/qianlnk/onenight/monitor"
	"github.com/qianlnk/onenight/store"
)

const (
	defaultSessionTTL = 24 * time.Hour
	sessionLockTTL    = 30 * time.Second
)

// ErrNotDiscussing rejects injected speech outside the day phase.
var ErrNotDiscussing = errors.New("speech is only accepted during the day")

// Archiver records finished games and looks them up after the live game has expired.
type Archiver interface {
	Record(ctx context.Context, sessionID string, result *models.GameResult, finishedAt time.Time) error
	Find(ctx context.Context, sessionID string) (*models.GameResult, error)
}

// Publisher pushes messages to a game's observers.
type Publisher interface {
	BroadcastToGame(gameID string, message interface{})
}

// CreateGameRequest describes a new game.
type CreateGameRequest struct {
	Players []string        `json:"players" binding:"required"`
	Mode    models.GameMode `json:"mode"`
	Seed    int64           `json:"seed"`
}

// StepReport is what one moderator step did.
type StepReport struct {
	Phase     string          `json:"phase"`
	NextPhase string          `json:"next_phase"`
	Decision  models.Decision `json:"decision"`
	Finished  bool            `json:"finished"`
}

// PlayerView is what a single player may see: the public log and its own memory.
type PlayerView struct {
	Phase        string              `json:"phase"`
	Players      []string            `json:"players"`
	PublicEvents []models.GameEvent  `json:"public_events"`
	Memory       models.PlayerMemory `json:"memory"`
	Result       *models.GameResult  `json:"result,omitempty"`
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// GameManager keeps games between steps. Every operation loads the snapshot,
// restores the Session, acts, saves the snapshot and publishes what became public.
type GameManager struct {
	store      store.SnapshotStore
	locker     store.Locker
	archive    Archiver
	publisher  Publisher
	metrics    *monitor.Metrics
	ttl        time.Duration
	mode       models.GameMode
	definition *models.GameDefinition
	opts       []SessionOption

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// ManagerOption configures a GameManager.
type ManagerOption func(*GameManager)

// WithLocker adds a distributed lock on top of the in-process one.
func WithLocker(l store.Locker) ManagerOption {
	return func(m *GameManager) { m.locker = l }
}

// WithArchive records every finished game in a.
func WithArchive(a Archiver) ManagerOption {
	return func(m *GameManager) { m.archive = a }
}

// WithPublisher pushes committed events and phase changes to p.
func WithPublisher(p Publisher) ManagerOption {
	return func(m *GameManager) { m.publisher = p }
}

// WithManagerMetrics tracks active games on metrics and passes it to every session.
func WithManagerMetrics(metrics *monitor.Metrics) ManagerOption {
	return func(m *GameManager) { m.metrics = metrics }
}

// WithTTL sets how long an idle game is kept.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *GameManager) { m.ttl = ttl }
}

// WithDefaultMode is used when a request names no mode.
func WithDefaultMode(mode models.GameMode) ManagerOption {
	return func(m *GameManager) { m.mode = mode }
}

// WithDefinition makes every new game use def instead of a built-in mode.
func WithDefinition(def *models.GameDefinition) ManagerOption {
	return func(m *GameManager) { m.definition = def }
}

// WithSessionOptions are applied to every restored Session.
func WithSessionOptions(opts ...SessionOption) ManagerOption {
	return func(m *GameManager) { m.opts = append(m.opts, opts...) }
}

// NewGameManager returns a manager backed by s.
func NewGameManager(s store.SnapshotStore, opts ...ManagerOption) *GameManager {
	m := &GameManager{
		store: s,
		ttl:   defaultSessionTTL,
		mode:  models.ClassicMode,
		locks: make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateGame deals a new game and stores it.
func (m *GameManager) CreateGame(ctx context.Context, req CreateGameRequest) (string, models.WorldState, error) {
	def, err := m.newDefinition(req)
	if err != nil {
		return "", models.WorldState{}, err
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	id := uuid.NewString()
	session, err := NewSession(id, def, req.Players, seed, m.sessionOptions()...)
	if err != nil {
		return "", models.WorldState{}, err
	}
	if err := m.store.Save(ctx, id, session.Snapshot(), m.ttl); err != nil {
		return "", models.WorldState{}, fmt.Errorf("failed to save game: %w", err)
	}

	m.metrics.IncActiveGames()
	logger.Log.Infow("game created", "session", id, "players", len(req.Players), "mode", req.Mode, "seed", seed)
	return id, session.World(), nil
}

func (m *GameManager) newDefinition(req CreateGameRequest) (*models.GameDefinition, error) {
	if m.definition != nil {
		def := cloneDefinition(m.definition)
		return &def, ValidateDefinition(&def, len(req.Players))
	}
	mode := req.Mode
	if mode == "" {
		mode = m.mode
	}
	return NewDefinition(mode, len(req.Players))
}

func (m *GameManager) sessionOptions() []SessionOption {
	opts := append([]SessionOption(nil), m.opts...)
	return append(opts, WithMetrics(m.metrics))
}

// Step runs one moderator step and dispatches it.
func (m *GameManager) Step(ctx context.Context, id string) (*StepReport, error) {
	var report *StepReport
	err := m.withSession(ctx, id, func(s *Session) error {
		if s.Finished() {
			return ErrGameFinished
		}
		phase := s.Phase()
		d, err := s.RunPhaseStep(ctx)
		if err != nil {
			return err
		}
		if err := s.Dispatch(ctx, d); err != nil {
			return err
		}
		report = &StepReport{Phase: phase, NextPhase: s.Phase(), Decision: d, Finished: s.Finished()}
		return nil
	})
	return report, err
}

// InjectSpeech publishes a human player's statement as a broadcast speech event.
func (m *GameManager) InjectSpeech(ctx context.Context, id, player, text, addressee string) error {
	return m.withSession(ctx, id, func(s *Session) error {
		if s.Finished() {
			return ErrGameFinished
		}
		if s.Phase() != models.PhaseDay {
			return ErrNotDiscussing
		}
		if _, ok := s.Player(player); !ok {
			return fmt.Errorf("%w: %q is not in this game", ErrInvalidPlayers, player)
		}
		ev := newEvent(models.EventSpeech, models.PhaseDay)
		ev.Actor = player
		ev.Target = addressee
		ev.Content = text
		return s.Dispatch(ctx, models.Decision{Events: []models.GameEvent{ev}})
	})
}

// World returns the public state of a game.
func (m *GameManager) World(ctx context.Context, id string) (models.WorldState, error) {
	snap, err := m.store.Get(ctx, id)
	if err != nil {
		return models.WorldState{}, err
	}
	return snap.World, nil
}

// PlayerView returns what player may see of a game.
func (m *GameManager) PlayerView(ctx context.Context, id, player string) (*PlayerView, error) {
	snap, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st, ok := snap.Players[player]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlayer, player)
	}
	return &PlayerView{
		Phase:        snap.World.Phase,
		Players:      snap.World.Players,
		PublicEvents: snap.World.PublicEvents,
		Memory:       st.Memory,
		Result:       snap.World.Result,
	}, nil
}

// Archived returns the recorded result of a finished game.
func (m *GameManager) Archived(ctx context.Context, id string) (*models.GameResult, error) {
	if m.archive == nil {
		return nil, ErrNoArchive
	}
	return m.archive.Find(ctx, id)
}

// Delete removes a game.
func (m *GameManager) Delete(ctx context.Context, id string) error {
	unlock, err := m.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	snap, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	if snap.World.Result == nil {
		m.metrics.DecActiveGames()
	}
	logger.Log.Infow("game deleted", "session", id)
	return nil
}

// withSession loads, restores, runs fn and saves. Nothing is saved when fn fails.
func (m *GameManager) withSession(ctx context.Context, id string, fn func(*Session) error) error {
	unlock, err := m.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	snap, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	session, err := RestoreSession(snap, m.sessionOptions()...)
	if err != nil {
		return err
	}

	published := len(snap.World.PublicEvents)
	phase := snap.World.Phase
	finished := snap.World.Result != nil

	if err := fn(session); err != nil {
		if errors.Is(err, ErrContractViolation) {
			logger.Log.Errorw("contract violation, game state not saved", "session", session.ID(), "phase", session.Phase(), "err", err)
		}
		return err
	}

	if err := m.store.Save(ctx, id, session.Snapshot(), m.ttl); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	world := session.World()
	m.publish(id, phase, world, published)
	if !finished && world.Result != nil {
		m.finish(ctx, session.ID(), world.Result)
	}
	return nil
}

func (m *GameManager) publish(id, previousPhase string, world models.WorldState, from int) {
	if m.publisher == nil {
		return
	}
	for _, ev := range world.PublicEvents[from:] {
		m.publisher.BroadcastToGame(id, GameMessage{Type: MessageEvent, GameID: id, Event: &ev})
	}
	if world.Phase != previousPhase {
		m.publisher.BroadcastToGame(id, GameMessage{Type: MessagePhase, GameID: id, Phase: world.Phase})
	}
}

func (m *GameManager) finish(ctx context.Context, id string, result *models.GameResult) {
	m.metrics.DecActiveGames()
	logger.Log.Infow("game finished", "session", id, "winner", result.Winner, "executed", result.Executed)
	if m.archive == nil {
		return
	}
	if err := m.archive.Record(ctx, id, result, time.Now()); err != nil {
		logger.Log.Warnw("failed to archive game", "session", id, "err", err)
	}
}

// lock serialises operations on one game: an in-process ref-counted mutex,
// then the distributed lock when one is configured.
func (m *GameManager) lock(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	release := func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}

	if m.locker == nil {
		return release, nil
	}
	unlock, err := m.locker.Lock(ctx, id, sessionLockTTL)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to lock game %s: %w", id, err)
	}
	return func() {
		if err := unlock(context.Background()); err != nil {
			logger.Log.Warnw("failed to release game lock", "session", id, "err", err)
		}
		release()
	}, nil
}

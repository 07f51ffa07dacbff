package services

import (
	"context"
	"fmt"

	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
	"github.com/qianlnk/onenight/monitor"
)

// Session is the single owner of a game's mutable state. All mutation goes
// through RunPlayerTurn, Dispatch and RunPhaseStep; the accessors return copies.
// A Session is not safe for concurrent use: callers serialise steps per game.
type Session struct {
	id       string
	def      *models.GameDefinition
	world    models.WorldState
	players  map[string]models.PlayerState
	assigned models.AssignedRoles
	gm       models.GMInternalState

	resolver  *ActionResolver
	pipeline  *playerPipeline
	moderator ModeratorCollaborators

	dayMinTurns       int
	dayMaxTurns       int
	beliefConcurrency int
	metrics           *monitor.Metrics
}

type sessionOptions struct {
	moderator         *ModeratorCollaborators
	players           *PlayerCollaborators
	dayMinTurns       int
	dayMaxTurns       int
	beliefConcurrency int
	metrics           *monitor.Metrics
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

// WithModeratorCollaborators replaces the rule-based moderator generators.
func WithModeratorCollaborators(c ModeratorCollaborators) SessionOption {
	return func(o *sessionOptions) { o.moderator = &c }
}

// WithPlayerCollaborators replaces the rule-based player generators.
func WithPlayerCollaborators(c PlayerCollaborators) SessionOption {
	return func(o *sessionOptions) { o.players = &c }
}

// WithDayTurns bounds the discussion. Zero keeps the default derived from the player count.
func WithDayTurns(min, max int) SessionOption {
	return func(o *sessionOptions) {
		o.dayMinTurns = min
		o.dayMaxTurns = max
	}
}

// WithBeliefConcurrency limits the parallel belief fan-out.
func WithBeliefConcurrency(n int) SessionOption {
	return func(o *sessionOptions) { o.beliefConcurrency = n }
}

// WithMetrics records review outcomes, collaborator failures and phase steps on m.
func WithMetrics(m *monitor.Metrics) SessionOption {
	return func(o *sessionOptions) { o.metrics = m }
}

// NewSession deals a new game and returns its Session.
func NewSession(sessionID string, def *models.GameDefinition, players []string, seed int64, opts ...SessionOption) (*Session, error) {
	snap, err := NewSnapshot(sessionID, def, players, seed)
	if err != nil {
		return nil, err
	}
	return RestoreSession(snap, opts...)
}

// RestoreSession rebuilds a Session from a snapshot. The snapshot is copied.
func RestoreSession(snap *models.Snapshot, opts ...SessionOption) (*Session, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrContractViolation)
	}
	o := sessionOptions{beliefConcurrency: 4}
	for _, opt := range opts {
		opt(&o)
	}

	def := cloneDefinition(&snap.Definition)
	if err := ValidateDefinition(&def, len(snap.World.Players)); err != nil {
		return nil, err
	}

	players := make(map[string]models.PlayerState, len(snap.Players))
	for name, st := range snap.Players {
		players[name] = st.Clone()
	}
	for _, name := range snap.World.Players {
		if _, ok := players[name]; !ok {
			return nil, fmt.Errorf("%w: no state for %q", ErrUnknownPlayer, name)
		}
	}

	s := &Session{
		id:                snap.SessionID,
		def:               &def,
		world:             snap.World.Clone(),
		players:           players,
		assigned:          snap.Assigned.Clone(),
		gm:                snap.GM.Clone(),
		dayMinTurns:       o.dayMinTurns,
		dayMaxTurns:       o.dayMaxTurns,
		beliefConcurrency: o.beliefConcurrency,
		metrics:           o.metrics,
	}
	if s.gm.Votes == nil {
		s.gm.Votes = map[string]string{}
	}

	s.moderator = DefaultModeratorCollaborators()
	if o.moderator != nil {
		s.moderator = *o.moderator
	}
	playerCollab := DefaultPlayerCollaborators(s.def)
	if o.players != nil {
		playerCollab = *o.players
	}
	s.resolver = NewActionResolver(s.def)
	s.pipeline = &playerPipeline{def: s.def, collab: playerCollab, metrics: s.metrics}
	return s, nil
}

// ID is the session identifier the game is stored under.
func (s *Session) ID() string {
	return s.id
}

// Phase is the committed current phase.
func (s *Session) Phase() string {
	return s.world.Phase
}

// World returns a copy of the public fact base.
func (s *Session) World() models.WorldState {
	return s.world.Clone()
}

// Player returns a copy of one player's committed state.
func (s *Session) Player(name string) (models.PlayerState, bool) {
	st, ok := s.players[name]
	if !ok {
		return models.PlayerState{}, false
	}
	return st.Clone(), true
}

// Result is nil until the game_end event is committed.
func (s *Session) Result() *models.GameResult {
	return s.world.Result.Clone()
}

// Finished reports whether the game result has been committed.
func (s *Session) Finished() bool {
	return s.world.Result != nil
}

// Snapshot returns a deep copy of everything needed to restore the session.
func (s *Session) Snapshot() *models.Snapshot {
	players := make(map[string]models.PlayerState, len(s.players))
	for name, st := range s.players {
		players[name] = st.Clone()
	}
	return &models.Snapshot{
		SessionID:  s.id,
		Definition: cloneDefinition(s.def),
		World:      s.world.Clone(),
		Players:    players,
		Assigned:   s.assigned.Clone(),
		GM:         s.gm.Clone(),
	}
}

func cloneDefinition(def *models.GameDefinition) models.GameDefinition {
	roles := make(map[models.Role]models.RoleSpec, len(def.Roles))
	for name, spec := range def.Roles {
		if spec.MaskedDivinationRole != nil {
			masked := *spec.MaskedDivinationRole
			spec.MaskedDivinationRole = &masked
		}
		roles[name] = spec
	}
	return models.GameDefinition{
		Roles:            roles,
		RoleDistribution: append([]models.Role(nil), def.RoleDistribution...),
		Phases:           append([]string(nil), def.Phases...),
	}
}

// RunPlayerTurn runs one player's pipeline on a private working copy and
// commits the returned state. An empty input is a no-op and returns nil.
func (s *Session) RunPlayerTurn(ctx context.Context, player string, input models.PlayerInput) (*models.PlayerOutput, error) {
	if input.Empty() {
		return nil, nil
	}
	committed, ok := s.players[player]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlayer, player)
	}

	working := committed.Clone()
	working.Input = input.Clone()
	working.Output = nil

	next, err := s.pipeline.run(ctx, working)
	if err != nil {
		return nil, err
	}

	out := next.Output
	// input and output live for this turn only
	next.Input = models.PlayerInput{}
	next.Output = nil
	s.players[player] = next
	return out, nil
}

// RunPhaseStep runs the moderator pipeline for the current phase once. The
// returned Decision is not applied; pass it to Dispatch. Moderator scratch
// state (plan, counters, review progress) is committed here.
func (s *Session) RunPhaseStep(ctx context.Context) (models.Decision, error) {
	phase := s.world.Phase
	var (
		d   models.Decision
		err error
	)
	switch phase {
	case models.PhaseNight:
		d, err = s.nightStep(ctx)
	case models.PhaseDay:
		d, err = s.dayStep(ctx)
	case models.PhaseVote:
		d, err = s.voteStep(ctx)
	case models.PhaseResult:
		d, err = s.resultStep(ctx)
	default:
		return models.Decision{}, fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}
	if err != nil {
		return models.Decision{}, err
	}
	s.metrics.ObservePhaseStep(phase)
	logger.Log.Debugw("phase step", "session", s.id, "phase", phase,
		"events", len(d.Events), "requests", len(d.Requests), "next", d.NextPhase)
	return d, nil
}

// sessionMutators is the view of the session handed to the ActionResolver.
type sessionMutators struct {
	s *Session
}

func (m sessionMutators) Phase() string {
	return m.s.world.Phase
}

func (m sessionMutators) AssignedRole(player string) (models.Role, bool) {
	role, ok := m.s.assigned[player]
	return role, ok
}

func (m sessionMutators) SwapRoles(a, b string) {
	m.s.assigned[a], m.s.assigned[b] = m.s.assigned[b], m.s.assigned[a]
}

func (m sessionMutators) NotifyPrivate(ctx context.Context, player string, ev models.GameEvent) error {
	_, err := m.s.RunPlayerTurn(ctx, player, models.PlayerInput{Event: &ev})
	return err
}

func (m sessionMutators) MarkNightDone(player string) {
	m.s.gm.NightPending = without(m.s.gm.NightPending, player)
}

func (m sessionMutators) RecordVote(player, target string) {
	m.s.gm.Votes[player] = target
	m.s.gm.VotePending = without(m.s.gm.VotePending, player)
}

func (m sessionMutators) AppendPending(ev models.GameEvent) {
	m.s.world.PendingEvents = append(m.s.world.PendingEvents, ev)
}

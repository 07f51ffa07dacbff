package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
	"golang.org/x/sync/errgroup"
)

// Dispatch applies a Decision in fixed order: flush pending events, distribute
// and publish the decision's events, run its requests through the resolver,
// then change phase.
func (s *Session) Dispatch(ctx context.Context, d models.Decision) error {
	if err := s.flushPending(ctx); err != nil {
		return err
	}
	if err := s.publish(ctx, d.Events); err != nil {
		return err
	}

	m := sessionMutators{s: s}
	for _, entry := range d.Requests {
		if _, ok := s.players[entry.Player]; !ok {
			return fmt.Errorf("%w: request for %q", ErrUnknownPlayer, entry.Player)
		}
		req := entry.Request
		out, err := s.RunPlayerTurn(ctx, entry.Player, models.PlayerInput{Request: &req})
		if err != nil {
			return err
		}
		if out == nil {
			continue
		}
		if err := s.resolver.Resolve(ctx, entry.Player, *out, m); err != nil {
			return err
		}
	}

	if d.NextPhase != "" {
		if !models.KnownPhase(d.NextPhase) {
			return fmt.Errorf("%w: %q", ErrUnknownPhase, d.NextPhase)
		}
		logger.Log.Infow("phase changed", "session", s.id, "from", s.world.Phase, "to", d.NextPhase)
		s.world.Phase = d.NextPhase
	}
	return nil
}

// flushPending hands every staged event to every player, then makes them public.
func (s *Session) flushPending(ctx context.Context) error {
	if len(s.world.PendingEvents) == 0 {
		return nil
	}
	pending := s.world.PendingEvents
	for i := range pending {
		for _, p := range s.world.Players {
			ev := pending[i].Clone()
			if _, err := s.RunPlayerTurn(ctx, p, models.PlayerInput{Event: &ev}); err != nil {
				return err
			}
		}
	}
	s.world.PublicEvents = append(s.world.PublicEvents, pending...)
	s.world.PendingEvents = []models.GameEvent{}
	return nil
}

// publish distributes the decision's events and appends them to the public
// log. Consecutive broadcastable events are observed by everyone first and
// then share one parallel belief update.
func (s *Session) publish(ctx context.Context, events []models.GameEvent) error {
	var batch []models.GameEvent
	committed := make([]models.GameEvent, 0, len(events))

	for _, ev := range events {
		if ev.Kind.Private() {
			return fmt.Errorf("%w: private event %q in a public decision", ErrContractViolation, ev.Kind)
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		ev = ev.Clone()
		committed = append(committed, ev)

		if ev.Kind.Broadcastable() {
			s.observeAll(ev)
			batch = append(batch, ev)
			continue
		}

		s.updateBeliefs(ctx, batch)
		batch = nil
		for _, p := range s.world.Players {
			e := ev.Clone()
			if _, err := s.RunPlayerTurn(ctx, p, models.PlayerInput{Event: &e}); err != nil {
				return err
			}
		}
	}
	s.updateBeliefs(ctx, batch)

	for _, ev := range committed {
		if ev.Kind == models.EventGameEnd && ev.Result != nil && s.world.Result == nil {
			s.world.Result = ev.Result.Clone()
			s.metrics.ObserveGameFinished(string(ev.Result.Winner))
		}
	}
	s.world.PublicEvents = append(s.world.PublicEvents, committed...)
	s.gm.EventCursor = len(s.world.PublicEvents)
	return nil
}

// observeAll records ev in every player's memory without running the pipeline.
func (s *Session) observeAll(ev models.GameEvent) {
	for _, p := range s.world.Players {
		st := s.players[p].Clone()
		st.Memory.ObservedEvents = append(st.Memory.ObservedEvents, ev.Clone())
		s.players[p] = st
	}
}

// updateBeliefs fans the belief generator out over all players for batch.
// Every worker reads a private copy of its player's memory; results are
// committed only after all workers have returned. A failed worker leaves its
// player's beliefs unchanged.
func (s *Session) updateBeliefs(ctx context.Context, batch []models.GameEvent) {
	if len(batch) == 0 {
		return
	}
	gen := s.pipeline.collab.Beliefs
	players := s.world.Players
	results := make([]models.Beliefs, len(players))
	start := time.Now()

	var g errgroup.Group
	if s.beliefConcurrency > 0 {
		g.SetLimit(s.beliefConcurrency)
	}
	for i, p := range players {
		mem := s.players[p].Memory.Clone()
		events := models.CloneEvents(batch)
		g.Go(func() error {
			b, err := generate(ctx, gen, BeliefContext{Memory: mem, Events: events})
			if err != nil {
				logger.Log.Warnw("belief update failed, keeping beliefs", "session", s.id, "player", p, "err", err)
				s.metrics.ObserveCollaboratorFailure("belief_update")
				return nil
			}
			results[i] = b
			return nil
		})
	}
	_ = g.Wait()
	s.metrics.ObserveBeliefFanout(time.Since(start))

	for i, p := range players {
		if results[i] == nil {
			continue
		}
		st := s.players[p].Clone()
		st.Memory.Beliefs = normalizeBeliefs(results[i], st.Memory.Self, st.Memory.SelfRole, st.Memory.Beliefs)
		s.players[p] = st
	}
}

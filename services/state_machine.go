package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
)

// nightStep plans the game once, announces the night and asks every player
// still owed a night action for it, in night order.
func (s *Session) nightStep(ctx context.Context) (models.Decision, error) {
	s.ensurePlan(ctx)

	var d models.Decision
	if !s.gm.NightStarted {
		s.gm.NightStarted = true
		s.gm.NightOrder = s.nightOrder()
		ev := newEvent(models.EventNightStarted, models.PhaseNight)
		ev.Content = "Night falls. Everyone close your eyes."
		d.Events = append(d.Events, ev)
	}

	if len(s.gm.NightPending) == 0 {
		d.NextPhase = s.def.NextPhase(models.PhaseNight)
		return d, nil
	}

	order := s.gm.NightOrder
	if len(order) == 0 {
		order = s.world.Players
	}
	for _, p := range order {
		if !contains(s.gm.NightPending, p) {
			continue
		}
		d.Requests = append(d.Requests, models.RequestEntry{
			Player:  p,
			Request: models.PlayerRequest{Action: models.ActionUseAbility, Prompt: "Use your night ability."},
		})
	}
	return d, nil
}

// ensurePlan generates the moderator plan on first use.
func (s *Session) ensurePlan(ctx context.Context) {
	if s.gm.Plan != nil {
		return
	}
	plan, err := generate(ctx, s.moderator.Planner, PlanContext{
		Players:    append([]string(nil), s.world.Players...),
		Assigned:   s.assigned.Clone(),
		Definition: s.def,
	})
	if err != nil || len(plan.Milestones) == 0 {
		if err != nil {
			logger.Log.Warnw("planner failed, using default plan", "session", s.id, "err", err)
			s.metrics.ObserveCollaboratorFailure("plan")
		}
		plan = DefaultPlan()
	}
	s.gm.Plan = plan.Clone()
}

// nightOrder sorts players by their role's night order, stable on seat order.
func (s *Session) nightOrder() []string {
	order := append([]string(nil), s.world.Players...)
	rank := func(p string) int {
		spec, _ := s.def.Spec(s.assigned[p])
		return spec.NightOrder
	}
	sort.SliceStable(order, func(i, j int) bool {
		return rank(order[i]) < rank(order[j])
	})
	return order
}

func (s *Session) voteStep(_ context.Context) (models.Decision, error) {
	var d models.Decision
	if !s.gm.VoteStarted {
		s.gm.VoteStarted = true
		ev := newEvent(models.EventVoteStarted, models.PhaseVote)
		ev.Content = "Discussion is over. Vote for the player you want to execute."
		d.Events = append(d.Events, ev)
	}

	if len(s.gm.VotePending) == 0 {
		d.NextPhase = s.def.NextPhase(models.PhaseVote)
		return d, nil
	}
	for _, p := range s.world.Players {
		if !contains(s.gm.VotePending, p) {
			continue
		}
		d.Requests = append(d.Requests, models.RequestEntry{
			Player:  p,
			Request: models.PlayerRequest{Action: models.ActionVote, Prompt: "Who do you vote for?"},
		})
	}
	return d, nil
}

// resultStep tallies the votes and announces the end of the game. Once a
// result is stamped it proposes nothing.
func (s *Session) resultStep(_ context.Context) (models.Decision, error) {
	if s.world.Result != nil {
		return models.Decision{}, nil
	}
	result := BuildResult(s.def, s.assigned, s.gm.Votes, s.world.Players)

	ev := newEvent(models.EventGameEnd, models.PhaseResult)
	ev.Result = result
	ev.Content = resultText(result)
	logger.Log.Infow("game over", "session", s.id, "winner", result.Winner, "executed", result.Executed)
	return models.Decision{Events: []models.GameEvent{ev}}, nil
}

func resultText(r *models.GameResult) string {
	executed := "nobody was executed"
	if len(r.Executed) > 0 {
		executed = strings.Join(r.Executed, ", ") + " executed"
	}
	return fmt.Sprintf("%s side wins (%s)", r.Winner, executed)
}

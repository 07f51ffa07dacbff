package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
	"github.com/qianlnk/onenight/monitor"
)

// playerPipeline turns one player's input into an output. It only ever sees
// the working copy of that player's state and the public role catalog.
type playerPipeline struct {
	def     *models.GameDefinition
	collab  PlayerCollaborators
	metrics *monitor.Metrics
}

func (pp *playerPipeline) run(ctx context.Context, st models.PlayerState) (models.PlayerState, error) {
	if ev := st.Input.Event; ev != nil {
		pp.observe(ctx, &st.Memory, *ev)
	}
	if req := st.Input.Request; req != nil {
		out, err := pp.respond(ctx, &st.Memory, *req)
		if err != nil {
			return st, err
		}
		st.Output = &out
	}
	return st, nil
}

// observe records the event, applies private knowledge and revises beliefs
// for events that carry information.
func (pp *playerPipeline) observe(ctx context.Context, mem *models.PlayerMemory, ev models.GameEvent) {
	mem.ObservedEvents = append(mem.ObservedEvents, ev)
	if mem.Beliefs == nil {
		mem.Beliefs = models.Beliefs{}
	}

	switch ev.Kind {
	case models.EventDivinationResult:
		if ev.Actor == mem.Self && ev.Target != "" {
			mem.Beliefs[ev.Target] = map[models.Role]float64{ev.Role: 1}
		}
		return
	case models.EventRoleSwapped:
		if ev.Actor == mem.Self && ev.Target != "" {
			oldRole := mem.SelfRole
			mem.SelfRole = ev.Role
			mem.Beliefs[mem.Self] = map[models.Role]float64{ev.Role: 1}
			mem.Beliefs[ev.Target] = map[models.Role]float64{oldRole: 1}
		}
		return
	}

	if !ev.Kind.Informative() {
		return
	}
	b, err := generate(ctx, pp.collab.Beliefs, BeliefContext{Memory: mem.Clone(), Events: []models.GameEvent{ev}})
	if err != nil {
		logger.Log.Warnw("belief update failed, keeping beliefs", "player", mem.Self, "event", ev.Kind, "err", err)
		pp.metrics.ObserveCollaboratorFailure("belief_update")
		return
	}
	mem.Beliefs = normalizeBeliefs(b, mem.Self, mem.SelfRole, mem.Beliefs)
}

func (pp *playerPipeline) respond(ctx context.Context, mem *models.PlayerMemory, req models.PlayerRequest) (models.PlayerOutput, error) {
	pp.summarize(ctx, mem)

	switch req.Action {
	case models.ActionSpeak:
		speech := pp.speak(ctx, mem, req.Prompt)
		return models.PlayerOutput{Action: models.ActionSpeak, Target: speech.Addressee, Content: speech.Text}, nil

	case models.ActionVote:
		target := pp.chooseTarget(ctx, mem, models.ActionVote, models.AbilityNone)
		return models.PlayerOutput{Action: models.ActionVote, Target: target}, nil

	case models.ActionUseAbility:
		spec, ok := pp.def.Spec(mem.SelfRole)
		if !ok {
			return models.PlayerOutput{}, fmt.Errorf("%w: role %q is not in the catalog", ErrInvalidDefinition, mem.SelfRole)
		}
		out := models.PlayerOutput{Action: models.ActionUseAbility, Ability: spec.Ability}
		switch spec.Ability {
		case models.AbilityNone:
		case models.AbilityDivination, models.AbilitySwap:
			out.Target = pp.chooseTarget(ctx, mem, models.ActionUseAbility, spec.Ability)
		default:
			return models.PlayerOutput{}, fmt.Errorf("%w: %q", ErrUnknownAbility, spec.Ability)
		}
		return out, nil

	case models.ActionDivine:
		return models.PlayerOutput{Action: models.ActionDivine}, nil

	default:
		return models.PlayerOutput{}, fmt.Errorf("%w: %q", ErrUnknownRequest, req.Action)
	}
}

// summarize folds newly observed events into the private summary. Same
// cursor discipline as the moderator log.
func (pp *playerPipeline) summarize(ctx context.Context, mem *models.PlayerMemory) {
	if mem.SummaryCursor >= len(mem.ObservedEvents) {
		return
	}
	summary, err := generate(ctx, pp.collab.Summarizer, SummaryContext{
		Previous: mem.Summary,
		Delta:    models.CloneEvents(mem.ObservedEvents[mem.SummaryCursor:]),
	})
	if err != nil {
		logger.Log.Warnw("player summary failed", "player", mem.Self, "err", err)
		pp.metrics.ObserveCollaboratorFailure("player_summary")
		return
	}
	mem.Summary = summary
	mem.SummaryCursor = len(mem.ObservedEvents)
}

func (pp *playerPipeline) speak(ctx context.Context, mem *models.PlayerMemory, prompt string) models.Speech {
	if !mem.SpeechReview.Active {
		draft, err := generate(ctx, pp.collab.Speaker, SpeechContext{Memory: mem.Clone(), Prompt: prompt})
		if err != nil || strings.TrimSpace(draft.Text) == "" {
			if err != nil {
				logger.Log.Warnw("speech writer failed, using fallback", "player", mem.Self, "err", err)
				pp.metrics.ObserveCollaboratorFailure("speech")
			}
			draft = fallbackSpeech(*mem)
		}
		Begin(&mem.SpeechReview, draft)
	}

	loop := RefineLoop[models.Speech]{
		Stage:    "speech",
		Reviewer: pp.collab.SpeechReviewer,
		Refiner:  pp.collab.SpeechRefiner,
		Metrics:  pp.metrics,
	}
	speech, _ := loop.Run(ctx, &mem.SpeechReview)
	if speech.Addressee == mem.Self || !contains(mem.Players, speech.Addressee) {
		speech.Addressee = ""
	}
	if strings.TrimSpace(speech.Text) == "" {
		speech = fallbackSpeech(*mem)
	}
	return speech
}

// chooseTarget asks the targeter and falls back to the belief heuristic when
// it fails or names someone who is not a candidate.
func (pp *playerPipeline) chooseTarget(ctx context.Context, mem *models.PlayerMemory, action models.ActionKind, ability models.AbilityType) string {
	candidates := without(mem.Players, mem.Self)
	target, err := generate(ctx, pp.collab.Targeter, TargetContext{
		Memory:     mem.Clone(),
		Action:     action,
		Ability:    ability,
		Candidates: append([]string(nil), candidates...),
	})
	if err == nil && contains(candidates, target) {
		return target
	}
	if err != nil {
		logger.Log.Warnw("target choice failed, using heuristic", "player", mem.Self, "action", action, "err", err)
		pp.metrics.ObserveCollaboratorFailure("target")
	} else {
		logger.Log.Warnw("target choice is not a candidate, using heuristic", "player", mem.Self, "target", target)
	}
	return heuristicTarget(pp.def, *mem, action, ability, candidates)
}

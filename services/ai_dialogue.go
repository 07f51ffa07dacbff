package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/qianlnk/onenight/models"
)

const (
	maxSpeechLength  = 280
	maxSummaryLines  = 20
	revealedWolfLine = "i am a werewolf"
)

// DefaultModeratorCollaborators returns the rule-based moderator generators.
func DefaultModeratorCollaborators() ModeratorCollaborators {
	return ModeratorCollaborators{
		Planner:         RulePlanner(),
		Summarizer:      RuleSummarizer(),
		Commenter:       RuleCommenter(),
		CommentReviewer: RuleCommentReviewer(),
		CommentRefiner:  RuleCommentRefiner(),
		Judge:           RuleMaturityJudge(),
		Closer:          RuleCloser(),
		Milestones:      KeywordMilestoneJudge,
	}
}

// DefaultPlayerCollaborators returns the rule-based player generators.
func DefaultPlayerCollaborators(def *models.GameDefinition) PlayerCollaborators {
	return PlayerCollaborators{
		Summarizer:     RuleSummarizer(),
		Speaker:        RuleSpeaker(def),
		SpeechReviewer: RuleSpeechReviewer(),
		SpeechRefiner:  RuleSpeechRefiner(),
		Targeter:       RuleTargeter(def),
		Beliefs:        RuleBeliefUpdater(def),
	}
}

// RulePlanner starts from the default plan and drops the seer milestone when
// no divination role is dealt.
func RulePlanner() Generator[PlanContext, models.ModeratorPlan] {
	return GeneratorFunc[PlanContext, models.ModeratorPlan](func(_ context.Context, in PlanContext) (models.ModeratorPlan, error) {
		plan := DefaultPlan()
		if in.Definition == nil {
			return plan, nil
		}
		hasSeer := false
		for _, role := range in.Definition.RoleDistribution {
			if spec, ok := in.Definition.Spec(role); ok && spec.Ability == models.AbilityDivination {
				hasSeer = true
				break
			}
		}
		if !hasSeer {
			kept := plan.Milestones[:0]
			for _, m := range plan.Milestones {
				if m.ID != "seer_claim" {
					kept = append(kept, m)
				}
			}
			plan.Milestones = kept
		}
		return plan, nil
	})
}

// RuleSummarizer keeps a rolling one-line-per-event log.
func RuleSummarizer() Generator[SummaryContext, string] {
	return GeneratorFunc[SummaryContext, string](func(_ context.Context, in SummaryContext) (string, error) {
		var lines []string
		if in.Previous != "" {
			lines = strings.Split(in.Previous, "\n")
		}
		for _, ev := range in.Delta {
			if line := describeEvent(ev); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > maxSummaryLines {
			lines = lines[len(lines)-maxSummaryLines:]
		}
		return strings.Join(lines, "\n"), nil
	})
}

func describeEvent(ev models.GameEvent) string {
	switch ev.Kind {
	case models.EventNightStarted:
		return "night started"
	case models.EventModeratorComment:
		return fmt.Sprintf("moderator gave the floor to %s", ev.Target)
	case models.EventModeratorClosing:
		return "moderator closed the discussion"
	case models.EventSpeech:
		return fmt.Sprintf("%s: %s", ev.Actor, ev.Content)
	case models.EventVoteStarted:
		return "vote started"
	case models.EventVote:
		return fmt.Sprintf("%s voted for %s", ev.Actor, ev.Target)
	case models.EventDivinationResult:
		return fmt.Sprintf("I divined %s: %s", ev.Target, ev.Role)
	case models.EventRoleSwapped:
		return fmt.Sprintf("I swapped with %s and am now %s", ev.Target, ev.Role)
	case models.EventGameEnd:
		return ev.Content
	}
	return ""
}

// RuleCommenter hands the floor over, steering toward milestones that have not happened yet.
func RuleCommenter() Generator[CommentContext, models.ModeratorComment] {
	return GeneratorFunc[CommentContext, models.ModeratorComment](func(_ context.Context, in CommentContext) (models.ModeratorComment, error) {
		if in.Turn <= 1 {
			return models.ModeratorComment{
				Speaker: in.Speaker,
				Text:    fmt.Sprintf("Good morning everyone. %s, tell us what happened to you last night.", in.Speaker),
			}, nil
		}
		if in.Plan != nil {
			for _, m := range in.Plan.Milestones {
				if m.Status.Rank() >= models.MilestoneStrong.Rank() {
					continue
				}
				switch m.ID {
				case "seer_claim":
					return models.ModeratorComment{Speaker: in.Speaker, Text: fmt.Sprintf("%s, is there a seer among us?", in.Speaker)}, nil
				case "accusation":
					return models.ModeratorComment{Speaker: in.Speaker, Text: fmt.Sprintf("%s, who do you suspect?", in.Speaker)}, nil
				}
			}
		}
		return models.ModeratorComment{Speaker: in.Speaker, Text: fmt.Sprintf("%s, your thoughts?", in.Speaker)}, nil
	})
}

// RuleCommentReviewer requires the comment to name its speaker.
func RuleCommentReviewer() Generator[models.ModeratorComment, Verdict] {
	return GeneratorFunc[models.ModeratorComment, Verdict](func(_ context.Context, c models.ModeratorComment) (Verdict, error) {
		if strings.TrimSpace(c.Text) == "" {
			return Verdict{Feedback: "the comment is empty"}, nil
		}
		if c.Speaker != "" && !strings.Contains(c.Text, c.Speaker) {
			return Verdict{Feedback: "name the next speaker"}, nil
		}
		return Verdict{Approved: true}, nil
	})
}

// RuleCommentRefiner makes sure a rejected moderator comment names its speaker.
func RuleCommentRefiner() Generator[Revision[models.ModeratorComment], models.ModeratorComment] {
	return GeneratorFunc[Revision[models.ModeratorComment], models.ModeratorComment](func(_ context.Context, r Revision[models.ModeratorComment]) (models.ModeratorComment, error) {
		c := r.Draft
		text := strings.TrimSpace(c.Text)
		if text == "" {
			text = "the floor is yours."
		}
		if c.Speaker != "" && !strings.Contains(text, c.Speaker) {
			text = fmt.Sprintf("%s, %s", c.Speaker, text)
		}
		c.Text = text
		return c, nil
	})
}

// RuleMaturityJudge calls the discussion mature once every milestone is at least strong.
func RuleMaturityJudge() Generator[MaturityContext, bool] {
	return GeneratorFunc[MaturityContext, bool](func(_ context.Context, in MaturityContext) (bool, error) {
		return milestonesMature(in.Plan), nil
	})
}

// RuleCloser announces the end of discussion and the start of the vote.
func RuleCloser() Generator[ClosingContext, string] {
	return GeneratorFunc[ClosingContext, string](func(_ context.Context, in ClosingContext) (string, error) {
		return fmt.Sprintf("We have heard %d statements. Time to vote.", in.Turns), nil
	})
}

// RuleSpeaker writes a speech from the player's role, knowledge and personality.
func RuleSpeaker(def *models.GameDefinition) Generator[SpeechContext, models.Speech] {
	return GeneratorFunc[SpeechContext, models.Speech](func(_ context.Context, in SpeechContext) (models.Speech, error) {
		return composeSpeech(def, in.Memory), nil
	})
}

func composeSpeech(def *models.GameDefinition, mem models.PlayerMemory) models.Speech {
	others := without(mem.Players, mem.Self)
	if len(others) == 0 {
		return models.Speech{Text: "I have nothing to add."}
	}
	wolves := daySideRoles(def, models.WerewolfSide)
	village := daySideRoles(def, models.VillageSide)

	if ev, ok := lastPrivate(mem, models.EventDivinationResult); ok {
		verdict := fmt.Sprintf("%s is a %s", ev.Target, ev.Role)
		if spec, ok := def.Spec(ev.Role); ok && spec.DaySide == models.WerewolfSide {
			verdict = fmt.Sprintf("%s is a werewolf", ev.Target)
		}
		return models.Speech{Text: fmt.Sprintf("I am the seer. I divined %s last night: %s.", ev.Target, verdict), Addressee: ev.Target}
	}
	if ev, ok := lastPrivate(mem, models.EventRoleSwapped); ok {
		if spec, ok := def.Spec(mem.SelfRole); !ok || spec.WinSide == models.VillageSide {
			return models.Speech{Text: fmt.Sprintf("I was the thief. I swapped with %s and became the %s.", ev.Target, ev.Role), Addressee: ev.Target}
		}
	}

	spec, _ := def.Spec(mem.SelfRole)
	if spec.WinSide == models.WerewolfSide {
		target, _ := mostLikely(mem.Beliefs, others, village...)
		switch mem.Personality {
		case models.Deceptive:
			return models.Speech{Text: fmt.Sprintf("I am the seer. I divined %s last night: %s is a werewolf.", target, target), Addressee: target}
		case models.Aggressive:
			return models.Speech{Text: fmt.Sprintf("%s, you have been acting suspicious. I think you are lying.", target), Addressee: target}
		default:
			return models.Speech{Text: "Let's stay calm and not trust every claim we hear."}
		}
	}

	target, p := mostLikely(mem.Beliefs, others, wolves...)
	switch mem.Personality {
	case models.Aggressive:
		return models.Speech{Text: fmt.Sprintf("%s, I think you are a werewolf.", target), Addressee: target}
	case models.Analytical:
		return models.Speech{Text: fmt.Sprintf("From what I have heard, %s looks most suspicious (%.0f%%).", target, p*100), Addressee: target}
	default:
		return models.Speech{Text: fmt.Sprintf("I am just a villager. %s, what did you do last night?", target), Addressee: target}
	}
}

// lastPrivate returns the latest private event of kind addressed to the player.
func lastPrivate(mem models.PlayerMemory, kind models.EventKind) (models.GameEvent, bool) {
	for i := len(mem.ObservedEvents) - 1; i >= 0; i-- {
		ev := mem.ObservedEvents[i]
		if ev.Kind == kind && ev.Actor == mem.Self {
			return ev, true
		}
	}
	return models.GameEvent{}, false
}

// fallbackSpeech is used when the speech writer fails.
func fallbackSpeech(mem models.PlayerMemory) models.Speech {
	return models.Speech{Text: fmt.Sprintf("%s has nothing to add for now.", mem.Self)}
}

// RuleSpeechReviewer rejects overlong speeches and werewolves outing themselves.
func RuleSpeechReviewer() Generator[models.Speech, Verdict] {
	return GeneratorFunc[models.Speech, Verdict](func(_ context.Context, s models.Speech) (Verdict, error) {
		text := strings.TrimSpace(s.Text)
		switch {
		case text == "":
			return Verdict{Feedback: "say something"}, nil
		case len(text) > maxSpeechLength:
			return Verdict{Feedback: "too long"}, nil
		case strings.Contains(strings.ToLower(text), revealedWolfLine):
			return Verdict{Feedback: "do not reveal your side"}, nil
		}
		return Verdict{Approved: true}, nil
	})
}

// RuleSpeechRefiner trims a rejected speech and drops self-incriminating lines.
func RuleSpeechRefiner() Generator[Revision[models.Speech], models.Speech] {
	return GeneratorFunc[Revision[models.Speech], models.Speech](func(_ context.Context, r Revision[models.Speech]) (models.Speech, error) {
		s := r.Draft
		text := strings.TrimSpace(s.Text)
		if i := strings.Index(strings.ToLower(text), revealedWolfLine); i >= 0 {
			text = strings.TrimSpace(text[:i] + text[i+len(revealedWolfLine):])
		}
		if len(text) > maxSpeechLength {
			text = text[:maxSpeechLength]
		}
		if text == "" {
			text = "I have nothing to add."
		}
		s.Text = text
		return s, nil
	})
}

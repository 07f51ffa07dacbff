package services

import (
	"context"

	"github.com/qianlnk/onenight/models"
)

// Generator produces a structured artifact of type T from a context of type C.
// Implementations report ordinary service failures as errors; callers always
// fall back and never propagate them.
type Generator[C, T any] interface {
	Generate(ctx context.Context, in C) (T, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc[C, T any] func(ctx context.Context, in C) (T, error)

// Generate calls f.
func (f GeneratorFunc[C, T]) Generate(ctx context.Context, in C) (T, error) {
	return f(ctx, in)
}

// Verdict is a reviewer's judgement of a draft.
type Verdict struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// Revision is the input of a refiner: the rejected draft and why.
type Revision[T any] struct {
	Draft    T
	Feedback string
}

// PlanContext is what the planner sees on first entry to the night.
type PlanContext struct {
	Players    []string
	Assigned   models.AssignedRoles
	Definition *models.GameDefinition
}

// SummaryContext asks for an updated summary given the events since the last one.
type SummaryContext struct {
	Previous string
	Delta    []models.GameEvent
}

// CommentContext is what the moderator comment writer sees.
type CommentContext struct {
	Speaker string
	Summary string
	Plan    *models.ModeratorPlan
	Turn    int
}

// MaturityContext is what the discussion maturity judge sees.
type MaturityContext struct {
	Summary string
	Plan    *models.ModeratorPlan
	Turns   int
	Players []string
	Spoken  []string
}

// ClosingContext is what the closing remark writer sees.
type ClosingContext struct {
	Summary string
	Turns   int
}

// SpeechContext is what a player's speech writer sees.
type SpeechContext struct {
	Memory models.PlayerMemory
	Prompt string
}

// TargetContext asks a player to choose a target for an action.
type TargetContext struct {
	Memory     models.PlayerMemory
	Action     models.ActionKind
	Ability    models.AbilityType
	Candidates []string
}

// BeliefContext asks for revised beliefs after observing events.
type BeliefContext struct {
	Memory models.PlayerMemory
	Events []models.GameEvent
}

// ModeratorCollaborators are the moderator pipeline's injected generators.
// A nil generator is treated like one that always fails.
type ModeratorCollaborators struct {
	Planner         Generator[PlanContext, models.ModeratorPlan]
	Summarizer      Generator[SummaryContext, string]
	Commenter       Generator[CommentContext, models.ModeratorComment]
	CommentReviewer Generator[models.ModeratorComment, Verdict]
	CommentRefiner  Generator[Revision[models.ModeratorComment], models.ModeratorComment]
	Judge           Generator[MaturityContext, bool]
	Closer          Generator[ClosingContext, string]
	Milestones      MilestoneJudge
}

// PlayerCollaborators are a player pipeline's injected generators.
type PlayerCollaborators struct {
	Summarizer     Generator[SummaryContext, string]
	Speaker        Generator[SpeechContext, models.Speech]
	SpeechReviewer Generator[models.Speech, Verdict]
	SpeechRefiner  Generator[Revision[models.Speech], models.Speech]
	Targeter       Generator[TargetContext, string]
	Beliefs        Generator[BeliefContext, models.Beliefs]
}

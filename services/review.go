package services

import (
	"context"
	"errors"

	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
	"github.com/qianlnk/onenight/monitor"
)

// MaxReviewPasses caps every review-refine loop.
const MaxReviewPasses = 3

var errNoGenerator = errors.New("no generator configured")

// generate calls g, treating a nil generator as a failure.
func generate[C, T any](ctx context.Context, g Generator[C, T], in C) (T, error) {
	if g == nil {
		var zero T
		return zero, errNoGenerator
	}
	return g.Generate(ctx, in)
}

// ReviewOutcome says why a loop committed its draft.
type ReviewOutcome string

const (
	ReviewApproved      ReviewOutcome = "approved"
	ReviewForcedCap     ReviewOutcome = "forced_cap"
	ReviewForcedFailure ReviewOutcome = "forced_failure"
	ReviewUnreviewed    ReviewOutcome = "unreviewed"
)

// RefineLoop is the bounded generate -> review -> refine combinator shared by
// moderator comments and player speech. It never blocks progress: hitting the
// pass cap or any collaborator failure commits the current draft.
type RefineLoop[T any] struct {
	Stage     string
	Reviewer  Generator[T, Verdict]
	Refiner   Generator[Revision[T], T]
	MaxPasses int
	Metrics   *monitor.Metrics
}

// Begin starts a new loop for draft, discarding anything in flight.
func Begin[T any](p *models.Pending[T], draft T) {
	*p = models.Pending[T]{Active: true, Draft: draft}
}

// Run reviews p.Draft until it is committed and returns it. p is updated after
// every pass so a restored in-flight loop resumes where it stopped; it is
// reset once the draft is committed.
func (l RefineLoop[T]) Run(ctx context.Context, p *models.Pending[T]) (T, ReviewOutcome) {
	limit := l.MaxPasses
	if limit <= 0 {
		limit = MaxReviewPasses
	}

	outcome := l.loop(ctx, p, limit)
	committed := p.Draft

	logger.Log.Debugw("review loop committed", "stage", l.Stage, "passes", p.Passes, "outcome", outcome)
	l.Metrics.ObserveReview(l.Stage, string(outcome))

	*p = models.Pending[T]{}
	return committed, outcome
}

func (l RefineLoop[T]) loop(ctx context.Context, p *models.Pending[T], limit int) ReviewOutcome {
	if l.Reviewer == nil {
		return ReviewUnreviewed
	}
	for p.Passes < limit {
		verdict, err := l.Reviewer.Generate(ctx, p.Draft)
		p.Passes++
		if err != nil {
			l.fail("review", err)
			return ReviewForcedFailure
		}
		if verdict.Approved {
			return ReviewApproved
		}
		if p.Passes >= limit {
			break
		}

		refined, err := generate(ctx, l.Refiner, Revision[T]{Draft: p.Draft, Feedback: verdict.Feedback})
		if err != nil {
			l.fail("refine", err)
			return ReviewForcedFailure
		}
		p.Draft = refined
	}
	return ReviewForcedCap
}

func (l RefineLoop[T]) fail(step string, err error) {
	logger.Log.Warnw("review loop collaborator failed, committing draft", "stage", l.Stage, "step", step, "err", err)
	l.Metrics.ObserveCollaboratorFailure(l.Stage + "_" + step)
}

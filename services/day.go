package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
)

// dayStep runs one turn of moderated discussion: catch up on the log, update
// milestones, decide whether to close, otherwise hand the floor to the next
// speaker through a reviewed moderator comment.
func (s *Session) dayStep(ctx context.Context) (models.Decision, error) {
	s.summarizeLog(ctx)
	s.updateMilestones()

	minTurns, maxTurns := s.dayBounds()
	if s.gm.DayTurns >= maxTurns || (s.gm.DayTurns >= minTurns && s.discussionMature(ctx)) {
		d := models.Decision{NextPhase: s.def.NextPhase(models.PhaseDay)}
		if text := s.closingRemark(ctx); text != "" {
			ev := newEvent(models.EventModeratorClosing, models.PhaseDay)
			ev.Content = text
			d.Events = append(d.Events, ev)
		}
		logger.Log.Infow("discussion closed", "session", s.id, "turns", s.gm.DayTurns)
		return d, nil
	}

	speaker := s.nextSpeaker()
	comment := s.moderatorComment(ctx, speaker)

	ev := newEvent(models.EventModeratorComment, models.PhaseDay)
	ev.Target = speaker
	ev.Content = comment.Text

	s.gm.DayTurns++
	s.gm.RoundSpoken = append(s.gm.RoundSpoken, speaker)
	s.gm.LastSpeaker = speaker

	return models.Decision{
		Events: []models.GameEvent{ev},
		Requests: []models.RequestEntry{{
			Player:  speaker,
			Request: models.PlayerRequest{Action: models.ActionSpeak, Prompt: comment.Text},
		}},
	}, nil
}

// dayBounds returns the minimum and maximum number of discussion turns.
func (s *Session) dayBounds() (int, int) {
	n := len(s.world.Players)
	minTurns, maxTurns := s.dayMinTurns, s.dayMaxTurns
	if minTurns <= 0 {
		minTurns = n
	}
	if maxTurns <= 0 {
		maxTurns = 2 * n
	}
	if maxTurns < minTurns {
		maxTurns = minTurns
	}
	return minTurns, maxTurns
}

// eventLog is the public log followed by the staged events. Pending events
// are always appended to the public log first, so indexes stay stable.
func (s *Session) eventLog() []models.GameEvent {
	out := make([]models.GameEvent, 0, len(s.world.PublicEvents)+len(s.world.PendingEvents))
	out = append(out, s.world.PublicEvents...)
	return append(out, s.world.PendingEvents...)
}

// summarizeLog folds the events since the last summary into the moderator's
// summary. The cursor only advances on success.
func (s *Session) summarizeLog(ctx context.Context) {
	log := s.eventLog()
	if s.gm.LogCursor >= len(log) {
		return
	}
	summary, err := generate(ctx, s.moderator.Summarizer, SummaryContext{
		Previous: s.gm.LogSummary,
		Delta:    models.CloneEvents(log[s.gm.LogCursor:]),
	})
	if err != nil {
		logger.Log.Warnw("log summary failed", "session", s.id, "err", err)
		s.metrics.ObserveCollaboratorFailure("moderator_summary")
		return
	}
	s.gm.LogSummary = summary
	s.gm.LogCursor = len(log)
}

// updateMilestones re-judges the plan against the whole log once new events arrive.
func (s *Session) updateMilestones() {
	log := s.eventLog()
	if s.gm.MilestoneSeen >= len(log) {
		return
	}
	if advanceMilestones(s.gm.Plan, log, s.moderator.Milestones) {
		logger.Log.Debugw("milestones advanced", "session", s.id, "plan", s.gm.Plan.Milestones)
	}
	s.gm.MilestoneSeen = len(log)
}

// discussionMature asks the judge; a failed judgement means keep talking.
func (s *Session) discussionMature(ctx context.Context) bool {
	mature, err := generate(ctx, s.moderator.Judge, MaturityContext{
		Summary: s.gm.LogSummary,
		Plan:    s.gm.Plan.Clone(),
		Turns:   s.gm.DayTurns,
		Players: append([]string(nil), s.world.Players...),
		Spoken:  append([]string(nil), s.gm.RoundSpoken...),
	})
	if err != nil {
		logger.Log.Warnw("maturity judge failed", "session", s.id, "err", err)
		s.metrics.ObserveCollaboratorFailure("maturity")
		return false
	}
	return mature
}

func (s *Session) closingRemark(ctx context.Context) string {
	text, err := generate(ctx, s.moderator.Closer, ClosingContext{Summary: s.gm.LogSummary, Turns: s.gm.DayTurns})
	if err != nil {
		logger.Log.Warnw("closing remark failed", "session", s.id, "err", err)
		s.metrics.ObserveCollaboratorFailure("closing")
		return ""
	}
	return strings.TrimSpace(text)
}

// nextSpeaker picks who talks next: nobody speaks twice in a round, the
// previous speaker never speaks twice in a row, and a player named in the
// latest speech goes first if eligible. Otherwise seats rotate.
func (s *Session) nextSpeaker() string {
	players := s.world.Players
	if len(s.gm.RoundSpoken) >= len(players) {
		s.gm.RoundSpoken = []string{}
	}

	var eligible []string
	for _, p := range players {
		if p != s.gm.LastSpeaker && !contains(s.gm.RoundSpoken, p) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		// only the previous speaker is left in this round; start a new one
		s.gm.RoundSpoken = []string{}
		for _, p := range players {
			if p != s.gm.LastSpeaker {
				eligible = append(eligible, p)
			}
		}
	}
	if len(eligible) == 0 {
		return players[0]
	}

	if named := s.namedInLastSpeech(eligible); named != "" {
		return named
	}

	start := 0
	for i, p := range players {
		if p == s.gm.LastSpeaker {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(players); i++ {
		p := players[(start+i)%len(players)]
		if contains(eligible, p) {
			return p
		}
	}
	return eligible[0]
}

// namedInLastSpeech returns the eligible player the latest speech addressed,
// or the first one it mentions by name.
func (s *Session) namedInLastSpeech(eligible []string) string {
	log := s.eventLog()
	for i := len(log) - 1; i >= 0; i-- {
		ev := log[i]
		if ev.Kind != models.EventSpeech {
			continue
		}
		if ev.Target != "" && contains(eligible, ev.Target) {
			return ev.Target
		}
		best, bestAt := "", -1
		for _, p := range eligible {
			if p == ev.Actor {
				continue
			}
			if at := mentionIndex(ev.Content, p); at >= 0 && (bestAt < 0 || at < bestAt) {
				best, bestAt = p, at
			}
		}
		return best
	}
	return ""
}

// mentionIndex returns where name first appears in content as a whole word,
// or -1. "player1" is not mentioned by "player10".
func mentionIndex(content, name string) int {
	if name == "" {
		return -1
	}
	for from := 0; from < len(content); {
		at := strings.Index(content[from:], name)
		if at < 0 {
			return -1
		}
		at += from
		end := at + len(name)
		before, _ := utf8.DecodeLastRuneInString(content[:at])
		after, _ := utf8.DecodeRuneInString(content[end:])
		if (at == 0 || !isNameRune(before)) && (end == len(content) || !isNameRune(after)) {
			return at
		}
		from = at + 1
	}
	return -1
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// moderatorComment drafts the hand-over comment and runs it through review.
// A loop restored in flight for the same speaker is resumed.
func (s *Session) moderatorComment(ctx context.Context, speaker string) models.ModeratorComment {
	review := &s.gm.CommentReview
	if !review.Active || review.Draft.Speaker != speaker {
		draft, err := generate(ctx, s.moderator.Commenter, CommentContext{
			Speaker: speaker,
			Summary: s.gm.LogSummary,
			Plan:    s.gm.Plan.Clone(),
			Turn:    s.gm.DayTurns + 1,
		})
		if err != nil || strings.TrimSpace(draft.Text) == "" {
			if err != nil {
				logger.Log.Warnw("comment writer failed, using template", "session", s.id, "err", err)
				s.metrics.ObserveCollaboratorFailure("moderator_comment")
			}
			draft = models.ModeratorComment{Text: fmt.Sprintf("%s, the floor is yours.", speaker)}
		}
		draft.Speaker = speaker
		Begin(review, draft)
	}

	loop := RefineLoop[models.ModeratorComment]{
		Stage:    "moderator_comment",
		Reviewer: s.moderator.CommentReviewer,
		Refiner:  s.moderator.CommentRefiner,
		Metrics:  s.metrics,
	}
	comment, _ := loop.Run(ctx, review)
	comment.Speaker = speaker
	if strings.TrimSpace(comment.Text) == "" {
		comment.Text = fmt.Sprintf("%s, the floor is yours.", speaker)
	}
	return comment
}

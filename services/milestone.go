package services

import (
	"strings"

	"github.com/qianlnk/onenight/models"
)

// MilestoneJudge proposes a status for m given the discussion log so far. The
// tracker only ever applies proposals that advance.
type MilestoneJudge func(m models.Milestone, events []models.GameEvent) models.MilestoneStatus

// KeywordMilestoneJudge matches milestone keywords against player speeches:
// one hit is weak, two are strong, hits from three different speakers mean
// the milestone occurred. The moderator's own prompts never count.
func KeywordMilestoneJudge(m models.Milestone, events []models.GameEvent) models.MilestoneStatus {
	if len(m.Keywords) == 0 {
		return models.MilestoneNotOccurred
	}
	hits := 0
	speakers := make(map[string]bool)
	for _, ev := range events {
		if ev.Kind != models.EventSpeech {
			continue
		}
		text := strings.ToLower(ev.Content)
		for _, kw := range m.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				hits++
				if ev.Actor != "" {
					speakers[ev.Actor] = true
				}
				break
			}
		}
	}
	switch {
	case len(speakers) >= 3:
		return models.MilestoneOccurred
	case hits >= 2:
		return models.MilestoneStrong
	case hits == 1:
		return models.MilestoneWeak
	}
	return models.MilestoneNotOccurred
}

// advanceMilestones applies judge to every milestone, keeping the higher of
// the current and proposed status. It reports whether anything changed.
func advanceMilestones(plan *models.ModeratorPlan, events []models.GameEvent, judge MilestoneJudge) bool {
	if plan == nil || len(events) == 0 {
		return false
	}
	if judge == nil {
		judge = KeywordMilestoneJudge
	}
	changed := false
	for i, m := range plan.Milestones {
		proposed := judge(m, events)
		if proposed.Rank() > m.Status.Rank() {
			plan.Milestones[i].Status = proposed
			changed = true
		}
	}
	return changed
}

// milestonesMature reports whether every milestone is at least strong.
func milestonesMature(plan *models.ModeratorPlan) bool {
	if plan == nil || len(plan.Milestones) == 0 {
		return false
	}
	for _, m := range plan.Milestones {
		if m.Status.Rank() < models.MilestoneStrong.Rank() {
			return false
		}
	}
	return true
}

// DefaultPlan is the plan used when no planner is configured or it fails.
func DefaultPlan() models.ModeratorPlan {
	return models.ModeratorPlan{
		Policy: "keep the discussion moving, give every player the floor at least once",
		Milestones: []models.Milestone{
			{
				ID:          "seer_claim",
				Description: "someone claims to be the seer and shares a result",
				Keywords:    []string{"seer", "divined", "i checked"},
				Status:      models.MilestoneNotOccurred,
			},
			{
				ID:          "accusation",
				Description: "a player is openly accused of being a werewolf",
				Keywords:    []string{"werewolf", "wolf", "suspicious", "lying"},
				Status:      models.MilestoneNotOccurred,
			},
		},
	}
}

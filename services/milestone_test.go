package services

import (
	"testing"

	"github.com/qianlnk/onenight/models"
	"github.com/stretchr/testify/assert"
)

func speechBy(actor, content string) models.GameEvent {
	return models.GameEvent{Kind: models.EventSpeech, Actor: actor, Content: content}
}

func TestKeywordMilestoneJudge(t *testing.T) {
	m := models.Milestone{ID: "accusation", Keywords: []string{"wolf", "lying"}}

	tests := []struct {
		name   string
		events []models.GameEvent
		want   models.MilestoneStatus
	}{
		{"nothing said", nil, models.MilestoneNotOccurred},
		{"one hit", []models.GameEvent{speechBy("a", "b is a WOLF")}, models.MilestoneWeak},
		{"two hits, one speaker", []models.GameEvent{speechBy("a", "wolf"), speechBy("a", "lying")}, models.MilestoneStrong},
		{"three speakers", []models.GameEvent{speechBy("a", "wolf"), speechBy("b", "wolf"), speechBy("c", "lying")}, models.MilestoneOccurred},
		{"votes do not count", []models.GameEvent{{Kind: models.EventVote, Actor: "a", Content: "wolf"}}, models.MilestoneNotOccurred},
		{"moderator prompts do not count", []models.GameEvent{{Kind: models.EventModeratorComment, Content: "who is the wolf?"}}, models.MilestoneNotOccurred},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeywordMilestoneJudge(m, tt.events))
		})
	}

	assert.Equal(t, models.MilestoneNotOccurred, KeywordMilestoneJudge(models.Milestone{}, []models.GameEvent{speechBy("a", "wolf")}))
}

func TestAdvanceMilestones_NeverRegresses(t *testing.T) {
	plan := DefaultPlan()
	plan.Milestones[1].Status = models.MilestoneStrong

	changed := advanceMilestones(&plan, []models.GameEvent{speechBy("a", "I am the seer")}, nil)
	assert.True(t, changed)
	assert.Equal(t, models.MilestoneWeak, plan.Milestones[0].Status)
	assert.Equal(t, models.MilestoneStrong, plan.Milestones[1].Status)

	regress := func(models.Milestone, []models.GameEvent) models.MilestoneStatus {
		return models.MilestoneNotOccurred
	}
	assert.False(t, advanceMilestones(&plan, []models.GameEvent{speechBy("a", "x")}, regress))
	assert.Equal(t, models.MilestoneWeak, plan.Milestones[0].Status)
	assert.Equal(t, models.MilestoneStrong, plan.Milestones[1].Status)

	assert.False(t, advanceMilestones(nil, []models.GameEvent{speechBy("a", "x")}, nil))
}

func TestMilestonesMature(t *testing.T) {
	plan := DefaultPlan()
	assert.False(t, milestonesMature(&plan))

	plan.Milestones[0].Status = models.MilestoneOccurred
	plan.Milestones[1].Status = models.MilestoneWeak
	assert.False(t, milestonesMature(&plan))

	plan.Milestones[1].Status = models.MilestoneStrong
	assert.True(t, milestonesMature(&plan))

	assert.False(t, milestonesMature(nil))
	assert.False(t, milestonesMature(&models.ModeratorPlan{}))
}

func TestUpdateMilestones_JudgesNewLog(t *testing.T) {
	s := daySession(t)
	plan := DefaultPlan()
	s.gm.Plan = &plan

	s.world.PublicEvents = []models.GameEvent{speechBy("a", "b is a wolf")}
	s.updateMilestones()
	assert.Equal(t, models.MilestoneWeak, s.gm.Plan.Milestones[1].Status)
	assert.Equal(t, 1, s.gm.MilestoneSeen)

	// nothing new, nothing judged
	s.gm.Plan.Milestones[1].Status = models.MilestoneNotOccurred
	s.updateMilestones()
	assert.Equal(t, models.MilestoneNotOccurred, s.gm.Plan.Milestones[1].Status)

	s.world.PendingEvents = []models.GameEvent{speechBy("c", "b is lying")}
	s.updateMilestones()
	assert.Equal(t, 2, s.gm.MilestoneSeen)
	assert.Equal(t, models.MilestoneStrong, s.gm.Plan.Milestones[1].Status)
}

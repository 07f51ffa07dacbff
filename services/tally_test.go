package services

import (
	"testing"

	"github.com/qianlnk/onenight/models"
	"github.com/stretchr/testify/assert"
)

func TestTallyVotes(t *testing.T) {
	seats := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name     string
		votes    map[string]string
		executed []string
	}{
		{
			name:     "tie at the top executes both",
			votes:    map[string]string{"a": "b", "b": "a", "c": "a", "d": "b", "e": "c"},
			executed: []string{"a", "b"},
		},
		{
			name:     "one vote each executes nobody",
			votes:    map[string]string{"a": "b", "b": "c", "c": "d", "d": "a"},
			executed: []string{},
		},
		{
			name:     "clear majority",
			votes:    map[string]string{"a": "c", "b": "c", "c": "a", "d": "c", "e": "a"},
			executed: []string{"c"},
		},
		{
			name:     "no votes",
			votes:    map[string]string{},
			executed: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, executed := TallyVotes(tt.votes, seats)
			assert.Equal(t, tt.executed, executed)
		})
	}
}

func TestTallyVotes_Counts(t *testing.T) {
	counts, executed := TallyVotes(map[string]string{"x": "A", "y": "A", "z": "B", "w": "B", "v": "C"}, []string{"A", "B", "C"})
	assert.Equal(t, map[string]int{"A": 2, "B": 2, "C": 1}, counts)
	assert.Equal(t, []string{"A", "B"}, executed)
}

func TestDetermineWinner(t *testing.T) {
	def := testDefinition(models.Werewolf, models.Seer, models.Villager)
	assigned := models.AssignedRoles{"wolf": models.Werewolf, "seer": models.Seer, "vil": models.Villager}

	assert.Equal(t, models.VillageSide, DetermineWinner(def, assigned, []string{"wolf"}))
	assert.Equal(t, models.VillageSide, DetermineWinner(def, assigned, []string{"wolf", "vil"}))
	assert.Equal(t, models.WerewolfSide, DetermineWinner(def, assigned, []string{"vil"}))
	assert.Equal(t, models.WerewolfSide, DetermineWinner(def, assigned, nil))

	peaceful := models.AssignedRoles{"seer": models.Seer, "vil": models.Villager}
	assert.Equal(t, models.VillageSide, DetermineWinner(def, peaceful, nil))
	assert.Equal(t, models.WerewolfSide, DetermineWinner(def, peaceful, []string{"vil"}))
}

func TestDetermineWinner_MadmanIsNotAnAntagonist(t *testing.T) {
	def := testDefinition(models.Madman, models.Villager)
	assigned := models.AssignedRoles{"mad": models.Madman, "vil": models.Villager}

	// executing the madman kills no werewolf
	assert.Equal(t, models.WerewolfSide, DetermineWinner(def, assigned, []string{"mad"}))
	assert.Equal(t, models.VillageSide, DetermineWinner(def, assigned, nil))
}

func TestBuildResult(t *testing.T) {
	def := testDefinition(models.Werewolf, models.Madman, models.Seer, models.Villager)
	assigned := models.AssignedRoles{"a": models.Werewolf, "b": models.Madman, "c": models.Seer, "d": models.Villager}
	votes := map[string]string{"a": "d", "b": "d", "c": "a", "d": "a"}

	r := BuildResult(def, assigned, votes, []string{"a", "b", "c", "d"})

	assert.Equal(t, []string{"a", "d"}, r.Executed)
	assert.Equal(t, models.VillageSide, r.Winner)
	assert.Equal(t, []string{"c", "d"}, r.Winners)
	assert.Equal(t, map[string]int{"a": 2, "d": 2}, r.Votes)
	assert.Equal(t, models.Werewolf, r.Roles["a"])
}

package services

import (
	"github.com/qianlnk/onenight/models"
)

// TallyVotes counts votes per target and returns the executed players in seat
// order. If no target got more than one vote nobody is executed; otherwise
// every target tied at the maximum is.
func TallyVotes(votes map[string]string, seats []string) (map[string]int, []string) {
	counts := make(map[string]int)
	for _, target := range votes {
		if target == "" {
			continue
		}
		counts[target]++
	}

	maxVotes := 0
	for _, c := range counts {
		if c > maxVotes {
			maxVotes = c
		}
	}

	executed := make([]string, 0)
	if maxVotes <= 1 {
		return counts, executed
	}
	seen := make(map[string]bool)
	for _, p := range seats {
		if counts[p] == maxVotes {
			executed = append(executed, p)
			seen[p] = true
		}
	}
	// targets outside the seat list still die; keep them deterministic
	for _, extra := range sortedKeys(counts) {
		if counts[extra] == maxVotes && !seen[extra] {
			executed = append(executed, extra)
		}
	}
	return counts, executed
}

// DetermineWinner applies the win rules to the executed players' true roles.
func DetermineWinner(def *models.GameDefinition, assigned models.AssignedRoles, executed []string) models.Side {
	for _, p := range executed {
		if spec, ok := def.Spec(assigned[p]); ok && spec.DaySide == models.WerewolfSide {
			return models.VillageSide
		}
	}
	if len(executed) > 0 {
		return models.WerewolfSide
	}
	if !def.HasAntagonist(assigned) {
		return models.VillageSide
	}
	return models.WerewolfSide
}

// BuildResult tallies, determines the winner and reveals every role.
func BuildResult(def *models.GameDefinition, assigned models.AssignedRoles, votes map[string]string, seats []string) *models.GameResult {
	counts, executed := TallyVotes(votes, seats)
	winner := DetermineWinner(def, assigned, executed)

	winners := make([]string, 0)
	for _, p := range seats {
		if spec, ok := def.Spec(assigned[p]); ok && spec.WinSide == winner {
			winners = append(winners, p)
		}
	}

	return &models.GameResult{
		Winner:   winner,
		Executed: executed,
		Winners:  winners,
		Votes:    counts,
		Roles:    map[string]models.Role(assigned.Clone()),
	}
}

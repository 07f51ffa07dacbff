package services

import (
	"context"
	"sort"
	"strings"

	"github.com/qianlnk/onenight/models"
)

// Belief nudges applied by the rule-based belief updater.
const (
	accusationWeight = 0.15
	claimWeight      = 0.25
	voteWeight       = 0.05
)

var accusationWords = []string{"werewolf", "wolf", "suspicious", "lying", "liar"}

// daySideRoles lists the catalog roles on side, sorted for determinism.
func daySideRoles(def *models.GameDefinition, side models.Side) []models.Role {
	var roles []models.Role
	for name, spec := range def.Roles {
		if spec.DaySide == side {
			roles = append(roles, name)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// unknown drops candidates whose role the player already knows for certain.
func unknown(mem models.PlayerMemory, candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		certain := false
		for _, p := range mem.Beliefs[c] {
			if p >= 1-beliefTolerance {
				certain = true
				break
			}
		}
		if !certain {
			out = append(out, c)
		}
	}
	return out
}

// heuristicTarget picks a target from beliefs alone. Village players hunt the
// werewolf side; werewolf-aligned players push the vote onto the village.
func heuristicTarget(def *models.GameDefinition, mem models.PlayerMemory, action models.ActionKind, ability models.AbilityType, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	wolves := daySideRoles(def, models.WerewolfSide)
	village := daySideRoles(def, models.VillageSide)

	winSide := models.VillageSide
	if spec, ok := def.Spec(mem.SelfRole); ok {
		winSide = spec.WinSide
	}

	switch {
	case action == models.ActionUseAbility && ability == models.AbilityDivination:
		pool := unknown(mem, candidates)
		if len(pool) == 0 {
			pool = candidates
		}
		if mem.Personality == models.Deceptive {
			return pool[0]
		}
		target, _ := mostLikely(mem.Beliefs, pool, wolves...)
		return target

	case action == models.ActionUseAbility && ability == models.AbilitySwap:
		// aggressive thieves gamble on taking a werewolf card
		if mem.Personality == models.Aggressive {
			target, _ := mostLikely(mem.Beliefs, candidates, wolves...)
			return target
		}
		target, _ := mostLikely(mem.Beliefs, candidates, models.Seer)
		return target

	default:
		if winSide == models.WerewolfSide {
			target, _ := mostLikely(mem.Beliefs, candidates, village...)
			return target
		}
		target, _ := mostLikely(mem.Beliefs, candidates, wolves...)
		return target
	}
}

// RuleTargeter is the rule-based target chooser.
func RuleTargeter(def *models.GameDefinition) Generator[TargetContext, string] {
	return GeneratorFunc[TargetContext, string](func(_ context.Context, in TargetContext) (string, error) {
		return heuristicTarget(def, in.Memory, in.Action, in.Ability, in.Candidates), nil
	})
}

// RuleBeliefUpdater shifts probability mass toward the werewolf side for
// accused players, toward the claimed role for players who claim one, and
// slightly toward the werewolf side for vote targets.
func RuleBeliefUpdater(def *models.GameDefinition) Generator[BeliefContext, models.Beliefs] {
	wolves := daySideRoles(def, models.WerewolfSide)
	return GeneratorFunc[BeliefContext, models.Beliefs](func(_ context.Context, in BeliefContext) (models.Beliefs, error) {
		b := in.Memory.Beliefs.Clone()
		if b == nil {
			b = models.Beliefs{}
		}
		self := in.Memory.Self
		for _, ev := range in.Events {
			switch ev.Kind {
			case models.EventSpeech:
				text := strings.ToLower(ev.Content)
				if ev.Actor != self && strings.Contains(text, "i am the seer") {
					nudge(b, ev.Actor, claimWeight, models.Seer)
				}
				if !mentionsAny(text, accusationWords) {
					continue
				}
				for _, p := range in.Memory.Players {
					if p == self || p == ev.Actor {
						continue
					}
					if p == ev.Target || strings.Contains(text, strings.ToLower(p)) {
						nudge(b, p, accusationWeight, wolves...)
					}
				}
			case models.EventVote:
				if ev.Target != self {
					nudge(b, ev.Target, voteWeight, wolves...)
				}
			}
		}
		return b, nil
	})
}

// nudge moves weight of a player's probability mass onto roles, spread
// evenly, and renormalises.
func nudge(b models.Beliefs, player string, weight float64, roles ...models.Role) {
	dist, ok := b[player]
	if !ok || len(roles) == 0 {
		return
	}
	// only roles the player could still hold
	var possible []models.Role
	for _, r := range roles {
		if _, ok := dist[r]; ok {
			possible = append(possible, r)
		}
	}
	if len(possible) == 0 {
		return
	}
	for r := range dist {
		dist[r] *= 1 - weight
	}
	for _, r := range possible {
		dist[r] += weight / float64(len(possible))
	}
}

func mentionsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

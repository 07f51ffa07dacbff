package services

import (
	"sort"

	"github.com/qianlnk/onenight/models"
)

// beliefTolerance is how far a normalised distribution may drift from 1.0.
const beliefTolerance = 1e-9

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// without returns list minus s, preserving order.
func without(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// normalizeBeliefs scales every distribution to sum to 1 and pins self.
// Distributions with no positive mass fall back to prior.
func normalizeBeliefs(b models.Beliefs, self string, selfRole models.Role, prior models.Beliefs) models.Beliefs {
	out := make(models.Beliefs, len(b))
	for player, dist := range b {
		if player == self {
			continue
		}
		total := 0.0
		for _, p := range dist {
			if p > 0 {
				total += p
			}
		}
		if total <= 0 {
			if d, ok := prior[player]; ok {
				out[player] = copyDist(d)
			}
			continue
		}
		d := make(map[models.Role]float64, len(dist))
		for role, p := range dist {
			if p > 0 {
				d[role] = p / total
			}
		}
		out[player] = d
	}
	for player, d := range prior {
		if _, ok := out[player]; !ok && player != self {
			out[player] = copyDist(d)
		}
	}
	out[self] = map[models.Role]float64{selfRole: 1}
	return out
}

func copyDist(d map[models.Role]float64) map[models.Role]float64 {
	out := make(map[models.Role]float64, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// mostLikely returns the player among candidates with the highest probability
// of any role in roles. Ties keep candidate order.
func mostLikely(b models.Beliefs, candidates []string, roles ...models.Role) (string, float64) {
	best, bestP := "", -1.0
	for _, c := range candidates {
		p := 0.0
		for _, r := range roles {
			p += b[c][r]
		}
		if p > bestP {
			best, bestP = c, p
		}
	}
	return best, bestP
}

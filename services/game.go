package services

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/qianlnk/onenight/models"
	"gopkg.in/yaml.v3"
)

// DefaultPhases is the phase order every built-in game uses.
var DefaultPhases = []string{models.PhaseNight, models.PhaseDay, models.PhaseVote, models.PhaseResult}

// DefaultRoles returns the built-in role catalog.
func DefaultRoles() map[models.Role]models.RoleSpec {
	masked := models.Villager
	return map[models.Role]models.RoleSpec{
		models.Werewolf: {
			DaySide: models.WerewolfSide, WinSide: models.WerewolfSide, Ability: models.AbilityNone,
		},
		models.WhiteWolf: {
			DaySide: models.WerewolfSide, WinSide: models.WerewolfSide, Ability: models.AbilityNone,
			MaskedDivinationRole: &masked,
		},
		models.Madman: {
			DaySide: models.VillageSide, WinSide: models.WerewolfSide, Ability: models.AbilityNone, NightOrder: 3,
		},
		models.Thief: {
			DaySide: models.VillageSide, WinSide: models.VillageSide, Ability: models.AbilitySwap, NightOrder: 1,
		},
		models.Seer: {
			DaySide: models.VillageSide, WinSide: models.VillageSide, Ability: models.AbilityDivination, NightOrder: 2,
		},
		models.Villager: {
			DaySide: models.VillageSide, WinSide: models.VillageSide, Ability: models.AbilityNone, NightOrder: 3,
		},
	}
}

// generateRoles builds the role distribution for a mode, filling with villagers.
func generateRoles(playerCount int, mode models.GameMode) ([]models.Role, error) {
	var roles []models.Role
	switch mode {
	case models.ClassicMode, "":
		roles = []models.Role{models.Werewolf, models.Werewolf, models.Seer, models.Thief}
	case models.StandardMode:
		roles = []models.Role{models.Werewolf, models.Werewolf, models.Seer, models.Thief, models.Madman}
	case models.ExtendedMode:
		roles = []models.Role{models.Werewolf, models.WhiteWolf, models.Seer, models.Thief, models.Madman}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if playerCount < len(roles) {
		return nil, fmt.Errorf("%w: mode %s needs at least %d players, got %d", ErrInvalidPlayers, mode, len(roles), playerCount)
	}
	for len(roles) < playerCount {
		roles = append(roles, models.Villager)
	}
	return roles, nil
}

// NewDefinition builds a built-in GameDefinition for playerCount seats.
func NewDefinition(mode models.GameMode, playerCount int) (*models.GameDefinition, error) {
	roles, err := generateRoles(playerCount, mode)
	if err != nil {
		return nil, err
	}
	def := &models.GameDefinition{
		Roles:            DefaultRoles(),
		RoleDistribution: roles,
		Phases:           append([]string(nil), DefaultPhases...),
	}
	return def, ValidateDefinition(def, playerCount)
}

// LoadDefinitionFile reads a YAML GameDefinition. Missing phases default to DefaultPhases.
func LoadDefinitionFile(path string) (*models.GameDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	var def models.GameDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse definition %s: %w", path, err)
	}
	if len(def.Phases) == 0 {
		def.Phases = append([]string(nil), DefaultPhases...)
	}
	return &def, nil
}

// ValidateDefinition checks the invariants a session relies on.
func ValidateDefinition(def *models.GameDefinition, playerCount int) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if len(def.RoleDistribution) != playerCount {
		return fmt.Errorf("%w: %d roles for %d players", ErrInvalidDefinition, len(def.RoleDistribution), playerCount)
	}
	for _, role := range def.RoleDistribution {
		if _, ok := def.Roles[role]; !ok {
			return fmt.Errorf("%w: role %q is not in the catalog", ErrInvalidDefinition, role)
		}
	}
	for name, spec := range def.Roles {
		if !spec.Ability.Known() {
			return fmt.Errorf("%w: role %q: %q", ErrUnknownAbility, name, spec.Ability)
		}
		if spec.MaskedDivinationRole != nil {
			if _, ok := def.Roles[*spec.MaskedDivinationRole]; !ok {
				return fmt.Errorf("%w: role %q masks as unknown role %q", ErrInvalidDefinition, name, *spec.MaskedDivinationRole)
			}
		}
	}
	if len(def.Phases) == 0 {
		return fmt.Errorf("%w: no phases", ErrInvalidDefinition)
	}
	for _, p := range def.Phases {
		if !models.KnownPhase(p) {
			return fmt.Errorf("%w: %q", ErrUnknownPhase, p)
		}
	}
	return validatePhaseOrder(def.Phases)
}

// validatePhaseOrder requires phases to follow DefaultPhases without repeats
// and to end in the result phase, so every game reaches its end.
func validatePhaseOrder(phases []string) error {
	next := 0
	for _, p := range phases {
		at := -1
		for i := next; i < len(DefaultPhases); i++ {
			if DefaultPhases[i] == p {
				at = i
				break
			}
		}
		if at < 0 {
			return fmt.Errorf("%w: phase %q out of order in %v", ErrInvalidDefinition, p, phases)
		}
		next = at + 1
	}
	if phases[len(phases)-1] != models.PhaseResult {
		return fmt.Errorf("%w: phases %v do not end in %q", ErrInvalidDefinition, phases, models.PhaseResult)
	}
	return nil
}

// assignRoles shuffles the distribution and deals one role per seat.
func assignRoles(def *models.GameDefinition, players []string, rng *rand.Rand) models.AssignedRoles {
	roles := append([]models.Role(nil), def.RoleDistribution...)
	rng.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})

	assigned := make(models.AssignedRoles, len(players))
	for i, p := range players {
		assigned[p] = roles[i]
	}
	return assigned
}

var personalities = []models.PersonalityType{models.Aggressive, models.Analytical, models.Deceptive}

// initialBeliefs pins self and gives every other player the distribution of
// the remaining roles.
func initialBeliefs(def *models.GameDefinition, players []string, self string, selfRole models.Role) models.Beliefs {
	counts := make(map[models.Role]int)
	for _, r := range def.RoleDistribution {
		counts[r]++
	}
	counts[selfRole]--

	others := len(def.RoleDistribution) - 1
	prior := make(map[models.Role]float64)
	for r, c := range counts {
		if c > 0 && others > 0 {
			prior[r] = float64(c) / float64(others)
		}
	}

	beliefs := make(models.Beliefs, len(players))
	for _, p := range players {
		if p == self {
			beliefs[p] = map[models.Role]float64{selfRole: 1}
			continue
		}
		d := make(map[models.Role]float64, len(prior))
		for r, v := range prior {
			d[r] = v
		}
		beliefs[p] = d
	}
	return beliefs
}

func newPlayerState(def *models.GameDefinition, players []string, self string, role models.Role, personality models.PersonalityType) models.PlayerState {
	return models.PlayerState{
		Memory: models.PlayerMemory{
			Self:           self,
			SelfRole:       role,
			Personality:    personality,
			Players:        append([]string(nil), players...),
			ObservedEvents: []models.GameEvent{},
			Beliefs:        initialBeliefs(def, players, self, role),
		},
	}
}

// NewSnapshot deals roles and builds the initial state of a game.
func NewSnapshot(sessionID string, def *models.GameDefinition, players []string, seed int64) (*models.Snapshot, error) {
	if err := validatePlayers(players); err != nil {
		return nil, err
	}
	if err := ValidateDefinition(def, len(players)); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	assigned := assignRoles(def, players, rng)

	states := make(map[string]models.PlayerState, len(players))
	for _, p := range players {
		personality := personalities[rng.Intn(len(personalities))]
		states[p] = newPlayerState(def, players, p, assigned[p], personality)
	}

	return &models.Snapshot{
		SessionID:  sessionID,
		Definition: *def,
		World: models.WorldState{
			Phase:         def.Phases[0],
			Players:       append([]string(nil), players...),
			PublicEvents:  []models.GameEvent{},
			PendingEvents: []models.GameEvent{},
		},
		Players:  states,
		Assigned: assigned,
		GM: models.GMInternalState{
			NightPending: append([]string(nil), players...),
			VotePending:  append([]string(nil), players...),
			Votes:        map[string]string{},
			RoundSpoken:  []string{},
		},
	}, nil
}

func validatePlayers(players []string) error {
	if len(players) < 2 {
		return fmt.Errorf("%w: need at least 2 players", ErrInvalidPlayers)
	}
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if p == "" {
			return fmt.Errorf("%w: empty player name", ErrInvalidPlayers)
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate player %q", ErrInvalidPlayers, p)
		}
		seen[p] = true
	}
	return nil
}

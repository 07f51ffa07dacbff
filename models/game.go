package models

// GameMode selects a built-in role distribution.
type GameMode string

const (
	ClassicMode  GameMode = "classic"  // 2 werewolves, seer, thief, villagers
	StandardMode GameMode = "standard" // classic plus madman
	ExtendedMode GameMode = "extended" // werewolf, whitewolf, seer, thief, madman, villagers
)

// Role is the name of a role in the catalog.
type Role string

const (
	Werewolf  Role = "werewolf"
	WhiteWolf Role = "whitewolf" // shows as a villager to the seer
	Madman    Role = "madman"    // human, but wins with the werewolves
	Seer      Role = "seer"
	Thief     Role = "thief"
	Villager  Role = "villager"
)

// Side is one of the two win-condition factions.
type Side string

const (
	VillageSide  Side = "village"  // protagonist
	WerewolfSide Side = "werewolf" // antagonist
)

// AbilityType is the closed set of night abilities.
type AbilityType string

const (
	AbilityNone       AbilityType = "none"
	AbilityDivination AbilityType = "divination"
	AbilitySwap       AbilityType = "swap"
)

// Known reports whether the ability is one the resolver can handle.
func (a AbilityType) Known() bool {
	switch a {
	case AbilityNone, AbilityDivination, AbilitySwap:
		return true
	}
	return false
}

// PersonalityType flavours the rule-based agents.
type PersonalityType string

const (
	Aggressive PersonalityType = "aggressive"
	Analytical PersonalityType = "analytical"
	Deceptive  PersonalityType = "deceptive"
)

// Phases
const (
	PhaseNight  = "night"
	PhaseDay    = "day"
	PhaseVote   = "vote"
	PhaseResult = "result"
)

// KnownPhase reports whether name is one of the four phases.
func KnownPhase(name string) bool {
	switch name {
	case PhaseNight, PhaseDay, PhaseVote, PhaseResult:
		return true
	}
	return false
}

// RoleSpec holds the structural fields of a role needed for resolution.
type RoleSpec struct {
	DaySide              Side        `json:"day_side" yaml:"day_side"`
	WinSide              Side        `json:"win_side" yaml:"win_side"`
	Ability              AbilityType `json:"ability" yaml:"ability"`
	MaskedDivinationRole *Role       `json:"masked_divination_role,omitempty" yaml:"masked_divination_role,omitempty"`
	NightOrder           int         `json:"night_order" yaml:"night_order"`
}

// GameDefinition is created once at setup and never mutated.
type GameDefinition struct {
	Roles            map[Role]RoleSpec `json:"roles" yaml:"roles"`
	RoleDistribution []Role            `json:"role_distribution" yaml:"role_distribution"`
	Phases           []string          `json:"phases" yaml:"phases"`
}

// PlayerCount is the number of seats the distribution was built for.
func (d *GameDefinition) PlayerCount() int {
	return len(d.RoleDistribution)
}

// Spec returns the spec for a role.
func (d *GameDefinition) Spec(role Role) (RoleSpec, bool) {
	spec, ok := d.Roles[role]
	return spec, ok
}

// NextPhase returns the phase that follows current, or "" if current is last.
func (d *GameDefinition) NextPhase(current string) string {
	for i, p := range d.Phases {
		if p == current && i+1 < len(d.Phases) {
			return d.Phases[i+1]
		}
	}
	return ""
}

// HasAntagonist reports whether any assigned role sits on the werewolf day side.
func (d *GameDefinition) HasAntagonist(assigned AssignedRoles) bool {
	for _, role := range assigned {
		if spec, ok := d.Roles[role]; ok && spec.DaySide == WerewolfSide {
			return true
		}
	}
	return false
}

// AssignedRoles maps player -> role. Ground truth, moderator only.
type AssignedRoles map[string]Role

// Clone copies the mapping.
func (a AssignedRoles) Clone() AssignedRoles {
	out := make(AssignedRoles, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// GameResult is created once, in the result phase.
type GameResult struct {
	Winner   Side            `json:"winner"`
	Executed []string        `json:"executed"`
	Winners  []string        `json:"winners"`
	Votes    map[string]int  `json:"votes"`
	Roles    map[string]Role `json:"roles"`
}

// Clone returns a deep copy.
func (r *GameResult) Clone() *GameResult {
	if r == nil {
		return nil
	}
	out := &GameResult{
		Winner:   r.Winner,
		Executed: append([]string(nil), r.Executed...),
		Winners:  append([]string(nil), r.Winners...),
		Votes:    make(map[string]int, len(r.Votes)),
		Roles:    make(map[string]Role, len(r.Roles)),
	}
	for k, v := range r.Votes {
		out.Votes[k] = v
	}
	for k, v := range r.Roles {
		out.Roles[k] = v
	}
	return out
}

package models

// Snapshot is everything needed to rebuild a session between steps.
type Snapshot struct {
	SessionID  string                 `json:"session_id"`
	Definition GameDefinition         `json:"definition"`
	World      WorldState             `json:"world"`
	Players    map[string]PlayerState `json:"players"`
	Assigned   AssignedRoles          `json:"assigned"`
	GM         GMInternalState        `json:"gm"`
}

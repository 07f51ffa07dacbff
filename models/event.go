package models

// EventKind tags a GameEvent.
type EventKind string

const (
	EventNightStarted     EventKind = "night_started"
	EventModeratorComment EventKind = "moderator_comment"
	EventModeratorClosing EventKind = "moderator_closing"
	EventSpeech           EventKind = "speech"
	EventVoteStarted      EventKind = "vote_started"
	EventVote             EventKind = "vote"
	EventGameEnd          EventKind = "game_end"

	// private, delivered to the acting player only
	EventDivinationResult EventKind = "divination_result"
	EventRoleSwapped      EventKind = "role_swapped"
)

// Broadcastable reports whether events of this kind are distributed as a
// cheap observation followed by a batched belief update.
func (k EventKind) Broadcastable() bool {
	switch k {
	case EventSpeech, EventModeratorComment, EventModeratorClosing:
		return true
	}
	return false
}

// Informative reports whether a player should revise beliefs after observing it.
func (k EventKind) Informative() bool {
	switch k {
	case EventSpeech, EventVote, EventModeratorComment, EventModeratorClosing:
		return true
	}
	return false
}

// Private reports whether the event is addressed to a single player.
func (k EventKind) Private() bool {
	return k == EventDivinationResult || k == EventRoleSwapped
}

// GameEvent is a fact. Once committed to WorldState.PublicEvents it is immutable.
type GameEvent struct {
	ID      string      `json:"id"`
	Kind    EventKind   `json:"kind"`
	Phase   string      `json:"phase,omitempty"`
	Actor   string      `json:"actor,omitempty"`
	Target  string      `json:"target,omitempty"`
	Content string      `json:"content,omitempty"`
	Role    Role        `json:"role,omitempty"`
	Result  *GameResult `json:"result,omitempty"`
}

// Clone returns a deep copy.
func (e GameEvent) Clone() GameEvent {
	e.Result = e.Result.Clone()
	return e
}

// CloneEvents deep-copies a slice of events, preserving nil.
func CloneEvents(events []GameEvent) []GameEvent {
	if events == nil {
		return nil
	}
	out := make([]GameEvent, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// ActionKind tags a player's declared action and the request that asks for it.
type ActionKind string

const (
	ActionUseAbility ActionKind = "use_ability"
	ActionSpeak      ActionKind = "speak"
	ActionVote       ActionKind = "vote"
	ActionDivine     ActionKind = "divine" // reserved
)

// PlayerRequest asks a player for an action.
type PlayerRequest struct {
	Action ActionKind `json:"action"`
	Prompt string     `json:"prompt,omitempty"`
}

// PlayerInput is the this-turn-only input of a player pipeline.
type PlayerInput struct {
	Event   *GameEvent     `json:"event,omitempty"`
	Request *PlayerRequest `json:"request,omitempty"`
}

// Empty reports whether the input carries neither an event nor a request.
func (in PlayerInput) Empty() bool {
	return in.Event == nil && in.Request == nil
}

// Clone returns a deep copy.
func (in PlayerInput) Clone() PlayerInput {
	var out PlayerInput
	if in.Event != nil {
		e := in.Event.Clone()
		out.Event = &e
	}
	if in.Request != nil {
		r := *in.Request
		out.Request = &r
	}
	return out
}

// PlayerOutput is what a player pipeline emits for a request.
type PlayerOutput struct {
	Action  ActionKind  `json:"action"`
	Ability AbilityType `json:"ability,omitempty"`
	Target  string      `json:"target,omitempty"`
	Content string      `json:"content,omitempty"`
}

// RequestEntry pairs a player with the request issued to it.
type RequestEntry struct {
	Player  string        `json:"player"`
	Request PlayerRequest `json:"request"`
}

// Decision is a moderator step's proposal: not applied until dispatched.
type Decision struct {
	Events    []GameEvent    `json:"events,omitempty"`
	Requests  []RequestEntry `json:"requests,omitempty"`
	NextPhase string         `json:"next_phase,omitempty"`
}

// Empty reports whether applying the decision would change nothing.
func (d Decision) Empty() bool {
	return len(d.Events) == 0 && len(d.Requests) == 0 && d.NextPhase == ""
}

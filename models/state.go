package models

// WorldState is the public fact base shared by every player.
type WorldState struct {
	Phase         string      `json:"phase"`
	Players       []string    `json:"players"`
	PublicEvents  []GameEvent `json:"public_events"`
	PendingEvents []GameEvent `json:"pending_events"`
	Result        *GameResult `json:"result,omitempty"`
}

// Clone returns a deep copy.
func (w WorldState) Clone() WorldState {
	return WorldState{
		Phase:         w.Phase,
		Players:       append([]string(nil), w.Players...),
		PublicEvents:  CloneEvents(w.PublicEvents),
		PendingEvents: CloneEvents(w.PendingEvents),
		Result:        w.Result.Clone(),
	}
}

// Beliefs maps player -> probability distribution over roles.
type Beliefs map[string]map[Role]float64

// Clone deep-copies the distributions.
func (b Beliefs) Clone() Beliefs {
	if b == nil {
		return nil
	}
	out := make(Beliefs, len(b))
	for player, dist := range b {
		d := make(map[Role]float64, len(dist))
		for role, p := range dist {
			d[role] = p
		}
		out[player] = d
	}
	return out
}

// Speech is a player's public statement, the artifact of the speak request.
type Speech struct {
	Text      string `json:"text"`
	Addressee string `json:"addressee,omitempty"`
}

// PlayerMemory is a player's private knowledge.
type PlayerMemory struct {
	Self           string          `json:"self"`
	SelfRole       Role            `json:"self_role"`
	Personality    PersonalityType `json:"personality"`
	Players        []string        `json:"players"`
	ObservedEvents []GameEvent     `json:"observed_events"`
	Beliefs        Beliefs         `json:"role_beliefs"`
	Summary        string          `json:"summary"`
	SummaryCursor  int             `json:"summary_cursor"`
	SpeechReview   Pending[Speech] `json:"speech_review"`
}

// Clone returns a deep copy.
func (m PlayerMemory) Clone() PlayerMemory {
	m.Players = append([]string(nil), m.Players...)
	m.ObservedEvents = CloneEvents(m.ObservedEvents)
	m.Beliefs = m.Beliefs.Clone()
	return m
}

// PlayerState is one player's private record. Input and Output live for a single turn.
type PlayerState struct {
	Memory PlayerMemory  `json:"memory"`
	Input  PlayerInput   `json:"input"`
	Output *PlayerOutput `json:"output,omitempty"`
}

// Clone returns a deep copy.
func (p PlayerState) Clone() PlayerState {
	out := PlayerState{Memory: p.Memory.Clone(), Input: p.Input.Clone()}
	if p.Output != nil {
		o := *p.Output
		out.Output = &o
	}
	return out
}

// Pending is the in-flight state of a bounded review-refine loop.
type Pending[T any] struct {
	Active bool `json:"active"`
	Draft  T    `json:"draft"`
	Passes int  `json:"passes"`
}

// ModeratorComment is the artifact of a day step: a remark that hands the floor to Speaker.
type ModeratorComment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// MilestoneStatus only ever advances: not_occurred < weak < strong < occurred.
type MilestoneStatus string

const (
	MilestoneNotOccurred MilestoneStatus = "not_occurred"
	MilestoneWeak        MilestoneStatus = "weak"
	MilestoneStrong      MilestoneStatus = "strong"
	MilestoneOccurred    MilestoneStatus = "occurred"
)

// Rank orders statuses; unknown statuses rank as not_occurred.
func (s MilestoneStatus) Rank() int {
	switch s {
	case MilestoneWeak:
		return 1
	case MilestoneStrong:
		return 2
	case MilestoneOccurred:
		return 3
	}
	return 0
}

// Milestone is a discussion landmark the moderator watches for.
type Milestone struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Keywords    []string        `json:"keywords,omitempty"`
	Status      MilestoneStatus `json:"status"`
}

// ModeratorPlan is generated once, on first entry to the night.
type ModeratorPlan struct {
	Policy     string      `json:"policy"`
	Milestones []Milestone `json:"milestones"`
}

// Clone returns a deep copy.
func (p *ModeratorPlan) Clone() *ModeratorPlan {
	if p == nil {
		return nil
	}
	out := &ModeratorPlan{Policy: p.Policy, Milestones: make([]Milestone, len(p.Milestones))}
	for i, m := range p.Milestones {
		m.Keywords = append([]string(nil), m.Keywords...)
		out.Milestones[i] = m
	}
	return out
}

// GMInternalState is the moderator's private bookkeeping.
type GMInternalState struct {
	NightPending []string          `json:"night_pending"`
	VotePending  []string          `json:"vote_pending"`
	Votes        map[string]string `json:"votes"`
	EventCursor  int               `json:"event_cursor"`

	NightStarted bool     `json:"night_started"`
	VoteStarted  bool     `json:"vote_started"`
	NightOrder   []string `json:"night_order,omitempty"`

	Plan *ModeratorPlan `json:"plan,omitempty"`

	LogSummary    string `json:"log_summary"`
	LogCursor     int    `json:"log_cursor"`
	MilestoneSeen int    `json:"milestone_seen"`

	DayTurns      int                       `json:"day_turns"`
	RoundSpoken   []string                  `json:"round_spoken"`
	LastSpeaker   string                    `json:"last_speaker,omitempty"`
	CommentReview Pending[ModeratorComment] `json:"comment_review"`
}

// Clone returns a deep copy.
func (g GMInternalState) Clone() GMInternalState {
	out := g
	out.NightPending = append([]string(nil), g.NightPending...)
	out.VotePending = append([]string(nil), g.VotePending...)
	out.NightOrder = append([]string(nil), g.NightOrder...)
	out.RoundSpoken = append([]string(nil), g.RoundSpoken...)
	out.Votes = make(map[string]string, len(g.Votes))
	for k, v := range g.Votes {
		out.Votes[k] = v
	}
	out.Plan = g.Plan.Clone()
	return out
}

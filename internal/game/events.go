package game

import "time"

// Event is one entry in a session's outgoing stream. The set of variants is
// closed: clients reconstruct their entire view by applying these in
// delivery order, so anything a client can observe must be one of them.
type Event interface {
	isEvent()
}

// ParticipantInfo is the client-visible projection of a participant.
type ParticipantInfo struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Status     Status `json:"status"`
	Eliminated bool   `json:"eliminated"`
}

// SessionInfo is sent once, first on every subscription, so the client
// knows the current round state before replayed history arrives.
type SessionInfo struct {
	Type         string            `json:"type"` // "session_info"
	SessionID    string            `json:"session_id"`
	Round        int               `json:"round"`
	Phase        Phase             `json:"phase"`
	Deadline     time.Time         `json:"deadline,omitzero"`
	Participants []ParticipantInfo `json:"participants"`
	LastSeq      uint64            `json:"last_seq"`
}

type MessageAppended struct {
	Type    string    `json:"type"` // "message"
	Seq     uint64    `json:"seq"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

type ParticipantJoined struct {
	Type         string          `json:"type"` // "participant_joined"
	Participant  ParticipantInfo `json:"participant"`
	PlayerNumber int             `json:"player_number"`
}

type ParticipantStatusChanged struct {
	Type        string `json:"type"` // "participant_status"
	Participant string `json:"participant"`
	Status      Status `json:"status"`
}

type RoundPhaseChanged struct {
	Type     string    `json:"type"` // "round_phase"
	Round    int       `json:"round"`
	Phase    Phase     `json:"phase"`
	Deadline time.Time `json:"deadline,omitzero"`
}

// VoteTallyResult reports the outcome of one closed round. Eliminated is
// empty when the top vote count was tied (or no votes were cast).
type VoteTallyResult struct {
	Type       string         `json:"type"` // "tally_result"
	Round      int            `json:"round"`
	Eliminated string         `json:"eliminated,omitempty"`
	Tie        bool           `json:"tie"`
	Counts     map[string]int `json:"counts"`
	Abstains   int            `json:"abstains"`
}

type GameEnded struct {
	Type   string `json:"type"` // "game_ended"
	Round  int    `json:"round"`
	Result string `json:"result"`
}

// CommandRejected is delivered only to the subscriber whose command failed,
// never broadcast.
type CommandRejected struct {
	Type    string `json:"type"` // "error"
	Op      string `json:"op"`
	Message string `json:"message"`
}

func (SessionInfo) isEvent()              {}
func (MessageAppended) isEvent()          {}
func (ParticipantJoined) isEvent()        {}
func (ParticipantStatusChanged) isEvent() {}
func (RoundPhaseChanged) isEvent()        {}
func (VoteTallyResult) isEvent()          {}
func (GameEnded) isEvent()                {}
func (CommandRejected) isEvent()          {}

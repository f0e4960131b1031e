// Package game implements the authoritative coordinator for one or more
// social-deduction game sessions: participant membership and liveness, the
// ordered per-session message log, the round/voting state machine, and the
// broadcast gateway that streams a single total order of events to every
// subscribed client.
package game

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Seednode/mindbox/internal/store"
)

type Status string

const (
	StatusConnected Status = "connected"
	StatusGrace     Status = "disconnected-grace"
	StatusLeft      Status = "left"
)

type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseRoundActive   Phase = "round_active"
	PhaseVotingOpen    Phase = "voting_open"
	PhaseTallyComplete Phase = "tally_complete"
	PhaseGameEnded     Phase = "game_ended"
)

// Options configures per-session behavior. The zero value is usable;
// withDefaults fills in anything left unset.
type Options struct {
	Capacity          int           // maximum concurrent (non-left) participants
	StartQuorum       int           // minimum participants to start a game
	VotingDuration    time.Duration // voting phase deadline
	HeartbeatInterval time.Duration // silence before connected -> grace
	ReconnectGrace    time.Duration // further silence before grace -> left
	MaxRounds         int           // used by the default rules
	SessionTimeout    time.Duration // idle time before a session is reaped
	SendBacklog       int           // per-subscriber event buffer
}

func (o Options) withDefaults() Options {
	if o.Capacity == 0 {
		o.Capacity = 4
	}
	if o.StartQuorum == 0 {
		o.StartQuorum = 3
	}
	if o.VotingDuration == 0 {
		o.VotingDuration = 45 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 10 * time.Second
	}
	if o.ReconnectGrace == 0 {
		o.ReconnectGrace = 60 * time.Second
	}
	if o.MaxRounds == 0 {
		o.MaxRounds = 5
	}
	if o.SessionTimeout == 0 {
		o.SessionTimeout = 60 * time.Minute
	}
	if o.SendBacklog == 0 {
		o.SendBacklog = 16
	}
	return o
}

// Participant is one actor within a session. Participants are never deleted
// while the session exists, so messages and votes stay attributable after
// elimination or departure.
type Participant struct {
	ID         string
	Label      string
	Status     Status
	Eliminated bool
	LastSeen   time.Time
	JoinedAt   time.Time
}

// RoundRecord is the history entry for one chat-then-vote cycle.
type RoundRecord struct {
	Number     int
	OpenedAt   time.Time
	Deadline   time.Time
	ClosedAt   time.Time
	Eliminated string // empty on tie, no votes, or abort
	Tie        bool
	Counts     map[string]int
	Abstains   int
	Aborted    bool
}

// Snapshot is a consistent, copied view of a session, safe to read after
// the session lock has been released. It is what Rules implementations and
// the HTTP layer see.
type Snapshot struct {
	SessionID    string
	Round        int
	Phase        Phase
	Deadline     time.Time
	Participants []ParticipantInfo
	LastSeq      uint64
	Result       string
}

// Rules decides when a game is over. Role and faction semantics live
// entirely behind this interface; the coordinator only needs the boolean
// and an opaque result payload for the terminal event.
type Rules interface {
	GameOver(s Snapshot) (over bool, result string)
}

// RulesFunc adapts a plain function to the Rules interface.
type RulesFunc func(Snapshot) (bool, string)

func (f RulesFunc) GameOver(s Snapshot) (bool, string) {
	return f(s)
}

// DefaultRules ends a game when the configured round count has completed
// or too few participants remain in play to sustain another vote.
type DefaultRules struct {
	MaxRounds int
}

func (r DefaultRules) GameOver(s Snapshot) (bool, string) {
	active := lo.CountBy(s.Participants, func(p ParticipantInfo) bool {
		return !p.Eliminated && p.Status != StatusLeft
	})
	if active <= 1 {
		return true, "too few players remain"
	}
	if r.MaxRounds > 0 && s.Round >= r.MaxRounds {
		return true, "round limit reached"
	}
	return false, ""
}

// Session owns all mutable state for one game. Every mutation happens under
// mu, which is the per-session serialization domain: appends, votes, phase
// transitions, and membership changes for one session execute one at a
// time, while different sessions proceed in parallel.
type Session struct {
	ID        string
	CreatedAt time.Time

	opts  Options
	st    store.Store
	rules Rules
	log   *slog.Logger

	mu           sync.Mutex
	phase        Phase
	round        int
	deadline     time.Time
	participants []*Participant
	votes        map[string]string // voter -> target for the open round
	rounds       []RoundRecord
	lastSeq      uint64
	lastActive   time.Time
	result       string
	timer        *time.Timer
	subs         map[*subscriber]struct{}
}

func newSession(id string, st store.Store, rules Rules, opts Options, log *slog.Logger) *Session {
	now := time.Now()

	return &Session{
		ID:         id,
		CreatedAt:  now,
		opts:       opts,
		st:         st,
		rules:      rules,
		log:        log.With("session", id),
		phase:      PhaseLobby,
		votes:      make(map[string]string),
		lastActive: now,
		subs:       make(map[*subscriber]struct{}),
	}
}

// join adds a new participant and announces it. Each join that is not a
// grace-window resumption gets a fresh identifier; identifiers are never
// reused across sessions or across re-joins.
func (s *Session) join() (*Participant, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseGameEnded {
		return nil, 0, ErrSessionTerminated
	}
	if s.memberCountLocked() >= s.opts.Capacity {
		return nil, 0, ErrSessionFull
	}

	now := time.Now()
	s.lastActive = now

	p := &Participant{
		ID:       uuid.NewString(),
		Status:   StatusConnected,
		LastSeen: now,
		JoinedAt: now,
	}
	s.participants = append(s.participants, p)

	number := len(s.participants)
	p.Label = "Player " + strconv.Itoa(number)

	s.publishLocked(ParticipantJoined{
		Type:         "participant_joined",
		Participant:  infoFor(p),
		PlayerNumber: number,
	})

	s.log.Info("participant joined", "participant", p.ID, "number", number)

	return p, number, nil
}

// memberCountLocked counts participants still holding a seat, i.e. anyone
// who has not permanently left.
func (s *Session) memberCountLocked() int {
	return lo.CountBy(s.participants, func(p *Participant) bool {
		return p.Status != StatusLeft
	})
}

// eligibleLocked returns participants counted toward quorum and vote
// completeness: non-eliminated, and either connected or within grace.
func (s *Session) eligibleLocked() []*Participant {
	return lo.Filter(s.participants, func(p *Participant, _ int) bool {
		return !p.Eliminated && p.Status != StatusLeft
	})
}

func (s *Session) findLocked(id string) *Participant {
	for _, p := range s.participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func infoFor(p *Participant) ParticipantInfo {
	return ParticipantInfo{
		ID:         p.ID,
		Label:      p.Label,
		Status:     p.Status,
		Eliminated: p.Eliminated,
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID: s.ID,
		Round:     s.round,
		Phase:     s.phase,
		Deadline:  s.deadline,
		Participants: lo.Map(s.participants, func(p *Participant, _ int) ParticipantInfo {
			return infoFor(p)
		}),
		LastSeq: s.lastSeq,
		Result:  s.result,
	}
}

// Snapshot returns a consistent copy of the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

// Rounds returns the recorded round history, oldest first.
func (s *Session) Rounds() []RoundRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RoundRecord, len(s.rounds))
	copy(out, s.rounds)

	return out
}

// terminate ends the session out of band (idle reap or shutdown). A game
// already over keeps its result; anything else is recorded as aborted.
func (s *Session) terminate(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseGameEnded {
		s.stopTimerLocked()
		if n := len(s.rounds); n > 0 && s.rounds[n-1].ClosedAt.IsZero() {
			s.rounds[n-1].Aborted = true
			s.rounds[n-1].ClosedAt = time.Now()
		}
		s.phase = PhaseGameEnded
		s.result = result
		s.publishLocked(GameEnded{Type: "game_ended", Round: s.round, Result: result})
	}

	s.closeAllLocked()
}

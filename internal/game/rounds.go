package game

import (
	"time"

	"github.com/samber/lo"

	"github.com/Seednode/mindbox/internal/store"
)

// Start moves the session from the lobby into round 1. The signal must come
// from a member and is idempotent: starting an already-started game returns
// the current round without error.
func (s *Session) Start(participantID string) (round int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findLocked(participantID)
	if p == nil || p.Status == StatusLeft {
		return 0, ErrSenderNotMember
	}

	switch s.phase {
	case PhaseGameEnded:
		return 0, ErrSessionTerminated
	case PhaseLobby:
		// fall through to the transition below
	default:
		return s.round, nil
	}

	if len(s.eligibleLocked()) < s.opts.StartQuorum {
		return 0, ErrQuorumNotMet
	}

	s.round = 1
	s.phase = PhaseRoundActive
	s.lastActive = time.Now()

	s.publishLocked(RoundPhaseChanged{
		Type:  "round_phase",
		Round: s.round,
		Phase: PhaseRoundActive,
	})

	s.log.Info("game started", "round", s.round)

	return s.round, nil
}

// CallMeeting opens the voting phase for the current round with a deadline
// of now plus the configured voting duration. Calling it while voting is
// already open is a no-op that returns the existing deadline, so duplicate
// signals from racing clients converge on one round.
func (s *Session) CallMeeting(participantID string) (round int, deadline time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findLocked(participantID)
	if p == nil || p.Status == StatusLeft {
		return 0, time.Time{}, ErrSenderNotMember
	}
	if p.Eliminated {
		return 0, time.Time{}, ErrVoterIneligible
	}

	switch s.phase {
	case PhaseVotingOpen:
		return s.round, s.deadline, nil
	case PhaseRoundActive:
		// fall through to the transition below
	case PhaseGameEnded:
		return 0, time.Time{}, ErrSessionTerminated
	default:
		return 0, time.Time{}, ErrVotingClosed
	}

	now := time.Now()
	s.phase = PhaseVotingOpen
	s.deadline = now.Add(s.opts.VotingDuration)
	s.votes = make(map[string]string)
	s.lastActive = now

	s.rounds = append(s.rounds, RoundRecord{
		Number:   s.round,
		OpenedAt: now,
		Deadline: s.deadline,
	})

	// The timer races the final vote; whichever attempts the transition
	// second finds the phase already closed and does nothing.
	opened := s.round
	s.timer = time.AfterFunc(s.opts.VotingDuration, func() {
		s.expireVoting(opened)
	})

	s.publishLocked(RoundPhaseChanged{
		Type:     "round_phase",
		Round:    s.round,
		Phase:    PhaseVotingOpen,
		Deadline: s.deadline,
	})

	s.log.Info("voting opened", "round", s.round, "deadline", s.deadline)

	return s.round, s.deadline, nil
}

// CastVote records participantID's vote for the open round. An empty or
// self-explanatory "skip" target is an explicit abstain. A later vote from
// the same voter replaces the earlier one; at most one vote per voter per
// round ever counts.
func (s *Session) CastVote(voterID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseVotingOpen {
		return ErrVotingClosed
	}

	voter := s.findLocked(voterID)
	if voter == nil || voter.Status == StatusLeft || voter.Eliminated {
		return ErrVoterIneligible
	}

	if targetID != "" {
		target := s.findLocked(targetID)
		if target == nil || target.Eliminated {
			return ErrInvalidTarget
		}
	}

	now := time.Now()

	err := s.st.PutVote(store.Vote{
		Session: s.ID,
		Round:   s.round,
		Voter:   voterID,
		Target:  targetID,
		At:      now,
	})
	if err != nil {
		return err
	}

	s.votes[voterID] = targetID
	s.lastActive = now
	voter.LastSeen = now

	if s.allEligibleVotedLocked() {
		s.closeVotingLocked(now)
	}

	return nil
}

func (s *Session) allEligibleVotedLocked() bool {
	return lo.EveryBy(s.eligibleLocked(), func(p *Participant) bool {
		_, voted := s.votes[p.ID]
		return voted
	})
}

// expireVoting is the deadline path into the tally. It re-checks round and
// phase under the lock, so a timer that lost the race against the final
// vote (or against a reaped session) is a no-op.
func (s *Session) expireVoting(round int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseVotingOpen || s.round != round {
		return
	}

	s.log.Info("voting deadline elapsed", "round", round)
	s.closeVotingLocked(time.Now())
}

// closeVotingLocked tallies the open round and drives the session into the
// next round or the terminal state, all inside one critical section so no
// subscriber can observe a half-transitioned session.
//
// Tally rule: abstains count toward completeness but not plurality; the
// target with strictly more votes than every other target is eliminated;
// an exact tie among the top count eliminates nobody.
func (s *Session) closeVotingLocked(now time.Time) {
	s.stopTimerLocked()

	counts := make(map[string]int)
	abstains := 0
	for _, target := range s.votes {
		if target == "" {
			abstains++
			continue
		}
		counts[target]++
	}

	eliminated := ""
	tie := false

	if len(counts) > 0 {
		top := lo.Max(lo.Values(counts))
		leaders := lo.Keys(lo.PickByValues(counts, []int{top}))
		if len(leaders) == 1 {
			eliminated = leaders[0]
		} else {
			tie = true
		}
	}

	if eliminated != "" {
		s.findLocked(eliminated).Eliminated = true
	}

	rec := &s.rounds[len(s.rounds)-1]
	rec.ClosedAt = now
	rec.Eliminated = eliminated
	rec.Tie = tie
	rec.Counts = counts
	rec.Abstains = abstains

	closed := s.round
	s.phase = PhaseTallyComplete
	s.deadline = time.Time{}
	s.votes = make(map[string]string)
	s.lastActive = now

	s.publishLocked(RoundPhaseChanged{
		Type:  "round_phase",
		Round: closed,
		Phase: PhaseTallyComplete,
	})
	s.publishLocked(VoteTallyResult{
		Type:       "tally_result",
		Round:      closed,
		Eliminated: eliminated,
		Tie:        tie,
		Counts:     counts,
		Abstains:   abstains,
	})

	s.log.Info("round tallied",
		"round", closed,
		"eliminated", eliminated,
		"tie", tie,
		"abstains", abstains,
	)

	if over, result := s.rules.GameOver(s.snapshotLocked()); over {
		s.phase = PhaseGameEnded
		s.result = result
		s.publishLocked(GameEnded{Type: "game_ended", Round: closed, Result: result})
		s.log.Info("game ended", "round", closed, "result", result)
		return
	}

	s.round++
	s.phase = PhaseRoundActive
	s.publishLocked(RoundPhaseChanged{
		Type:  "round_phase",
		Round: s.round,
		Phase: PhaseRoundActive,
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

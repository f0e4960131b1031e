package game

import "time"

// Heartbeat records liveness for a participant. A participant inside the
// grace window is restored to connected with its original identity; this is
// the only case an identifier is ever "reused", and only by the same actor.
// A participant that has already left cannot resume.
func (s *Session) Heartbeat(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findLocked(participantID)
	if p == nil || p.Status == StatusLeft {
		return ErrSenderNotMember
	}

	p.LastSeen = time.Now()
	s.lastActive = p.LastSeen

	if p.Status == StatusGrace {
		p.Status = StatusConnected
		s.publishLocked(ParticipantStatusChanged{
			Type:        "participant_status",
			Participant: p.ID,
			Status:      StatusConnected,
		})
	}

	return nil
}

// sweepMembership ages out silent participants: connected -> grace after
// the heartbeat interval, grace -> left after the reconnect grace window.
// Liveness loss is advisory, so this runs on a coarse registry ticker
// rather than a timer per participant.
//
// A departure during voting can satisfy the "all eligible voted" condition,
// so the voting completeness check re-runs after any transition to left.
func (s *Session) sweepMembership(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	graceAfter := now.Add(-s.opts.HeartbeatInterval)
	leftAfter := now.Add(-(s.opts.HeartbeatInterval + s.opts.ReconnectGrace))

	anyLeft := false

	for _, p := range s.participants {
		switch {
		case p.Status == StatusConnected && p.LastSeen.Before(graceAfter):
			p.Status = StatusGrace
			s.publishLocked(ParticipantStatusChanged{
				Type:        "participant_status",
				Participant: p.ID,
				Status:      StatusGrace,
			})
		case p.Status == StatusGrace && p.LastSeen.Before(leftAfter):
			p.Status = StatusLeft
			anyLeft = true
			s.publishLocked(ParticipantStatusChanged{
				Type:        "participant_status",
				Participant: p.ID,
				Status:      StatusLeft,
			})
			s.log.Info("participant left", "participant", p.ID)
		}
	}

	if anyLeft && s.phase == PhaseVotingOpen && s.allEligibleVotedLocked() {
		s.closeVotingLocked(time.Now())
	}
}

// abandoned reports whether every participant has left, or nobody ever
// joined and the session has sat idle. The registry reaps such sessions.
func (s *Session) abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.participants) > 0 && s.memberCountLocked() == 0
}

// idleSince returns the last time anything happened on the session.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActive
}

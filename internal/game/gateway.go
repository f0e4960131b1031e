package game

import "time"

// subscriber is one live event consumer. Its channel is buffered; a send
// that would block means the consumer has fallen too far behind, and the
// subscriber is dropped rather than allowed to stall the session.
type subscriber struct {
	participantID string
	ch            chan Event
	closed        bool
}

// Subscription is the consumer half of a subscriber. Events() yields the
// replayed history followed by live events in the session's total order,
// until Close is called or the subscriber is dropped for falling behind.
type Subscription struct {
	session *Session
	sub     *subscriber
}

// Subscribe registers participantID as a live event consumer. The returned
// stream starts with a SessionInfo snapshot and every logged message with
// sequence number greater than resumeAfter (zero replays full history),
// then continues with live events. Replay and registration happen in one
// critical section, so nothing published afterward can be missed or
// duplicated.
//
// Subscribing also counts as a heartbeat: a participant inside the grace
// window is restored to connected.
func (s *Session) Subscribe(participantID string, resumeAfter uint64) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findLocked(participantID)
	if p == nil || p.Status == StatusLeft {
		return nil, ErrSenderNotMember
	}

	now := time.Now()
	p.LastSeen = now
	s.lastActive = now

	if p.Status == StatusGrace {
		p.Status = StatusConnected
		s.publishLocked(ParticipantStatusChanged{
			Type:        "participant_status",
			Participant: p.ID,
			Status:      StatusConnected,
		})
	}

	history, err := s.st.MessagesAfter(s.ID, resumeAfter)
	if err != nil {
		return nil, err
	}

	snap := s.snapshotLocked()

	// Size the buffer to hold the whole replay plus the live backlog, so
	// stuffing the replay below can never block or drop.
	sub := &subscriber{
		participantID: participantID,
		ch:            make(chan Event, len(history)+1+s.opts.SendBacklog),
	}

	sub.ch <- SessionInfo{
		Type:         "session_info",
		SessionID:    snap.SessionID,
		Round:        snap.Round,
		Phase:        snap.Phase,
		Deadline:     snap.Deadline,
		Participants: snap.Participants,
		LastSeq:      snap.LastSeq,
	}
	for _, m := range history {
		sub.ch <- MessageAppended{
			Type:    "message",
			Seq:     m.Seq,
			Sender:  m.Sender,
			Content: m.Content,
			At:      m.At,
		}
	}

	s.subs[sub] = struct{}{}

	return &Subscription{session: s, sub: sub}, nil
}

// Events yields the subscription's event stream. The channel is closed when
// the subscription ends, whether by Close, by session termination, or by
// the subscriber being dropped as too slow.
func (sub *Subscription) Events() <-chan Event {
	return sub.sub.ch
}

// Notify delivers an event to this subscriber only. Used for per-client
// command rejections, which are not part of the session's broadcast order.
func (sub *Subscription) Notify(ev Event) {
	s := sub.session

	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.sub.closed {
		return
	}

	select {
	case sub.sub.ch <- ev:
	default:
		s.dropLocked(sub.sub)
	}
}

// Close cancels the subscription. Purely local: no session state changes,
// the participant's liveness is left to the heartbeat sweep.
func (sub *Subscription) Close() {
	s := sub.session

	s.mu.Lock()
	defer s.mu.Unlock()

	if !sub.sub.closed {
		s.dropLocked(sub.sub)
	}
}

// publishLocked fans an event out to every live subscriber. Publishes all
// happen under the session lock, which is what establishes the single
// per-session total order every subscriber observes.
func (s *Session) publishLocked(ev Event) {
	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			s.dropLocked(sub)
			s.log.Warn("dropped slow subscriber", "participant", sub.participantID)
		}
	}
}

func (s *Session) dropLocked(sub *subscriber) {
	delete(s.subs, sub)
	close(sub.ch)
	sub.closed = true
}

func (s *Session) closeAllLocked() {
	for sub := range s.subs {
		s.dropLocked(sub)
	}
}

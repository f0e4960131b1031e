package game

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Subscribe_Replays_Snapshot_Then_History(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	for i := 1; i <= 3; i++ {
		_, err := s.Append(ids[0], fmt.Sprintf("message %d", i))
		req.NoError(err)
	}

	sub, err := s.Subscribe(ids[1], 0)
	req.NoError(err)
	defer sub.Close()

	events := drainEvents(sub)
	req.GreaterOrEqual(len(events), 4)

	info, ok := events[0].(SessionInfo)
	req.True(ok, "first event must be the session snapshot")
	req.Equal(s.ID, info.SessionID)
	req.Equal(PhaseRoundActive, info.Phase)
	req.Equal(uint64(3), info.LastSeq)
	req.Len(info.Participants, 3)

	for i, ev := range events[1:4] {
		msg, ok := ev.(MessageAppended)
		req.True(ok)
		req.Equal(uint64(i+1), msg.Seq)
	}
}

func Test_Subscribe_Resumes_After_Acknowledged_Sequence(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	for i := 1; i <= 5; i++ {
		_, err := s.Append(ids[0], fmt.Sprintf("message %d", i))
		req.NoError(err)
	}

	sub, err := s.Subscribe(ids[1], 3)
	req.NoError(err)
	defer sub.Close()

	var seqs []uint64
	for _, ev := range drainEvents(sub) {
		if msg, ok := ev.(MessageAppended); ok {
			seqs = append(seqs, msg.Seq)
		}
	}

	// No duplicates, no gaps: exactly the unacknowledged tail.
	req.Equal([]uint64{4, 5}, seqs)
}

func Test_Subscribers_Observe_Events_In_Publish_Order(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	first, err := s.Subscribe(ids[0], 0)
	req.NoError(err)
	defer first.Close()

	second, err := s.Subscribe(ids[1], 0)
	req.NoError(err)
	defer second.Close()

	_, err = s.Append(ids[0], "before the meeting")
	req.NoError(err)
	_, _, err = s.CallMeeting(ids[0])
	req.NoError(err)
	for _, voter := range ids {
		req.NoError(s.CastVote(voter, ids[2]))
	}

	kinds := func(events []Event) []string {
		var out []string
		for _, ev := range events {
			switch ev.(type) {
			case SessionInfo:
				out = append(out, "info")
			case MessageAppended:
				out = append(out, "message")
			case RoundPhaseChanged:
				out = append(out, "phase")
			case VoteTallyResult:
				out = append(out, "tally")
			case GameEnded:
				out = append(out, "ended")
			default:
				out = append(out, "other")
			}
		}
		return out
	}

	want := []string{"info", "message", "phase", "phase", "tally", "phase"}

	firstEvents := drainEvents(first)
	secondEvents := drainEvents(second)
	req.Equal(want, kinds(firstEvents))
	req.Equal(want, kinds(secondEvents))

	// The two subscribers saw identical streams, not merely same-shaped ones.
	req.Equal(firstEvents, secondEvents)
}

func Test_Slow_Subscriber_Is_Dropped_Not_Waited_On(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{SendBacklog: 2})

	s, ids := newStartedSession(t, reg, 3)

	slow, err := s.Subscribe(ids[1], 0)
	req.NoError(err)

	// Nobody reads from slow; once its backlog is full, publishing must
	// drop it rather than block the session.
	for i := 1; i <= 10; i++ {
		_, err := s.Append(ids[0], fmt.Sprintf("message %d", i))
		req.NoError(err)
	}

	events := drainEvents(slow)
	req.Less(len(events), 11)

	_, open := <-slow.Events()
	req.False(open, "dropped subscriber's channel must be closed")

	// The session itself is unharmed and a fresh subscription recovers
	// the gap via resume_after.
	var lastSeen uint64
	for _, ev := range events {
		if msg, ok := ev.(MessageAppended); ok {
			lastSeen = msg.Seq
		}
	}

	recovered, err := s.Subscribe(ids[1], lastSeen)
	req.NoError(err)
	defer recovered.Close()

	var seqs []uint64
	for _, ev := range drainEvents(recovered) {
		if msg, ok := ev.(MessageAppended); ok {
			seqs = append(seqs, msg.Seq)
		}
	}
	req.NotEmpty(seqs)
	req.Equal(lastSeen+1, seqs[0])
	req.Equal(uint64(10), seqs[len(seqs)-1])
}

func Test_Close_Has_No_Side_Effects_On_Session_State(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	sub, err := s.Subscribe(ids[0], 0)
	req.NoError(err)

	before := s.Snapshot()
	sub.Close()
	after := s.Snapshot()

	req.Equal(before.Phase, after.Phase)
	req.Equal(before.Round, after.Round)
	req.Equal(before.Participants, after.Participants)

	// Publishing after the close must not panic or resurrect the stream.
	_, err = s.Append(ids[1], "still going")
	req.NoError(err)
}

func Test_Subscribe_Rejects_Unknown_Participants(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, _ := newStartedSession(t, reg, 3)

	_, err := s.Subscribe("stranger", 0)
	req.ErrorIs(err, ErrSenderNotMember)
}

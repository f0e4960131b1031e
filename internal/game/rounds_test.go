package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Start_Requires_Quorum(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	first, err := reg.CreateOrJoin("")
	req.NoError(err)
	_, err = reg.CreateOrJoin(first.SessionID)
	req.NoError(err)

	s, err := reg.Session(first.SessionID)
	req.NoError(err)

	_, err = s.Start(first.ParticipantID)
	req.ErrorIs(err, ErrQuorumNotMet)
	req.Equal(PhaseLobby, s.Snapshot().Phase)
}

func Test_Start_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	round, err := s.Start(ids[1])
	req.NoError(err)
	req.Equal(1, round)
	req.Equal(PhaseRoundActive, s.Snapshot().Phase)
}

func Test_CallMeeting_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	round1, deadline1, err := s.CallMeeting(ids[0])
	req.NoError(err)
	req.Equal(1, round1)
	req.False(deadline1.IsZero())

	// Duplicate signal while voting is already open: same round, same
	// deadline, no second round record.
	round2, deadline2, err := s.CallMeeting(ids[1])
	req.NoError(err)
	req.Equal(round1, round2)
	req.Equal(deadline1, deadline2)
	req.Len(s.Rounds(), 1)
}

func Test_CallMeeting_Rejected_In_Lobby(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	res, err := reg.CreateOrJoin("")
	req.NoError(err)

	s, err := reg.Session(res.SessionID)
	req.NoError(err)

	_, _, err = s.CallMeeting(res.ParticipantID)
	req.ErrorIs(err, ErrVotingClosed)
}

func Test_Vote_Rejected_Outside_VotingOpen(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	err := s.CastVote(ids[0], ids[1])
	req.ErrorIs(err, ErrVotingClosed)
}

func Test_Vote_Validation(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	_, _, err := s.CallMeeting(ids[0])
	req.NoError(err)

	req.ErrorIs(s.CastVote("stranger", ids[1]), ErrVoterIneligible)
	req.ErrorIs(s.CastVote(ids[0], "stranger"), ErrInvalidTarget)

	// Abstain is always a valid target.
	req.NoError(s.CastVote(ids[0], ""))
}

func Test_Plurality_Eliminates_Top_Target(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{Capacity: 4, StartQuorum: 4})

	s, ids := newStartedSession(t, reg, 4)

	_, _, err := s.CallMeeting(ids[0])
	req.NoError(err)

	// {ids[0]: 3, ids[1]: 1} -> ids[0] eliminated.
	req.NoError(s.CastVote(ids[1], ids[0]))
	req.NoError(s.CastVote(ids[2], ids[0]))
	req.NoError(s.CastVote(ids[3], ids[0]))
	req.NoError(s.CastVote(ids[0], ids[1]))

	snap := s.Snapshot()
	req.Equal(PhaseRoundActive, snap.Phase)
	req.Equal(2, snap.Round)

	rounds := s.Rounds()
	req.Len(rounds, 1)
	req.Equal(ids[0], rounds[0].Eliminated)
	req.False(rounds[0].Tie)
	req.Equal(map[string]int{ids[0]: 3, ids[1]: 1}, rounds[0].Counts)

	eliminated := 0
	for _, p := range snap.Participants {
		if p.Eliminated {
			eliminated++
			req.Equal(ids[0], p.ID)
		}
	}
	req.Equal(1, eliminated)
}

func Test_Tie_Eliminates_Nobody_And_Advances_Round(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{Capacity: 6, StartQuorum: 3})

	s, ids := newStartedSession(t, reg, 5)

	_, _, err := s.CallMeeting(ids[0])
	req.NoError(err)

	// {A: 2, B: 2, C: 1} among three targets -> exact tie at the top.
	req.NoError(s.CastVote(ids[1], ids[0]))
	req.NoError(s.CastVote(ids[2], ids[0]))
	req.NoError(s.CastVote(ids[3], ids[1]))
	req.NoError(s.CastVote(ids[4], ids[1]))
	req.NoError(s.CastVote(ids[0], ids[2]))

	snap := s.Snapshot()
	req.Equal(2, snap.Round)
	req.Equal(PhaseRoundActive, snap.Phase)

	for _, p := range snap.Participants {
		req.False(p.Eliminated)
	}

	rounds := s.Rounds()
	req.Len(rounds, 1)
	req.True(rounds[0].Tie)
	req.Empty(rounds[0].Eliminated)
}

func Test_Later_Vote_Replaces_Earlier_One(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{Capacity: 4, StartQuorum: 4})

	s, ids := newStartedSession(t, reg, 4)

	_, _, err := s.CallMeeting(ids[0])
	req.NoError(err)

	// ids[0] first votes for ids[1], then changes to an abstain; only the
	// abstain may count.
	req.NoError(s.CastVote(ids[0], ids[1]))
	req.NoError(s.CastVote(ids[0], ""))

	req.NoError(s.CastVote(ids[1], ids[2]))
	req.NoError(s.CastVote(ids[2], ids[2]))
	req.NoError(s.CastVote(ids[3], ids[2]))

	rounds := s.Rounds()
	req.Len(rounds, 1)
	req.Equal(ids[2], rounds[0].Eliminated)
	req.Equal(map[string]int{ids[2]: 3}, rounds[0].Counts)
	req.Equal(1, rounds[0].Abstains)
}

func Test_All_Votes_Received_Tallies_Before_Deadline(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)
	p1, p2, p3 := ids[0], ids[1], ids[2]

	msg, err := s.Append(p1, "hi")
	req.NoError(err)
	req.Equal(uint64(1), msg.Seq)

	round, deadline, err := s.CallMeeting(p1)
	req.NoError(err)
	req.Equal(1, round)
	req.InDelta((45 * time.Second).Seconds(), time.Until(deadline).Seconds(), 5)

	req.NoError(s.CastVote(p1, p2))
	req.NoError(s.CastVote(p2, p3))
	req.NoError(s.CastVote(p3, p2))

	// All voted: the tally fires immediately, no waiting on the timer.
	snap := s.Snapshot()
	req.Equal(2, snap.Round)
	req.Equal(PhaseRoundActive, snap.Phase)
	req.True(snap.Deadline.IsZero())

	rounds := s.Rounds()
	req.Len(rounds, 1)
	req.Equal(p2, rounds[0].Eliminated)

	// The closed phase no longer accepts votes.
	req.ErrorIs(s.CastVote(p1, p3), ErrVotingClosed)
}

func Test_Deadline_Tallies_Partial_Votes(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{VotingDuration: 30 * time.Millisecond})

	s, ids := newStartedSession(t, reg, 3)
	p1, p2 := ids[0], ids[1]

	_, _, err := s.CallMeeting(p1)
	req.NoError(err)

	// Only one vote arrives; p2's single vote is strictly greater than
	// zero for everyone else, so the timer-driven tally eliminates p2.
	req.NoError(s.CastVote(p1, p2))

	req.Eventually(func() bool {
		snap := s.Snapshot()
		return snap.Phase == PhaseRoundActive && snap.Round == 2
	}, time.Second, 5*time.Millisecond)

	rounds := s.Rounds()
	req.Len(rounds, 1)
	req.Equal(p2, rounds[0].Eliminated)
}

func Test_Eliminated_Participants_Cannot_Vote_Or_Call_Meetings(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{Capacity: 4, StartQuorum: 4})

	s, ids := newStartedSession(t, reg, 4)

	_, _, err := s.CallMeeting(ids[0])
	req.NoError(err)

	for _, voter := range ids {
		req.NoError(s.CastVote(voter, ids[3]))
	}
	req.Equal(2, s.Snapshot().Round)

	_, _, err = s.CallMeeting(ids[3])
	req.ErrorIs(err, ErrVoterIneligible)

	_, _, err = s.CallMeeting(ids[0])
	req.NoError(err)

	req.ErrorIs(s.CastVote(ids[3], ids[0]), ErrVoterIneligible)
	req.ErrorIs(s.CastVote(ids[0], ids[3]), ErrInvalidTarget)
}

func Test_Injected_Rules_End_The_Game(t *testing.T) {
	req := require.New(t)

	rules := RulesFunc(func(s Snapshot) (bool, string) {
		return s.Round >= 1, "imposters win"
	})
	reg := newTestRegistry(t, rules, Options{})

	s, ids := newStartedSession(t, reg, 3)

	_, _, err := s.CallMeeting(ids[0])
	req.NoError(err)

	for _, voter := range ids {
		req.NoError(s.CastVote(voter, ids[2]))
	}

	snap := s.Snapshot()
	req.Equal(PhaseGameEnded, snap.Phase)
	req.Equal("imposters win", snap.Result)

	// Terminal state rejects everything downstream.
	_, err = s.Start(ids[0])
	req.ErrorIs(err, ErrSessionTerminated)
	_, _, err = s.CallMeeting(ids[0])
	req.ErrorIs(err, ErrSessionTerminated)
	req.ErrorIs(s.CastVote(ids[0], ids[1]), ErrVotingClosed)
}

func Test_Round_Limit_Ends_The_Game(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{Capacity: 6, StartQuorum: 5, MaxRounds: 1})

	s, ids := newStartedSession(t, reg, 5)

	_, _, err := s.CallMeeting(ids[0])
	req.NoError(err)

	// Everyone abstains; nobody is eliminated, but round 1 has completed.
	for _, voter := range ids {
		req.NoError(s.CastVote(voter, ""))
	}

	snap := s.Snapshot()
	req.Equal(PhaseGameEnded, snap.Phase)
	req.Equal("round limit reached", snap.Result)
}

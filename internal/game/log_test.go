package game

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Append_Assigns_Strictly_Increasing_Sequences(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	for i := 1; i <= 5; i++ {
		msg, err := s.Append(ids[i%3], fmt.Sprintf("message %d", i))
		req.NoError(err)
		req.Equal(uint64(i), msg.Seq)
	}

	// ReadFrom contract: ascending, gap-free, strictly after the cursor.
	messages, err := s.MessagesAfter(2)
	req.NoError(err)
	req.Len(messages, 3)
	for i, m := range messages {
		req.Equal(uint64(i+3), m.Seq)
	}
}

func Test_Append_Trims_And_Rejects_Empty_Content(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	_, err := s.Append(ids[0], "")
	req.ErrorIs(err, ErrEmptyContent)

	_, err = s.Append(ids[0], "   \t\n")
	req.ErrorIs(err, ErrEmptyContent)

	msg, err := s.Append(ids[0], "  hello  ")
	req.NoError(err)
	req.Equal("hello", msg.Content)
	req.Equal(uint64(1), msg.Seq)
}

func Test_Append_Rejects_Non_Members(t *testing.T) {
	req := require.New(t)
	reg := newTestRegistry(t, nil, Options{})

	s, ids := newStartedSession(t, reg, 3)

	_, err := s.Append("stranger", "hello")
	req.ErrorIs(err, ErrSenderNotMember)

	// An eliminated participant still holds a seat and may keep chatting;
	// only a departed one is rejected.
	_, _, err = s.CallMeeting(ids[0])
	req.NoError(err)
	for _, voter := range ids {
		req.NoError(s.CastVote(voter, ids[2]))
	}

	_, err = s.Append(ids[2], "from beyond")
	req.NoError(err)
}

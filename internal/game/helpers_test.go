package game

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Seednode/mindbox/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, rules Rules, opts Options) *Registry {
	t.Helper()

	st, err := store.OpenBadger("", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	return NewRegistry(st, rules, opts, testLogger())
}

// newStartedSession joins n participants into one session and starts the
// game, returning the session and the participant IDs in join order.
func newStartedSession(t *testing.T, reg *Registry, n int) (*Session, []string) {
	t.Helper()
	req := require.New(t)

	ids := make([]string, 0, n)
	var sessionID string

	for i := 0; i < n; i++ {
		res, err := reg.CreateOrJoin(sessionID)
		req.NoError(err)
		sessionID = res.SessionID
		ids = append(ids, res.ParticipantID)
	}

	s, err := reg.Session(sessionID)
	req.NoError(err)

	round, err := s.Start(ids[0])
	req.NoError(err)
	req.Equal(1, round)

	return s, ids
}

// drainEvents empties everything currently buffered on a subscription.
// Publishes happen synchronously under the session lock, so once an
// operation has returned, its events are already here.
func drainEvents(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

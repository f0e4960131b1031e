package game

import (
	"strings"
	"time"

	"github.com/Seednode/mindbox/internal/store"
)

// Append adds a chat message to the session's ordered log. Sequence numbers
// are assigned under the session lock, so no two appends can observe the
// same number, and a message is only visible (and its number only consumed)
// once the store has accepted it.
func (s *Session) Append(senderID, content string) (store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.Message{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sender := s.findLocked(senderID)
	if sender == nil || sender.Status == StatusLeft {
		return store.Message{}, ErrSenderNotMember
	}

	now := time.Now()

	msg := store.Message{
		Session: s.ID,
		Seq:     s.lastSeq + 1,
		Sender:  senderID,
		Content: content,
		At:      now,
	}

	if err := s.st.AppendMessage(msg); err != nil {
		return store.Message{}, err
	}

	s.lastSeq = msg.Seq
	s.lastActive = now
	sender.LastSeen = now

	s.publishLocked(MessageAppended{
		Type:    "message",
		Seq:     msg.Seq,
		Sender:  msg.Sender,
		Content: msg.Content,
		At:      msg.At,
	})

	return msg, nil
}

// MessagesAfter returns all messages with sequence number greater than
// afterSeq, ascending. Used for history replay and for gap recovery after
// a dropped subscription; calling it again with a later afterSeq restarts
// the read from that point.
func (s *Session) MessagesAfter(afterSeq uint64) ([]store.Message, error) {
	return s.st.MessagesAfter(s.ID, afterSeq)
}

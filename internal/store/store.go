// Package store persists the durable, per-session ordered records the
// coordinator relies on: chat messages keyed by their sequence number, and
// the current vote per (round, voter). Any backend offering ordered append,
// filtered ordered reads, and replace-on-rewrite votes is substitutable.
package store

import "time"

// Message is one appended chat entry. Seq is assigned by the coordinator
// and is the sole ordering authority within a session.
type Message struct {
	Session string    `json:"session"`
	Seq     uint64    `json:"seq"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Vote is the active vote of one voter in one round. An empty Target is an
// explicit abstain. Writing a vote for the same (session, round, voter)
// replaces the previous record.
type Vote struct {
	Session string    `json:"session"`
	Round   int       `json:"round"`
	Voter   string    `json:"voter"`
	Target  string    `json:"target"`
	At      time.Time `json:"at"`
}

type Store interface {
	AppendMessage(m Message) error

	// MessagesAfter returns all messages of a session with Seq > afterSeq,
	// in ascending sequence order.
	MessagesAfter(session string, afterSeq uint64) ([]Message, error)

	PutVote(v Vote) error

	VotesForRound(session string, round int) ([]Vote, error)

	Close() error
}

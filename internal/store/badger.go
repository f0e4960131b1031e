package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Badger implements Store on BadgerDB. Keys embed a zero-padded sequence
// (or round number) so a prefix scan yields records already in order:
//
//	msg:{session}:{seq, 19 digits}
//	vote:{session}:{round, 5 digits}:{voter}
//
// The vote key contains no timestamp or uniquifier on purpose: rewriting
// the same (round, voter) key is what gives votes replace semantics.
type Badger struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenBadger opens a store at dir. An empty dir opens an in-memory store,
// used by tests and by deployments that accept losing history on restart.
func OpenBadger(dir string, log *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}

	return &Badger{db: db, log: log}, nil
}

func messageKey(session string, seq uint64) []byte {
	return fmt.Appendf(nil, "msg:%s:%019d", session, seq)
}

func voteKey(session string, round int, voter string) []byte {
	return fmt.Appendf(nil, "vote:%s:%05d:%s", session, round, voter)
}

func (b *Badger) AppendMessage(m Message) error {
	val, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(m.Session, m.Seq), val)
	})
}

func (b *Badger) MessagesAfter(session string, afterSeq uint64) ([]Message, error) {
	var messages []Message

	err := b.db.View(func(txn *badger.Txn) error {
		prefix := fmt.Appendf(nil, "msg:%s:", session)

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		// Seek past afterSeq directly rather than scanning from the start.
		for it.Seek(messageKey(session, afterSeq+1)); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var m Message
				if err := json.Unmarshal(val, &m); err != nil {
					return err
				}
				messages = append(messages, m)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return messages, nil
}

func (b *Badger) PutVote(v Vote) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(voteKey(v.Session, v.Round, v.Voter), val)
	})
}

func (b *Badger) VotesForRound(session string, round int) ([]Vote, error) {
	var votes []Vote

	err := b.db.View(func(txn *badger.Txn) error {
		prefix := fmt.Appendf(nil, "vote:%s:%05d:", session, round)

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var v Vote
				if err := json.Unmarshal(val, &v); err != nil {
					return err
				}
				votes = append(votes, v)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return votes, nil
}

func (b *Badger) Close() error {
	b.log.Debug("closing badger store")
	return b.db.Close()
}

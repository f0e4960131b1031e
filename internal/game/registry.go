package game

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/Seednode/mindbox/internal/store"
)

// Registry creates and looks up sessions and assigns participant identity.
// One registry is one authoritative process: every session it holds is
// owned exclusively by it. The Store and event-stream contracts are what
// would let that be relaxed across nodes later.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	opts  Options
	st    store.Store
	rules Rules
	log   *slog.Logger
}

func NewRegistry(st store.Store, rules Rules, opts Options, log *slog.Logger) *Registry {
	opts = opts.withDefaults()

	if rules == nil {
		rules = DefaultRules{MaxRounds: opts.MaxRounds}
	}

	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
		st:       st,
		rules:    rules,
		log:      log,
	}
}

// JoinResult is what a successful join hands back to the client: the pair
// it needs before it may subscribe, plus its 1-based seat number.
type JoinResult struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	PlayerNumber  int    `json:"player_number"`
}

// CreateOrJoin joins the requested session, or creates a new one when no
// session ID is given and no session is waiting for players. A requested ID
// that resolves to nothing also creates a fresh session (with a fresh ID);
// a requested ID that resolves to an ended session is an error, so a stale
// invite link fails loudly instead of quietly landing in a new game.
func (r *Registry) CreateOrJoin(requested string) (JoinResult, error) {
	if requested != "" {
		r.mu.Lock()
		s, ok := r.sessions[requested]
		r.mu.Unlock()

		if ok {
			return joinSession(s)
		}

		return joinSession(r.create())
	}

	// No session requested: fill an existing lobby first, the way the
	// original matchmaking did, before opening a new one.
	for _, s := range r.lobbies() {
		res, err := joinSession(s)
		if err == nil {
			return res, nil
		}
	}

	return joinSession(r.create())
}

func joinSession(s *Session) (JoinResult, error) {
	p, number, err := s.join()
	if err != nil {
		return JoinResult{}, err
	}

	return JoinResult{
		SessionID:     s.ID,
		ParticipantID: p.ID,
		PlayerNumber:  number,
	}, nil
}

// lobbies returns sessions still gathering players, oldest first.
func (r *Registry) lobbies() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	for _, s := range r.sessions {
		if s.Snapshot().Phase == PhaseLobby {
			out = append(out, s)
		}
	}

	// Map order is random; prefer the longest-waiting lobby.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	return out
}

func (r *Registry) create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newSessionIDLocked()
	s := newSession(id, r.st, r.rules, r.opts, r.log)
	r.sessions[id] = s

	r.log.Info("session created", "session", id)

	return s
}

// Session looks up a live session by ID.
func (r *Registry) Session(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return s, nil
}

// newSessionIDLocked generates a crypto-random session ID and ensures it
// doesn't collide with existing sessions.
func (r *Registry) newSessionIDLocked() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := r.sessions[id]; !exists {
			return id
		}
	}
}

// Run drives the registry's background maintenance until ctx is canceled:
// membership sweeps on every tick, and reaping of sessions that everyone
// has left or that have idled past the session timeout.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.HeartbeatInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	cutoff := now.Add(-r.opts.SessionTimeout)

	for _, s := range live {
		s.sweepMembership(now)

		if s.abandoned() || s.idleSince().Before(cutoff) {
			r.mu.Lock()
			delete(r.sessions, s.ID)
			r.mu.Unlock()

			s.terminate("session expired")
			r.log.Info("session reaped", "session", s.ID)
		}
	}
}

func (r *Registry) shutdown() {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		live = append(live, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.terminate("server shutting down")
	}
}

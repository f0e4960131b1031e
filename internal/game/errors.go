package game

import "errors"

// Every failure an operation can surface to a caller. None of these are
// wrapped in transport concerns here; the HTTP/WS layer maps them.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionFull       = errors.New("session is full")
	ErrSessionTerminated = errors.New("session has ended")
	ErrSenderNotMember   = errors.New("sender is not an active participant")
	ErrEmptyContent      = errors.New("message content is empty")
	ErrInvalidTarget     = errors.New("vote target is unknown or eliminated")
	ErrVoterIneligible   = errors.New("voter is not eligible to vote")
	ErrVotingClosed      = errors.New("voting is not open")
	ErrQuorumNotMet      = errors.New("not enough participants to start")
)

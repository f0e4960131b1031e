/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/Seednode/mindbox/internal/game"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// statusFor maps coordinator errors to HTTP status codes. Anything the
// coordinator didn't classify is a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrSessionFull):
		return http.StatusConflict
	case errors.Is(err, game.ErrSessionTerminated):
		return http.StatusGone
	case errors.Is(err, game.ErrSenderNotMember),
		errors.Is(err, game.ErrVoterIneligible):
		return http.StatusForbidden
	case errors.Is(err, game.ErrEmptyContent),
		errors.Is(err, game.ErrInvalidTarget),
		errors.Is(err, game.ErrVotingClosed),
		errors.Is(err, game.ErrQuorumNotMet):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(cfg *Config, w http.ResponseWriter, err error) {
	writeJSON(cfg, w, statusFor(err), map[string]string{"error": err.Error()})
}

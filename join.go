package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/mindbox/internal/game"
)

// serveJoin is the front door: it allocates session membership and returns
// the {sessionId, participantId} pair a client needs before subscribing.
// With no session parameter it fills the longest-waiting lobby, creating a
// new session only when none is joinable.
func serveJoin(cfg *Config, reg *game.Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		res, err := reg.CreateOrJoin(r.URL.Query().Get("session"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, res)

		logf(cfg, "JOIN: Participant %s joined %s (player %d) from %s in %s",
			res.ParticipantID,
			res.SessionID,
			res.PlayerNumber,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveSessionQR generates a PNG QR code for a session's join URL, so a
// phone can scan its way into the game.
func serveSessionQR(cfg *Config, reg *game.Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")

		if _, err := reg.Session(sessionID); err != nil {
			writeError(cfg, w, err)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /session/:sessionid/qr; point the code at /join instead.
		base := strings.TrimSuffix(r.URL.Path, "/session/"+sessionID+"/qr")

		url := scheme + "://" + r.Host + base + "/join?session=" + sessionID

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

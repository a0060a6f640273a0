// Package handlers implements the HTTP surface: the chat stream endpoints,
// the embedded mini-chat, history, votes, auth and health.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/agasthyaps/nisa-labs-sub000/internal/chaterr"
	"github.com/agasthyaps/nisa-labs-sub000/internal/stream"
)

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// respondError maps err through the error taxonomy and writes the client-safe
// representation. Internal detail is the caller's job to log.
func respondError(w http.ResponseWriter, err error) {
	status, msg := chaterr.Public(err)
	respondJSON(w, status, map[string]string{"error": msg})
}

// streamSSE writes the event channel as a server-sent event stream. It returns
// when the channel closes or the client goes away; a gone client never cancels
// the producer behind the channel.
func streamSSE(w http.ResponseWriter, r *http.Request, events <-chan stream.Event, logger zerolog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				logger.Debug().Err(err).Msg("client write failed, detaching")
				return
			}
			flusher.Flush()
			if ev.Type == stream.TypeFinish {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, ev stream.Event) error {
	data := ev.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

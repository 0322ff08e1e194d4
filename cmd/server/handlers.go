package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/emiliaharju/whodunit/internal/errors"
)

// healthy responds with a JSON object indicating that the server is healthy.
func (app *application) healthy(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (app *application) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := app.engine.ListSessions(r.Context())
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, sessions)
}

func (app *application) listAvailableSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := app.engine.ListAvailableSessions(r.Context())
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, sessions)
}

func (app *application) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		MinPlayers int    `json:"minPlayers"`
		MaxPlayers int    `json:"maxPlayers"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}

	session, err := app.engine.CreateSession(r.Context(), req.Name, req.MinPlayers, req.MaxPlayers)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, session)
}

func (app *application) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	if err = app.engine.DeleteSession(r.Context(), id); err != nil {
		app.engineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) sessionSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	snapshot, err := app.engine.Snapshot(r.Context(), id)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, snapshot)
}

func (app *application) joinSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		Name      string    `json:"name"`
		BirthDate time.Time `json:"birthDate"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}

	participant, err := app.engine.Join(r.Context(), id, req.Name, req.BirthDate)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, id)
	app.writeJSON(w, r, http.StatusCreated, participant)
}

func (app *application) startSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		ReferenceDate time.Time `json:"referenceDate"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	if req.ReferenceDate.IsZero() {
		req.ReferenceDate = time.Now()
	}

	if err = app.engine.StartSession(r.Context(), id, req.ReferenceDate); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, id)
	w.WriteHeader(http.StatusAccepted)
}

// broadcastSnapshot reads the committed state and fans it out. Failures are
// logged and swallowed: the mutation already committed and a lost broadcast
// must never surface as a request error.
func (app *application) broadcastSnapshot(r *http.Request, id int64) {
	snapshot, err := app.engine.Snapshot(r.Context(), id)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "snapshot for broadcast",
			slog.Int64("sessionID", id), errors.SlogError(err))
		return
	}
	app.hub.Broadcast(id, snapshot)
}

// streamSession serves the per-session snapshot stream over SSE. The client
// gets the current snapshot immediately and a fresh one after every session
// mutation handled by this server.
func (app *application) streamSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		app.serverError(w, r, errors.NewSentinel("response writer does not support streaming"))
		return
	}

	snapshot, err := app.engine.Snapshot(r.Context(), id)
	if err != nil {
		app.engineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := app.hub.Subscribe(id)
	defer app.hub.Unsubscribe(id, updates)

	if err = writeEvent(w, snapshot); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if err = writeEvent(w, snapshot); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if _, err = w.Write([]byte("event: snapshot\ndata: " + string(data) + "\n\n")); err != nil {
		return errors.Wrap(err, "write event")
	}
	return nil
}

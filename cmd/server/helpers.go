package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/emiliaharju/whodunit/internal/engine"
	"github.com/emiliaharju/whodunit/internal/errors"
)

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error",
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.Debug(http.StatusText(status), "method", method, "uri", uri)
	http.Error(w, http.StatusText(status), status)
}

// engineError maps the engine error taxonomy onto HTTP statuses.
func (app *application) engineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		app.clientError(w, r, http.StatusNotFound)
	case errors.Is(err, engine.ErrAlreadyDone):
		app.clientError(w, r, http.StatusConflict)
	case errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrWindowExpired),
		errors.Is(err, engine.ErrInvalidDirection),
		errors.Is(err, engine.ErrInvalidArgument):
		app.clientError(w, r, http.StatusBadRequest)
	default:
		app.serverError(w, r, err)
	}
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "encode response", errors.SlogError(err))
	}
}

// sessionID parses the {id} path value.
func sessionID(r *http.Request) (int64, error) {
	return pathID(r, "id")
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse path id",
			slog.String("key", key), slog.String("value", r.PathValue(key)))
	}
	return id, nil
}

// decodeJSON reads the request body into v and reports whether it succeeded,
// writing the 400 response itself on failure.
func (app *application) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return false
	}
	return true
}

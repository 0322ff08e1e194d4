// Package engine implements the game session state machine: card custody
// across zones, turn order, multi-step interaction protocols, the veto
// window and the secret-revelation win condition.
//
// Every mutating operation is serialized per session and runs in a single
// transaction on the read-write connection, so a failure never leaves a
// session half-mutated.
package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
	"github.com/emiliaharju/whodunit/internal/sqlite"
	"github.com/jmoiron/sqlx"
)

type Engine struct {
	db     *sqlite.Database
	reads  *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
	locks  *sessionLocks
}

type Option func(*Engine)

// WithClock overrides the engine clock. Used in tests to exercise the veto
// window deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(db *sqlite.Database, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		reads:  sqlx.NewDb(db.ReadOnly, "sqlite3"),
		logger: logger.With("source", "engine"),
		now:    time.Now,
		locks:  newSessionLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// mutate runs fn inside a transaction while holding the session lock. All
// engine operations for a session are serialized through here; operations on
// different sessions proceed in parallel.
func (e *Engine) mutate(ctx context.Context, sessionID int64, fn func(tx *sql.Tx) error) error {
	unlock := e.locks.acquire(sessionID)
	defer unlock()

	tx, err := e.db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err, "begin transaction")
	}
	defer func() {
		// Rollback is a no-op after a successful commit.
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			e.logger.LogAttrs(ctx, slog.LevelError, "could not roll back transaction",
				errors.SlogError(rollbackErr))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return persistence(err, "commit transaction")
	}
	return nil
}

// sessionIDOfParticipant resolves the session owning a participant so the
// session lock can be taken before the transaction starts.
func (e *Engine) sessionIDOfParticipant(ctx context.Context, participantID int64) (int64, error) {
	var sessionID int64
	stmt := `SELECT session_id FROM participants WHERE id = ?`
	if err := e.db.ReadOnly.QueryRowContext(ctx, stmt, participantID).Scan(&sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.Wrap(ErrParticipantNotFound, "resolve session", slog.Int64("participantID", participantID))
		}
		return 0, persistence(err, "resolve participant session")
	}
	return sessionID, nil
}

func (e *Engine) sessionIDOfCard(ctx context.Context, cardID int64) (int64, error) {
	var sessionID int64
	stmt := `SELECT session_id FROM cards WHERE id = ?`
	if err := e.db.ReadOnly.QueryRowContext(ctx, stmt, cardID).Scan(&sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.Wrap(ErrCardNotFound, "resolve session", slog.Int64("cardID", cardID))
		}
		return 0, persistence(err, "resolve card session")
	}
	return sessionID, nil
}

func (e *Engine) sessionIDOfSecret(ctx context.Context, secretID int64) (int64, error) {
	var sessionID int64
	stmt := `SELECT session_id FROM secrets WHERE id = ?`
	if err := e.db.ReadOnly.QueryRowContext(ctx, stmt, secretID).Scan(&sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.Wrap(ErrSecretNotFound, "resolve session", slog.Int64("secretID", secretID))
		}
		return 0, persistence(err, "resolve secret session")
	}
	return sessionID, nil
}

const sessionColumns = `id, code, name, status, min_players, max_players, player_count,
current_turn, cards_left, folly_direction, vote_tally`

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Status, &s.MinPlayers, &s.MaxPlayers,
		&s.PlayerCount, &s.CurrentTurn, &s.CardsLeft, &s.FollyDirection, &s.VoteTally)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, persistence(err, "scan session")
	}
	return &s, nil
}

func getSession(ctx context.Context, tx *sql.Tx, id int64) (*models.Session, error) {
	stmt := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	return scanSession(tx.QueryRowContext(ctx, stmt, id))
}

const participantColumns = `id, session_id, name, birth_date, seating_rank, pending_action,
social_disgrace, votes_received`

func scanParticipant(scanner interface{ Scan(...any) error }) (*models.Participant, error) {
	var p models.Participant
	err := scanner.Scan(&p.ID, &p.SessionID, &p.Name, &p.BirthDate, &p.SeatingRank,
		&p.PendingAction, &p.SocialDisgrace, &p.VotesReceived)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, persistence(err, "scan participant")
	}
	return &p, nil
}

func getParticipant(ctx context.Context, tx *sql.Tx, id int64) (*models.Participant, error) {
	stmt := `SELECT ` + participantColumns + ` FROM participants WHERE id = ?`
	return scanParticipant(tx.QueryRowContext(ctx, stmt, id))
}

// sessionParticipants returns the roster in seating order. Before seating
// ranks are assigned the order falls back to join order.
func sessionParticipants(ctx context.Context, tx *sql.Tx, sessionID int64) ([]models.Participant, error) {
	stmt := `SELECT ` + participantColumns + ` FROM participants
WHERE session_id = ? ORDER BY seating_rank, id`
	rows, err := tx.QueryContext(ctx, stmt, sessionID)
	if err != nil {
		return nil, persistence(err, "query participants")
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, persistence(err, "iterate participants")
	}
	return participants, nil
}

const cardColumns = `id, session_id, kind, name, owner_id, in_hand, dropped, draft,
discard_seq, group_size, group_id`

func scanCard(scanner interface{ Scan(...any) error }) (*models.Card, error) {
	var c models.Card
	err := scanner.Scan(&c.ID, &c.SessionID, &c.Kind, &c.Name, &c.OwnerID, &c.InHand,
		&c.Dropped, &c.Draft, &c.DiscardSeq, &c.GroupSize, &c.GroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, persistence(err, "scan card")
	}
	return &c, nil
}

func getCard(ctx context.Context, tx *sql.Tx, id int64) (*models.Card, error) {
	stmt := `SELECT ` + cardColumns + ` FROM cards WHERE id = ?`
	return scanCard(tx.QueryRowContext(ctx, stmt, id))
}

func queryCards(ctx context.Context, tx *sql.Tx, stmt string, args ...any) ([]models.Card, error) {
	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, persistence(err, "query cards")
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, persistence(err, "iterate cards")
	}
	return cards, nil
}

const secretColumns = `id, session_id, owner_id, is_murderer, is_accomplice, revealed`

func scanSecret(scanner interface{ Scan(...any) error }) (*models.Secret, error) {
	var s models.Secret
	err := scanner.Scan(&s.ID, &s.SessionID, &s.OwnerID, &s.IsMurderer, &s.IsAccomplice, &s.Revealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSecretNotFound
		}
		return nil, persistence(err, "scan secret")
	}
	return &s, nil
}

func getSecret(ctx context.Context, tx *sql.Tx, id int64) (*models.Secret, error) {
	stmt := `SELECT ` + secretColumns + ` FROM secrets WHERE id = ?`
	return scanSecret(tx.QueryRowContext(ctx, stmt, id))
}

// maxDiscardSeq returns the highest discard sequence number assigned in the
// session so far. Sequence numbers are never reused, so the next discard gets
// this plus one.
func maxDiscardSeq(ctx context.Context, tx *sql.Tx, sessionID int64) (int, error) {
	var maxSeq int
	stmt := `SELECT COALESCE(MAX(discard_seq), 0) FROM cards WHERE session_id = ?`
	if err := tx.QueryRowContext(ctx, stmt, sessionID).Scan(&maxSeq); err != nil {
		return 0, persistence(err, "read max discard sequence")
	}
	return maxSeq, nil
}

func setPendingAction(ctx context.Context, tx *sql.Tx, participantID int64, action models.PendingAction) error {
	stmt := `UPDATE participants SET pending_action = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, stmt, action, participantID); err != nil {
		return persistence(err, "set pending action")
	}
	return nil
}

func setPendingActionAll(ctx context.Context, tx *sql.Tx, sessionID int64, action models.PendingAction) error {
	stmt := `UPDATE participants SET pending_action = ? WHERE session_id = ?`
	if _, err := tx.ExecContext(ctx, stmt, action, sessionID); err != nil {
		return persistence(err, "set pending action for session")
	}
	return nil
}

// finishSession terminates a session. Idempotent: a finished session stays
// finished.
func finishSession(ctx context.Context, tx *sql.Tx, sessionID int64) error {
	stmt := `UPDATE sessions SET status = ? WHERE id = ? AND status != ?`
	if _, err := tx.ExecContext(ctx, stmt, models.StatusFinished, sessionID, models.StatusFinished); err != nil {
		return persistence(err, "finish session")
	}
	return nil
}

func appendLog(ctx context.Context, tx *sql.Tx, entry models.LogEntry) error {
	stmt := `INSERT INTO action_log (session_id, created_at, kind, card_id, group_id, actor_id)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, stmt,
		entry.SessionID, entry.CreatedAt, entry.Kind, entry.CardID, entry.GroupID, entry.ActorID)
	if err != nil {
		return persistence(err, "append action log entry")
	}
	return nil
}

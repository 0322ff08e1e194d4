package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
)

// InitiateFolly starts a chained card-pass: the event card is discarded, the
// rotation direction is stored on the session and every participant is asked
// to pass a card along.
func (e *Engine) InitiateFolly(ctx context.Context, initiatorID int64, direction models.Direction, eventCardID int64) error {
	if direction != models.DirectionLeft && direction != models.DirectionRight {
		return errors.Wrap(ErrInvalidDirection, "initiate folly", slog.String("direction", string(direction)))
	}

	sessionID, err := e.sessionIDOfParticipant(ctx, initiatorID)
	if err != nil {
		return err
	}

	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		eventCard, err := ownedCard(ctx, tx, initiatorID, eventCardID)
		if err != nil {
			return err
		}
		maxSeq, err := maxDiscardSeq(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err = discardCard(ctx, tx, eventCard, maxSeq+1); err != nil {
			return err
		}

		stmt := `UPDATE sessions SET folly_direction = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, direction, sessionID); err != nil {
			return persistence(err, "set folly direction")
		}
		return setPendingActionAll(ctx, tx, sessionID, models.PendingSelectFollyCard)
	})
}

// PassFollyCard hands one card from a participant to the supplied neighbor.
// Adjacency is the caller's responsibility; the engine only tracks who has
// passed. Once every participant has, the rotation concludes and all pending
// actions clear. Concluded reports whether this pass finished the rotation.
func (e *Engine) PassFollyCard(ctx context.Context, fromID, toID, cardID int64) (concluded bool, err error) {
	sessionID, err := e.sessionIDOfParticipant(ctx, fromID)
	if err != nil {
		return false, err
	}

	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		from, err := getParticipant(ctx, tx, fromID)
		if err != nil {
			return err
		}
		switch from.PendingAction {
		case models.PendingSelectFollyCard, models.PendingWaitingFollyTrade:
		default:
			return errors.Wrap(ErrInvalidState, "participant is not in a folly rotation",
				slog.Int64("participantID", fromID),
				slog.String("pendingAction", string(from.PendingAction)))
		}
		to, err := getParticipant(ctx, tx, toID)
		if err != nil {
			return err
		}
		if to.SessionID != sessionID {
			return errors.Wrap(ErrParticipantNotFound, "pass target is in another session",
				slog.Int64("participantID", toID))
		}
		if _, err = ownedCard(ctx, tx, fromID, cardID); err != nil {
			return err
		}

		stmt := `UPDATE cards SET owner_id = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, toID, cardID); err != nil {
			return persistence(err, "pass card")
		}
		if err = setPendingAction(ctx, tx, fromID, models.PendingWaitingFollyTrade); err != nil {
			return err
		}

		var waitingCount, total int
		stmt = `SELECT COUNT(*) FILTER (WHERE pending_action = ?), COUNT(*)
FROM participants WHERE session_id = ?`
		err = tx.QueryRowContext(ctx, stmt, models.PendingWaitingFollyTrade, sessionID).
			Scan(&waitingCount, &total)
		if err != nil {
			return persistence(err, "count folly passes")
		}
		if waitingCount < total {
			return nil
		}

		if err = setPendingActionAll(ctx, tx, sessionID, models.PendingNone); err != nil {
			return err
		}
		stmt = `UPDATE sessions SET folly_direction = NULL WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, sessionID); err != nil {
			return persistence(err, "clear folly direction")
		}
		concluded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return concluded, nil
}

package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
)

// RevealSecret turns a secret face up. Revealing the murderer secret ends the
// session on the spot. Any other reveal updates the owner's social disgrace
// and may end the session through the disgrace win condition.
func (e *Engine) RevealSecret(ctx context.Context, secretID int64) (*models.Secret, error) {
	sessionID, err := e.sessionIDOfSecret(ctx, secretID)
	if err != nil {
		return nil, err
	}

	var revealed *models.Secret
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		secret, err := getSecret(ctx, tx, secretID)
		if err != nil {
			return err
		}
		if secret.Revealed {
			return errors.Wrap(ErrAlreadyRevealed, "reveal secret", slog.Int64("secretID", secretID))
		}

		stmt := `UPDATE secrets SET revealed = 1 WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, secretID); err != nil {
			return persistence(err, "reveal secret")
		}
		secret.Revealed = true
		revealed = secret

		if secret.IsMurderer {
			return finishSession(ctx, tx, sessionID)
		}

		if secret.OwnerID != nil {
			owner, err := getParticipant(ctx, tx, *secret.OwnerID)
			if err != nil {
				return err
			}
			if owner.PendingAction == models.PendingRevealSecret {
				if err = setPendingAction(ctx, tx, owner.ID, models.PendingCleansed); err != nil {
					return err
				}
			}
			if err = recomputeDisgrace(ctx, tx, owner.ID); err != nil {
				return err
			}
		}

		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		stmt = `UPDATE participants SET pending_action = ?
WHERE session_id = ? AND seating_rank = ? AND pending_action = ?`
		_, err = tx.ExecContext(ctx, stmt, models.PendingCleansed,
			sessionID, session.CurrentTurn, models.PendingWaitingRevealSecret)
		if err != nil {
			return persistence(err, "release waiting participant")
		}

		return checkDisgraceWin(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}
	return revealed, nil
}

// HideSecret turns a revealed secret face down again and recomputes the
// owner's disgrace. An explicit hide can lift disgrace; only automatic
// un-assignment keeps it sticky.
func (e *Engine) HideSecret(ctx context.Context, secretID int64) (*models.Secret, error) {
	sessionID, err := e.sessionIDOfSecret(ctx, secretID)
	if err != nil {
		return nil, err
	}

	var hidden *models.Secret
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		secret, err := getSecret(ctx, tx, secretID)
		if err != nil {
			return err
		}
		if !secret.Revealed {
			return errors.Wrap(ErrNotRevealed, "hide secret", slog.Int64("secretID", secretID))
		}

		stmt := `UPDATE secrets SET revealed = 0 WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, secretID); err != nil {
			return persistence(err, "hide secret")
		}
		secret.Revealed = false
		hidden = secret

		if secret.OwnerID != nil {
			return recomputeDisgrace(ctx, tx, *secret.OwnerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hidden, nil
}

// TransferSecret moves a revealed secret to a new owner face down ("and then
// there was one more"). The new owner's disgrace is recomputed with the
// incoming secret counted.
func (e *Engine) TransferSecret(ctx context.Context, secretID, newOwnerID int64) (*models.Secret, error) {
	sessionID, err := e.sessionIDOfSecret(ctx, secretID)
	if err != nil {
		return nil, err
	}

	var transferred *models.Secret
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		secret, err := getSecret(ctx, tx, secretID)
		if err != nil {
			return err
		}
		if !secret.Revealed {
			return errors.Wrap(ErrMustBeRevealed, "transfer secret", slog.Int64("secretID", secretID))
		}
		newOwner, err := getParticipant(ctx, tx, newOwnerID)
		if err != nil {
			return err
		}
		if newOwner.SessionID != sessionID {
			return errors.Wrap(ErrParticipantNotFound, "new owner is in another session",
				slog.Int64("participantID", newOwnerID))
		}

		stmt := `UPDATE secrets SET owner_id = ?, revealed = 0 WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, newOwnerID, secretID); err != nil {
			return persistence(err, "transfer secret")
		}
		secret.OwnerID = &newOwnerID
		secret.Revealed = false
		transferred = secret

		return recomputeDisgrace(ctx, tx, newOwnerID)
	})
	if err != nil {
		return nil, err
	}
	return transferred, nil
}

// recomputeDisgrace rederives one participant's social disgrace flag from
// their current secrets. A disgraced participant with no secrets left stays
// disgraced.
func recomputeDisgrace(ctx context.Context, tx *sql.Tx, participantID int64) error {
	participant, err := getParticipant(ctx, tx, participantID)
	if err != nil {
		return err
	}

	stmt := `SELECT ` + secretColumns + ` FROM secrets WHERE owner_id = ?`
	rows, err := tx.QueryContext(ctx, stmt, participantID)
	if err != nil {
		return persistence(err, "query participant secrets")
	}
	defer rows.Close()

	var secrets []models.Secret
	for rows.Next() {
		s, err := scanSecret(rows)
		if err != nil {
			return err
		}
		secrets = append(secrets, *s)
	}
	if err = rows.Err(); err != nil {
		return persistence(err, "iterate participant secrets")
	}

	if participant.SocialDisgrace && len(secrets) == 0 {
		return nil
	}

	accompliceRevealed := false
	allRevealed := len(secrets) > 0
	for _, s := range secrets {
		if s.Revealed && s.IsAccomplice {
			accompliceRevealed = true
		}
		if !s.Revealed {
			allRevealed = false
		}
	}

	disgraced := accompliceRevealed || allRevealed
	stmt = `UPDATE participants SET social_disgrace = ? WHERE id = ?`
	if _, err = tx.ExecContext(ctx, stmt, disgraced, participantID); err != nil {
		return persistence(err, "update social disgrace")
	}
	return nil
}

// checkDisgraceWin terminates the session once every participant but one is
// disgraced. The lone clean participant is implicitly the winner.
func checkDisgraceWin(ctx context.Context, tx *sql.Tx, session *models.Session) error {
	var disgraced int
	stmt := `SELECT COUNT(*) FROM participants WHERE session_id = ? AND social_disgrace = 1`
	if err := tx.QueryRowContext(ctx, stmt, session.ID).Scan(&disgraced); err != nil {
		return persistence(err, "count disgraced participants")
	}
	if disgraced == session.PlayerCount-1 {
		return finishSession(ctx, tx, session.ID)
	}
	return nil
}

package engine

import (
	"context"
	"database/sql"

	"github.com/emiliaharju/whodunit/internal/models"
)

// SetPendingAction assigns a participant's pending action directly. The only
// validation is that the participant exists; the multi-step protocols own the
// legality of transitions.
func (e *Engine) SetPendingAction(ctx context.Context, participantID int64, action models.PendingAction) error {
	sessionID, err := e.sessionIDOfParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		if _, err := getParticipant(ctx, tx, participantID); err != nil {
			return err
		}
		return setPendingAction(ctx, tx, participantID, action)
	})
}

// ClearPendingAction resets a participant's pending action to none.
func (e *Engine) ClearPendingAction(ctx context.Context, participantID int64) error {
	return e.SetPendingAction(ctx, participantID, models.PendingNone)
}

// MarkForReveal forces a participant to reveal a secret, for plays like
// "point your suspicions" that target a single seat.
func (e *Engine) MarkForReveal(ctx context.Context, participantID int64) error {
	return e.SetPendingAction(ctx, participantID, models.PendingRevealSecret)
}

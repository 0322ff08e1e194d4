package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
)

// OpenVote moves the session into the suspicion phase: every participant is
// asked to vote and the tally resets.
func (e *Engine) OpenVote(ctx context.Context, sessionID int64) error {
	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.PlayerCount == 0 {
			return errors.Wrap(ErrNoPlayers, "open vote", slog.Int64("sessionID", sessionID))
		}

		if err = setPendingActionAll(ctx, tx, sessionID, models.PendingVote); err != nil {
			return err
		}
		stmt := `UPDATE participants SET votes_received = 0 WHERE session_id = ?`
		if _, err = tx.ExecContext(ctx, stmt, sessionID); err != nil {
			return persistence(err, "reset vote accumulators")
		}
		stmt = `UPDATE sessions SET vote_tally = 0, status = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, models.StatusSuspicionPhase, sessionID); err != nil {
			return persistence(err, "open suspicion phase")
		}
		return nil
	})
}

// CastVote records one participant's vote against a target. The last vote
// closes the ballot: the participant with the most votes must reveal a
// secret, ties going to the lowest seating rank.
func (e *Engine) CastVote(ctx context.Context, voterID, targetID int64) error {
	sessionID, err := e.sessionIDOfParticipant(ctx, voterID)
	if err != nil {
		return err
	}

	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		voter, err := getParticipant(ctx, tx, voterID)
		if err != nil {
			return err
		}
		if voter.PendingAction != models.PendingVote {
			return errors.Wrap(ErrInvalidState, "participant has no vote to cast",
				slog.Int64("participantID", voterID),
				slog.String("pendingAction", string(voter.PendingAction)))
		}
		target, err := getParticipant(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if target.SessionID != sessionID {
			return errors.Wrap(ErrParticipantNotFound, "vote target is in another session",
				slog.Int64("participantID", targetID))
		}

		stmt := `UPDATE participants SET votes_received = votes_received + 1 WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, targetID); err != nil {
			return persistence(err, "count vote")
		}
		if err = setPendingAction(ctx, tx, voterID, models.PendingWaitingVoteEnd); err != nil {
			return err
		}

		var tally int
		stmt = `UPDATE sessions SET vote_tally = vote_tally + 1 WHERE id = ? RETURNING vote_tally`
		if err = tx.QueryRowContext(ctx, stmt, sessionID).Scan(&tally); err != nil {
			return persistence(err, "advance vote tally")
		}

		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if tally < session.PlayerCount {
			return nil
		}
		return e.closeBallot(ctx, tx, session)
	})
}

// closeBallot resolves a completed ballot: the most-voted participant (the
// lowest seating rank on a tie) must reveal a secret, the seat whose turn it
// is waits for that reveal and everyone else is cleansed.
func (e *Engine) closeBallot(ctx context.Context, tx *sql.Tx, session *models.Session) error {
	participants, err := sessionParticipants(ctx, tx, session.ID)
	if err != nil {
		return err
	}

	// Participants arrive in seating order, so the first maximum wins ties.
	winner := participants[0]
	for _, p := range participants[1:] {
		if p.VotesReceived > winner.VotesReceived {
			winner = p
		}
	}

	stmt := `UPDATE participants SET votes_received = 0 WHERE session_id = ?`
	if _, err = tx.ExecContext(ctx, stmt, session.ID); err != nil {
		return persistence(err, "reset vote accumulators")
	}
	stmt = `UPDATE sessions SET vote_tally = 0 WHERE id = ?`
	if _, err = tx.ExecContext(ctx, stmt, session.ID); err != nil {
		return persistence(err, "reset vote tally")
	}

	for _, p := range participants {
		action := models.PendingCleansed
		switch {
		case p.ID == winner.ID:
			action = models.PendingRevealSecret
		case p.SeatingRank == session.CurrentTurn:
			action = models.PendingWaitingRevealSecret
		}
		if err = setPendingAction(ctx, tx, p.ID, action); err != nil {
			return err
		}
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "ballot closed",
		slog.Int64("sessionID", session.ID), slog.Int64("winnerID", winner.ID))
	return nil
}

// CloseVote ends the suspicion phase and returns the session to normal play.
func (e *Engine) CloseVote(ctx context.Context, sessionID int64) error {
	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != models.StatusSuspicionPhase {
			return errors.Wrap(ErrInvalidState, "session is not in the suspicion phase",
				slog.Int64("sessionID", sessionID), slog.String("status", string(session.Status)))
		}
		stmt := `UPDATE sessions SET status = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, models.StatusInCourse, sessionID); err != nil {
			return persistence(err, "close suspicion phase")
		}
		return nil
	})
}

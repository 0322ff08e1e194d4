package engine

import (
	"context"
	"database/sql"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
)

// ParticipantState is one participant with everything they hold.
type ParticipantState struct {
	models.Participant
	Cards   []models.Card   `json:"cards"`
	Secrets []models.Secret `json:"secrets"`
}

// SessionSnapshot is the full read model broadcast after a mutation commits.
type SessionSnapshot struct {
	Session      models.Session     `json:"session"`
	Participants []ParticipantState `json:"participants"`
	// DiscardTop holds up to five discard entries, most recent first.
	DiscardTop []models.Card `json:"discardTop"`
	// Draft holds the table-visible draft cards.
	Draft []models.Card `json:"draft"`
}

const discardTopSize = 5

// Snapshot reads the committed state of a session off the read replica. It
// takes no session lock: a snapshot taken after a mutation returns reflects
// at least that mutation.
func (e *Engine) Snapshot(ctx context.Context, sessionID int64) (*SessionSnapshot, error) {
	var snapshot SessionSnapshot

	stmt := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	if err := e.reads.GetContext(ctx, &snapshot.Session, stmt, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, persistence(err, "read session")
	}

	var participants []models.Participant
	stmt = `SELECT ` + participantColumns + ` FROM participants
WHERE session_id = ? ORDER BY seating_rank, id`
	if err := e.reads.SelectContext(ctx, &participants, stmt, sessionID); err != nil {
		return nil, persistence(err, "read participants")
	}

	for _, p := range participants {
		state := ParticipantState{Participant: p}

		stmt = `SELECT ` + cardColumns + ` FROM cards
WHERE owner_id = ? AND dropped = 0 ORDER BY id`
		if err := e.reads.SelectContext(ctx, &state.Cards, stmt, p.ID); err != nil {
			return nil, persistence(err, "read participant cards")
		}
		stmt = `SELECT ` + secretColumns + ` FROM secrets WHERE owner_id = ? ORDER BY id`
		if err := e.reads.SelectContext(ctx, &state.Secrets, stmt, p.ID); err != nil {
			return nil, persistence(err, "read participant secrets")
		}
		snapshot.Participants = append(snapshot.Participants, state)
	}

	stmt = `SELECT ` + cardColumns + ` FROM cards
WHERE session_id = ? AND dropped = 1 ORDER BY discard_seq DESC LIMIT ?`
	if err := e.reads.SelectContext(ctx, &snapshot.DiscardTop, stmt, sessionID, discardTopSize); err != nil {
		return nil, persistence(err, "read discard pile")
	}

	stmt = `SELECT ` + cardColumns + ` FROM cards
WHERE session_id = ? AND draft = 1 ORDER BY id`
	if err := e.reads.SelectContext(ctx, &snapshot.Draft, stmt, sessionID); err != nil {
		return nil, persistence(err, "read draft")
	}

	return &snapshot, nil
}

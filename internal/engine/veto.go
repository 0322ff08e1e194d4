package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
)

// vetoWindow is how long after a veto play the chain stays open for the next
// card activation.
const vetoWindow = 10 * time.Second

// logRow is a log entry joined with its subject card, when it has one.
type logRow struct {
	entry    models.LogEntry
	cardKind *models.CardKind
	cardName *string
}

// isVeto reports whether the entry is a play of the reactive counter card.
func (r logRow) isVeto() bool {
	return r.entry.Kind == models.LogCardPlay &&
		r.cardKind != nil && *r.cardKind == models.KindEvent &&
		r.cardName != nil && *r.cardName == models.CardVeto
}

// RegisterPlay appends a card activation to the session's action log. When
// the most recent entry is a veto play, the activation is only accepted
// inside the veto window; outside it the call fails and nothing is appended.
func (e *Engine) RegisterPlay(ctx context.Context, actorID, cardID int64) (*models.LogEntry, error) {
	sessionID, err := e.sessionIDOfCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	var appended *models.LogEntry
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		if _, err := getCard(ctx, tx, cardID); err != nil {
			return err
		}

		// Read the clock once so the window check and the appended timestamp
		// cannot disagree.
		now := e.now().UnixNano()

		newest, err := newestLogRow(ctx, tx, sessionID)
		if err != nil && !errors.Is(err, ErrNoEntries) {
			return err
		}
		if newest != nil && newest.isVeto() && now-newest.entry.CreatedAt >= int64(vetoWindow) {
			return errors.Wrap(ErrWindowExpired, "register play",
				slog.Int64("sessionID", sessionID), slog.Int64("cardID", cardID))
		}

		entry := models.LogEntry{
			SessionID: sessionID,
			CreatedAt: now,
			Kind:      models.LogCardPlay,
			CardID:    &cardID,
			ActorID:   &actorID,
		}
		if err = appendLog(ctx, tx, entry); err != nil {
			return err
		}
		appended = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

// RegisterGroupPlay appends a detective group activation. Group plays are not
// reactive, so no window applies.
func (e *Engine) RegisterGroupPlay(ctx context.Context, sessionID, actorID, groupID int64) (*models.LogEntry, error) {
	var appended *models.LogEntry
	err := e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		if _, err := getSession(ctx, tx, sessionID); err != nil {
			return err
		}
		entry := models.LogEntry{
			SessionID: sessionID,
			CreatedAt: e.now().UnixNano(),
			Kind:      models.LogGroupPlay,
			GroupID:   &groupID,
			ActorID:   &actorID,
		}
		if err := appendLog(ctx, tx, entry); err != nil {
			return err
		}
		appended = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

// ResolveChain determines which action log entry stands after a veto chain.
// Consecutive veto plays at the head of the log cancel pairwise: an even
// count leaves the original target standing, an odd count leaves the last
// veto itself as the surviving play.
func (e *Engine) ResolveChain(ctx context.Context, sessionID int64) (*models.LogEntry, error) {
	rows, err := e.sessionLogRows(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(ErrNoEntries, "resolve chain", slog.Int64("sessionID", sessionID))
	}

	newest := rows[0]
	if !newest.isVeto() {
		return &newest.entry, nil
	}

	vetoCount := 0
	var target *logRow
	for i := range rows {
		if rows[i].isVeto() {
			vetoCount++
			continue
		}
		target = rows[i]
		break
	}
	if target == nil || vetoCount%2 == 1 {
		return &newest.entry, nil
	}
	return &target.entry, nil
}

const logRowColumns = `l.id, l.session_id, l.created_at, l.kind, l.card_id, l.group_id, l.actor_id,
c.kind, c.name`

func scanLogRow(scanner interface{ Scan(...any) error }) (*logRow, error) {
	var r logRow
	err := scanner.Scan(&r.entry.ID, &r.entry.SessionID, &r.entry.CreatedAt, &r.entry.Kind,
		&r.entry.CardID, &r.entry.GroupID, &r.entry.ActorID, &r.cardKind, &r.cardName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoEntries
		}
		return nil, persistence(err, "scan action log entry")
	}
	return &r, nil
}

func newestLogRow(ctx context.Context, tx *sql.Tx, sessionID int64) (*logRow, error) {
	stmt := `SELECT ` + logRowColumns + ` FROM action_log l
LEFT JOIN cards c ON c.id = l.card_id
WHERE l.session_id = ?
ORDER BY l.created_at DESC, l.id DESC LIMIT 1`
	return scanLogRow(tx.QueryRowContext(ctx, stmt, sessionID))
}

// sessionLogRows reads the whole action log newest first, off the read
// replica. Resolution never mutates, so it takes no session lock.
func (e *Engine) sessionLogRows(ctx context.Context, sessionID int64) ([]*logRow, error) {
	stmt := `SELECT ` + logRowColumns + ` FROM action_log l
LEFT JOIN cards c ON c.id = l.card_id
WHERE l.session_id = ?
ORDER BY l.created_at DESC, l.id DESC`
	rows, err := e.db.ReadOnly.QueryContext(ctx, stmt, sessionID)
	if err != nil {
		return nil, persistence(err, "query action log")
	}
	defer rows.Close()

	var result []*logRow
	for rows.Next() {
		r, err := scanLogRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err = rows.Err(); err != nil {
		return nil, persistence(err, "iterate action log")
	}
	return result, nil
}

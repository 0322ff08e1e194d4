package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/emiliaharju/whodunit/internal/models"
	"github.com/emiliaharju/whodunit/internal/sqlite"
	"github.com/emiliaharju/whodunit/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

// seatingReference is the fixed date the seating order anchors on.
var seatingReference = time.Date(2024, time.September, 15, 0, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.NewDatabase(ctx, ":memory:", testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return New(db, testhelpers.NewLogger(io.Discard), opts...)
}

// testClock is a manually advanced clock for exercising the veto window.
type testClock struct {
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2024, time.October, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	return c.current
}

func (c *testClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

// startedSession creates a session, joins n participants with distinct
// birthdays and starts it. Participants come back in seating order, and the
// birthdays are chosen so seating order equals join order.
func startedSession(t *testing.T, e *Engine, n int) (*models.Session, []models.Participant) {
	t.Helper()
	ctx := context.Background()

	session, err := e.CreateSession(ctx, "test session", 2, 6)
	require.NoError(t, err)

	names := []string{"Ada", "Brendan", "Grace", "Dennis", "Barbara", "Ken"}
	for i := range n {
		// Birthdays step away from the reference date one day at a time.
		birthDate := time.Date(1990, time.September, 15-i, 0, 0, 0, 0, time.UTC)
		_, err = e.Join(ctx, session.ID, names[i], birthDate)
		require.NoError(t, err)
	}

	require.NoError(t, e.StartSession(ctx, session.ID, seatingReference))

	session, err = e.Session(ctx, session.ID)
	require.NoError(t, err)
	snapshot, err := e.Snapshot(ctx, session.ID)
	require.NoError(t, err)

	participants := make([]models.Participant, 0, n)
	for _, p := range snapshot.Participants {
		participants = append(participants, p.Participant)
	}
	return session, participants
}

// giveCard reassigns a card into a participant's hand, bypassing the engine.
func giveCard(t *testing.T, e *Engine, cardID, participantID int64) {
	t.Helper()
	stmt := `UPDATE cards SET owner_id = ?, in_hand = 1, dropped = 0, draft = 0 WHERE id = ?`
	_, err := e.db.ReadWrite.ExecContext(context.Background(), stmt, participantID, cardID)
	require.NoError(t, err)
}

// findDeckCards returns ids of cards by name that are not held, drafted or
// discarded.
func findDeckCards(t *testing.T, e *Engine, sessionID int64, name string, limit int) []int64 {
	t.Helper()
	stmt := `SELECT id FROM cards
WHERE session_id = ? AND name = ? AND dropped = 0 AND in_hand = 0 AND draft = 0
ORDER BY id LIMIT ?`
	rows, err := e.db.ReadOnly.QueryContext(context.Background(), stmt, sessionID, name, limit)
	require.NoError(t, err)
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.Len(t, ids, limit)
	return ids
}

// handCards returns the participant's current hand.
func handCards(t *testing.T, e *Engine, participantID int64) []models.Card {
	t.Helper()
	stmt := `SELECT ` + cardColumns + ` FROM cards
WHERE owner_id = ? AND in_hand = 1 AND dropped = 0 ORDER BY id`
	rows, err := e.db.ReadOnly.QueryContext(context.Background(), stmt, participantID)
	require.NoError(t, err)
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		require.NoError(t, err)
		cards = append(cards, *c)
	}
	require.NoError(t, rows.Err())
	return cards
}

// participantSecrets returns the secrets a participant currently owns.
func participantSecrets(t *testing.T, e *Engine, participantID int64) []models.Secret {
	t.Helper()
	stmt := `SELECT ` + secretColumns + ` FROM secrets WHERE owner_id = ? ORDER BY id`
	rows, err := e.db.ReadOnly.QueryContext(context.Background(), stmt, participantID)
	require.NoError(t, err)
	defer rows.Close()

	var secrets []models.Secret
	for rows.Next() {
		s, err := scanSecret(rows)
		require.NoError(t, err)
		secrets = append(secrets, *s)
	}
	require.NoError(t, rows.Err())
	return secrets
}

// reloadParticipant reads a participant's current row.
func reloadParticipant(t *testing.T, e *Engine, participantID int64) models.Participant {
	t.Helper()
	stmt := `SELECT ` + participantColumns + ` FROM participants WHERE id = ?`
	p, err := scanParticipant(e.db.ReadOnly.QueryRowContext(context.Background(), stmt, participantID))
	require.NoError(t, err)
	return *p
}

// reloadCard reads a card's current row.
func reloadCard(t *testing.T, e *Engine, cardID int64) models.Card {
	t.Helper()
	stmt := `SELECT ` + cardColumns + ` FROM cards WHERE id = ?`
	c, err := scanCard(e.db.ReadOnly.QueryRowContext(context.Background(), stmt, cardID))
	require.NoError(t, err)
	return *c
}

// reloadSession reads a session's current row.
func reloadSession(t *testing.T, e *Engine, sessionID int64) models.Session {
	t.Helper()
	session, err := e.Session(context.Background(), sessionID)
	require.NoError(t, err)
	return *session
}

package engine

import (
	"context"
	"testing"

	"github.com/emiliaharju/whodunit/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDraw_HandFull(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 2)
	ctx := context.Background()

	// Opening hands already hold the maximum of six cards.
	before := reloadSession(t, e, session.ID).CardsLeft
	_, err := e.Draw(ctx, participants[0].ID)
	require.ErrorIs(t, err, ErrHandFull)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, before, reloadSession(t, e, session.ID).CardsLeft,
		"a failed draw must not move the deck counter")
}

func TestDraw_PrefersReturnedCard(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 2)
	ctx := context.Background()
	p := participants[0]

	hand := handCards(t, e, p.ID)
	discarded, err := e.Discard(ctx, p.ID, hand[0].ID)
	require.NoError(t, err)
	require.Equal(t, 1, discarded.DiscardSeq)

	returned, err := e.ReturnToDeck(ctx, session.ID, []int64{discarded.ID})
	require.NoError(t, err)
	require.Len(t, returned, 1)
	require.Equal(t, models.DiscardSeqReturned, returned[0].DiscardSeq)

	drawn, err := e.Draw(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, discarded.ID, drawn.ID, "a returned card surfaces before any random draw")
	require.Equal(t, models.ZoneHand, drawn.Zone())
}

func TestDiscard_SequenceStrictlyIncreases(t *testing.T) {
	e := newTestEngine(t)
	_, participants := startedSession(t, e, 2)
	ctx := context.Background()

	first, err := e.Discard(ctx, participants[0].ID, handCards(t, e, participants[0].ID)[0].ID)
	require.NoError(t, err)
	second, err := e.Discard(ctx, participants[1].ID, handCards(t, e, participants[1].ID)[0].ID)
	require.NoError(t, err)

	require.Equal(t, 1, first.DiscardSeq)
	require.Equal(t, 2, second.DiscardSeq)
	require.Equal(t, models.ZoneDiscard, first.Zone())
}

func TestDiscard_NotOwned(t *testing.T) {
	e := newTestEngine(t)
	_, participants := startedSession(t, e, 2)
	ctx := context.Background()

	otherHand := handCards(t, e, participants[1].ID)
	_, err := e.Discard(ctx, participants[0].ID, otherHand[0].ID)
	require.ErrorIs(t, err, ErrCardNotOwned)
}

func TestDiscardMany_ContiguousBlock(t *testing.T) {
	e := newTestEngine(t)
	_, participants := startedSession(t, e, 2)
	ctx := context.Background()
	p := participants[0]

	hand := handCards(t, e, p.ID)
	ids := []int64{hand[0].ID, hand[1].ID, hand[2].ID}
	discarded, err := e.DiscardMany(ctx, p.ID, ids)
	require.NoError(t, err)
	require.Len(t, discarded, 3)
	for i, c := range discarded {
		require.Equal(t, ids[i], c.ID, "batch keeps input order")
		require.Equal(t, i+1, c.DiscardSeq)
	}
}

func TestDiscardMany_EarlyTrainCycle(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 2)
	ctx := context.Background()
	p := participants[0]

	trainID := findDeckCards(t, e, session.ID, models.CardEarlyTrain, 1)[0]
	giveCard(t, e, trainID, p.ID)

	before := reloadSession(t, e, session.ID)
	discarded, err := e.DiscardMany(ctx, p.ID, []int64{trainID})
	require.NoError(t, err)
	require.Len(t, discarded, 1)

	after := reloadSession(t, e, session.ID)
	require.Equal(t, before.CardsLeft-6, after.CardsLeft,
		"the early train burns six deck cards")

	var dropped int
	stmt := `SELECT COUNT(*) FROM cards WHERE session_id = ? AND dropped = 1`
	require.NoError(t, e.db.ReadOnly.QueryRowContext(ctx, stmt, session.ID).Scan(&dropped))
	require.Equal(t, 7, dropped, "the train card plus six forced discards")
}

func TestDiscardMany_EarlyTrainExhaustsDeck(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 2)
	ctx := context.Background()
	p := participants[0]

	trainID := findDeckCards(t, e, session.ID, models.CardEarlyTrain, 1)[0]
	giveCard(t, e, trainID, p.ID)

	// Shrink the deck below the six cards a cycle needs.
	stmt := `UPDATE sessions SET cards_left = 5 WHERE id = ?`
	_, err := e.db.ReadWrite.ExecContext(ctx, stmt, session.ID)
	require.NoError(t, err)

	_, err = e.DiscardMany(ctx, p.ID, []int64{trainID})
	require.NoError(t, err)
	require.Equal(t, models.StatusFinished, reloadSession(t, e, session.ID).Status)
}

func TestPickFromDraft_ReplenishesDraft(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 2)
	ctx := context.Background()
	p := participants[0]

	// Make room in the hand first.
	_, err := e.Discard(ctx, p.ID, handCards(t, e, p.ID)[0].ID)
	require.NoError(t, err)

	snapshot, err := e.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Draft, 3)
	pickID := snapshot.Draft[0].ID

	picked, err := e.PickFromDraft(ctx, p.ID, pickID)
	require.NoError(t, err)
	require.Equal(t, models.ZoneHand, picked.Zone())

	snapshot, err = e.Snapshot(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Draft, 3, "the draft refills from the deck")
	for _, c := range snapshot.Draft {
		require.NotEqual(t, pickID, c.ID)
	}
}

func TestPickFromDraft_HandFull(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 2)
	ctx := context.Background()

	snapshot, err := e.Snapshot(ctx, session.ID)
	require.NoError(t, err)

	_, err = e.PickFromDraft(ctx, participants[0].ID, snapshot.Draft[0].ID)
	require.ErrorIs(t, err, ErrHandFull)
}

func TestTakeFromDiscard(t *testing.T) {
	e := newTestEngine(t)
	_, participants := startedSession(t, e, 2)
	ctx := context.Background()
	p := participants[0]

	discarded, err := e.Discard(ctx, p.ID, handCards(t, e, p.ID)[0].ID)
	require.NoError(t, err)

	taken, err := e.TakeFromDiscard(ctx, participants[1].ID, discarded.ID)
	require.NoError(t, err)
	require.Equal(t, models.ZoneHand, taken.Zone())
	require.Equal(t, participants[1].ID, *taken.OwnerID)
	require.Zero(t, taken.DiscardSeq)
}

func TestReturnToDeck_OnlyDiscardedCards(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 2)
	ctx := context.Background()

	hand := handCards(t, e, participants[0].ID)
	_, err := e.ReturnToDeck(ctx, session.ID, []int64{hand[0].ID})
	require.ErrorIs(t, err, ErrCardNotFound, "a hand card is not eligible for return")
}

func TestDiscardVetoCards(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 2)
	ctx := context.Background()
	p := participants[0]

	// Add one more veto on top of whatever the random deal gave.
	giveCard(t, e, findDeckCards(t, e, session.ID, models.CardVeto, 1)[0], p.ID)
	vetoesInHand := 0
	for _, c := range handCards(t, e, p.ID) {
		if c.IsVeto() {
			vetoesInHand++
		}
	}
	require.GreaterOrEqual(t, vetoesInHand, 2)

	count, err := e.DiscardVetoCards(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, vetoesInHand, count)

	for _, c := range handCards(t, e, p.ID) {
		require.False(t, c.IsVeto())
	}

	count, err = e.DiscardVetoCards(ctx, p.ID)
	require.NoError(t, err)
	require.Zero(t, count, "holding no vetoes is not an error")
}

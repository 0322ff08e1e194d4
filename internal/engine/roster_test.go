package engine

import (
	"context"
	"testing"
	"time"

	"github.com/emiliaharju/whodunit/internal/models"
	"github.com/stretchr/testify/require"
)

func TestCreateSession_PlayerBounds(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		min     int
		max     int
		wantErr error
	}{
		{name: "minimum bounds", min: 2, max: 2},
		{name: "maximum bounds", min: 2, max: 6},
		{name: "min below two", min: 1, max: 4, wantErr: ErrInvalidArgument},
		{name: "max above six", min: 2, max: 7, wantErr: ErrInvalidArgument},
		{name: "min above max", min: 5, max: 4, wantErr: ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := e.CreateSession(ctx, "lobby", tt.min, tt.max)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, models.StatusAwaitingPlayers, session.Status)
			require.NotEmpty(t, session.Code)
		})
	}
}

func TestJoin_StatusTransitions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	session, err := e.CreateSession(ctx, "lobby", 2, 3)
	require.NoError(t, err)

	birthDate := time.Date(1990, time.March, 1, 0, 0, 0, 0, time.UTC)

	_, err = e.Join(ctx, session.ID, "Ada", birthDate)
	require.NoError(t, err)
	require.Equal(t, models.StatusAwaitingPlayers, reloadSession(t, e, session.ID).Status)

	_, err = e.Join(ctx, session.ID, "Brendan", birthDate)
	require.NoError(t, err)
	require.Equal(t, models.StatusBootable, reloadSession(t, e, session.ID).Status)

	_, err = e.Join(ctx, session.ID, "Grace", birthDate)
	require.NoError(t, err)
	require.Equal(t, models.StatusFull, reloadSession(t, e, session.ID).Status)

	_, err = e.Join(ctx, session.ID, "Dennis", birthDate)
	require.ErrorIs(t, err, ErrSessionFull)
}

func TestLeave_RevertsStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	session, err := e.CreateSession(ctx, "lobby", 2, 3)
	require.NoError(t, err)

	birthDate := time.Date(1990, time.March, 1, 0, 0, 0, 0, time.UTC)
	first, err := e.Join(ctx, session.ID, "Ada", birthDate)
	require.NoError(t, err)
	_, err = e.Join(ctx, session.ID, "Brendan", birthDate)
	require.NoError(t, err)

	require.NoError(t, e.Leave(ctx, first.ID))
	got := reloadSession(t, e, session.ID)
	require.Equal(t, models.StatusAwaitingPlayers, got.Status)
	require.Equal(t, 1, got.PlayerCount)
}

func TestStartSession_Bootstrap(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 4)

	require.Equal(t, models.StatusInCourse, session.Status)
	require.Equal(t, 1, session.CurrentTurn)
	// 57 cards minus 4 hands of 6 minus the 3-card draft.
	require.Equal(t, 30, session.CardsLeft)

	for i, p := range participants {
		require.Equal(t, i+1, p.SeatingRank)
		require.Len(t, handCards(t, e, p.ID), 6)
		require.Len(t, participantSecrets(t, e, p.ID), 3)

		vetoes := 0
		for _, c := range handCards(t, e, p.ID) {
			if c.IsVeto() {
				vetoes++
			}
		}
		require.GreaterOrEqual(t, vetoes, 1, "each participant starts with a veto card")
	}

	snapshot, err := e.Snapshot(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, snapshot.Draft, 3)
	require.Empty(t, snapshot.DiscardTop)
}

func TestStartSession_NotEnoughPlayers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	session, err := e.CreateSession(ctx, "lobby", 3, 6)
	require.NoError(t, err)
	_, err = e.Join(ctx, session.ID, "Ada", time.Date(1990, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	err = e.StartSession(ctx, session.ID, seatingReference)
	require.ErrorIs(t, err, ErrNotEnoughPlayers)
}

func TestStartSession_AlreadyStarted(t *testing.T) {
	e := newTestEngine(t)
	session, _ := startedSession(t, e, 2)

	err := e.StartSession(context.Background(), session.ID, seatingReference)
	require.ErrorIs(t, err, ErrSessionStarted)
}

func TestStartSession_SecretDealInvariant(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Five players means an accomplice secret exists. The deal must never
	// hand the murderer and accomplice to the same owner, however often it
	// has to reshuffle.
	for range 10 {
		session, _ := startedSession(t, e, 5)

		var murdererOwner, accompliceOwner int64
		stmt := `SELECT owner_id FROM secrets WHERE session_id = ? AND is_murderer = 1`
		require.NoError(t, e.db.ReadOnly.QueryRowContext(ctx, stmt, session.ID).Scan(&murdererOwner))
		stmt = `SELECT owner_id FROM secrets WHERE session_id = ? AND is_accomplice = 1`
		require.NoError(t, e.db.ReadOnly.QueryRowContext(ctx, stmt, session.ID).Scan(&accompliceOwner))

		require.NotZero(t, murdererOwner)
		require.NotEqual(t, murdererOwner, accompliceOwner)
	}
}

func TestStartSession_NoAccompliceUpToFourPlayers(t *testing.T) {
	e := newTestEngine(t)
	session, _ := startedSession(t, e, 4)

	var accomplices int
	stmt := `SELECT COUNT(*) FROM secrets WHERE session_id = ? AND is_accomplice = 1`
	require.NoError(t, e.db.ReadOnly.QueryRowContext(context.Background(), stmt, session.ID).Scan(&accomplices))
	require.Zero(t, accomplices)
}

func TestAssignSeating_OrderedByBirthdayDistance(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	session, err := e.CreateSession(ctx, "lobby", 2, 6)
	require.NoError(t, err)

	// Join order deliberately differs from birthday order.
	joins := []struct {
		name      string
		birthDate time.Time
		wantRank  int
	}{
		{"far", time.Date(1985, time.January, 15, 0, 0, 0, 0, time.UTC), 3},
		{"closest", time.Date(1992, time.September, 14, 0, 0, 0, 0, time.UTC), 1},
		{"near", time.Date(1988, time.September, 1, 0, 0, 0, 0, time.UTC), 2},
	}
	ids := make(map[string]int64, len(joins))
	for _, j := range joins {
		p, err := e.Join(ctx, session.ID, j.name, j.birthDate)
		require.NoError(t, err)
		ids[j.name] = p.ID
	}

	require.NoError(t, e.StartSession(ctx, session.ID, seatingReference))

	for _, j := range joins {
		require.Equal(t, j.wantRank, reloadParticipant(t, e, ids[j.name]).SeatingRank, j.name)
	}
}

func TestAssignSeating_StableOnTies(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	session, err := e.CreateSession(ctx, "lobby", 2, 6)
	require.NoError(t, err)

	// Same birthday: identical day distance, so join order decides.
	birthDate := time.Date(1990, time.September, 10, 0, 0, 0, 0, time.UTC)
	first, err := e.Join(ctx, session.ID, "first", birthDate)
	require.NoError(t, err)
	second, err := e.Join(ctx, session.ID, "second", birthDate)
	require.NoError(t, err)

	require.NoError(t, e.StartSession(ctx, session.ID, seatingReference))

	require.Equal(t, 1, reloadParticipant(t, e, first.ID).SeatingRank)
	require.Equal(t, 2, reloadParticipant(t, e, second.ID).SeatingRank)
}

func TestAdvanceTurn_WrapsAround(t *testing.T) {
	e := newTestEngine(t)
	session, participants := startedSession(t, e, 3)
	ctx := context.Background()

	next, err := e.AdvanceTurn(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, participants[1].ID, next.ID)

	next, err = e.AdvanceTurn(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, participants[2].ID, next.ID)

	next, err = e.AdvanceTurn(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, participants[0].ID, next.ID, "turn wraps back to the first rank")
	require.Equal(t, 1, reloadSession(t, e, session.ID).CurrentTurn)
}

func TestListAvailableSessions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	waiting, err := e.CreateSession(ctx, "waiting", 2, 4)
	require.NoError(t, err)
	started, _ := startedSession(t, e, 2)

	available, err := e.ListAvailableSessions(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	require.Equal(t, waiting.ID, available[0].ID)

	all, err := e.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, e.DeleteSession(ctx, started.ID))
	all, err = e.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

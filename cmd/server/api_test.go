package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/emiliaharju/whodunit/internal/engine"
	"github.com/emiliaharju/whodunit/internal/models"
	"github.com/stretchr/testify/require"
)

// createStartedSession creates a session, joins n participants with birthdays
// stepping away from the reference date so that seating follows join order,
// and starts the session.
func createStartedSession(t *testing.T, ts *testServer, n int) *engine.SessionSnapshot {
	t.Helper()

	resp := ts.PostJSON(t, "/api/sessions", map[string]any{
		"name":       "Friday night",
		"minPlayers": 2,
		"maxPlayers": 6,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decodeBody[models.Session](t, resp)

	names := []string{"Ada", "Brendan", "Grace", "Dennis", "Barbara", "Ken"}
	for i := 0; i < n; i++ {
		resp = ts.PostJSON(t, fmt.Sprintf("/api/sessions/%d/join", session.ID), map[string]any{
			"name":      names[i],
			"birthDate": time.Date(1990, time.September, 14-i, 0, 0, 0, 0, time.UTC),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		closeBody(t, resp)
	}

	resp = ts.PostJSON(t, fmt.Sprintf("/api/sessions/%d/start", session.ID), map[string]any{
		"referenceDate": time.Date(2024, time.September, 15, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	closeBody(t, resp)

	resp = ts.Get(t, fmt.Sprintf("/api/sessions/%d", session.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snapshot := decodeBody[*engine.SessionSnapshot](t, resp)
	return snapshot
}

func Test_application_sessionLifecycle(t *testing.T) {
	ts := startTestServer(t, io.Discard, testLookupEnv)

	resp := ts.PostJSON(t, "/api/sessions", map[string]any{
		"name":       "Friday night",
		"minPlayers": 2,
		"maxPlayers": 4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decodeBody[models.Session](t, resp)
	require.NotZero(t, session.ID)
	require.NotEmpty(t, session.Code)
	require.Equal(t, models.StatusAwaitingPlayers, session.Status)

	resp = ts.PostJSON(t, fmt.Sprintf("/api/sessions/%d/join", session.ID), map[string]any{
		"name":      "Ada",
		"birthDate": time.Date(1990, time.September, 14, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	participant := decodeBody[models.Participant](t, resp)
	require.Equal(t, "Ada", participant.Name)

	resp = ts.Get(t, "/api/sessions/available")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	available := decodeBody[[]models.Session](t, resp)
	require.Len(t, available, 1)
	require.Equal(t, session.ID, available[0].ID)

	// A single participant is below the session minimum.
	resp = ts.PostJSON(t, fmt.Sprintf("/api/sessions/%d/start", session.ID), map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	closeBody(t, resp)

	resp = ts.Delete(t, fmt.Sprintf("/api/sessions/%d", session.ID))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	closeBody(t, resp)

	resp = ts.Get(t, fmt.Sprintf("/api/sessions/%d", session.ID))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	closeBody(t, resp)
}

func Test_application_startedSessionSnapshot(t *testing.T) {
	ts := startTestServer(t, io.Discard, testLookupEnv)

	snapshot := createStartedSession(t, &ts, 4)
	require.Equal(t, models.StatusInCourse, snapshot.Session.Status)
	require.Equal(t, 1, snapshot.Session.CurrentTurn)
	require.Equal(t, 30, snapshot.Session.CardsLeft)
	require.Len(t, snapshot.Participants, 4)
	for _, p := range snapshot.Participants {
		require.Len(t, p.Cards, 6)
		require.Len(t, p.Secrets, 3)
	}
	require.Len(t, snapshot.Draft, 3)
	require.Empty(t, snapshot.DiscardTop)
}

func Test_application_discardAndDraw(t *testing.T) {
	ts := startTestServer(t, io.Discard, testLookupEnv)

	snapshot := createStartedSession(t, &ts, 2)
	sessionID := snapshot.Session.ID
	actor := snapshot.Participants[0]

	// A full hand cannot draw.
	resp := ts.PostJSON(t, fmt.Sprintf("/api/sessions/%d/participants/%d/draw", sessionID, actor.ID), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	closeBody(t, resp)

	resp = ts.PostJSON(t, fmt.Sprintf("/api/sessions/%d/participants/%d/discard", sessionID, actor.ID),
		map[string]any{"cardIds": []int64{actor.Cards[0].ID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	discarded := decodeBody[[]models.Card](t, resp)
	require.Len(t, discarded, 1)
	require.Equal(t, actor.Cards[0].ID, discarded[0].ID)

	resp = ts.PostJSON(t, fmt.Sprintf("/api/sessions/%d/participants/%d/draw", sessionID, actor.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	drawn := decodeBody[models.Card](t, resp)
	require.NotZero(t, drawn.ID)

	resp = ts.Get(t, fmt.Sprintf("/api/sessions/%d", sessionID))
	snapshot = decodeBody[*engine.SessionSnapshot](t, resp)
	require.Len(t, snapshot.DiscardTop, 1)
	require.Len(t, snapshot.Participants[0].Cards, 6)
}

func Test_application_voteRound(t *testing.T) {
	ts := startTestServer(t, io.Discard, testLookupEnv)

	snapshot := createStartedSession(t, &ts, 4)
	sessionID := snapshot.Session.ID

	resp := ts.PostJSON(t, fmt.Sprintf("/api/sessions/%d/votes/open", sessionID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	closeBody(t, resp)

	target := snapshot.Participants[1]
	for _, p := range snapshot.Participants {
		resp = ts.PostJSON(t, fmt.Sprintf("/api/sessions/%d/participants/%d/vote", sessionID, p.ID),
			map[string]any{"targetId": target.ID})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		closeBody(t, resp)
	}

	resp = ts.Get(t, fmt.Sprintf("/api/sessions/%d", sessionID))
	snapshot = decodeBody[*engine.SessionSnapshot](t, resp)
	require.Equal(t, models.PendingRevealSecret, snapshot.Participants[1].PendingAction)
	require.Equal(t, models.PendingWaitingRevealSecret, snapshot.Participants[0].PendingAction)
	require.Equal(t, models.PendingCleansed, snapshot.Participants[2].PendingAction)
	require.Equal(t, models.PendingCleansed, snapshot.Participants[3].PendingAction)
	require.Zero(t, snapshot.Session.VoteTally)
}

func Test_application_streamReceivesSnapshots(t *testing.T) {
	ts := startTestServer(t, io.Discard, testLookupEnv)

	snapshot := createStartedSession(t, &ts, 2)
	sessionID := snapshot.Session.ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/sessions/%d/stream", ts.url, sessionID), nil)
	require.NoError(t, err)
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	require.Equal(t, sessionID, first.Session.ID)

	// Any mutation pushes a fresh snapshot to the stream.
	discardResp := ts.PostJSON(t,
		fmt.Sprintf("/api/sessions/%d/participants/%d/discard", sessionID, snapshot.Participants[0].ID),
		map[string]any{"cardIds": []int64{snapshot.Participants[0].Cards[0].ID}})
	require.Equal(t, http.StatusOK, discardResp.StatusCode)
	closeBody(t, discardResp)

	second := readEvent(t, reader)
	require.Len(t, second.DiscardTop, 1)
}

// readEvent reads one server-sent event and decodes its data line.
func readEvent(t *testing.T, reader *bufio.Reader) *engine.SessionSnapshot {
	t.Helper()
	var data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" && data != "" {
			break
		}
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			data = rest
		}
	}
	var snapshot engine.SessionSnapshot
	err := json.Unmarshal([]byte(data), &snapshot)
	require.NoError(t, err)
	return &snapshot
}

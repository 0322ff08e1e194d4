package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
	"github.com/google/uuid"
)

const (
	minSessionPlayers = 2
	maxSessionPlayers = 6

	initialHandDeals = 5
	secretsPerPlayer = 3
)

// detectiveRoster defines the detective cards created for every session:
// name, copies in the deck and the group size needed to play them together.
var detectiveRoster = []struct {
	name      string
	copies    int
	groupSize int
}{
	{"Harley Quin Wildcard", 4, 1},
	{"Adriane Oliver", 3, 1},
	{"Miss Marple", 3, 3},
	{"Parker Pyne", 3, 2},
	{"Tommy Beresford", 2, 2},
	{"Lady Eileen 'Bundle' Brent", 3, 2},
	{"Tuppence Beresford", 2, 2},
	{"Hercule Poirot", 3, 3},
	{"Mr Satterthwaite", 2, 2},
}

// eventRoster defines the event cards created for every session.
var eventRoster = []struct {
	name   string
	copies int
}{
	{models.CardDelayEscape, 3},
	{models.CardPointSuspicion, 3},
	{models.CardFolly, 3},
	{models.CardAnotherVictim, 2},
	{models.CardLookIntoAshes, 3},
	{models.CardTrade, 3},
	{models.CardOneMore, 2},
	{models.CardEarlyTrain, 2},
	{models.CardCardsOffTable, 1},
	{models.CardVeto, 10},
	{models.CardSocialFauxPas, 3},
	{models.CardBlackmailed, 1},
}

// CreateSession registers a new session in the lobby. Player bounds must
// satisfy 2 <= min <= max <= 6.
func (e *Engine) CreateSession(ctx context.Context, name string, minPlayers, maxPlayers int) (*models.Session, error) {
	if minPlayers < minSessionPlayers || maxPlayers > maxSessionPlayers || minPlayers > maxPlayers {
		return nil, errors.Wrap(ErrInvalidArgument, "player bounds out of range",
			slog.Int("minPlayers", minPlayers), slog.Int("maxPlayers", maxPlayers))
	}

	code := uuid.NewString()
	var id int64
	stmt := `INSERT INTO sessions (code, name, min_players, max_players)
VALUES (?, ?, ?, ?) RETURNING id`
	err := e.db.ReadWrite.QueryRowContext(ctx, stmt, code, name, minPlayers, maxPlayers).Scan(&id)
	if err != nil {
		return nil, persistence(err, "create session", slog.String("name", name))
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "session created",
		slog.Int64("sessionID", id), slog.String("code", code))
	return &models.Session{
		ID:         id,
		Code:       code,
		Name:       name,
		Status:     models.StatusAwaitingPlayers,
		MinPlayers: minPlayers,
		MaxPlayers: maxPlayers,
	}, nil
}

// Session reads a session by id from the read replica.
func (e *Engine) Session(ctx context.Context, sessionID int64) (*models.Session, error) {
	var s models.Session
	stmt := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	if err := e.reads.GetContext(ctx, &s, stmt, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrSessionNotFound, "read session", slog.Int64("sessionID", sessionID))
		}
		return nil, persistence(err, "read session")
	}
	return &s, nil
}

// ListSessions returns every session ordered by id.
func (e *Engine) ListSessions(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	stmt := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY id`
	if err := e.reads.SelectContext(ctx, &sessions, stmt); err != nil {
		return nil, persistence(err, "list sessions")
	}
	return sessions, nil
}

// ListAvailableSessions returns the sessions still accepting participants.
func (e *Engine) ListAvailableSessions(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	stmt := `SELECT ` + sessionColumns + ` FROM sessions WHERE status IN (?, ?) ORDER BY id`
	err := e.reads.SelectContext(ctx, &sessions, stmt, models.StatusAwaitingPlayers, models.StatusBootable)
	if err != nil {
		return nil, persistence(err, "list available sessions")
	}
	return sessions, nil
}

// DeleteSession removes a session and everything attached to it.
func (e *Engine) DeleteSession(ctx context.Context, sessionID int64) error {
	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		if _, err := getSession(ctx, tx, sessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
			return persistence(err, "delete session", slog.Int64("sessionID", sessionID))
		}
		return nil
	})
}

// Join adds a participant to a waiting session. The roster status advances to
// bootable once the minimum is met and to full at the maximum.
func (e *Engine) Join(ctx context.Context, sessionID int64, name string, birthDate time.Time) (*models.Participant, error) {
	var joined *models.Participant
	err := e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		switch session.Status {
		case models.StatusAwaitingPlayers, models.StatusBootable:
		case models.StatusFull:
			return errors.Wrap(ErrSessionFull, "join", slog.Int64("sessionID", sessionID))
		default:
			return errors.Wrap(ErrSessionStarted, "join", slog.Int64("sessionID", sessionID))
		}

		var participantID int64
		stmt := `INSERT INTO participants (session_id, name, birth_date) VALUES (?, ?, ?) RETURNING id`
		if err = tx.QueryRowContext(ctx, stmt, sessionID, name, birthDate).Scan(&participantID); err != nil {
			return persistence(err, "insert participant", slog.String("name", name))
		}

		playerCount := session.PlayerCount + 1
		status := session.Status
		switch {
		case playerCount >= session.MaxPlayers:
			status = models.StatusFull
		case playerCount >= session.MinPlayers:
			status = models.StatusBootable
		}
		stmt = `UPDATE sessions SET player_count = ?, status = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, playerCount, status, sessionID); err != nil {
			return persistence(err, "update roster count")
		}

		joined = &models.Participant{
			ID:        participantID,
			SessionID: sessionID,
			Name:      name,
			BirthDate: birthDate,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

// Leave removes a participant from a session that has not started yet.
func (e *Engine) Leave(ctx context.Context, participantID int64) error {
	sessionID, err := e.sessionIDOfParticipant(ctx, participantID)
	if err != nil {
		return err
	}

	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		switch session.Status {
		case models.StatusAwaitingPlayers, models.StatusBootable, models.StatusFull:
		default:
			return errors.Wrap(ErrSessionStarted, "leave", slog.Int64("sessionID", sessionID))
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, participantID); err != nil {
			return persistence(err, "delete participant", slog.Int64("participantID", participantID))
		}

		playerCount := session.PlayerCount - 1
		status := models.StatusAwaitingPlayers
		switch {
		case playerCount >= session.MaxPlayers:
			status = models.StatusFull
		case playerCount >= session.MinPlayers:
			status = models.StatusBootable
		}
		stmt := `UPDATE sessions SET player_count = ?, status = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, playerCount, status, sessionID); err != nil {
			return persistence(err, "update roster count")
		}
		return nil
	})
}

// AdvanceTurn moves the turn to the next seating rank, wrapping at the
// roster size, and returns the participant whose turn begins.
func (e *Engine) AdvanceTurn(ctx context.Context, sessionID int64) (*models.Participant, error) {
	var next *models.Participant
	err := e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		nextRank := session.CurrentTurn + 1
		if nextRank > session.PlayerCount {
			nextRank = 1
		}

		stmt := `SELECT ` + participantColumns + ` FROM participants
WHERE session_id = ? AND seating_rank = ?`
		p, err := scanParticipant(tx.QueryRowContext(ctx, stmt, sessionID, nextRank))
		if err != nil {
			if errors.Is(err, ErrParticipantNotFound) {
				return errors.Wrap(ErrNoPlayerAtRank, "advance turn",
					slog.Int64("sessionID", sessionID), slog.Int("rank", nextRank))
			}
			return err
		}

		stmt = `UPDATE sessions SET current_turn = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, nextRank, sessionID); err != nil {
			return persistence(err, "update current turn")
		}

		if err = appendLog(ctx, tx, models.LogEntry{
			SessionID: sessionID,
			CreatedAt: e.now().UnixNano(),
			Kind:      models.LogTurnChange,
			ActorID:   &p.ID,
		}); err != nil {
			return err
		}
		next = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// StartSession bootstraps a waiting session into play: seating order, the
// full card set, secrets, opening hands and the draft. The reference date
// anchors the seating order (closest birthday first).
func (e *Engine) StartSession(ctx context.Context, sessionID int64, reference time.Time) error {
	err := e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		session, err := getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		switch session.Status {
		case models.StatusAwaitingPlayers, models.StatusBootable, models.StatusFull:
		default:
			return errors.Wrap(ErrSessionStarted, "start session", slog.Int64("sessionID", sessionID))
		}

		participants, err := sessionParticipants(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if len(participants) < session.MinPlayers {
			return errors.Wrap(ErrNotEnoughPlayers, "start session",
				slog.Int64("sessionID", sessionID),
				slog.Int("players", len(participants)), slog.Int("minimum", session.MinPlayers))
		}

		if err = assignSeating(ctx, tx, participants, reference); err != nil {
			return err
		}
		if err = createCards(ctx, tx, sessionID); err != nil {
			return err
		}
		if err = createSecrets(ctx, tx, sessionID, len(participants)); err != nil {
			return err
		}
		if err = dealVetoCards(ctx, tx, sessionID, participants); err != nil {
			return err
		}
		if err = dealHands(ctx, tx, sessionID, participants); err != nil {
			return err
		}
		if err = dealSecrets(ctx, tx, sessionID, participants); err != nil {
			return err
		}
		if err = fillDraft(ctx, tx, sessionID); err != nil {
			return err
		}

		// The counter is derived from the actual deck rather than kept by
		// formula, so hand and draft sizes can never drift from it.
		var cardsLeft int
		stmt := `SELECT COUNT(*) FROM cards
WHERE session_id = ? AND dropped = 0 AND in_hand = 0 AND draft = 0`
		if err = tx.QueryRowContext(ctx, stmt, sessionID).Scan(&cardsLeft); err != nil {
			return persistence(err, "count deck")
		}

		stmt = `UPDATE sessions SET status = ?, current_turn = 1, cards_left = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, models.StatusInCourse, cardsLeft, sessionID); err != nil {
			return persistence(err, "mark session in course")
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "session started", slog.Int64("sessionID", sessionID))
	return nil
}

// assignSeating ranks participants by how close their birthday falls to the
// reference date, closest first. Only month and day matter; ties keep join
// order.
func assignSeating(ctx context.Context, tx *sql.Tx, participants []models.Participant, reference time.Time) error {
	ranked := make([]models.Participant, len(participants))
	copy(ranked, participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return birthdayDistance(ranked[i].BirthDate, reference) < birthdayDistance(ranked[j].BirthDate, reference)
	})

	for i, p := range ranked {
		stmt := `UPDATE participants SET seating_rank = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, stmt, i+1, p.ID); err != nil {
			return persistence(err, "assign seating rank", slog.Int64("participantID", p.ID))
		}
	}
	return nil
}

// birthdayDistance is the absolute day distance between a birth date and the
// reference date, both projected into the reference year.
func birthdayDistance(birthDate, reference time.Time) int {
	ref := time.Date(reference.Year(), reference.Month(), reference.Day(), 0, 0, 0, 0, time.UTC)
	birthday := time.Date(reference.Year(), birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, time.UTC)
	days := int(ref.Sub(birthday).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// createCards inserts the full per-session card set: 25 detective cards and
// 32 event cards.
func createCards(ctx context.Context, tx *sql.Tx, sessionID int64) error {
	stmt := `INSERT INTO cards (session_id, kind, name, group_size) VALUES (?, ?, ?, ?)`
	for _, d := range detectiveRoster {
		for range d.copies {
			if _, err := tx.ExecContext(ctx, stmt, sessionID, models.KindDetective, d.name, d.groupSize); err != nil {
				return persistence(err, "create detective card", slog.String("name", d.name))
			}
		}
	}
	for _, ev := range eventRoster {
		for range ev.copies {
			if _, err := tx.ExecContext(ctx, stmt, sessionID, models.KindEvent, ev.name, nil); err != nil {
				return persistence(err, "create event card", slog.String("name", ev.name))
			}
		}
	}
	return nil
}

// createSecrets inserts 3·N secrets: one murderer always, one accomplice only
// above four players, the rest blank.
func createSecrets(ctx context.Context, tx *sql.Tx, sessionID int64, playerCount int) error {
	total := playerCount * secretsPerPlayer
	stmt := `INSERT INTO secrets (session_id, is_murderer, is_accomplice) VALUES (?, ?, ?)`

	if _, err := tx.ExecContext(ctx, stmt, sessionID, true, false); err != nil {
		return persistence(err, "create murderer secret")
	}
	blanks := total - 1
	if playerCount > 4 {
		if _, err := tx.ExecContext(ctx, stmt, sessionID, false, true); err != nil {
			return persistence(err, "create accomplice secret")
		}
		blanks--
	}
	for range blanks {
		if _, err := tx.ExecContext(ctx, stmt, sessionID, false, false); err != nil {
			return persistence(err, "create blank secret")
		}
	}
	return nil
}

// dealVetoCards gives each participant one veto card before the opening hand.
func dealVetoCards(ctx context.Context, tx *sql.Tx, sessionID int64, participants []models.Participant) error {
	stmt := `SELECT ` + cardColumns + ` FROM cards
WHERE session_id = ? AND kind = ? AND name = ? AND owner_id IS NULL ORDER BY id`
	vetoes, err := queryCards(ctx, tx, stmt, sessionID, models.KindEvent, models.CardVeto)
	if err != nil {
		return err
	}
	for i, p := range participants {
		assign := `UPDATE cards SET owner_id = ?, in_hand = 1 WHERE id = ?`
		if _, err = tx.ExecContext(ctx, assign, p.ID, vetoes[i].ID); err != nil {
			return persistence(err, "deal veto card", slog.Int64("participantID", p.ID))
		}
	}
	return nil
}

// dealHands deals five random deck cards to each participant.
func dealHands(ctx context.Context, tx *sql.Tx, sessionID int64, participants []models.Participant) error {
	stmt := `SELECT ` + cardColumns + ` FROM cards
WHERE session_id = ? AND dropped = 0 AND in_hand = 0 AND draft = 0
ORDER BY RANDOM() LIMIT ?`
	deck, err := queryCards(ctx, tx, stmt, sessionID, len(participants)*initialHandDeals)
	if err != nil {
		return err
	}

	cursor := 0
	for _, p := range participants {
		for range initialHandDeals {
			assign := `UPDATE cards SET owner_id = ?, in_hand = 1 WHERE id = ?`
			if _, err = tx.ExecContext(ctx, assign, p.ID, deck[cursor].ID); err != nil {
				return persistence(err, "deal hand card", slog.Int64("participantID", p.ID))
			}
			cursor++
		}
	}
	return nil
}

// dealSecrets hands out three secrets per participant, reshuffling until the
// murderer and accomplice land with different owners.
func dealSecrets(ctx context.Context, tx *sql.Tx, sessionID int64, participants []models.Participant) error {
	stmt := `SELECT ` + secretColumns + ` FROM secrets WHERE session_id = ? AND owner_id IS NULL`
	rows, err := tx.QueryContext(ctx, stmt, sessionID)
	if err != nil {
		return persistence(err, "query secrets")
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
		return persistence(err, "iterate secrets")
	}

	owners := make([]int64, len(secrets))
	for {
		rand.Shuffle(len(secrets), func(i, j int) {
			secrets[i], secrets[j] = secrets[j], secrets[i]
		})
		cursor := 0
		for _, p := range participants {
			for range secretsPerPlayer {
				owners[cursor] = p.ID
				cursor++
			}
		}

		var murdererOwner, accompliceOwner int64
		hasAccomplice := false
		for i, s := range secrets {
			if s.IsMurderer {
				murdererOwner = owners[i]
			}
			if s.IsAccomplice {
				accompliceOwner = owners[i]
				hasAccomplice = true
			}
		}
		if !hasAccomplice || murdererOwner != accompliceOwner {
			break
		}
	}

	for i, s := range secrets {
		assign := `UPDATE secrets SET owner_id = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, assign, owners[i], s.ID); err != nil {
			return persistence(err, "deal secret", slog.Int64("secretID", s.ID))
		}
	}
	return nil
}

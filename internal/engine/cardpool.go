package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
)

const (
	// maxHandSize is the most non-discarded cards a participant may hold.
	maxHandSize = 6
	// draftSize is the number of table-visible draft cards kept available.
	draftSize = 3
	// earlyTrainDiscards is how many deck cards one early-train cycle burns.
	earlyTrainDiscards = 6
)

// Draw moves a card from the deck into the participant's hand. Cards
// previously returned from the discard pile to the deck surface first;
// otherwise the pick is uniformly random. Exhausting the deck terminates the
// session.
func (e *Engine) Draw(ctx context.Context, participantID int64) (*models.Card, error) {
	sessionID, err := e.sessionIDOfParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	var drawn *models.Card
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		handCount, err := countHand(ctx, tx, participantID)
		if err != nil {
			return err
		}
		if handCount >= maxHandSize {
			return errors.Wrap(ErrHandFull, "draw", slog.Int64("participantID", participantID))
		}

		card, err := nextDeckCard(ctx, tx, sessionID)
		if err != nil {
			if errors.Is(err, ErrCardNotFound) {
				// Deck ran dry between the counter hitting zero and this
				// draw. Terminate and report, keeping the termination.
				drawn = nil
				return finishSession(ctx, tx, sessionID)
			}
			return err
		}

		stmt := `UPDATE cards SET owner_id = ?, in_hand = 1 WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, participantID, card.ID); err != nil {
			return persistence(err, "assign drawn card")
		}
		card.OwnerID = &participantID
		card.InHand = true
		drawn = card

		var cardsLeft int
		stmt = `UPDATE sessions SET cards_left = cards_left - 1 WHERE id = ? RETURNING cards_left`
		if err = tx.QueryRowContext(ctx, stmt, sessionID).Scan(&cardsLeft); err != nil {
			return persistence(err, "decrement deck counter")
		}
		if cardsLeft <= 0 {
			return finishSession(ctx, tx, sessionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if drawn == nil {
		return nil, errors.Wrap(ErrDeckEmpty, "draw", slog.Int64("sessionID", sessionID))
	}
	return drawn, nil
}

// nextDeckCard picks the card a draw would take: a returned card when one
// exists, a uniformly random deck card otherwise.
func nextDeckCard(ctx context.Context, tx *sql.Tx, sessionID int64) (*models.Card, error) {
	stmt := `SELECT ` + cardColumns + ` FROM cards
WHERE session_id = ? AND dropped = 0 AND in_hand = 0 AND draft = 0 AND discard_seq = ?
ORDER BY id LIMIT 1`
	card, err := scanCard(tx.QueryRowContext(ctx, stmt, sessionID, models.DiscardSeqReturned))
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, ErrCardNotFound) {
		return nil, err
	}

	stmt = `SELECT ` + cardColumns + ` FROM cards
WHERE session_id = ? AND dropped = 0 AND in_hand = 0 AND draft = 0
ORDER BY RANDOM() LIMIT 1`
	return scanCard(tx.QueryRowContext(ctx, stmt, sessionID))
}

func countHand(ctx context.Context, tx *sql.Tx, participantID int64) (int, error) {
	var count int
	stmt := `SELECT COUNT(*) FROM cards WHERE owner_id = ? AND in_hand = 1 AND dropped = 0`
	if err := tx.QueryRowContext(ctx, stmt, participantID).Scan(&count); err != nil {
		return 0, persistence(err, "count hand")
	}
	return count, nil
}

// Discard moves one card from the participant's hand to the top of the
// discard pile, assigning the next discard sequence number.
func (e *Engine) Discard(ctx context.Context, participantID, cardID int64) (*models.Card, error) {
	sessionID, err := e.sessionIDOfParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	var discarded *models.Card
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		card, err := ownedCard(ctx, tx, participantID, cardID)
		if err != nil {
			return err
		}
		maxSeq, err := maxDiscardSeq(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err = discardCard(ctx, tx, card, maxSeq+1); err != nil {
			return err
		}
		discarded = card
		return nil
	})
	if err != nil {
		return nil, err
	}
	return discarded, nil
}

// DiscardMany discards a batch of hand cards, assigning a contiguous block of
// sequence numbers in input order. Every early-train card in the batch
// triggers one forced-discard cycle after the batch.
func (e *Engine) DiscardMany(ctx context.Context, participantID int64, cardIDs []int64) ([]models.Card, error) {
	if len(cardIDs) == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "discard batch is empty")
	}
	sessionID, err := e.sessionIDOfParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	var discarded []models.Card
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		maxSeq, err := maxDiscardSeq(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		earlyTrains := 0
		for _, cardID := range cardIDs {
			card, err := ownedCard(ctx, tx, participantID, cardID)
			if err != nil {
				return err
			}
			maxSeq++
			if err = discardCard(ctx, tx, card, maxSeq); err != nil {
				return err
			}
			if card.Kind == models.KindEvent && card.Name == models.CardEarlyTrain {
				earlyTrains++
			}
			discarded = append(discarded, *card)
		}

		for range earlyTrains {
			if err = e.earlyTrainCycle(ctx, tx, sessionID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return discarded, nil
}

func ownedCard(ctx context.Context, tx *sql.Tx, participantID, cardID int64) (*models.Card, error) {
	stmt := `SELECT ` + cardColumns + ` FROM cards WHERE id = ? AND owner_id = ? AND dropped = 0`
	card, err := scanCard(tx.QueryRowContext(ctx, stmt, cardID, participantID))
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			return nil, errors.Wrap(ErrCardNotOwned, "load hand card",
				slog.Int64("cardID", cardID), slog.Int64("participantID", participantID))
		}
		return nil, err
	}
	return card, nil
}

func discardCard(ctx context.Context, tx *sql.Tx, card *models.Card, seq int) error {
	stmt := `UPDATE cards SET dropped = 1, in_hand = 0, draft = 0, owner_id = NULL, discard_seq = ?
WHERE id = ?`
	if _, err := tx.ExecContext(ctx, stmt, seq, card.ID); err != nil {
		return persistence(err, "discard card")
	}
	card.Dropped = true
	card.InHand = false
	card.Draft = false
	card.OwnerID = nil
	card.DiscardSeq = seq
	return nil
}

// earlyTrainCycle burns six random deck cards onto the discard pile. With
// fewer than six cards remaining the session terminates instead.
func (e *Engine) earlyTrainCycle(ctx context.Context, tx *sql.Tx, sessionID int64) error {
	session, err := getSession(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if session.CardsLeft < earlyTrainDiscards {
		return finishSession(ctx, tx, sessionID)
	}

	stmt := `SELECT ` + cardColumns + ` FROM cards
WHERE session_id = ? AND dropped = 0 AND in_hand = 0 AND draft = 0
ORDER BY RANDOM() LIMIT ?`
	cards, err := queryCards(ctx, tx, stmt, sessionID, earlyTrainDiscards)
	if err != nil {
		return err
	}
	maxSeq, err := maxDiscardSeq(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	for i := range cards {
		maxSeq++
		if err = discardCard(ctx, tx, &cards[i], maxSeq); err != nil {
			return err
		}
	}

	stmt = `UPDATE sessions SET cards_left = cards_left - ? WHERE id = ?`
	if _, err = tx.ExecContext(ctx, stmt, len(cards), sessionID); err != nil {
		return persistence(err, "decrement deck counter")
	}
	return nil
}

// FillDraft tops the table-visible draft up to three cards, drawing at random
// from the deck. It is a no-op without error when the deck cannot cover the
// shortfall.
func (e *Engine) FillDraft(ctx context.Context, sessionID int64) error {
	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		if _, err := getSession(ctx, tx, sessionID); err != nil {
			return err
		}
		return fillDraft(ctx, tx, sessionID)
	})
}

func fillDraft(ctx context.Context, tx *sql.Tx, sessionID int64) error {
	var draftCount int
	stmt := `SELECT COUNT(*) FROM cards WHERE session_id = ? AND draft = 1`
	if err := tx.QueryRowContext(ctx, stmt, sessionID).Scan(&draftCount); err != nil {
		return persistence(err, "count draft")
	}
	if draftCount >= draftSize {
		return nil
	}

	stmt = `SELECT ` + cardColumns + ` FROM cards
WHERE session_id = ? AND dropped = 0 AND in_hand = 0 AND draft = 0
ORDER BY RANDOM() LIMIT ?`
	cards, err := queryCards(ctx, tx, stmt, sessionID, draftSize-draftCount)
	if err != nil {
		return err
	}
	for _, card := range cards {
		stmt = `UPDATE cards SET draft = 1 WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, card.ID); err != nil {
			return persistence(err, "move card to draft")
		}
	}
	if len(cards) > 0 {
		stmt = `UPDATE sessions SET cards_left = cards_left - ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, len(cards), sessionID); err != nil {
			return persistence(err, "decrement deck counter")
		}
	}
	return nil
}

// ReturnToDeck moves discarded cards back into the deck, marking them
// draw-preferred. Cards outside the discard pile are not eligible.
func (e *Engine) ReturnToDeck(ctx context.Context, sessionID int64, cardIDs []int64) ([]models.Card, error) {
	if len(cardIDs) == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "return batch is empty")
	}

	var returned []models.Card
	err := e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		if _, err := getSession(ctx, tx, sessionID); err != nil {
			return err
		}
		for _, cardID := range cardIDs {
			stmt := `SELECT ` + cardColumns + ` FROM cards
WHERE id = ? AND session_id = ? AND dropped = 1`
			card, err := scanCard(tx.QueryRowContext(ctx, stmt, cardID, sessionID))
			if err != nil {
				if errors.Is(err, ErrCardNotFound) {
					continue
				}
				return err
			}

			stmt = `UPDATE cards
SET dropped = 0, in_hand = 0, draft = 0, owner_id = NULL, discard_seq = ?
WHERE id = ?`
			if _, err = tx.ExecContext(ctx, stmt, models.DiscardSeqReturned, card.ID); err != nil {
				return persistence(err, "return card to deck")
			}
			card.Dropped = false
			card.OwnerID = nil
			card.DiscardSeq = models.DiscardSeqReturned
			returned = append(returned, *card)
		}
		if len(returned) == 0 {
			return errors.Wrap(ErrCardNotFound, "no requested card is in the discard pile",
				slog.Int64("sessionID", sessionID))
		}

		stmt := `UPDATE sessions SET cards_left = cards_left + ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, stmt, len(returned), sessionID); err != nil {
			return persistence(err, "increment deck counter")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}

// TakeFromDiscard puts a discarded card back into play in the participant's
// hand ("look into the ashes").
func (e *Engine) TakeFromDiscard(ctx context.Context, participantID, cardID int64) (*models.Card, error) {
	sessionID, err := e.sessionIDOfParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	var taken *models.Card
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		stmt := `SELECT ` + cardColumns + ` FROM cards
WHERE id = ? AND session_id = ? AND dropped = 1`
		card, err := scanCard(tx.QueryRowContext(ctx, stmt, cardID, sessionID))
		if err != nil {
			return err
		}

		stmt = `UPDATE cards SET dropped = 0, in_hand = 1, owner_id = ?, discard_seq = 0 WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, participantID, card.ID); err != nil {
			return persistence(err, "take card from discard")
		}
		card.Dropped = false
		card.InHand = true
		card.OwnerID = &participantID
		card.DiscardSeq = 0
		taken = card
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// PickFromDraft moves a table-visible draft card into the participant's hand
// and replenishes the draft from the deck.
func (e *Engine) PickFromDraft(ctx context.Context, participantID, cardID int64) (*models.Card, error) {
	sessionID, err := e.sessionIDOfParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	var picked *models.Card
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		handCount, err := countHand(ctx, tx, participantID)
		if err != nil {
			return err
		}
		if handCount >= maxHandSize {
			return errors.Wrap(ErrHandFull, "pick from draft", slog.Int64("participantID", participantID))
		}

		stmt := `SELECT ` + cardColumns + ` FROM cards
WHERE id = ? AND session_id = ? AND draft = 1`
		card, err := scanCard(tx.QueryRowContext(ctx, stmt, cardID, sessionID))
		if err != nil {
			return err
		}

		stmt = `UPDATE cards SET draft = 0, in_hand = 1, owner_id = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, participantID, card.ID); err != nil {
			return persistence(err, "pick draft card")
		}
		card.Draft = false
		card.InHand = true
		card.OwnerID = &participantID
		picked = card

		return fillDraft(ctx, tx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return picked, nil
}

// DiscardVetoCards discards every veto card in the participant's hand
// ("cards off the table"). Holding none is not an error.
func (e *Engine) DiscardVetoCards(ctx context.Context, participantID int64) (int, error) {
	sessionID, err := e.sessionIDOfParticipant(ctx, participantID)
	if err != nil {
		return 0, err
	}

	discarded := 0
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		stmt := `SELECT ` + cardColumns + ` FROM cards
WHERE owner_id = ? AND dropped = 0 AND kind = ? AND name = ? ORDER BY id`
		cards, err := queryCards(ctx, tx, stmt, participantID, models.KindEvent, models.CardVeto)
		if err != nil {
			return err
		}
		maxSeq, err := maxDiscardSeq(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		for i := range cards {
			maxSeq++
			if err = discardCard(ctx, tx, &cards[i], maxSeq); err != nil {
				return err
			}
		}
		discarded = len(cards)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return discarded, nil
}

package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
)

// InitiateTrade opens a two-party card trade. The event card is discarded,
// an interaction record is created and both seats are asked to select a
// card to give away.
func (e *Engine) InitiateTrade(ctx context.Context, initiatorID, partnerID, eventCardID int64) (*models.Interaction, error) {
	sessionID, err := e.sessionIDOfParticipant(ctx, initiatorID)
	if err != nil {
		return nil, err
	}

	var interaction *models.Interaction
	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		partner, err := getParticipant(ctx, tx, partnerID)
		if err != nil {
			return err
		}
		if partner.SessionID != sessionID {
			return errors.Wrap(ErrParticipantNotFound, "trade partner is in another session",
				slog.Int64("partnerID", partnerID))
		}

		eventCard, err := ownedCard(ctx, tx, initiatorID, eventCardID)
		if err != nil {
			return err
		}
		maxSeq, err := maxDiscardSeq(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err = discardCard(ctx, tx, eventCard, maxSeq+1); err != nil {
			return err
		}

		var interactionID int64
		stmt := `INSERT INTO interactions (session_id, kind, initiator_id, partner_id)
VALUES (?, ?, ?, ?) RETURNING id`
		err = tx.QueryRowContext(ctx, stmt, sessionID, models.InteractionTrade, initiatorID, partnerID).
			Scan(&interactionID)
		if err != nil {
			return persistence(err, "create trade record")
		}

		if err = setPendingAction(ctx, tx, initiatorID, models.PendingSelectTradeCard); err != nil {
			return err
		}
		if err = setPendingAction(ctx, tx, partnerID, models.PendingSelectTradeCard); err != nil {
			return err
		}

		interaction = &models.Interaction{
			ID:          interactionID,
			SessionID:   sessionID,
			Kind:        models.InteractionTrade,
			InitiatorID: initiatorID,
			PartnerID:   partnerID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return interaction, nil
}

// SelectTradeCard records one seat's choice in the active trade. When both
// seats have chosen, ownership swaps atomically and the trade concludes.
// Completed reports whether this call finished the trade.
func (e *Engine) SelectTradeCard(ctx context.Context, participantID, cardID int64) (completed bool, err error) {
	sessionID, err := e.sessionIDOfParticipant(ctx, participantID)
	if err != nil {
		return false, err
	}

	err = e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		participant, err := getParticipant(ctx, tx, participantID)
		if err != nil {
			return err
		}
		switch participant.PendingAction {
		case models.PendingSelectTradeCard, models.PendingWaitingTradePartner:
		default:
			return errors.Wrap(ErrInvalidState, "participant is not in a trade",
				slog.Int64("participantID", participantID),
				slog.String("pendingAction", string(participant.PendingAction)))
		}

		trade, err := activeTrade(ctx, tx, sessionID, participantID)
		if err != nil {
			return err
		}
		if _, err = ownedCard(ctx, tx, participantID, cardID); err != nil {
			return err
		}

		var slot string
		switch participantID {
		case trade.InitiatorID:
			if trade.InitiatorCardID != nil {
				return errors.Wrap(ErrAlreadySelected, "select trade card", slog.Int64("participantID", participantID))
			}
			trade.InitiatorCardID = &cardID
			slot = "initiator_card_id"
		default:
			if trade.PartnerCardID != nil {
				return errors.Wrap(ErrAlreadySelected, "select trade card", slog.Int64("participantID", participantID))
			}
			trade.PartnerCardID = &cardID
			slot = "partner_card_id"
		}
		stmt := `UPDATE interactions SET ` + slot + ` = ? WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, cardID, trade.ID); err != nil {
			return persistence(err, "record trade selection")
		}
		if err = setPendingAction(ctx, tx, participantID, models.PendingWaitingTradePartner); err != nil {
			return err
		}

		if trade.InitiatorCardID == nil || trade.PartnerCardID == nil {
			return nil
		}
		completed = true
		return e.concludeTrade(ctx, tx, trade)
	})
	if err != nil {
		return false, err
	}
	return completed, nil
}

// concludeTrade swaps the two selected cards and resolves the fallout: a
// traded blackmail card opens the blackmail exchange, a traded faux pas
// forces its receiver to reveal a secret, anything else just ends the trade.
func (e *Engine) concludeTrade(ctx context.Context, tx *sql.Tx, trade *models.Interaction) error {
	initiatorCard, err := ownedCard(ctx, tx, trade.InitiatorID, *trade.InitiatorCardID)
	if err != nil {
		return err
	}
	partnerCard, err := ownedCard(ctx, tx, trade.PartnerID, *trade.PartnerCardID)
	if err != nil {
		return err
	}

	stmt := `UPDATE cards SET owner_id = ? WHERE id = ?`
	if _, err = tx.ExecContext(ctx, stmt, trade.PartnerID, initiatorCard.ID); err != nil {
		return persistence(err, "swap card ownership")
	}
	if _, err = tx.ExecContext(ctx, stmt, trade.InitiatorID, partnerCard.ID); err != nil {
		return persistence(err, "swap card ownership")
	}

	// The receiver of a special card is the seat the card swapped to.
	var sender, receiver int64
	var specialName string
	for _, pair := range []struct {
		card     *models.Card
		from, to int64
	}{
		{initiatorCard, trade.InitiatorID, trade.PartnerID},
		{partnerCard, trade.PartnerID, trade.InitiatorID},
	} {
		if pair.card.Kind != models.KindEvent {
			continue
		}
		switch pair.card.Name {
		case models.CardBlackmailed:
			sender, receiver, specialName = pair.from, pair.to, models.CardBlackmailed
		case models.CardSocialFauxPas:
			if specialName != models.CardBlackmailed {
				sender, receiver, specialName = pair.from, pair.to, models.CardSocialFauxPas
			}
		}
	}

	switch specialName {
	case models.CardBlackmailed:
		if err = setPendingAction(ctx, tx, sender, models.PendingWaitingBlackmail); err != nil {
			return err
		}
		if err = setPendingAction(ctx, tx, receiver, models.PendingChooseBlackmailSecret); err != nil {
			return err
		}
	case models.CardSocialFauxPas:
		if err = setPendingAction(ctx, tx, receiver, models.PendingRevealSecret); err != nil {
			return err
		}
		if err = setPendingAction(ctx, tx, sender, models.PendingNone); err != nil {
			return err
		}
	default:
		if err = setPendingAction(ctx, tx, trade.InitiatorID, models.PendingNone); err != nil {
			return err
		}
		if err = setPendingAction(ctx, tx, trade.PartnerID, models.PendingNone); err != nil {
			return err
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM interactions WHERE id = ?`, trade.ID); err != nil {
		return persistence(err, "delete trade record")
	}
	return nil
}

func activeTrade(ctx context.Context, tx *sql.Tx, sessionID, participantID int64) (*models.Interaction, error) {
	var t models.Interaction
	stmt := `SELECT id, session_id, kind, initiator_id, partner_id, initiator_card_id, partner_card_id
FROM interactions
WHERE session_id = ? AND kind = ? AND (initiator_id = ? OR partner_id = ?)`
	err := tx.QueryRowContext(ctx, stmt, sessionID, models.InteractionTrade, participantID, participantID).
		Scan(&t.ID, &t.SessionID, &t.Kind, &t.InitiatorID, &t.PartnerID, &t.InitiatorCardID, &t.PartnerCardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrInteractionNotFound, "load active trade",
				slog.Int64("participantID", participantID))
		}
		return nil, persistence(err, "load active trade")
	}
	return &t, nil
}

// ResolveBlackmail hands one of the chooser's secrets to the blackmailing
// seat, face down, and closes the blackmail exchange.
func (e *Engine) ResolveBlackmail(ctx context.Context, chooserID, blackmailerID, secretID int64) error {
	sessionID, err := e.sessionIDOfParticipant(ctx, chooserID)
	if err != nil {
		return err
	}

	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		chooser, err := getParticipant(ctx, tx, chooserID)
		if err != nil {
			return err
		}
		if chooser.PendingAction != models.PendingChooseBlackmailSecret {
			return errors.Wrap(ErrInvalidState, "participant is not choosing a blackmail secret",
				slog.Int64("participantID", chooserID))
		}
		secret, err := getSecret(ctx, tx, secretID)
		if err != nil {
			return err
		}
		if secret.OwnerID == nil || *secret.OwnerID != chooserID {
			return errors.Wrap(ErrInvalidState, "secret does not belong to the chooser",
				slog.Int64("secretID", secretID))
		}

		stmt := `UPDATE secrets SET owner_id = ?, revealed = 0 WHERE id = ?`
		if _, err = tx.ExecContext(ctx, stmt, blackmailerID, secretID); err != nil {
			return persistence(err, "transfer blackmailed secret")
		}
		if err = recomputeDisgrace(ctx, tx, chooserID); err != nil {
			return err
		}

		if err = setPendingAction(ctx, tx, chooserID, models.PendingNone); err != nil {
			return err
		}
		return setPendingAction(ctx, tx, blackmailerID, models.PendingNone)
	})
}

// SetBlackmailPair marks two seats as locked in a secret-showing exchange.
func (e *Engine) SetBlackmailPair(ctx context.Context, showingID, shownID int64) error {
	sessionID, err := e.sessionIDOfParticipant(ctx, showingID)
	if err != nil {
		return err
	}
	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		if err := setPendingAction(ctx, tx, showingID, models.PendingBlackmailed); err != nil {
			return err
		}
		return setPendingAction(ctx, tx, shownID, models.PendingBlackmailed)
	})
}

// ClearBlackmailPair releases both seats of a secret-showing exchange.
func (e *Engine) ClearBlackmailPair(ctx context.Context, showingID, shownID int64) error {
	sessionID, err := e.sessionIDOfParticipant(ctx, showingID)
	if err != nil {
		return err
	}
	return e.mutate(ctx, sessionID, func(tx *sql.Tx) error {
		if err := setPendingAction(ctx, tx, showingID, models.PendingNone); err != nil {
			return err
		}
		return setPendingAction(ctx, tx, shownID, models.PendingNone)
	})
}

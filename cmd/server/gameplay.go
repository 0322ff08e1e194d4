package main

import (
	"net/http"

	"github.com/emiliaharju/whodunit/internal/engine"
	"github.com/emiliaharju/whodunit/internal/errors"
	"github.com/emiliaharju/whodunit/internal/models"
)

func sessionParticipantIDs(r *http.Request) (int64, int64, error) {
	sid, err := sessionID(r)
	if err != nil {
		return 0, 0, err
	}
	pid, err := pathID(r, "participantID")
	if err != nil {
		return 0, 0, err
	}
	return sid, pid, nil
}

func (app *application) advanceTurn(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	next, err := app.engine.AdvanceTurn(r.Context(), id)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, id)
	app.writeJSON(w, r, http.StatusOK, next)
}

func (app *application) returnToDeck(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		CardIDs []int64 `json:"cardIds"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	returned, err := app.engine.ReturnToDeck(r.Context(), id, req.CardIDs)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, id)
	app.writeJSON(w, r, http.StatusOK, returned)
}

func (app *application) fillDraft(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	if err = app.engine.FillDraft(r.Context(), id); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) resolveChain(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	entry, err := app.engine.ResolveChain(r.Context(), id)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, entry)
}

func (app *application) playGroup(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		ActorID int64 `json:"actorId"`
		GroupID int64 `json:"groupId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	entry, err := app.engine.RegisterGroupPlay(r.Context(), id, req.ActorID, req.GroupID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, id)
	app.writeJSON(w, r, http.StatusCreated, entry)
}

func (app *application) openVote(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	if err = app.engine.OpenVote(r.Context(), id); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) closeVote(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	if err = app.engine.CloseVote(r.Context(), id); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) leaveSession(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	if err = app.engine.Leave(r.Context(), pid); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) drawCard(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	card, err := app.engine.Draw(r.Context(), pid)
	if errors.Is(err, engine.ErrDeckEmpty) {
		// The session was finished inside the draw. Clients learn it from
		// the snapshot.
		app.broadcastSnapshot(r, sid)
		app.clientError(w, r, http.StatusConflict)
		return
	}
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, card)
}

func (app *application) discardCards(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		CardIDs []int64 `json:"cardIds"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	discarded, err := app.engine.DiscardMany(r.Context(), pid, req.CardIDs)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, discarded)
}

func (app *application) pickFromDraft(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		CardID int64 `json:"cardId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	card, err := app.engine.PickFromDraft(r.Context(), pid, req.CardID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, card)
}

func (app *application) takeFromDiscard(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		CardID int64 `json:"cardId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	card, err := app.engine.TakeFromDiscard(r.Context(), pid, req.CardID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, card)
}

func (app *application) discardVetoes(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	count, err := app.engine.DiscardVetoCards(r.Context(), pid)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, map[string]int{"discarded": count})
}

func (app *application) playCard(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		CardID int64 `json:"cardId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	entry, err := app.engine.RegisterPlay(r.Context(), pid, req.CardID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusCreated, entry)
}

func (app *application) initiateTrade(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		PartnerID   int64 `json:"partnerId"`
		EventCardID int64 `json:"eventCardId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	trade, err := app.engine.InitiateTrade(r.Context(), pid, req.PartnerID, req.EventCardID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusCreated, trade)
}

func (app *application) selectTradeCard(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		CardID int64 `json:"cardId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	completed, err := app.engine.SelectTradeCard(r.Context(), pid, req.CardID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, map[string]bool{"completed": completed})
}

func (app *application) resolveBlackmail(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		BlackmailerID int64 `json:"blackmailerId"`
		SecretID      int64 `json:"secretId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	if err = app.engine.ResolveBlackmail(r.Context(), pid, req.BlackmailerID, req.SecretID); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) setBlackmailPair(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		ShownID int64 `json:"shownId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	if err = app.engine.SetBlackmailPair(r.Context(), pid, req.ShownID); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) clearBlackmailPair(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		ShownID int64 `json:"shownId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	if err = app.engine.ClearBlackmailPair(r.Context(), pid, req.ShownID); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) initiateFolly(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		Direction   models.Direction `json:"direction"`
		EventCardID int64            `json:"eventCardId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	if err = app.engine.InitiateFolly(r.Context(), pid, req.Direction, req.EventCardID); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) passFollyCard(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		ToID   int64 `json:"toId"`
		CardID int64 `json:"cardId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	concluded, err := app.engine.PassFollyCard(r.Context(), pid, req.ToID, req.CardID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, map[string]bool{"concluded": concluded})
}

func (app *application) castVote(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		TargetID int64 `json:"targetId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	if err = app.engine.CastVote(r.Context(), pid, req.TargetID); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) setPendingAction(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		Action models.PendingAction `json:"action"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	if err = app.engine.SetPendingAction(r.Context(), pid, req.Action); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) clearPendingAction(w http.ResponseWriter, r *http.Request) {
	sid, pid, err := sessionParticipantIDs(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	if err = app.engine.ClearPendingAction(r.Context(), pid); err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) revealSecret(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	secretID, err := pathID(r, "secretID")
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	secret, err := app.engine.RevealSecret(r.Context(), secretID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, secret)
}

func (app *application) hideSecret(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	secretID, err := pathID(r, "secretID")
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	secret, err := app.engine.HideSecret(r.Context(), secretID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, secret)
}

func (app *application) transferSecret(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	secretID, err := pathID(r, "secretID")
	if err != nil {
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	var req struct {
		NewOwnerID int64 `json:"newOwnerId"`
	}
	if !app.decodeJSON(w, r, &req) {
		return
	}
	secret, err := app.engine.TransferSecret(r.Context(), secretID, req.NewOwnerID)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.broadcastSnapshot(r, sid)
	app.writeJSON(w, r, http.StatusOK, secret)
}

package main

import (
	"net/http"

	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	api := alice.New()

	mux.Handle("GET /api/healthy", api.ThenFunc(app.healthy))
	mux.Handle("GET /api/sessions", api.ThenFunc(app.listSessions))
	mux.Handle("GET /api/sessions/available", api.ThenFunc(app.listAvailableSessions))
	mux.Handle("POST /api/sessions", api.ThenFunc(app.createSession))
	mux.Handle("DELETE /api/sessions/{id}", api.ThenFunc(app.deleteSession))
	mux.Handle("GET /api/sessions/{id}", api.ThenFunc(app.sessionSnapshot))
	mux.Handle("POST /api/sessions/{id}/join", api.ThenFunc(app.joinSession))
	mux.Handle("POST /api/sessions/{id}/start", api.ThenFunc(app.startSession))
	mux.Handle("GET /api/sessions/{id}/stream", api.ThenFunc(app.streamSession))

	mux.Handle("POST /api/sessions/{id}/turn", api.ThenFunc(app.advanceTurn))
	mux.Handle("POST /api/sessions/{id}/deck/return", api.ThenFunc(app.returnToDeck))
	mux.Handle("POST /api/sessions/{id}/draft/fill", api.ThenFunc(app.fillDraft))
	mux.Handle("GET /api/sessions/{id}/chain", api.ThenFunc(app.resolveChain))
	mux.Handle("POST /api/sessions/{id}/plays/group", api.ThenFunc(app.playGroup))
	mux.Handle("POST /api/sessions/{id}/votes/open", api.ThenFunc(app.openVote))
	mux.Handle("POST /api/sessions/{id}/votes/close", api.ThenFunc(app.closeVote))

	mux.Handle("DELETE /api/sessions/{id}/participants/{participantID}", api.ThenFunc(app.leaveSession))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/draw", api.ThenFunc(app.drawCard))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/discard", api.ThenFunc(app.discardCards))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/draft/pick", api.ThenFunc(app.pickFromDraft))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/discard/take", api.ThenFunc(app.takeFromDiscard))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/vetoes/discard", api.ThenFunc(app.discardVetoes))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/play", api.ThenFunc(app.playCard))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/trade", api.ThenFunc(app.initiateTrade))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/trade/select", api.ThenFunc(app.selectTradeCard))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/blackmail", api.ThenFunc(app.resolveBlackmail))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/blackmail-pair", api.ThenFunc(app.setBlackmailPair))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/blackmail-pair/clear", api.ThenFunc(app.clearBlackmailPair))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/folly", api.ThenFunc(app.initiateFolly))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/folly/pass", api.ThenFunc(app.passFollyCard))
	mux.Handle("POST /api/sessions/{id}/participants/{participantID}/vote", api.ThenFunc(app.castVote))
	mux.Handle("PUT /api/sessions/{id}/participants/{participantID}/pending", api.ThenFunc(app.setPendingAction))
	mux.Handle("DELETE /api/sessions/{id}/participants/{participantID}/pending", api.ThenFunc(app.clearPendingAction))

	mux.Handle("POST /api/sessions/{id}/secrets/{secretID}/reveal", api.ThenFunc(app.revealSecret))
	mux.Handle("POST /api/sessions/{id}/secrets/{secretID}/hide", api.ThenFunc(app.hideSecret))
	mux.Handle("POST /api/sessions/{id}/secrets/{secretID}/transfer", api.ThenFunc(app.transferSecret))

	return app.recoverPanic(app.logRequest(secureHeaders(mux)))
}

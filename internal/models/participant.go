package models

import "time"

// PendingAction is the single coordination state a participant is in. It gates
// what input the engine currently accepts from them. The empty value means no
// input is awaited.
type PendingAction string

const (
	PendingNone                  PendingAction = ""
	PendingRevealSecret          PendingAction = "reveal_secret"
	PendingWaitingRevealSecret   PendingAction = "waiting_reveal_secret"
	PendingVote                  PendingAction = "vote"
	PendingWaitingVoteEnd        PendingAction = "waiting_voting_to_end"
	PendingSelectTradeCard       PendingAction = "select_trade_card"
	PendingWaitingTradePartner   PendingAction = "waiting_for_trade_partner"
	PendingSelectFollyCard       PendingAction = "select_folly_card"
	PendingWaitingFollyTrade     PendingAction = "waiting_for_folly_trade"
	PendingBlackmailed           PendingAction = "blackmailed"
	PendingChooseBlackmailSecret PendingAction = "choose_blackmail_secret"
	PendingWaitingBlackmail      PendingAction = "waiting_for_blackmail"
	PendingCleansed              PendingAction = "cleansed"
)

// Participant is a seated player in a session.
type Participant struct {
	ID        int64  `db:"id" json:"id"`
	SessionID int64  `db:"session_id" json:"sessionId"`
	Name      string `db:"name" json:"name"`
	// BirthDate is used only for deriving the seating rank.
	BirthDate time.Time `db:"birth_date" json:"birthDate"`
	// SeatingRank is assigned once at session start and immutable afterwards.
	SeatingRank    int           `db:"seating_rank" json:"seatingRank"`
	PendingAction  PendingAction `db:"pending_action" json:"pendingAction"`
	SocialDisgrace bool          `db:"social_disgrace" json:"socialDisgrace"`
	VotesReceived  int           `db:"votes_received" json:"votesReceived"`
}

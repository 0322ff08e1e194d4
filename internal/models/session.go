package models

// SessionStatus tracks the lifecycle of a game session. It advances
// monotonically except for the suspicion phase, which can revert to in-course
// when the vote closes.
type SessionStatus string

const (
	StatusAwaitingPlayers SessionStatus = "awaiting_players"
	StatusBootable        SessionStatus = "bootable"
	StatusFull            SessionStatus = "full"
	StatusInCourse        SessionStatus = "in_course"
	StatusSuspicionPhase  SessionStatus = "suspicion_phase"
	StatusFinished        SessionStatus = "finished"
)

// Direction of the chained card-pass rotation.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Session is a live match of the card game.
type Session struct {
	ID          int64         `db:"id" json:"id"`
	Code        string        `db:"code" json:"code"`
	Name        string        `db:"name" json:"name"`
	Status      SessionStatus `db:"status" json:"status"`
	MinPlayers  int           `db:"min_players" json:"minPlayers"`
	MaxPlayers  int           `db:"max_players" json:"maxPlayers"`
	PlayerCount int           `db:"player_count" json:"playerCount"`
	// CurrentTurn is the seating rank whose turn it is. Zero before the
	// session starts.
	CurrentTurn int `db:"current_turn" json:"currentTurn"`
	CardsLeft   int `db:"cards_left" json:"cardsLeft"`
	// FollyDirection is set while a chained card-pass is in flight.
	FollyDirection *Direction `db:"folly_direction" json:"follyDirection,omitempty"`
	VoteTally      int        `db:"vote_tally" json:"voteTally"`
}

package models

// InteractionKind names a multi-step interaction protocol.
type InteractionKind string

const (
	InteractionTrade InteractionKind = "trade"
)

// Interaction is a persisted record of an in-flight two-party interaction.
// It is created when the interaction event is played and deleted when the
// interaction fully resolves.
type Interaction struct {
	ID        int64           `db:"id" json:"id"`
	SessionID int64           `db:"session_id" json:"sessionId"`
	Kind      InteractionKind `db:"kind" json:"kind"`
	// The two participating seats.
	InitiatorID int64 `db:"initiator_id" json:"initiatorId"`
	PartnerID   int64 `db:"partner_id" json:"partnerId"`
	// Per-seat selected cards, nil until chosen.
	InitiatorCardID *int64 `db:"initiator_card_id" json:"initiatorCardId,omitempty"`
	PartnerCardID   *int64 `db:"partner_card_id" json:"partnerCardId,omitempty"`
}

// LogKind classifies action log entries.
type LogKind string

const (
	LogCardPlay   LogKind = "card"
	LogGroupPlay  LogKind = "group"
	LogTurnChange LogKind = "turn"
)

// LogEntry is an append-only action log row. The veto window resolver reads
// these newest first.
type LogEntry struct {
	ID        int64 `db:"id" json:"id"`
	SessionID int64 `db:"session_id" json:"sessionId"`
	// CreatedAt is unix nanoseconds.
	CreatedAt int64   `db:"created_at" json:"createdAt"`
	Kind      LogKind `db:"kind" json:"kind"`
	CardID    *int64  `db:"card_id" json:"cardId,omitempty"`
	GroupID   *int64  `db:"group_id" json:"groupId,omitempty"`
	ActorID   *int64  `db:"actor_id" json:"actorId,omitempty"`
}

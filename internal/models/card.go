package models

// CardKind is the tagged variant of a card. Detective cards carry a group
// payload, event cards only a name.
type CardKind string

const (
	KindDetective CardKind = "detective"
	KindEvent     CardKind = "event"
)

// Zone is the place a card occupies. A card is in exactly one zone at a time.
type Zone string

const (
	ZoneDeck    Zone = "deck"
	ZoneHand    Zone = "hand"
	ZoneDraft   Zone = "draft"
	ZoneDiscard Zone = "discard"
)

// Event card names. These drive kind-specific behavior in the engine.
const (
	CardVeto           = "Not so fast"
	CardTrade          = "Card trade"
	CardFolly          = "Dead card folly"
	CardEarlyTrain     = "Early train to paddington"
	CardBlackmailed    = "Blackmailed"
	CardSocialFauxPas  = "Social Faux Pas"
	CardCardsOffTable  = "Cards off the table"
	CardLookIntoAshes  = "Look into the ashes"
	CardDelayEscape    = "Delay the murderer's escape!"
	CardPointSuspicion = "Point your suspicions"
	CardAnotherVictim  = "Another Victim"
	CardOneMore        = "And then there was one more..."
)

// DiscardSeqReturned marks a card that went from the discard pile back into
// the deck. Such cards surface first on the next draw.
const DiscardSeqReturned = -1

// Card is a single card owned by a session.
type Card struct {
	ID        int64    `db:"id" json:"id"`
	SessionID int64    `db:"session_id" json:"sessionId"`
	Kind      CardKind `db:"kind" json:"kind"`
	Name      string   `db:"name" json:"name"`
	OwnerID   *int64   `db:"owner_id" json:"ownerId,omitempty"`
	InHand    bool     `db:"in_hand" json:"inHand"`
	Dropped   bool     `db:"dropped" json:"dropped"`
	Draft     bool     `db:"draft" json:"draft"`
	// DiscardSeq is strictly increasing per session and assigned at the moment
	// of discard. Meaningful only while the card is in the discard pile,
	// except for DiscardSeqReturned.
	DiscardSeq int `db:"discard_seq" json:"discardSeq"`
	// GroupSize and GroupID are set for detective cards only.
	GroupSize *int   `db:"group_size" json:"groupSize,omitempty"`
	GroupID   *int64 `db:"group_id" json:"groupId,omitempty"`
}

// Zone derives the card's current zone from its ownership flags.
func (c Card) Zone() Zone {
	switch {
	case c.Dropped:
		return ZoneDiscard
	case c.Draft:
		return ZoneDraft
	case c.InHand && c.OwnerID != nil:
		return ZoneHand
	default:
		return ZoneDeck
	}
}

// IsVeto reports whether the card is the reactive counter card.
func (c Card) IsVeto() bool {
	return c.Kind == KindEvent && c.Name == CardVeto
}

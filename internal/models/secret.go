package models

// Secret is a face-down or revealed secret card. Each session has exactly one
// murderer secret and at most one accomplice secret, and once dealt they must
// never share an owner.
type Secret struct {
	ID           int64  `db:"id" json:"id"`
	SessionID    int64  `db:"session_id" json:"sessionId"`
	OwnerID      *int64 `db:"owner_id" json:"ownerId,omitempty"`
	IsMurderer   bool   `db:"is_murderer" json:"isMurderer"`
	IsAccomplice bool   `db:"is_accomplice" json:"isAccomplice"`
	Revealed     bool   `db:"revealed" json:"revealed"`
}

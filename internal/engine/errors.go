package engine

import (
	"fmt"
	"log/slog"

	"github.com/emiliaharju/whodunit/internal/errors"
)

// Base error kinds. Specific errors below wrap one of these so callers can
// match either the exact condition or the kind.
var (
	ErrNotFound         = errors.NewSentinel("not found")
	ErrInvalidState     = errors.NewSentinel("invalid state")
	ErrAlreadyDone      = errors.NewSentinel("already done")
	ErrWindowExpired    = errors.NewSentinel("veto window expired")
	ErrInvalidDirection = errors.NewSentinel("invalid direction")
	ErrInvalidArgument  = errors.NewSentinel("invalid argument")
	ErrPersistence      = errors.NewSentinel("persistence failure")
)

var (
	ErrSessionNotFound     = fmt.Errorf("%w: session", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("%w: participant", ErrNotFound)
	ErrCardNotFound        = fmt.Errorf("%w: card", ErrNotFound)
	ErrSecretNotFound      = fmt.Errorf("%w: secret", ErrNotFound)
	ErrInteractionNotFound = fmt.Errorf("%w: interaction", ErrNotFound)
	ErrNoPlayerAtRank      = fmt.Errorf("%w: no participant at rank", ErrNotFound)
	ErrNoEntries           = fmt.Errorf("%w: action log is empty", ErrNotFound)
	ErrNoPlayers           = fmt.Errorf("%w: session has no participants", ErrNotFound)

	ErrHandFull         = fmt.Errorf("%w: hand holds the maximum of %d cards", ErrInvalidState, maxHandSize)
	ErrDeckEmpty        = fmt.Errorf("%w: deck is exhausted", ErrInvalidState)
	ErrCardNotOwned     = fmt.Errorf("%w: card is not in the participant's hand", ErrInvalidState)
	ErrSessionFull      = fmt.Errorf("%w: session is full", ErrInvalidState)
	ErrSessionStarted   = fmt.Errorf("%w: session already started", ErrAlreadyDone)
	ErrNotEnoughPlayers = fmt.Errorf("%w: roster below session minimum", ErrInvalidState)

	ErrAlreadySelected = fmt.Errorf("%w: card already selected for this seat", ErrAlreadyDone)
	ErrAlreadyRevealed = fmt.Errorf("%w: secret already revealed", ErrAlreadyDone)
	ErrNotRevealed     = fmt.Errorf("%w: secret is not revealed", ErrInvalidState)
	ErrMustBeRevealed  = fmt.Errorf("%w: secret must be revealed to transfer", ErrInvalidState)
)

// persistence wraps a storage error so the caller can detect it with
// errors.Is(err, ErrPersistence). It is the only error kind that may warrant
// a caller-side retry.
func persistence(err error, msg string, attrs ...slog.Attr) error {
	return errors.Wrap(fmt.Errorf("%w: %w", ErrPersistence, err), msg, attrs...)
}

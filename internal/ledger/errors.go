package ledger

import "errors"

// Operation failures. All are fatal to the current call: the transition
// aborts before anything is written and the error surfaces to the caller.
// Callers match with errors.Is; retrying is their responsibility after
// correcting the triggering condition.
var (
	// ErrUnauthorized means authentication failed or the caller is not the
	// entity owner the operation requires.
	ErrUnauthorized = errors.New("ledger: unauthorized")

	// ErrNotFound means the referenced offer or trade does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrAlreadyInactive means a cancel targeted an inactive offer.
	ErrAlreadyInactive = errors.New("ledger: offer already inactive")

	// ErrOfferInactive means a trade targeted a cancelled or fully
	// consumed offer.
	ErrOfferInactive = errors.New("ledger: offer no longer active")

	// ErrOfferExpired means a trade arrived after the offer's expiration.
	ErrOfferExpired = errors.New("ledger: offer has expired")

	// ErrInsufficientEnergy means the requested amount exceeds what the
	// offer has remaining.
	ErrInsufficientEnergy = errors.New("ledger: requested energy exceeds available amount")

	// ErrInvalidScore means a reputation score outside the 0-100 domain.
	ErrInvalidScore = errors.New("ledger: reputation score must be between 0 and 100")
)

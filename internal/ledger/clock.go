package ledger

import "time"

// Clock supplies ledger time as unix seconds. Offer expiry is evaluated
// against it, so tests substitute a fixed or stepped implementation.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

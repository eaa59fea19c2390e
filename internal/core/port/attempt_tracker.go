package port

import "context"

// AttemptTracker is the fast throttling gate consulted before credential
// verification. It is an accelerator: the durable lockout state on the user
// row remains the cross-instance source of truth.
type AttemptTracker interface {
	// IsLimited reports whether the identifier has reached the attempt budget
	// within the lockout window.
	IsLimited(ctx context.Context, identifier string) (bool, error)
	// RecordFailure registers a failed attempt and returns the running count.
	RecordFailure(ctx context.Context, identifier string) (int, error)
	// Reset clears all recorded attempts for the identifier.
	Reset(ctx context.Context, identifier string) error
}

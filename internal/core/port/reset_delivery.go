package port

import "context"

// ResetTokenDelivery hands a raw reset token to an out-of-band channel
// (email, SMS). The identity service never returns the raw token to the
// requesting caller.
type ResetTokenDelivery interface {
	DeliverResetToken(ctx context.Context, email, rawToken string) error
}

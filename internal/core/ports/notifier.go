package ports

import "context"

// Notifier pushes operational notices (proposal finalized, KYC decision)
// to whoever operates the platform. Failures are logged, never surfaced
// to the triggering request.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

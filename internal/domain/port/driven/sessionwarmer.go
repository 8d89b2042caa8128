package driven

import "context"

// SessionWarmer mints an ephemeral credential by driving a real browser
// against the target platform. The returned path points at a cookie file the
// caller owns and is responsible for deleting.
type SessionWarmer interface {
	WarmSession(ctx context.Context, targetURL string) (string, error)
}

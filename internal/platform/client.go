// Package platform implements the send/update contracts for the two
// supported chat destinations (spec.md §4.7): Telegram ("TG") and Slack
// ("SL"). Both clients share the same shape — validate/send/update, one
// retry with ~1s backoff on transient failure — grounded on the teacher's
// internal/monitor/health.go consecutive-failure/cached-validation pattern,
// adapted from per-source health tracking to per-credential validate()
// caching.
package platform

import "context"

// RenderedContent is a platform-specific, already-formatted payload built
// from a render.Document by a Format* function in this package. It carries
// its own cache key so internal/debounce can suppress byte-identical
// re-deliveries without needing to know the concrete payload shape.
type RenderedContent interface {
	CacheKey() string
}

// Client is the capability set spec.md §4.7 requires of both platforms.
type Client interface {
	// Validate calls a credentials-echo operation and caches success; it
	// never caches failure, so a later call can recover once credentials
	// are fixed.
	Validate(ctx context.Context) error

	// Send posts content as a new message to identifier and returns the
	// platform's message handle.
	Send(ctx context.Context, identifier string, content RenderedContent) (messageID string, err error)

	// Update edits an existing message in place. It returns (false, nil)
	// rather than an error when the platform reports the message is gone
	// (the caller reacts by re-sending) or (true, nil) when the platform
	// reports the content was already identical ("not modified").
	Update(ctx context.Context, identifier, messageID string, content RenderedContent) (ok bool, err error)
}

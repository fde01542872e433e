// Package notify pushes short messages to users outside the request path.
package notify

import "context"

// Notifier delivers message to the user, optionally with a button that opens
// actionURL.
type Notifier interface {
	Notify(ctx context.Context, userID, message, actionURL string) error
}

// Discard drops every message. It is used when no bot token is configured.
type Discard struct{}

func (Discard) Notify(context.Context, string, string, string) error { return nil }

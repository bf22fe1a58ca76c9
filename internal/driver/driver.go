// Package driver defines the capability boundary between the campaign
// engine and the browser-rendered chat client. The engine is a pure
// consumer of this interface; the concrete automation lives in rodweb.
package driver

import "context"

// Driver exposes readiness checks and chat/message/attachment primitives.
//
// Every call must be bounded by its own timeout and fail closed: a broken
// session returns false or an error, it never hangs indefinitely.
type Driver interface {
	// IsReady reports whether the client's main view is rendered.
	IsReady(ctx context.Context) bool
	// HasQRPrompt reports whether the client is asking for a QR scan,
	// which means the session is not authenticated.
	HasQRPrompt(ctx context.Context) bool

	// OpenDirectChat opens a one-to-one conversation by phone identifier.
	OpenDirectChat(ctx context.Context, identifier string) error
	// OpenChatByTitle searches for a conversation by its display title
	// and opens it.
	OpenChatByTitle(ctx context.Context, title string) error
	// OpenChatTitle returns the display title of the currently open
	// conversation, or "" when none can be read.
	OpenChatTitle(ctx context.Context) string

	// SendText types and sends a message into the open conversation.
	SendText(ctx context.Context, text string) error
	// AttachFile sends a media or document attachment into the open
	// conversation.
	AttachFile(ctx context.Context, path string) error
}

// Package channel defines the interface for communication channels.
// Channels are how Selam talks to donors: Telegram, Matrix, the HTTP API.
package channel

import "context"

// Message represents an incoming message from any channel.
type Message struct {
	// Source identifies the channel (e.g., "telegram", "matrix", "http")
	Source string

	// SenderID is the channel-specific sender identifier
	SenderID string

	// ChatID is the channel-specific chat/room the reply goes to
	ChatID string

	// ConversationID is the caller-supplied conversation key, if any
	ConversationID string

	// Content is the message text (already transcribed for voice notes)
	Content string

	// IsVoice indicates this was transcribed from audio
	IsVoice bool

	// Language is the caller's language hint ("en", "am", or empty)
	Language string

	// Context is optional page/entity context supplied by the front end
	Context string

	// Timestamp is the message timestamp in milliseconds
	Timestamp int64
}

// TextRef is the handle of a sent text message. Audio replies are threaded
// to it, so out-of-order render completion still lands on the right message.
type TextRef struct {
	Channel   string
	ChatID    string
	MessageID string
}

// Audio is rendered speech ready to send.
type Audio struct {
	Data     []byte
	MIME     string // e.g. "audio/ogg"
	Duration int    // seconds, 0 if unknown
}

// Sender is the outbound half of a channel: text first, audio threaded after.
type Sender interface {
	// SendText sends a text message and returns its handle immediately.
	SendText(ctx context.Context, chatID, text string) (TextRef, error)

	// SendAudio sends rendered audio as a reply to a previously sent text.
	SendAudio(ctx context.Context, ref TextRef, audio Audio) error
}

// MessageHandler is called when a message is received from any channel.
type MessageHandler func(ctx context.Context, msg Message) error

// Channel is the interface for a communication channel.
type Channel interface {
	Sender

	// Name returns the channel identifier (e.g., "telegram").
	Name() string

	// Start begins listening for messages. Blocks until ctx is cancelled.
	// Received messages are sent to the handler function.
	Start(ctx context.Context, handler MessageHandler) error

	// Stop gracefully shuts down the channel.
	Stop() error
}

// Package matrix implements the Matrix channel for Selam using mautrix-go,
// running inside the assistant process directly.
package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/selam-labs/selam/internal/speech"
	"github.com/selam-labs/selam/pkg/channel"
)

// Matrix homeservers commonly cap events around 64KB; stay well under.
const maxMessageLen = 4000

// Config holds Matrix channel configuration.
type Config struct {
	Homeserver   string
	UserID       string // localpart, e.g. "selam"
	Password     string
	ServerName   string // e.g. "matrix.tesfa.org"
	AllowedUsers []string
	DataDir      string
}

// Channel implements channel.Channel for Matrix.
type Channel struct {
	config      Config
	client      *mautrix.Client
	handler     channel.MessageHandler
	transcriber speech.Transcriber
	startTime   int64

	credFile string
}

// credentials holds saved Matrix login state.
type credentials struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
}

// New creates a Matrix channel. transcriber may be nil; voice messages are
// then answered with a request to type instead.
func New(cfg Config, transcriber speech.Transcriber) *Channel {
	return &Channel{
		config:      cfg,
		transcriber: transcriber,
		credFile:    filepath.Join(cfg.DataDir, "matrix_credentials.json"),
	}
}

func (c *Channel) Name() string { return "matrix" }

// Start connects to Matrix and begins listening for messages.
// Retries login with exponential backoff on failure.
func (c *Channel) Start(ctx context.Context, handler channel.MessageHandler) error {
	c.handler = handler
	c.startTime = time.Now().UnixMilli()

	os.MkdirAll(c.config.DataDir, 0o755)

	fullUserID := fmt.Sprintf("@%s:%s", c.config.UserID, c.config.ServerName)

	client, err := mautrix.NewClient(c.config.Homeserver, id.UserID(fullUserID), "")
	if err != nil {
		return fmt.Errorf("create matrix client: %w", err)
	}
	c.client = client

	// In-memory sync store; resync on restart is fine.
	client.Store = mautrix.NewMemorySyncStore()

	if err := c.loginWithRetry(ctx, fullUserID); err != nil {
		return err
	}

	syncer := client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		c.onMessage(ctx, evt)
	})
	syncer.OnEventType(event.StateMember, func(ctx context.Context, evt *event.Event) {
		c.onMemberEvent(ctx, evt)
	})

	slog.Info("matrix channel ready, starting sync")

	for {
		err := client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Warn("matrix sync error, reconnecting in 15s", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(15 * time.Second):
			}
		}
	}
}

// loginWithRetry tries saved credentials first, then password login with
// exponential backoff.
func (c *Channel) loginWithRetry(ctx context.Context, fullUserID string) error {
	if err := c.loadCredentials(); err == nil {
		slog.Info("loaded saved Matrix credentials", "user", fullUserID)
		return nil
	}

	backoff := 2 * time.Second
	maxBackoff := 2 * time.Minute
	maxAttempts := 10

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		slog.Info("logging into Matrix",
			"user", fullUserID,
			"homeserver", c.config.Homeserver,
			"attempt", attempt,
		)

		resp, err := c.client.Login(ctx, &mautrix.ReqLogin{
			Type: mautrix.AuthTypePassword,
			Identifier: mautrix.UserIdentifier{
				Type: mautrix.IdentifierTypeUser,
				User: c.config.UserID,
			},
			Password:         c.config.Password,
			StoreCredentials: true,
		})

		if err == nil {
			slog.Info("logged into Matrix", "user", resp.UserID, "device", resp.DeviceID)
			c.saveCredentials(credentials{
				AccessToken: resp.AccessToken,
				UserID:      string(resp.UserID),
				DeviceID:    string(resp.DeviceID),
			})
			return nil
		}

		errStr := err.Error()
		if strings.Contains(errStr, "M_FORBIDDEN") ||
			strings.Contains(errStr, "M_UNKNOWN_TOKEN") ||
			strings.Contains(errStr, "M_INVALID_PARAM") {
			return fmt.Errorf("matrix login: %w (non-retryable)", err)
		}

		if attempt == maxAttempts {
			return fmt.Errorf("matrix login: %w (after %d attempts)", err, maxAttempts)
		}

		slog.Warn("matrix login failed, retrying",
			"error", err,
			"attempt", attempt,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return fmt.Errorf("matrix login: exhausted retries")
}

// SendText sends a text message, splitting long ones, and returns the
// handle of the last event sent.
func (c *Channel) SendText(ctx context.Context, chatID, text string) (channel.TextRef, error) {
	roomID := id.RoomID(chatID)
	chunks := splitMessage(text, maxMessageLen)

	var lastEvent id.EventID
	for i, chunk := range chunks {
		if len(chunks) > 1 {
			chunk = fmt.Sprintf("[%d/%d] %s", i+1, len(chunks), chunk)
		}
		resp, err := c.client.SendText(ctx, roomID, chunk)
		if err != nil {
			slog.Error("matrix send failed", "room", roomID, "chunk", i+1, "error", err)
			return channel.TextRef{}, fmt.Errorf("matrix send: %w", err)
		}
		lastEvent = resp.EventID
		if i < len(chunks)-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}

	return channel.TextRef{
		Channel:   "matrix",
		ChatID:    chatID,
		MessageID: string(lastEvent),
	}, nil
}

// SendAudio uploads rendered speech and sends it as an audio message
// replying to the text event it accompanies.
func (c *Channel) SendAudio(ctx context.Context, ref channel.TextRef, audio channel.Audio) error {
	upload, err := c.client.UploadBytes(ctx, audio.Data, audio.MIME)
	if err != nil {
		return fmt.Errorf("matrix audio upload: %w", err)
	}

	content := event.MessageEventContent{
		MsgType: event.MsgAudio,
		Body:    "voice reply",
		URL:     upload.ContentURI.CUString(),
		Info: &event.FileInfo{
			MimeType: audio.MIME,
			Size:     len(audio.Data),
		},
	}
	if ref.MessageID != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(ref.MessageID)},
		}
	}

	_, err = c.client.SendMessageEvent(ctx, id.RoomID(ref.ChatID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("matrix audio send: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the Matrix channel.
func (c *Channel) Stop() error {
	if c.client != nil {
		c.client.StopSync()
	}
	return nil
}

// --- Event Handlers ---

func (c *Channel) onMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == c.client.UserID {
		return
	}
	if evt.Timestamp < c.startTime {
		return
	}
	if !c.isAllowed(evt.Sender) {
		return
	}

	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}

	msg := channel.Message{
		Source:    "matrix",
		SenderID:  string(evt.Sender),
		ChatID:    string(evt.RoomID),
		Content:   msgContent.Body,
		Timestamp: evt.Timestamp,
	}

	if msgContent.MsgType == event.MsgAudio {
		text, err := c.transcribeAudio(ctx, msgContent)
		if err != nil {
			slog.Warn("matrix voice transcription failed", "room", evt.RoomID, "error", err)
			c.SendText(ctx, string(evt.RoomID), "Sorry, I couldn't understand that voice message. Could you type it instead?")
			return
		}
		msg.Content = text
		msg.IsVoice = true
	}

	if msg.Content == "" {
		return
	}

	slog.Info("matrix message received",
		"sender", evt.Sender,
		"room", evt.RoomID,
		"voice", msg.IsVoice,
		"content", truncate(msg.Content, 100),
	)

	if err := c.handler(ctx, msg); err != nil {
		slog.Error("message handler error", "error", err)
	}
}

func (c *Channel) transcribeAudio(ctx context.Context, msgContent *event.MessageEventContent) (string, error) {
	if c.transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}

	uri, err := msgContent.URL.Parse()
	if err != nil {
		return "", fmt.Errorf("parse audio uri: %w", err)
	}
	data, err := c.client.DownloadBytes(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}

	mimeType := "audio/ogg"
	if msgContent.Info != nil && msgContent.Info.MimeType != "" {
		mimeType = msgContent.Info.MimeType
	}
	return c.transcriber.Transcribe(ctx, data, mimeType, "")
}

func (c *Channel) onMemberEvent(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != string(c.client.UserID) {
		return
	}

	memberContent := evt.Content.AsMember()
	if memberContent == nil || memberContent.Membership != event.MembershipInvite {
		return
	}

	if !c.isAllowed(evt.Sender) {
		slog.Warn("rejecting invite from unauthorized user", "sender", evt.Sender)
		return
	}

	slog.Info("accepting room invite", "room", evt.RoomID, "from", evt.Sender)
	_, err := c.client.JoinRoomByID(ctx, evt.RoomID)
	if err != nil {
		slog.Error("failed to join room", "room", evt.RoomID, "error", err)
	}
}

// --- Credentials ---

func (c *Channel) loadCredentials() error {
	data, err := os.ReadFile(c.credFile)
	if err != nil {
		return err
	}
	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return err
	}
	c.client.AccessToken = creds.AccessToken
	c.client.UserID = id.UserID(creds.UserID)
	c.client.DeviceID = id.DeviceID(creds.DeviceID)
	return nil
}

func (c *Channel) saveCredentials(creds credentials) {
	data, _ := json.MarshalIndent(creds, "", "  ")
	os.WriteFile(c.credFile, data, 0o600)
}

// --- Helpers ---

func (c *Channel) isAllowed(sender id.UserID) bool {
	if len(c.config.AllowedUsers) == 0 || c.config.AllowedUsers[0] == "" {
		return true
	}
	for _, allowed := range c.config.AllowedUsers {
		if string(sender) == allowed {
			return true
		}
	}
	return false
}

func splitMessage(s string, maxLen int) []string {
	var chunks []string
	for len(s) > maxLen {
		cut := maxLen
		for i := maxLen; i > maxLen/2; i-- {
			if s[i-1] == '\n' {
				cut = i
				break
			}
		}
		// The hard cut is a byte offset; back it up so multi-byte runes
		// stay whole and every chunk is valid UTF-8.
		for cut > 1 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	if len(s) > 0 {
		chunks = append(chunks, s)
	}
	return chunks
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

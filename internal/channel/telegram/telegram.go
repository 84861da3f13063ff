// Package telegram implements the Telegram channel for Selam using
// long-polled bot updates. Voice notes are transcribed at the boundary so
// the rest of the pipeline only ever sees text.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/selam-labs/selam/internal/speech"
	"github.com/selam-labs/selam/pkg/channel"
)

// Telegram caps messages at 4096 chars; leave headroom for chunk prefixes.
const maxMessageLen = 4000

// Voice notes longer than this are rejected rather than transcribed.
const maxVoiceBytes = 20 * 1024 * 1024

// Config holds Telegram channel configuration.
type Config struct {
	Token        string
	PollTimeout  int // seconds, defaults to 60
	AllowedUsers []string
}

// Channel implements channel.Channel for Telegram.
type Channel struct {
	config      Config
	bot         *tgbotapi.BotAPI
	transcriber speech.Transcriber
	http        *http.Client
}

// New creates a Telegram channel. transcriber may be nil, in which case
// voice notes get a polite refusal instead of a transcript.
func New(cfg Config, transcriber speech.Transcriber) *Channel {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}
	return &Channel{
		config:      cfg,
		transcriber: transcriber,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Channel) Name() string { return "telegram" }

// Start connects the bot and long-polls updates until ctx is cancelled.
func (c *Channel) Start(ctx context.Context, handler channel.MessageHandler) error {
	bot, err := tgbotapi.NewBotAPI(c.config.Token)
	if err != nil {
		return fmt.Errorf("telegram connect: %w", err)
	}
	c.bot = bot
	slog.Info("telegram channel ready", "bot", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.config.PollTimeout
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			c.onMessage(ctx, update.Message, handler)
		}
	}
}

func (c *Channel) Stop() error {
	if c.bot != nil {
		c.bot.StopReceivingUpdates()
	}
	return nil
}

func (c *Channel) onMessage(ctx context.Context, m *tgbotapi.Message, handler channel.MessageHandler) {
	sender := strconv.FormatInt(m.From.ID, 10)
	if !c.isAllowed(sender) {
		return
	}

	msg := channel.Message{
		Source:    "telegram",
		SenderID:  sender,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		Content:   m.Text,
		Timestamp: int64(m.Date) * 1000,
	}

	if m.Voice != nil {
		text, err := c.transcribeVoice(ctx, m.Voice)
		if err != nil {
			slog.Warn("voice transcription failed", "chat", msg.ChatID, "error", err)
			c.SendText(ctx, msg.ChatID, "Sorry, I couldn't understand that voice note. Could you type it instead?")
			return
		}
		msg.Content = text
		msg.IsVoice = true
	}

	if msg.Content == "" {
		return
	}

	slog.Info("telegram message received",
		"sender", sender, "chat", msg.ChatID, "voice", msg.IsVoice, "len", len(msg.Content))

	if err := handler(ctx, msg); err != nil {
		slog.Error("telegram handler error", "chat", msg.ChatID, "error", err)
	}
}

func (c *Channel) transcribeVoice(ctx context.Context, v *tgbotapi.Voice) (string, error) {
	if c.transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}

	url, err := c.bot.GetFileDirectURL(v.FileID)
	if err != nil {
		return "", fmt.Errorf("resolve voice file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build voice download: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download voice: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download voice: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVoiceBytes))
	if err != nil {
		return "", fmt.Errorf("read voice: %w", err)
	}

	mimeType := v.MimeType
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	return c.transcriber.Transcribe(ctx, data, mimeType, "")
}

// SendText sends the reply, splitting long texts into numbered chunks, and
// returns the handle of the last chunk so audio threads beneath the end.
func (c *Channel) SendText(ctx context.Context, chatID, text string) (channel.TextRef, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return channel.TextRef{}, fmt.Errorf("bad telegram chat id %q: %w", chatID, err)
	}

	chunks := splitMessage(text, maxMessageLen)
	var last tgbotapi.Message
	for i, chunk := range chunks {
		if len(chunks) > 1 {
			chunk = fmt.Sprintf("[%d/%d] %s", i+1, len(chunks), chunk)
		}
		last, err = c.bot.Send(tgbotapi.NewMessage(id, chunk))
		if err != nil {
			return channel.TextRef{}, fmt.Errorf("telegram send: %w", err)
		}
	}

	return channel.TextRef{
		Channel:   "telegram",
		ChatID:    chatID,
		MessageID: strconv.Itoa(last.MessageID),
	}, nil
}

// SendAudio sends rendered speech as a voice note replying to the text.
func (c *Channel) SendAudio(ctx context.Context, ref channel.TextRef, audio channel.Audio) error {
	id, err := strconv.ParseInt(ref.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", ref.ChatID, err)
	}

	voice := tgbotapi.NewVoice(id, tgbotapi.FileBytes{Name: "reply.ogg", Bytes: audio.Data})
	if audio.Duration > 0 {
		voice.Duration = audio.Duration
	}
	if msgID, err := strconv.Atoi(ref.MessageID); err == nil {
		voice.ReplyToMessageID = msgID
	}

	if _, err := c.bot.Send(voice); err != nil {
		return fmt.Errorf("telegram voice send: %w", err)
	}
	return nil
}

func (c *Channel) isAllowed(sender string) bool {
	if len(c.config.AllowedUsers) == 0 || c.config.AllowedUsers[0] == "" {
		return true
	}
	for _, allowed := range c.config.AllowedUsers {
		if sender == allowed {
			return true
		}
	}
	return false
}

// splitMessage breaks text into chunks at newline boundaries where
// possible so lists survive splitting intact.
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

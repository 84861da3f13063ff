// Package speech wraps the speech-to-text and text-to-speech collaborators
// and the text preprocessing between a chat reply and speakable audio.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// Transcriber converts caller audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, langHint string) (string, error)
}

// Audio is a rendered speech clip.
type Audio struct {
	Data     []byte
	MIME     string
	Duration int // seconds, 0 if unknown
}

// Renderer converts text to a speech clip in the given language.
type Renderer interface {
	Render(ctx context.Context, text, language string) (*Audio, error)
}

// HTTPSpeech talks to the platform's speech service: POST /v1/transcribe
// (multipart audio) and POST /v1/render (JSON in, audio bytes out).
type HTTPSpeech struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPSpeech creates a speech-service client.
func NewHTTPSpeech(baseURL, token string, timeout time.Duration) *HTTPSpeech {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSpeech{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSpeech) Transcribe(ctx context.Context, audio []byte, mimeType, langHint string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "voice")
	if err != nil {
		return "", fmt.Errorf("build transcribe form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write transcribe form: %w", err)
	}
	if langHint != "" {
		w.WriteField("language", langHint)
	}
	if mimeType != "" {
		w.WriteField("mime_type", mimeType)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/transcribe", &buf)
	if err != nil {
		return "", fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe HTTP %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse transcribe response: %w", err)
	}
	return out.Text, nil
}

func (s *HTTPSpeech) Render(ctx context.Context, text, language string) (*Audio, error) {
	body, err := json.Marshal(map[string]string{
		"text":     text,
		"language": language,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/render", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render HTTP %d", resp.StatusCode)
	}

	// 10MB guard: voice replies are short clips.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read render response: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/ogg"
	}

	slog.Debug("speech rendered",
		"language", language,
		"text_len", len(text),
		"audio_bytes", len(data),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &Audio{Data: data, MIME: mimeType}, nil
}

// Package delivery sends replies over a channel: text immediately, audio
// rendered in the background and threaded to the text once ready. Audio is
// an enhancement: no audio failure may delay or fail the text path.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/selam-labs/selam/internal/metrics"
	"github.com/selam-labs/selam/internal/platform"
	"github.com/selam-labs/selam/internal/speech"
	"github.com/selam-labs/selam/pkg/channel"
)

// DefaultRenderTimeout bounds one background render plus its audio send.
const DefaultRenderTimeout = 45 * time.Second

// Request carries one reply to deliver.
type Request struct {
	ChatID string
	Text   string

	// Voice asks for an audio rendition alongside the text.
	Voice bool

	// Language is the explicit reply language, "" to fall back to the
	// caller's stored preference and then script detection.
	Language string

	// UserID is used to look up the stored language preference.
	UserID string
}

// Deliverer owns the dual-channel send path.
type Deliverer struct {
	renderer      speech.Renderer
	store         platform.Store
	renderTimeout time.Duration

	// notify, when set, is called after each background render job
	// finishes. Tests use it to observe completion.
	notify func(jobID string, err error)
}

// New creates a Deliverer. renderer may be nil, in which case voice
// requests degrade to text-only.
func New(renderer speech.Renderer, store platform.Store, renderTimeout time.Duration) *Deliverer {
	if renderTimeout <= 0 {
		renderTimeout = DefaultRenderTimeout
	}
	return &Deliverer{renderer: renderer, store: store, renderTimeout: renderTimeout}
}

// OnRenderDone registers a completion callback for background render jobs.
func (d *Deliverer) OnRenderDone(fn func(jobID string, err error)) {
	d.notify = fn
}

// Deliver sends the text reply and returns its handle as soon as the text
// send completes. When audio is wanted and a renderer is configured, it
// spawns a render job that threads the clip to the returned handle; the
// job's outcome never propagates back to the caller.
func (d *Deliverer) Deliver(ctx context.Context, sender channel.Sender, req Request) (channel.TextRef, error) {
	ref, err := sender.SendText(ctx, req.ChatID, req.Text)
	if err != nil {
		return channel.TextRef{}, err
	}

	if !req.Voice || d.renderer == nil {
		return ref, nil
	}

	speakable := speech.Speakable(req.Text)
	if speakable == "" {
		slog.Debug("reply has no speakable content, skipping render", "chat", req.ChatID)
		return ref, nil
	}

	lang := d.resolveLanguage(ctx, req, speakable)
	jobID := uuid.NewString()

	metrics.RenderInFlight.Inc()
	go d.renderAndSend(sender, ref, jobID, speakable, lang)

	return ref, nil
}

// resolveLanguage runs the heuristic over the speakable text, not the raw
// reply: URLs and markup would skew the script detection toward Latin.
func (d *Deliverer) resolveLanguage(ctx context.Context, req Request, speakable string) string {
	pref := ""
	if d.store != nil && req.UserID != "" {
		// Preference lookup failure is not worth failing delivery over.
		if p, err := d.store.UserLanguage(ctx, req.UserID); err == nil {
			pref = p
		}
	}
	return speech.ResolveLanguage(req.Language, pref, speakable)
}

// renderAndSend runs detached from the request: the text is already
// delivered, so it uses its own context and swallows every failure.
func (d *Deliverer) renderAndSend(sender channel.Sender, ref channel.TextRef, jobID, text, lang string) {
	defer metrics.RenderInFlight.Dec()

	var err error
	defer func() {
		if r := recover(); r != nil {
			slog.Error("render job panicked", "job", jobID, "panic", r)
			metrics.RenderJobs.WithLabelValues("panic").Inc()
			if d.notify != nil {
				d.notify(jobID, nil)
			}
			return
		}
		if d.notify != nil {
			d.notify(jobID, err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.renderTimeout)
	defer cancel()

	start := time.Now()
	audio, err := d.renderer.Render(ctx, text, lang)
	if err != nil {
		slog.Warn("audio render failed, text already delivered",
			"job", jobID, "chat", ref.ChatID, "language", lang, "error", err)
		metrics.RenderJobs.WithLabelValues("render_error").Inc()
		return
	}

	err = sender.SendAudio(ctx, ref, channel.Audio{
		Data:     audio.Data,
		MIME:     audio.MIME,
		Duration: audio.Duration,
	})
	if err != nil {
		slog.Warn("audio send failed, text already delivered",
			"job", jobID, "chat", ref.ChatID, "error", err)
		metrics.RenderJobs.WithLabelValues("send_error").Inc()
		return
	}

	metrics.RenderJobs.WithLabelValues("ok").Inc()
	slog.Debug("audio delivered",
		"job", jobID, "chat", ref.ChatID, "language", lang,
		"elapsed", time.Since(start).Round(time.Millisecond))
}

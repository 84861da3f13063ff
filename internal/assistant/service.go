// Package assistant wires the orchestration core to its front ends: the
// chat channels and the HTTP API on the way in, the dual-channel deliverer
// on the way out.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/selam-labs/selam/internal/agent"
	"github.com/selam-labs/selam/internal/delivery"
	"github.com/selam-labs/selam/internal/fallback"
	"github.com/selam-labs/selam/internal/metrics"
	"github.com/selam-labs/selam/internal/platform"
	"github.com/selam-labs/selam/internal/speech"
	"github.com/selam-labs/selam/pkg/channel"
)

// Outbound is one reply, whatever produced it. Text is never empty.
// There is no audio_url: the HTTP surface is text-only, and on chat
// channels audio arrives as a follow-up message threaded to the text.
type Outbound struct {
	ConversationID string         `json:"conversation_id"`
	Text           string         `json:"response_text"`
	Data           map[string]any `json:"structured_data,omitempty"`
	ToolsUsed      []string       `json:"tools_used,omitempty"`
	Source         string         `json:"response_source"` // "agent" or "fallback"
}

// Service is the assembled assistant.
type Service struct {
	cfg       *Config
	orch      *agent.Orchestrator
	fallback  *fallback.Router
	deliverer *delivery.Deliverer
	store     platform.Store
	channels  []channel.Channel

	transcriber speech.Transcriber
	httpSrv     *http.Server
}

// New assembles a Service from already-constructed parts. orch may be nil
// (no brain configured), in which case every request takes the fallback
// path. fb must not be nil: it is the availability floor.
func New(cfg *Config, orch *agent.Orchestrator, fb *fallback.Router, del *delivery.Deliverer, store platform.Store, transcriber speech.Transcriber, channels []channel.Channel) *Service {
	return &Service{
		cfg:         cfg,
		orch:        orch,
		fallback:    fb,
		deliverer:   del,
		store:       store,
		transcriber: transcriber,
		channels:    channels,
	}
}

// HandleText answers one utterance: orchestrator first, deterministic
// fallback when the orchestrator cannot run. It always returns a reply.
func (s *Service) HandleText(ctx context.Context, source string, caller platform.Caller, convID, text, pageContext string) Outbound {
	if convID == "" {
		convID = uuid.NewString()
	}
	if caller.Language == "" && s.store != nil {
		if lang, err := s.store.UserLanguage(ctx, caller.UserID); err == nil {
			caller.Language = lang
		}
	}

	start := time.Now()
	out := s.answer(ctx, caller, convID, text, pageContext)
	metrics.MessagesTotal.WithLabelValues(source, out.Source).Inc()

	slog.Info("message handled",
		"source", source,
		"user", caller.UserID,
		"conversation", convID,
		"response_source", out.Source,
		"tools", len(out.ToolsUsed),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out
}

func (s *Service) answer(ctx context.Context, caller platform.Caller, convID, text, pageContext string) (out Outbound) {
	// Last resort. The deterministic router is built never to fail, but a
	// panic anywhere below must still produce a reply.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("answer pipeline panicked", "user", caller.UserID, "conversation", convID, "panic", r)
			out = Outbound{
				ConversationID: convID,
				Text:           "Something went wrong on our side. Please try again in a moment.",
				Source:         "fallback",
			}
		}
	}()

	if s.orch != nil {
		result, err := s.runAgent(ctx, agent.Request{
			Caller:         caller,
			ConversationID: convID,
			Text:           text,
			Context:        pageContext,
		})
		if err == nil {
			return Outbound{
				ConversationID: convID,
				Text:           result.Text,
				Data:           result.Data,
				ToolsUsed:      result.ToolsUsed,
				Source:         "agent",
			}
		}
		slog.Warn("brain unavailable, answering deterministically",
			"user", caller.UserID, "conversation", convID, "error", err)
	}

	resp := s.fallback.Respond(ctx, caller, text)
	return Outbound{
		ConversationID: convID,
		Text:           resp.Text,
		Data:           resp.Data,
		ToolsUsed:      resp.ToolsUsed,
		Source:         "fallback",
	}
}

// runAgent converts an orchestrator panic into an error so control still
// reaches the deterministic fallback instead of the generic last resort.
func (s *Service) runAgent(ctx context.Context, req agent.Request) (result *agent.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator panic: %v", r)
		}
	}()
	return s.orch.Run(ctx, req)
}

// channelHandler binds a channel's sender into a MessageHandler so replies
// go back out the way they came in.
func (s *Service) channelHandler(ch channel.Channel) channel.MessageHandler {
	return func(ctx context.Context, msg channel.Message) error {
		caller := platform.Caller{
			UserID:   msg.SenderID,
			Role:     "donor",
			Language: msg.Language,
		}

		out := s.HandleText(ctx, msg.Source, caller, msg.ConversationID, msg.Content, msg.Context)

		_, err := s.deliverer.Deliver(ctx, ch, delivery.Request{
			ChatID:   msg.ChatID,
			Text:     out.Text,
			Voice:    msg.IsVoice,
			Language: msg.Language,
			UserID:   msg.SenderID,
		})
		if err != nil {
			return fmt.Errorf("deliver reply: %w", err)
		}
		return nil
	}
}

// Run starts the channels and the HTTP front end, then blocks until ctx is
// cancelled. A channel that stops with an error does not take the rest of
// the assistant down.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, ch := range s.channels {
		wg.Add(1)
		go func(ch channel.Channel) {
			defer wg.Done()
			slog.Info("starting channel", "channel", ch.Name())
			if err := ch.Start(ctx, s.channelHandler(ch)); err != nil {
				slog.Error("channel stopped", "channel", ch.Name(), "error", err)
			}
		}(ch)
	}

	s.httpSrv = &http.Server{
		Addr:    s.cfg.HTTP.Addr,
		Handler: s.routes(),
	}
	httpErr := make(chan error, 1)
	go func() {
		slog.Info("http front end listening", "addr", s.cfg.HTTP.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.httpSrv.Shutdown(shutdownCtx)

	for _, ch := range s.channels {
		if err := ch.Stop(); err != nil {
			slog.Warn("channel stop failed", "channel", ch.Name(), "error", err)
		}
	}
	wg.Wait()

	if s.store != nil {
		s.store.Close()
	}
	return nil
}

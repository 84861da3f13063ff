package assistant

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/selam-labs/selam/internal/platform"
)

// Voice uploads above this are rejected outright.
const maxUploadBytes = 20 * 1024 * 1024

// messageRequest is the POST /v1/message body.
type messageRequest struct {
	UserID         string `json:"user_id"`
	Role           string `json:"role,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
	Language       string `json:"language,omitempty"`
	Context        string `json:"context,omitempty"`
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/message", s.auth(s.serveMessage))
	mux.HandleFunc("POST /v1/voice", s.auth(s.serveVoice))
	mux.HandleFunc("GET /health", s.serveHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// auth enforces the bearer token when one is configured.
func (s *Service) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.HTTP.APIToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != s.cfg.HTTP.APIToken {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// serveMessage answers a text message. The HTTP surface is text-only;
// audio delivery belongs to the chat channels.
func (s *Service) serveMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Text == "" {
		http.Error(w, `{"error":"user_id and text are required"}`, http.StatusBadRequest)
		return
	}

	out := s.HandleText(r.Context(), "http", s.callerFrom(req), req.ConversationID, req.Text, req.Context)
	writeJSON(w, http.StatusOK, out)
}

// serveVoice transcribes an uploaded clip, answers it, and returns the
// transcript alongside the text reply.
func (s *Service) serveVoice(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		http.Error(w, `{"error":"voice is not enabled"}`, http.StatusNotImplemented)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, `{"error":"invalid multipart body"}`, http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, `{"error":"audio file is required"}`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		http.Error(w, `{"error":"failed to read audio"}`, http.StatusBadRequest)
		return
	}

	req := messageRequest{
		UserID:         r.FormValue("user_id"),
		Role:           r.FormValue("role"),
		ConversationID: r.FormValue("conversation_id"),
		Language:       r.FormValue("language"),
		Context:        r.FormValue("context"),
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
		return
	}

	text, err := s.transcriber.Transcribe(r.Context(), data, header.Header.Get("Content-Type"), req.Language)
	if err != nil {
		slog.Warn("http voice transcription failed", "user", req.UserID, "error", err)
		http.Error(w, `{"error":"transcription failed"}`, http.StatusBadGateway)
		return
	}
	if text == "" {
		http.Error(w, `{"error":"no speech detected"}`, http.StatusUnprocessableEntity)
		return
	}

	out := s.HandleText(r.Context(), "http", s.callerFrom(req), req.ConversationID, text, req.Context)
	writeJSON(w, http.StatusOK, struct {
		Transcript string `json:"transcript"`
		Outbound
	}{Transcript: text, Outbound: out})
}

func (s *Service) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "name": s.cfg.Name})
}

func (s *Service) callerFrom(req messageRequest) platform.Caller {
	role := req.Role
	if role == "" {
		role = "donor"
	}
	return platform.Caller{UserID: req.UserID, Role: role, Language: req.Language}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

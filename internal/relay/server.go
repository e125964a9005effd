package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/radiosilence/anthropic-play/internal/llm"
)

// MaxRequestBodySize bounds the send endpoint's request body.
const MaxRequestBodySize = 1 << 20

// channelStreamTimeout bounds a detached channel-mode provider call, since no
// client connection exists to cancel it.
const channelStreamTimeout = 5 * time.Minute

// Server relays chat conversations to a streaming LLM provider and re-frames
// provider events as newline-delimited JSON stream events. It holds no
// per-conversation state: each request is independent.
type Server struct {
	provider llm.Provider
	registry *ChannelRegistry
	logger   *slog.Logger
	version  string
}

func NewServer(provider llm.Provider, registry *ChannelRegistry, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		provider: provider,
		registry: registry,
		logger:   logger,
		version:  version,
	}
}

// Handler returns the http.Handler for the relay endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/chat/subscribe/{channel}", s.handleSubscribe)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := ValidateSchema(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages := Sanitize(req.Messages)
	if err := ValidateConversation(messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.ChannelID != "" || r.URL.Query().Get("mode") == "channel" {
		s.serveChannel(w, req.ChannelID, messages)
		return
	}
	s.serveDirect(w, r, messages)
}

// serveDirect streams frames straight onto the response body. The provider
// call inherits the request context, so a dropped client aborts it.
func (s *Server) serveDirect(w http.ResponseWriter, r *http.Request, messages []llm.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.relay(r.Context(), messages, func(event StreamEvent) error {
		if err := WriteFrame(w, event); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}

// serveChannel acks immediately and runs the provider call detached,
// publishing frames to the channel registry for later subscribers.
func (s *Server) serveChannel(w http.ResponseWriter, channelID string, messages []llm.Message) {
	id, err := s.registry.Claim(channelID)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), channelStreamTimeout)
		defer cancel()
		s.relay(ctx, messages, func(event StreamEvent) error {
			s.registry.Publish(id, event)
			return nil
		})
	}()

	writeJSON(w, http.StatusOK, ChannelAck{ChannelID: id})
}

// relay opens exactly one provider stream and forwards its events through
// emit: zero or more delta frames, then exactly one complete or error frame.
// Nothing is emitted after a terminal frame.
func (s *Server) relay(ctx context.Context, messages []llm.Message, emit func(StreamEvent) error) {
	stream, err := s.provider.Stream(ctx, llm.Request{Messages: messages})
	if err != nil {
		s.logger.Error("provider call failed", "provider", s.provider.Name(), "error", err)
		_ = emit(Error(err.Error()))
		return
	}
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			// Provider stream ended without a terminal event; surface it so
			// the client is not left waiting.
			_ = emit(Error("provider stream ended unexpectedly"))
			return
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.logger.Debug("client disconnected mid-stream")
				return
			}
			s.logger.Error("provider stream failed", "provider", s.provider.Name(), "error", err)
			_ = emit(Error(err.Error()))
			return
		}

		switch event.Type {
		case llm.EventTextDelta:
			if emit(Delta(event.Text)) != nil {
				return
			}
		case llm.EventDone:
			_ = emit(Complete(event.Message))
			return
		case llm.EventError:
			message := "provider error"
			if event.Err != nil {
				message = event.Err.Error()
			}
			s.logger.Error("provider stream failed", "provider", s.provider.Name(), "error", message)
			_ = emit(Error(message))
			return
		}
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.registry.Subscribe(r.PathValue("channel"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown channel")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for {
		event, err := sub.Next(r.Context())
		if err != nil {
			return
		}
		if WriteFrame(w, event) != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.version,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/middleware"
	"github.com/raakeshmj/gobill/internal/webhook"
)

type webhookAck struct {
	Received    bool   `json:"received"`
	EventType   string `json:"event_type"`
	Platform    string `json:"platform"`
	ProcessedAt string `json:"processed_at"`
}

// handleWebhook verifies the raw body before decoding it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: body exceeds %d bytes", webhook.ErrInvalidPayload, tooLarge.Limit)
		}
		writeWebhookError(w, r, err)
		return
	}

	platform := r.Header.Get(webhook.PlatformHeader)
	if platform == "" {
		platform = "unknown"
	}

	err = s.deps.Verifier.Verify(body, r.Header.Get(webhook.SignatureHeader), r.Header.Get(webhook.TimestampHeader))
	if err != nil {
		log.Warn().Err(err).Str("platform", platform).Msg("rejected webhook")
		writeWebhookError(w, r, err)
		return
	}

	ev, err := webhook.ParseEvent(body)
	if err != nil {
		writeWebhookError(w, r, err)
		return
	}
	if err := s.deps.Dispatcher.Dispatch(r.Context(), platform, ev); err != nil {
		writeWebhookError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, webhookAck{
		Received:    true,
		EventType:   ev.Type,
		Platform:    platform,
		ProcessedAt: s.deps.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleWebhookHealth(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":           "healthy",
		"timestamp":        s.deps.Now().UTC().Format(time.RFC3339Nano),
		"webhook_endpoint": "/api/webhooks",
	})
}

package audit

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogEntry defines the structured audit log
type LogEntry struct {
	Timestamp time.Time
	RequestID string
	ClientID  string // "anonymous" for unauthenticated calls
	Action    string // method + path
	Resource  string // path
	Status    int
	Duration  time.Duration
	Metadata  map[string]any
}

// Logger interface
type Logger interface {
	Log(entry LogEntry)
}

const redacted = "***REDACTED***"

var sensitiveKeys = []string{"api_key", "password", "token", "secret", "authorization", "signature"}

// ZerologLogger writes one structured event per entry.
type ZerologLogger struct {
	logger zerolog.Logger
}

func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: l.With().Str("component", "audit").Logger()}
}

// NewJSONLogger writes JSON lines to w.
func NewJSONLogger(w io.Writer) *ZerologLogger {
	return NewZerologLogger(zerolog.New(w))
}

func (l *ZerologLogger) Log(entry LogEntry) {
	ev := l.logger.Info()
	if entry.Status >= 500 {
		ev = l.logger.Error()
	} else if entry.Status >= 400 {
		ev = l.logger.Warn()
	}

	ev = ev.Time("timestamp", entry.Timestamp).
		Str("request_id", entry.RequestID).
		Str("client_id", entry.ClientID).
		Str("action", entry.Action).
		Str("resource", entry.Resource).
		Int("status", entry.Status).
		Dur("duration", entry.Duration)
	if len(entry.Metadata) > 0 {
		ev = ev.Interface("metadata", Redact(entry.Metadata))
	}
	ev.Msg("request")
}

// Redact returns a copy of m with sensitive values masked.
func Redact(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
		lowerK := strings.ToLower(k)
		for _, s := range sensitiveKeys {
			if strings.Contains(lowerK, s) {
				out[k] = redacted
				break
			}
		}
	}
	return out
}

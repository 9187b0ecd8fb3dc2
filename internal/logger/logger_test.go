package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if len(a) != 8 {
		t.Errorf("expected 8 chars, got %q", a)
	}
	if a == b {
		t.Errorf("expected distinct ids, got %q twice", a)
	}
}

func TestRequestIDContext(t *testing.T) {
	if id := RequestIDFromContext(context.Background()); id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
	ctx := WithRequestID(context.Background(), "abc123")
	if id := RequestIDFromContext(ctx); id != "abc123" {
		t.Errorf("expected abc123, got %q", id)
	}
}

func TestForRequestTagsLines(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	l := ForRequest(WithRequestID(context.Background(), "r1"))
	l.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["requestId"] != "r1" {
		t.Errorf("expected requestId r1, got %v", line["requestId"])
	}
}

func TestLogBodyTruncates(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(prevLevel)

	var buf bytes.Buffer
	l := zerolog.New(&buf)

	LogBody(l, "request_body", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing logged for an empty body, got %s", buf.String())
	}

	LogBody(l, "request_body", []byte(strings.Repeat("x", maxLoggedBody+50)))
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["truncated"] != true {
		t.Error("expected truncated flag")
	}
	if got := len(line["request_body"].(string)); got != maxLoggedBody {
		t.Errorf("expected %d logged bytes, got %d", maxLoggedBody, got)
	}
}

func TestSetupLevel(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	prev := log.Logger
	defer func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prev
	}()

	var buf bytes.Buffer
	Setup(Options{Level: "warn", Out: &buf})
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn, got %s", zerolog.GlobalLevel())
	}
	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("info line leaked at warn level: %s", buf.String())
	}

	Setup(Options{Level: "loud", Out: &buf})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected fallback to info, got %s", zerolog.GlobalLevel())
	}
}

// Package logger configures zerolog for the hexwar binaries and carries
// request IDs through contexts.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const (
	milliTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	callerWidth     = 30
	maxLoggedBody   = 1000
)

// Options controls Setup. The zero value logs at info to stdout.
type Options struct {
	Level      string    // zerolog level name
	File       string    // optional file that receives a copy of every line
	Out        io.Writer // defaults to os.Stdout
	TimeFormat string    // console timestamp layout
	Caller     bool      // annotate lines with file:line
}

// OptionsFromEnv reads LOG_LEVEL and LOG_FILE.
func OptionsFromEnv() Options {
	return Options{
		Level:  os.Getenv("LOG_LEVEL"),
		File:   os.Getenv("LOG_FILE"),
		Caller: true,
	}
}

// Init configures the global logger from the environment. Used by the server.
func Init() {
	Setup(OptionsFromEnv())
	log.Info().
		Str("level", zerolog.GlobalLevel().String()).
		Bool("dev", isDevelopmentMode()).
		Msg("Logger initialized")
}

// Setup installs a console logger on log.Logger and sets the global level.
// An unknown level falls back to info.
func Setup(opts Options) {
	zerolog.TimeFieldFormat = milliTimeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.CallerMarshalFunc = padCaller

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	tf := opts.TimeFormat
	if tf == "" {
		tf = milliTimeFormat
	}
	var w io.Writer = zerolog.ConsoleWriter{Out: out, TimeFormat: tf, NoColor: !useColor(out)}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			w = io.MultiWriter(w, f)
		}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if opts.Caller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

// padCaller renders file:line in a fixed-width column.
func padCaller(_ uintptr, file string, line int) string {
	path := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	if len(path) >= callerWidth {
		return path[len(path)-callerWidth:]
	}
	return path + strings.Repeat(" ", callerWidth-len(path))
}

func useColor(out io.Writer) bool {
	if isDevelopmentMode() {
		return true
	}
	f, ok := out.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func isDevelopmentMode() bool {
	return os.Getenv("DEV") == "true" || os.Getenv("DEV_MODE") == "true"
}

// Get returns the global logger instance.
func Get() zerolog.Logger {
	return log.Logger
}

// NewRequestID returns 8 random hex characters.
func NewRequestID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("req%05d", time.Now().UnixNano()%100000)
	}
	return hex.EncodeToString(b[:])
}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from context, or empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ForRequest returns the global logger tagged with the context's request ID.
func ForRequest(ctx context.Context) zerolog.Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return log.Logger
	}
	return log.Logger.With().Str("requestId", id).Logger()
}

// LogBody logs a request or response body at debug level under field,
// truncated to maxLoggedBody bytes.
func LogBody(l zerolog.Logger, field string, body []byte) {
	if len(body) == 0 {
		return
	}
	e := l.Debug()
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
		e = e.Bool("truncated", true)
	}
	e.Str(field, string(body)).Msg("Body")
}

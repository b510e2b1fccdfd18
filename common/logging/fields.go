package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across the streamer.
const (
	FieldService  = "service"
	FieldSession  = "session_id"
	FieldAttempt  = "attempt"
	FieldMode     = "mode"
	FieldTargets  = "targets"
	FieldProvider = "provider"
	FieldQueue    = "queue"
	FieldBackend  = "backend"
	FieldEventID  = "event_id"
	FieldAuthor   = "author"
	FieldStatus   = "status"
	FieldSilence  = "silence"
	FieldDuration = "duration_ms"
	FieldError    = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Session returns a slog attribute for a pipeline session ID.
func Session(id string) slog.Attr {
	return slog.String(FieldSession, id)
}

// Attempt returns a slog attribute for the restart attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Mode returns a slog attribute for the stream mode.
func Mode(mode string) slog.Attr {
	return slog.String(FieldMode, mode)
}

// Targets returns a slog attribute for the number of track targets.
func Targets(n int) slog.Attr {
	return slog.Int(FieldTargets, n)
}

// Provider returns a slog attribute for the track provider name.
func Provider(name string) slog.Attr {
	return slog.String(FieldProvider, name)
}

// Queue returns a slog attribute for the sink queue name.
func Queue(name string) slog.Attr {
	return slog.String(FieldQueue, name)
}

// Backend returns a slog attribute for a pluggable backend name.
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

// EventID returns a slog attribute for an event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// Author returns a slog attribute for an event author in "screen_name/id" form.
func Author(screenName, id string) slog.Attr {
	return slog.String(FieldAuthor, screenName+"/"+id)
}

// Status returns a slog attribute for a feed status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Silence returns a slog attribute for the time since the last event.
func Silence(d time.Duration) slog.Attr {
	return slog.String(FieldSilence, d.Round(time.Millisecond).String())
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

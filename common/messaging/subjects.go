package messaging

import "strings"

// Subjects follow the pattern {domain}.{action}.{resource}.
const (
	// SubjectEventsPrefix prefixes every subject events are queued on.
	SubjectEventsPrefix = "streamer.events"
)

// EventSubject returns the subject for a named work queue.
// Example: streamer.events.tweets
func EventSubject(queue string) string {
	return SubjectEventsPrefix + "." + sanitizeToken(queue)
}

// sanitizeToken replaces characters NATS reserves in subject tokens.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

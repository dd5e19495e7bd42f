// Package notify delivers user-facing notices produced by the sync core.
//
// The core only depends on the Notifier interface; rendering (console, UI
// toast, test capture) is supplied by the caller. Wrappers in this package
// add the delivery policies the core relies on: de-duplication of repeated
// notifications and rate limiting of transient transport notices.
package notify

import "log/slog"

// Level classifies a notification for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Notification is one user-visible notice.
type Notification struct {
	// Key identifies the logical event for de-duplication, e.g.
	// "task_assigned:t1:u1". An empty key is never de-duplicated.
	Key   string
	Level Level
	Title string
	Body  string
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(Notification)

// Notify implements Notifier.
func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification. Useful as a default.
var Discard Notifier = Func(func(Notification) {})

// Logger adapts a slog.Logger to the Notifier interface, for headless runs.
func Logger(logger *slog.Logger) Notifier {
	return Func(func(n Notification) {
		logger.Info("notification",
			"level", n.Level,
			"title", n.Title,
			"body", n.Body,
		)
	})
}

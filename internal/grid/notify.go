package grid

import "sync"

// Severity classifies a user-facing notification.
type Severity string

// Notification severities, mirroring the transient snackbar levels the grid
// surfaces. No notification is fatal; the grid stays interactive after any.
const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification is one transient, dismissible user-facing message.
type Notification struct {
	Severity Severity
	Message  string
}

// Notifier receives grid notifications. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) { f(n) }

// NopNotifier discards all notifications.
var NopNotifier Notifier = NotifierFunc(func(Notification) {})

// RecordingNotifier retains notifications for inspection, primarily in tests.
type RecordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

// Notify implements Notifier.
func (r *RecordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

// Notifications returns a copy of everything recorded so far.
func (r *RecordingNotifier) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// BySeverity returns recorded notifications matching a severity.
func (r *RecordingNotifier) BySeverity(s Severity) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.notifications {
		if n.Severity == s {
			out = append(out, n)
		}
	}
	return out
}

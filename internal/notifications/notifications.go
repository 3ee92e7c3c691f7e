// Package notifications forwards execution and risk events to external
// channels. Delivery is best-effort and asynchronous, off the hot path.
package notifications

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified level and message
	SendAlert(level, message string) error
}

// Package notifications forwards operator alerts to a chat webhook.
//
// The kiosk raises an alert when the attendance store stays unreachable
// after retries. With no webhook configured a no-op alerter is returned so
// callers never branch on configuration.
package notifications

// Package notify contains [lovelace.Notifier] implementations.
//
// LogNotifier writes notifications to a structured logger and is meant for development.
// KafkaNotifier publishes each notification as a JSON message to a topic consumed by the mail
// delivery service.
package notify

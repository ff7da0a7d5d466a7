// Package events publishes scan lifecycle events to downstream consumers.
package events

import (
	"context"
	"time"
)

// Event types dispatched by the system.
const (
	EventScanCompleted     = "scan.completed"
	EventScanFailed        = "scan.failed"
	EventThreatDetected    = "threat.detected"
	EventExposureCritical  = "exposure.critical"
	EventDiscoveryComplete = "discovery.completed"
)

// Event is the message body published for every dispatch.
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Dispatcher delivers events. Delivery failures are logged, never returned,
// so a broken broker cannot fail a scan.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]string)
	Close() error
}

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Noop discards every event.
type Noop struct{}

// Dispatch implements Dispatcher.
func (Noop) Dispatch(context.Context, string, map[string]string) {}

// Close implements Dispatcher.
func (Noop) Close() error { return nil }

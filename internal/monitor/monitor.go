package monitor

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/duotale/duotale/internal/notification"
)

// LimitEvent represents the data sent when a watched limit is hit: a device
// running low on credits, or the artifact dir outgrowing its cap.
type LimitEvent struct {
	Kind     string
	DeviceID string
	Message  string
}

// EventBroker handles the subscription and broadcasting of limit events.
type EventBroker struct {
	subscribers []chan LimitEvent
	mu          sync.Mutex
}

var broker *EventBroker

func init() {
	broker = NewEventBroker()
	startLoggerSubscriber(broker)
	startWebhookSubscriber(broker)
}

// NewEventBroker initializes a new EventBroker.
func NewEventBroker() *EventBroker {
	return &EventBroker{}
}

// Subscribe adds a new subscriber to the broker.
func (b *EventBroker) Subscribe() chan LimitEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan LimitEvent, 1) // Buffered channel
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Broadcast sends the event to all subscribers.
func (b *EventBroker) Broadcast(event LimitEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subscriber := range b.subscribers {
		// Non-blocking send with select
		select {
		case subscriber <- event:
		default:
			fmt.Println("Warning: subscriber channel is full. Event not sent.")
		}
	}
}

// NotifyLowCredits broadcasts a low-balance event for a device. The ledger
// calls this after a commit leaves the device under the configured
// threshold.
func NotifyLowCredits(deviceID string, balance int64) {
	broker.Broadcast(LimitEvent{
		Kind:     "credits.low",
		DeviceID: deviceID,
		Message:  fmt.Sprintf("device %s is down to %d credits", deviceID, balance),
	})
}

// CheckArtifactUsage walks the artifact dir and broadcasts an event when its
// total size exceeds limitBytes. A zero limit disables the check.
func CheckArtifactUsage(dir string, limitBytes int64) error {
	if limitBytes <= 0 {
		return nil
	}

	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if total > limitBytes {
		broker.Broadcast(LimitEvent{
			Kind:    "storage.limit",
			Message: fmt.Sprintf("artifact dir %s holds %d bytes, above the %d byte cap", dir, total, limitBytes),
		})
	}
	return nil
}

func startLoggerSubscriber(broker *EventBroker) {
	logSub := broker.Subscribe()
	go func() {
		for event := range logSub {
			log.Printf("Monitor: %s\n", event.Message)
		}
	}()
}

func startWebhookSubscriber(broker *EventBroker) {
	alertSub := broker.Subscribe()
	go func() {
		for event := range alertSub {
			if err := notification.WebhookEvent(event.Kind, event); err != nil {
				log.Printf("Monitor: webhook delivery failed: %v\n", err)
			}
		}
	}()
}

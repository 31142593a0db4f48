package ports

import (
	"context"
)

// Publisher delivers a payload to a topic on the messaging endpoint.
// Publish either completes delivery or returns an error; it never queues.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

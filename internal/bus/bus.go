package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Event is a fire-and-forget notification fanned out to subscribers, e.g. a
// completed sync run that downstream caches or dashboards may react to.
type Event struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

type Handler func(ctx context.Context, e Event)

type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(topic string, h Handler) (unsubscribe func(), err error)
	Close() error
}

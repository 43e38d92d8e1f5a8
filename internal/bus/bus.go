package bus

import (
	"fmt"

	"github.com/open-sustainability/heron/internal/domain"
)

// New creates an event bus based on configuration.
// "channel" returns an in-process bus, "nats" a distributed one.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

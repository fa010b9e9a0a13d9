package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchanges
const (
	ExchangeLocationFanout = "bus_location_fanout"
	ExchangeDriverTopic    = "bus_driver_topic"
)

// Routing patterns
const (
	RouteDriverEventPrefix = "driver." // driver.{event}.{bus_id}
)

func declareTopology(ch *amqp.Channel) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{ExchangeLocationFanout, "fanout"},
		{ExchangeDriverTopic, "topic"},
	}

	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	// queues and bindings are owned by the consumers; the tracker only
	// publishes
	return nil
}

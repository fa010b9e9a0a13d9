package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bus-tracker/internal/tracker/domain"
)

// Mirror republishes tracker events to the broker so consumers outside this
// process (dashboards, archival jobs) can follow along without a websocket
// session.
type Mirror struct {
	client   *Client
	producer string
}

func NewMirror(client *Client, producer string) *Mirror {
	return &Mirror{client: client, producer: producer}
}

type locationMessage struct {
	BusID     string    `json:"bus_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	SpeedKmh  float64   `json:"speed_kmh,omitempty"`
	Heading   float64   `json:"heading_degrees,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Producer  string    `json:"producer,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

type driverEventMessage struct {
	Event    string    `json:"event"`
	BusID    string    `json:"bus_id"`
	Producer string    `json:"producer,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// PublishLocation mirrors an accepted location update to the fanout exchange.
func (m *Mirror) PublishLocation(ctx context.Context, sample domain.VehicleLocationSample) error {
	body, err := json.Marshal(locationMessage{
		BusID:     sample.VehicleID,
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		SpeedKmh:  sample.SpeedKmh,
		Heading:   sample.HeadingDegrees,
		Timestamp: sample.Timestamp.UTC(),
		Producer:  m.producer,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return m.client.PublishMessage(ExchangeLocationFanout, "", body)
}

// PublishDriverEvent mirrors driver lifecycle events to the topic exchange.
func (m *Mirror) PublishDriverEvent(ctx context.Context, event, vehicleID string) error {
	body, err := json.Marshal(driverEventMessage{
		Event:    event,
		BusID:    vehicleID,
		Producer: m.producer,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	routingKey := fmt.Sprintf("%s%s.%s", RouteDriverEventPrefix, event, vehicleID)
	return m.client.PublishMessage(ExchangeDriverTopic, routingKey, body)
}

// Package telemetry ingests live vehicle positions from MQTT.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"autodrive/internal/config"
	"autodrive/internal/domain"
	"autodrive/internal/geo"
)

// ErrInvalidMessage is returned for telemetry that cannot be parsed.
var ErrInvalidMessage = errors.New("invalid telemetry message")

// PositionSink stores live vehicle positions.
type PositionSink interface {
	UpdateLocation(ctx context.Context, vehicleID string, p domain.Point, at time.Time) error
}

// PositionReport is the JSON payload published on vehicles/<id>/position.
type PositionReport struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"ts"` // Unix seconds; zero means now
}

// Subscriber forwards position reports to a PositionSink.
type Subscriber struct {
	client  mqtt.Client
	topic   string
	sink    PositionSink
	logger  logrus.FieldLogger
	timeout time.Duration
	now     func() time.Time
}

// NewClient creates an MQTT client for the configured broker.
func NewClient(cfg config.MQTTConfig) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second)
	return mqtt.NewClient(opts)
}

// NewSubscriber creates a new Subscriber.
func NewSubscriber(client mqtt.Client, topic string, sink PositionSink, logger logrus.FieldLogger) *Subscriber {
	return &Subscriber{
		client:  client,
		topic:   topic,
		sink:    sink,
		logger:  logger,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Start connects if needed and subscribes to the position topic.
func (s *Subscriber) Start() error {
	if !s.client.IsConnected() {
		if token := s.client.Connect(); token.WaitTimeout(s.timeout) && token.Error() != nil {
			return fmt.Errorf("mqtt connect: %w", token.Error())
		}
	}

	token := s.client.Subscribe(s.topic, 1, s.HandleMessage)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("mqtt subscribe %s: timed out", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", s.topic, err)
	}

	s.logger.WithField("topic", s.topic).Info("subscribed to vehicle telemetry")
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	s.client.Unsubscribe(s.topic).WaitTimeout(s.timeout)
	s.client.Disconnect(250)
}

// HandleMessage is the MQTT message callback.
func (s *Subscriber) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	vehicleID, report, err := ParsePosition(msg.Topic(), msg.Payload())
	if err != nil {
		s.logger.WithError(err).WithField("topic", msg.Topic()).Warn("dropping telemetry")
		return
	}

	at := s.now()
	if report.Timestamp > 0 {
		at = time.Unix(report.Timestamp, 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	p := domain.Point{Lat: report.Lat, Lng: report.Lng}
	if err := s.sink.UpdateLocation(ctx, vehicleID, p, at); err != nil {
		s.logger.WithError(err).WithField("vehicle_id", vehicleID).Error("failed to store vehicle position")
	}
}

// ParsePosition extracts the vehicle ID from a vehicles/<id>/position topic
// and decodes the payload.
func ParsePosition(topic string, payload []byte) (string, PositionReport, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "vehicles" || parts[1] == "" || parts[2] != "position" {
		return "", PositionReport{}, fmt.Errorf("%w: unexpected topic %q", ErrInvalidMessage, topic)
	}

	var report PositionReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return "", PositionReport{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if !geo.ValidPoint(domain.Point{Lat: report.Lat, Lng: report.Lng}) {
		return "", PositionReport{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidMessage)
	}

	return parts[1], report, nil
}

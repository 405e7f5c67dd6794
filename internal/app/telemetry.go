package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"autodrive/internal/config"
	"autodrive/internal/telemetry"
)

// StartTelemetry subscribes to vehicle position reports and feeds them into
// sink. It returns a stop function; with MQTT disabled it does nothing.
func StartTelemetry(cfg config.MQTTConfig, sink telemetry.PositionSink, logger logrus.FieldLogger) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	sub := telemetry.NewSubscriber(telemetry.NewClient(cfg), cfg.Topic, sink, logger)
	if err := sub.Start(); err != nil {
		return nil, fmt.Errorf("start telemetry: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"broker": cfg.BrokerURL,
		"topic":  cfg.Topic,
	}).Info("vehicle telemetry subscribed")
	return sub.Stop, nil
}

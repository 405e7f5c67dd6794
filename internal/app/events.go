package app

import (
	"github.com/sirupsen/logrus"

	"autodrive/internal/config"
	"autodrive/internal/events"
)

// NewPublisher returns the trip event publisher and a function that flushes
// and closes it.
func NewPublisher(cfg config.KafkaConfig, logger logrus.FieldLogger) (events.Publisher, func() error) {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("kafka disabled; trip events are logged only")
		return events.NewLogPublisher(logger), func() error { return nil }
	}

	writer := events.NewKafkaWriter(cfg.Brokers, cfg.Topic)
	logger.WithFields(logrus.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("publishing trip events to kafka")
	return events.NewKafkaPublisher(writer), writer.Close
}

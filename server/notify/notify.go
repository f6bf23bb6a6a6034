package notify

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/nakshatratalks/consult-engine/server/usecase"
)

// AMQPSink publishes engine notifications to a fanout exchange so any
// number of presentation services can subscribe. Publishing is
// fire-and-forget: failures are logged and never block a session.
type AMQPSink struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *logrus.Logger
}

func NewAMQPSink(amqpURL, exchange string, log *logrus.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPSink{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (s *AMQPSink) Notify(event usecase.NotificationEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.log.WithError(err).Error("failed to encode notification")
		return
	}
	err = s.channel.Publish(s.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"type":       event.Type,
			"session_id": event.SessionID,
		}).Warn("failed to publish notification")
	}
}

func (s *AMQPSink) Close() {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

// LogSink writes notifications to the structured log. Used when no
// broker is configured.
type LogSink struct {
	Log *logrus.Logger
}

func (s *LogSink) Notify(event usecase.NotificationEvent) {
	s.Log.WithFields(logrus.Fields{
		"type":        event.Type,
		"session_id":  event.SessionID,
		"customer_id": event.CustomerID,
		"advisor_id":  event.AdvisorID,
	}).Info(event.Message)
}

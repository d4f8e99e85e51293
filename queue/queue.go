package queue

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core/rental"
	"github.com/rs/zerolog/log"
	"github.com/sksmith/bunnyq"
	"github.com/streadway/amqp"
)

type transactionQueue struct {
	queue    *bunnyq.BunnyQ
	exchange string
}

// NewTransactionQueue publishes transaction lifecycle events to exchange.
func NewTransactionQueue(bq *bunnyq.BunnyQ, exchange string) rental.EventPublisher {
	return &transactionQueue{queue: bq, exchange: exchange}
}

func (q *transactionQueue) PublishTransactionEvent(ctx context.Context, event rental.TransactionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.WithMessage(err, "failed to serialize transaction event for queue")
	}
	if err = q.queue.Publish(ctx, q.exchange, body); err != nil {
		return errors.WithMessagef(err, "failed to publish %s event for transaction %d", event.Type, event.Transaction.ID)
	}
	return nil
}

// Notification is what the messaging gateway reads off the notification exchange and forwards over WhatsApp.
type Notification struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

type notificationQueue struct {
	queue    *bunnyq.BunnyQ
	exchange string
}

func NewNotificationQueue(bq *bunnyq.BunnyQ, exchange string) rental.Notifier {
	return &notificationQueue{queue: bq, exchange: exchange}
}

func (q *notificationQueue) Send(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(Notification{Phone: phone, Text: text})
	if err != nil {
		return errors.WithMessage(err, "failed to serialize notification for queue")
	}
	if err = q.queue.Publish(ctx, q.exchange, body); err != nil {
		return errors.WithMessage(err, "failed to send notification to queue")
	}
	return nil
}

type UnitQueue struct {
	queue       *bunnyq.BunnyQ
	unitQueue   string
	dltExchange string
}

func NewUnitQueue(bq *bunnyq.BunnyQ, unitQueue, dltExchange string) *UnitQueue {
	return &UnitQueue{queue: bq, unitQueue: unitQueue, dltExchange: dltExchange}
}

type UnitHandler interface {
	SaveUnit(ctx context.Context, unit rental.MotorUnit) (rental.MotorUnit, error)
}

// ConsumeUnits streams catalog updates into handler. Messages that cannot be read or saved go to the dead letter
// exchange.
func (u *UnitQueue) ConsumeUnits(ctx context.Context, handler UnitHandler) {
	u.queue.Stream(ctx, u.unitQueue, func(delivery amqp.Delivery) {
		if err := HandleUnitMessage(ctx, delivery.Body, handler); err != nil {
			log.Error().Err(err).Msg("error handling unit, writing to dlt")
			u.sendToDlt(ctx, delivery.Body)
		}
	}, bunnyq.StreamOpAutoAck)
}

func HandleUnitMessage(ctx context.Context, body []byte, handler UnitHandler) error {
	unit := rental.MotorUnit{}
	if err := json.Unmarshal(body, &unit); err != nil {
		return errors.WithMessage(err, "failed to unmarshal unit")
	}
	if _, err := handler.SaveUnit(ctx, unit); err != nil {
		return errors.WithMessagef(err, "failed to save unit %s", unit.PlateNumber)
	}
	return nil
}

func (u *UnitQueue) sendToDlt(ctx context.Context, data []byte) {
	err := u.queue.Publish(ctx, u.dltExchange, data)
	if err != nil {
		log.Error().Err(err).Msg("error writing to dlt")
	}
}

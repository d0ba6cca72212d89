package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange = "ecommerce.events"

	OrderPlacedRoutingKey     = "order.placed.v1"
	PaymentVerifiedRoutingKey = "payment.verified.v1"
	OrderExpiredRoutingKey    = "order.expired.v1"

	EventTypeOrderPlaced     = "OrderPlaced"
	EventTypePaymentVerified = "PaymentVerified"
	EventTypeOrderExpired    = "OrderExpired"

	orderPlacedSchema     = "ecommerce.order.placed.v1"
	paymentVerifiedSchema = "ecommerce.payment.verified.v1"
	orderExpiredSchema    = "ecommerce.order.expired.v1"

	defaultProducer = "checkout-service"
)

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}

// Dial connects to RabbitMQ at url.
func Dial(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

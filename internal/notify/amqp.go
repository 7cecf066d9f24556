package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/textproto"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// EmailBindingKey matches every email routing key.
const EmailBindingKey = "notification.email.#"

// AMQPSender publishes messages to a topic exchange for cmd/mailer to deliver.
type AMQPSender struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex // amqp.Channel is not safe for concurrent publishing
}

func NewAMQPSender(url, exchange string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSender{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.PublishWithContext(ctx, s.exchange, msg.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.BookingID + ":" + string(msg.Kind),
		Timestamp:    msg.CreatedAt,
		Body:         body,
	})
}

func (s *AMQPSender) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// AttemptsHeader counts how many times a message has already failed delivery.
const AttemptsHeader = "x-delivery-attempts"

// DefaultMaxDeliveries bounds redelivery of a message that keeps failing.
const DefaultMaxDeliveries = 5

// Consumer reads email messages from a durable queue bound to the exchange. Messages that
// cannot be delivered are dead-lettered to "<queue>.dead" through the "<exchange>.dlx" exchange.
type Consumer struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	exchange      string
	queue         string
	maxDeliveries int
	log           *zap.Logger
}

func NewConsumer(url, exchange, queue string, prefetch, maxDeliveries int, log *zap.Logger) (*Consumer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if maxDeliveries <= 0 {
		maxDeliveries = DefaultMaxDeliveries
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	fail := func(step string, err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	dlx := exchange + ".dlx"
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fail("declare dead-letter exchange", err)
	}
	dead, err := ch.QueueDeclare(queue+".dead", true, false, false, false, nil)
	if err != nil {
		return fail("declare dead-letter queue", err)
	}
	if err := ch.QueueBind(dead.Name, "", dlx, false, nil); err != nil {
		return fail("bind dead-letter queue", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": dlx,
	})
	if err != nil {
		return fail("declare queue", err)
	}
	if err := ch.QueueBind(q.Name, EmailBindingKey, exchange, false, nil); err != nil {
		return fail("bind queue", err)
	}
	if prefetch <= 0 {
		prefetch = 8
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail("set qos", err)
	}

	return &Consumer{
		conn:          conn,
		ch:            ch,
		exchange:      exchange,
		queue:         q.Name,
		maxDeliveries: maxDeliveries,
		log:           log.Named("consumer"),
	}, nil
}

// Run delivers every message through sender until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, sender Sender) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "mailer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d, sender)
		}
	}
}

// acknowledger is the part of amqp.Delivery that handle needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// retrier publishes a failed message again with its attempt count.
type retrier interface {
	Retry(ctx context.Context, key string, body []byte, attempts int) error
}

// inbound is a received message and the number of failed attempts before it.
type inbound struct {
	body     []byte
	key      string
	attempts int
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, sender Sender) {
	in := inbound{body: d.Body, key: d.RoutingKey, attempts: attemptsFrom(d.Headers)}
	handleDelivery(ctx, in, d, c, sender, c.maxDeliveries, c.log)
}

// Retry republishes body to the exchange with the attempt count in AttemptsHeader.
func (c *Consumer) Retry(ctx context.Context, key string, body []byte, attempts int) error {
	return c.ch.PublishWithContext(ctx, c.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{AttemptsHeader: int32(attempts)},
		Body:         body,
	})
}

// handleDelivery acks sent messages. A failed send is retried through a fresh publish until
// maxDeliveries attempts are used up; undecodable messages, permanent SMTP rejections and
// exhausted messages are nacked without requeue so the broker dead-letters them.
func handleDelivery(ctx context.Context, in inbound, ack acknowledger, retry retrier, sender Sender, maxDeliveries int, log *zap.Logger) {
	var msg Message
	if err := json.Unmarshal(in.body, &msg); err != nil {
		log.Error("dead-lettering undecodable message", zap.String("routing_key", in.key), zap.Error(err))
		_ = ack.Nack(false, false)
		return
	}

	err := sender.Send(ctx, msg)
	if err == nil {
		log.Info("email sent", zap.String("kind", string(msg.Kind)), zap.String("booking_id", msg.BookingID))
		_ = ack.Ack(false)
		return
	}

	attempt := in.attempts + 1
	fields := []zap.Field{
		zap.String("routing_key", in.key),
		zap.String("booking_id", msg.BookingID),
		zap.Int("attempt", attempt),
		zap.Error(err),
	}

	if isPermanent(err) || attempt >= maxDeliveries {
		log.Error("dead-lettering undeliverable email", fields...)
		_ = ack.Nack(false, false)
		return
	}

	if rerr := retry.Retry(ctx, in.key, in.body, attempt); rerr != nil {
		log.Warn("send failed and republish failed, requeueing", append(fields, zap.NamedError("republish_error", rerr))...)
		_ = ack.Nack(false, true)
		return
	}
	log.Warn("send failed, retrying", fields...)
	_ = ack.Ack(false)
}

// isPermanent reports a 5xx SMTP reply, which retrying will not change.
func isPermanent(err error) bool {
	var reply *textproto.Error
	return errors.As(err, &reply) && reply.Code >= 500 && reply.Code < 600
}

func attemptsFrom(h amqp.Table) int {
	switch v := h[AttemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

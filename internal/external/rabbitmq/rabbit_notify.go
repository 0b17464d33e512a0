package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const queue = "notifications"

// Публикация запросов на уведомления. Доставка, ретраи и рендеринг
// шаблонов - забота внешнего сервиса.
type NotifyPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewNotifyPublisher() (publisher *NotifyPublisher, err error) {
	// config
	rabbiturl := os.Getenv("RABBIT_URL")
	if rabbiturl == "" {
		return nil, fmt.Errorf("env RABBIT_URL is not set")
	}
	rabbitport := os.Getenv("RABBIT_PORT")
	if rabbitport == "" {
		return nil, fmt.Errorf("env RABBIT_PORT is not set")
	}
	rabbituser := os.Getenv("RABBIT_USER")
	if rabbituser == "" {
		return nil, fmt.Errorf("env RABBIT_USER is not set")
	}
	rabbitpass := os.Getenv("RABBIT_PASSWORD")
	if rabbitpass == "" {
		return nil, fmt.Errorf("env RABBIT_PASSWORD is not set")
	}

	rabbitconn := "amqp://" + rabbituser + ":" + rabbitpass + "@" + rabbiturl + ":" + rabbitport + "/mlm"
	conn, err := amqp.Dial(rabbitconn)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		queue, // name
		false, // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &NotifyPublisher{conn, ch}, nil
}

func (n *NotifyPublisher) Close() {
	n.ch.Close()
	n.conn.Close()
}

type notifyMessage struct {
	Account  string            `json:"account"`
	Template string            `json:"template"`
	Vars     map[string]string `json:"vars,omitempty"`
}

func (n *NotifyPublisher) Notify(ctx context.Context, account uuid.UUID, template string, vars map[string]string) error {
	st := &notifyMessage{account.String(), template, vars}
	msg, err := json.Marshal(st)
	if err != nil {
		return err
	}

	err = n.ch.PublishWithContext(ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(msg),
		})
	if err != nil {
		return err
	}
	return nil
}

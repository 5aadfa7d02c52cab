package databus

import (
	"encoding/json"
	"strings"

	"gopkg.in/Shopify/sarama.v1"
	"moff.io/wallet-shell/internal/shell"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

type Event interface {
	Serialize() []byte
	Topic() string
}

type DataBus struct {
	producer sarama.SyncProducer
}

// New dials the comma separated kafka hosts.
func New(host string) (*DataBus, error) {
	hosts := strings.Split(host, ",")
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	p, err := sarama.NewSyncProducer(hosts, conf)
	if err != nil {
		return nil, errors.WrapfAndReport(err, "create kafka producer for %v", host)
	}
	log.Info("Kafka producer initialized...")
	return NewWithProducer(p), nil
}

func NewWithProducer(p sarama.SyncProducer) *DataBus {
	return &DataBus{producer: p}
}

func (db *DataBus) PublishRaw(topic string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	partition, offset, err := db.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(raw)})
	if err != nil {
		return errors.WrapAndReport(err, "produce message")
	}
	log.Debugf("produce message success-partition: %d, offset: %d", partition, offset)
	return nil
}

func (db *DataBus) Publish(e Event) error {
	return db.PublishRaw(e.Topic(), e.Serialize())
}

func (db *DataBus) Close() error {
	return db.producer.Close()
}

// NotificationEvent 会话与交易通知，以 JSON 写入 topic
type NotificationEvent struct {
	topic string
	shell.Notification
}

func (e *NotificationEvent) Topic() string {
	return e.topic
}

func (e *NotificationEvent) Serialize() []byte {
	raw, err := json.Marshal(e.Notification)
	if err != nil {
		log.Warnf("marshal notification %v:%v", e.Type, err)
		return nil
	}
	return raw
}

// Notifier publishes shell notifications to a single topic. Failures are logged, never returned.
type Notifier struct {
	bus   *DataBus
	topic string
}

func NewNotifier(bus *DataBus, topic string) *Notifier {
	return &Notifier{bus: bus, topic: topic}
}

func (n *Notifier) Notify(notification shell.Notification) {
	if err := n.bus.Publish(&NotificationEvent{topic: n.topic, Notification: notification}); err != nil {
		log.Warnf("publish %v notification:%v", notification.Type, err)
	}
}

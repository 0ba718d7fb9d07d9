// Package brokers - источники потоковых обновлений фич (Kafka, RabbitMQ).
package brokers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoMessage - за время ожидания сообщений не поступило
var ErrNoMessage = errors.New("no messages available")

// Source представляет очередь сообщений со строками фич.
// Сообщения подтверждаются пакетом через Commit после успешной записи.
type Source interface {
	// Connect устанавливает соединение с брокером
	Connect(ctx context.Context) error

	// Receive получает следующее сообщение. Если за PollTimeout сообщений
	// нет, возвращает ErrNoMessage.
	Receive(ctx context.Context) ([]byte, error)

	// Commit подтверждает все сообщения, полученные после предыдущего Commit
	Commit(ctx context.Context) error

	// Send публикует сообщение (для продюсеров и проверки связи)
	Send(ctx context.Context, message []byte) error

	// Close закрывает соединение с брокером
	Close() error

	// Type возвращает тип брокера (kafka, rabbitmq)
	Type() string
}

// Config содержит параметры подключения к брокеру
type Config struct {
	Type string `yaml:"type"` // kafka, rabbitmq

	// PollTimeout - ожидание сообщения в Receive, по умолчанию 1s
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// RabbitMQ
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Queue    string `yaml:"queue"`
	VHost    string `yaml:"vhost"`   // по умолчанию "/"
	UseTLS   bool   `yaml:"use_tls"` // amqps://

	// Параметры очереди RabbitMQ (должны совпадать с существующей очередью)
	Durable    bool `yaml:"durable"`
	AutoDelete bool `yaml:"auto_delete"`
	Exclusive  bool `yaml:"exclusive"`

	// Kafka
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"` // по умолчанию "featurestore-ingest"
}

func (c Config) pollTimeout() time.Duration {
	if c.PollTimeout <= 0 {
		return time.Second
	}
	return c.PollTimeout
}

// New создает Source на основе конфигурации
func New(cfg Config) (Source, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMQ(cfg)
	case "kafka":
		return NewKafka(cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s (supported: rabbitmq, kafka)", cfg.Type)
	}
}

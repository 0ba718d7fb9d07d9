// Package resultlog публикует состояние заданий выборки исторических фич в Redis.
package resultlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Состояния задания выборки
const (
	StateRunning = "RUNNING"
	StateDone    = "DONE"
	StateFailed  = "FAILED"
)

// ErrNotFound - состояние задания отсутствует или истекло
var ErrNotFound = errors.New("job status not found")

// Config - настройки подключения и хранения
type Config struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl"`    // секунды, 0 - без истечения
	Prefix   string `yaml:"prefix"` // по умолчанию "featurestore"
}

// JobStatus представляет состояние задания выборки, публикуемое в Redis.
//
// Redis-ключи:
//
//	SET  <prefix>:retrieval:<id>:state  <JSON>  EX <ttl>  - для опроса
//	PUB  <prefix>:retrieval:<id>                          - для подписки
type JobStatus struct {
	CorrelationID  string    `json:"correlation_id"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	OutputFileURIs []string  `json:"output_file_uris,omitempty"`
	Rows           int64     `json:"rows"`
	Checksum       string    `json:"checksum,omitempty"`
	Error          *string   `json:"error,omitempty"`
}

// RedisPublisher публикует состояние заданий в Redis
type RedisPublisher struct {
	client *redis.Client
	config Config
}

// NewRedisPublisher создает новый Redis publisher на основе конфигурации
func NewRedisPublisher(config Config) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisPublisherWithClient(client, config)
}

// NewRedisPublisherWithClient использует готового клиента
func NewRedisPublisherWithClient(client *redis.Client, config Config) *RedisPublisher {
	if config.Prefix == "" {
		config.Prefix = "featurestore"
	}
	return &RedisPublisher{client: client, config: config}
}

func (p *RedisPublisher) stateKey(id string) string {
	return fmt.Sprintf("%s:retrieval:%s:state", p.config.Prefix, id)
}

// Channel возвращает канал событий задания
func (p *RedisPublisher) Channel(id string) string {
	return fmt.Sprintf("%s:retrieval:%s", p.config.Prefix, id)
}

// Publish сохраняет состояние задания и публикует его:
//   - SET <prefix>:retrieval:<id>:state <JSON> EX <ttl>
//   - PUBLISH <prefix>:retrieval:<id> <JSON>
func (p *RedisPublisher) Publish(ctx context.Context, status JobStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal job status: %w", err)
	}

	ttl := time.Duration(p.config.TTL) * time.Second
	if err := p.client.Set(ctx, p.stateKey(status.CorrelationID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(status.CorrelationID), payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}

// Get возвращает последнее сохраненное состояние задания
func (p *RedisPublisher) Get(ctx context.Context, id string) (*JobStatus, error) {
	data, err := p.client.Get(ctx, p.stateKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var status JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job status: %w", err)
	}
	return &status, nil
}

// Close закрывает соединение с Redis
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

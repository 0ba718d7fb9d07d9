// Package sink - запись потоковых обновлений фич в реляционное хранилище.
//
// Sink синхронизирует схему таблиц с определениями наборов фич (PrepareWrite)
// и создает Writer, который раскладывает поток FeatureRow по наборам и пишет
// строки пакетами.
package sink

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

// Config - конфигурация sink
type Config struct {
	adapters.Config `yaml:",inline"`

	// BatchSize - количество строк в одной транзакции записи.
	// Неположительное значение означает 1.
	BatchSize int `yaml:"batch_size"`
}

// EffectiveBatchSize возвращает размер пакета с учетом значения по умолчанию
func (c Config) EffectiveBatchSize() int {
	if c.BatchSize <= 0 {
		return 1
	}
	return c.BatchSize
}

// Sink - схема и запись наборов фич в одну БД
type Sink struct {
	db  *sql.DB
	gen *templater.Generator
	cfg Config

	ownsDB bool

	mu            sync.RWMutex
	subscriptions map[string]featureset.Spec

	locksMu    sync.Mutex
	tableLocks map[string]*sync.Mutex

	now func() time.Time
}

// New создает sink поверх открытого пула подключений
func New(db *sql.DB, gen *templater.Generator, cfg Config) *Sink {
	return &Sink{
		db:            db,
		gen:           gen,
		cfg:           cfg,
		subscriptions: make(map[string]featureset.Spec),
		tableLocks:    make(map[string]*sync.Mutex),
		now:           time.Now,
	}
}

// Open подключается к БД по конфигурации и создает sink.
// Пул подключений закрывается в Close.
func Open(ctx context.Context, cfg Config, templates *templater.TemplateSet) (*Sink, error) {
	db, dialect, err := adapters.Open(ctx, cfg.Config)
	if err != nil {
		return nil, err
	}
	s := New(db, templater.New(dialect, templates), cfg)
	s.ownsDB = true
	return s, nil
}

// Close освобождает пул подключений, если sink его открывал
func (s *Sink) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// PrepareWrite регистрирует набор фич и приводит его таблицу в соответствие
// определению: создает таблицу или добавляет недостающие колонки
func (s *Sink) PrepareWrite(ctx context.Context, spec featureset.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if err := s.applySchema(ctx, spec); err != nil {
		return fmt.Errorf("failed to prepare feature set %s: %w", spec.Ref(), err)
	}

	s.mu.Lock()
	s.subscriptions[spec.Ref()] = spec
	s.mu.Unlock()
	return nil
}

// Subscriptions возвращает зарегистрированные наборы, отсортированные по ссылке
func (s *Sink) Subscriptions() []featureset.Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	specs := make([]featureset.Spec, 0, len(s.subscriptions))
	for _, spec := range s.subscriptions {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Ref() < specs[j].Ref() })
	return specs
}

// Writer создает Writer для текущих подписок.
// jobName записывается в колонку job_id каждой строки.
func (s *Sink) Writer(jobName string) (*Writer, error) {
	specs := s.Subscriptions()
	binders := make(map[string]*Binder, len(specs))
	for _, spec := range specs {
		b, err := NewBinder(s.gen, spec, jobName, s.now)
		if err != nil {
			return nil, err
		}
		binders[spec.Ref()] = b
	}
	return &Writer{
		db:        s.db,
		binders:   binders,
		batchSize: s.cfg.EffectiveBatchSize(),
	}, nil
}

func (s *Sink) tableLock(table string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.tableLocks[table]
	if !ok {
		lock = &sync.Mutex{}
		s.tableLocks[table] = lock
	}
	return lock
}

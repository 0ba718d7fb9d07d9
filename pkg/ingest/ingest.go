// Package ingest - чтение строк фич из брокера и запись их через sink.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-featurestore/pkg/brokers"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
	"github.com/ruslano69/tdtp-featurestore/pkg/metrics"
	"github.com/ruslano69/tdtp-featurestore/pkg/retry"
	"github.com/ruslano69/tdtp-featurestore/pkg/sink"
)

// BatchWriter пишет пакет строк и возвращает результат по каждой строке
type BatchWriter interface {
	WriteBatch(ctx context.Context, rows []featureset.FeatureRow) []sink.WriteResult
}

// Config - настройки чтения
type Config struct {
	// BatchSize - максимум сообщений в одном пакете записи, по умолчанию 100
	BatchSize int `yaml:"batch_size"`

	// Retry - повтор записи строк, не записанных из-за ошибки выполнения
	Retry retry.Config `yaml:"retry"`
}

// Stats - итог обработки пакета
type Stats struct {
	Messages  int
	Written   int
	Rejected  int // ошибки привязки и строки неизвестных наборов
	Malformed int // сообщения, не разобранные как строка фич
}

// Ingestor читает сообщения пакетами, пишет их и подтверждает пакет.
//
// Некорректные сообщения и отклоненные строки пропускаются с записью в лог:
// повторная доставка их не исправит. Строки с ошибкой выполнения повторяются
// по настройкам Retry; если повторы исчерпаны, ошибка возвращается без
// подтверждения, чтобы брокер доставил пакет повторно.
type Ingestor struct {
	source  brokers.Source
	writer  BatchWriter
	retryer *retry.Retryer
	cfg     Config
}

// New создает Ingestor
func New(source brokers.Source, writer BatchWriter, cfg Config) (*Ingestor, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	retryer, err := retry.New("ingest write", cfg.Retry)
	if err != nil {
		return nil, err
	}
	return &Ingestor{source: source, writer: writer, retryer: retryer, cfg: cfg}, nil
}

// RunOnce читает до BatchSize сообщений (или пока очередь не опустеет),
// пишет строки и подтверждает пакет
func (in *Ingestor) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	rows := make([]featureset.FeatureRow, 0, in.cfg.BatchSize)

	for stats.Messages < in.cfg.BatchSize {
		msg, err := in.source.Receive(ctx)
		if errors.Is(err, brokers.ErrNoMessage) {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.Messages++

		row, err := featureset.DecodeRow(msg)
		if err != nil {
			stats.Malformed++
			metrics.RowsFailed.WithLabelValues("unknown", metrics.ReasonDecode).Inc()
			log.Warn().Err(err).Int("size", len(msg)).Msg("skipping malformed feature row message")
			continue
		}
		rows = append(rows, row)
	}

	if stats.Messages == 0 {
		return stats, nil
	}

	if len(rows) > 0 {
		pending := rows
		err := in.retryer.Do(ctx, func(ctx context.Context) error {
			var execErr error
			failed := make([]featureset.FeatureRow, 0)
			results := in.writer.WriteBatch(ctx, pending)
			if len(results) != len(pending) {
				return retry.Permanent(fmt.Errorf("writer reported %d results for %d rows", len(results), len(pending)))
			}
			for _, res := range results {
				switch {
				case res.Err == nil:
					stats.Written++
				case errors.Is(res.Err, sink.ErrBind), errors.Is(res.Err, sink.ErrUnknownFeatureSet):
					stats.Rejected++
					log.Warn().Err(res.Err).Str("feature_set", res.Row.FeatureSet).Msg("feature row rejected")
				default:
					failed = append(failed, res.Row)
					if execErr == nil {
						execErr = res.Err
					}
				}
			}
			// транзакция пакета откатывается целиком, повторяются только его строки
			pending = failed
			return execErr
		})
		if err != nil {
			return stats, fmt.Errorf("failed to write batch of %d rows: %w", len(rows), err)
		}
	}

	// после отмены подтверждать нечего: часть строк могла не дойти до записи
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	if err := in.source.Commit(ctx); err != nil {
		return stats, err
	}

	log.Debug().
		Int("messages", stats.Messages).
		Int("written", stats.Written).
		Int("rejected", stats.Rejected).
		Int("malformed", stats.Malformed).
		Msg("ingest batch committed")
	return stats, nil
}

// Run обрабатывает пакеты до отмены контекста. Ошибка записи прерывает
// цикл: неподтвержденный пакет будет доставлен повторно после перезапуска.
func (in *Ingestor) Run(ctx context.Context) error {
	log.Info().Str("broker", in.source.Type()).Int("batch_size", in.cfg.BatchSize).Msg("ingest started")

	var total Stats
	started := time.Now()
	for {
		if ctx.Err() != nil {
			log.Info().
				Int("written", total.Written).
				Int("rejected", total.Rejected).
				Int("malformed", total.Malformed).
				Dur("elapsed", time.Since(started)).
				Msg("ingest stopped")
			return nil
		}

		stats, err := in.RunOnce(ctx)
		total.Messages += stats.Messages
		total.Written += stats.Written
		total.Rejected += stats.Rejected
		total.Malformed += stats.Malformed
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return err
		}
	}
}

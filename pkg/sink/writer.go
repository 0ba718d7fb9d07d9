package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
	"github.com/ruslano69/tdtp-featurestore/pkg/metrics"
)

// ErrUnknownFeatureSet - строка ссылается на набор без подписки
var ErrUnknownFeatureSet = errors.New("feature set is not subscribed")

// WriteResult - результат записи одной строки. Err == nil означает успех.
type WriteResult struct {
	Row featureset.FeatureRow
	Err error
}

// Writer раскладывает поток строк по наборам фич (одна партиция на набор)
// и пишет каждую партицию пакетами по batchSize строк в транзакции
type Writer struct {
	db        *sql.DB
	binders   map[string]*Binder
	batchSize int
}

// BatchSize возвращает размер пакета записи
func (w *Writer) BatchSize() int {
	return w.batchSize
}

// Binder возвращает привязку для набора или nil
func (w *Writer) Binder(ref string) *Binder {
	return w.binders[ref]
}

type pendingRow struct {
	row  featureset.FeatureRow
	args []any
}

// Write пишет строки из канала rows и сообщает результат по каждой строке.
// Вызывающий закрывает rows и читает канал результатов до конца: результатов
// ровно столько, сколько строк прочитано из rows.
//
// Ошибка привязки отклоняет только эту строку. Ошибка выполнения пакета
// отклоняет все строки пакета. После отмены ctx оставшиеся строки rows
// дочитываются и отклоняются с ошибкой контекста.
func (w *Writer) Write(ctx context.Context, rows <-chan featureset.FeatureRow) <-chan WriteResult {
	results := make(chan WriteResult, w.batchSize)

	go func() {
		defer close(results)

		partitions := make(map[string]chan featureset.FeatureRow)
		var wg sync.WaitGroup

	loop:
		for {
			select {
			case <-ctx.Done():
				for row := range rows {
					results <- WriteResult{Row: row, Err: ctx.Err()}
				}
				break loop
			case row, ok := <-rows:
				if !ok {
					break loop
				}

				binder, known := w.binders[row.FeatureSet]
				if !known {
					metrics.RowsFailed.WithLabelValues(row.FeatureSet, metrics.ReasonUnknown).Inc()
					results <- WriteResult{Row: row, Err: fmt.Errorf("%w: %s", ErrUnknownFeatureSet, row.FeatureSet)}
					continue
				}

				partition, exists := partitions[row.FeatureSet]
				if !exists {
					partition = make(chan featureset.FeatureRow, w.batchSize)
					partitions[row.FeatureSet] = partition
					wg.Add(1)
					go func() {
						defer wg.Done()
						w.runPartition(ctx, binder, partition, results)
					}()
				}
				partition <- row
			}
		}

		for _, partition := range partitions {
			close(partition)
		}
		wg.Wait()
	}()

	return results
}

// WriteBatch - синхронная форма Write. Результаты возвращаются в порядке
// завершения, а не в порядке входных строк; результат есть у каждой строки.
func (w *Writer) WriteBatch(ctx context.Context, rows []featureset.FeatureRow) []WriteResult {
	in := make(chan featureset.FeatureRow)
	go func() {
		defer close(in)
		for _, row := range rows {
			in <- row
		}
	}()

	results := make([]WriteResult, 0, len(rows))
	for res := range w.Write(ctx, in) {
		results = append(results, res)
	}
	return results
}

func (w *Writer) runPartition(ctx context.Context, binder *Binder, in <-chan featureset.FeatureRow, out chan<- WriteResult) {
	ref := binder.Spec().Ref()
	batch := make([]pendingRow, 0, w.batchSize)

	for row := range in {
		args, err := binder.Bind(row)
		if err != nil {
			metrics.RowsFailed.WithLabelValues(ref, metrics.ReasonBind).Inc()
			log.Warn().Err(err).Str("feature_set", ref).Msg("row rejected")
			out <- WriteResult{Row: row, Err: err}
			continue
		}

		batch = append(batch, pendingRow{row: row, args: args})
		if len(batch) >= w.batchSize {
			w.flush(ctx, binder, batch, out)
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		w.flush(ctx, binder, batch, out)
	}
}

func (w *Writer) flush(ctx context.Context, binder *Binder, batch []pendingRow, out chan<- WriteResult) {
	ref := binder.Spec().Ref()
	err := w.execBatch(ctx, binder, batch)
	if err != nil {
		metrics.RowsFailed.WithLabelValues(ref, metrics.ReasonExec).Add(float64(len(batch)))
		log.Error().Err(err).Str("feature_set", ref).Int("rows", len(batch)).Msg("batch write failed")
	} else {
		metrics.RowsWritten.WithLabelValues(ref).Add(float64(len(batch)))
	}

	for _, p := range batch {
		out <- WriteResult{Row: p.row, Err: err}
	}
}

func (w *Writer) execBatch(ctx context.Context, binder *Binder, batch []pendingRow) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, binder.SQL())
	if err != nil {
		return fmt.Errorf("failed to prepare insert for %s: %w", binder.Spec().Ref(), err)
	}
	defer stmt.Close()

	for _, p := range batch {
		if _, err := stmt.ExecContext(ctx, p.args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", binder.Spec().TableName(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch for %s: %w", binder.Spec().Ref(), err)
	}
	return nil
}

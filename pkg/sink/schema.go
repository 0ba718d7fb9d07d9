package sink

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
	"github.com/ruslano69/tdtp-featurestore/pkg/metrics"
)

// applySchema создает или мигрирует таблицу набора.
// Изменения одной таблицы сериализуются, разные таблицы независимы.
func (s *Sink) applySchema(ctx context.Context, spec featureset.Spec) error {
	table := spec.TableName()
	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}

	if !exists {
		stmt, err := s.gen.CreateTableSQL(spec)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
		metrics.SchemaChanges.WithLabelValues(spec.Ref(), "create").Inc()
		log.Info().Str("feature_set", spec.Ref()).Str("table", table).Msg("table created")
		return nil
	}

	existing, err := s.existingColumns(ctx, table)
	if err != nil {
		return err
	}
	stmts, err := s.gen.MigrationSQL(spec, existing)
	if err != nil {
		return err
	}
	if len(stmts) == 0 {
		log.Debug().Str("feature_set", spec.Ref()).Str("table", table).Msg("table is up to date")
		return nil
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to alter table %s: %w", table, err)
		}
	}
	metrics.SchemaChanges.WithLabelValues(spec.Ref(), "alter").Inc()
	log.Info().
		Str("feature_set", spec.Ref()).
		Str("table", table).
		Int("columns_added", len(stmts)).
		Msg("table migrated")
	return nil
}

func (s *Sink) tableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.gen.Dialect().TableExistsQuery(), table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return count > 0, nil
}

// existingColumns читает имена колонок из метаданных пустой выборки
func (s *Sink) existingColumns(ctx context.Context, table string) ([]string, error) {
	query, err := s.gen.ProbeColumnsSQL(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	return columns, rows.Err()
}

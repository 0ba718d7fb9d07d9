// Package retriever - выборка исторических фич на момент времени.
//
// Запрос проходит шаги: проверка формата, загрузка файлов сущностей в
// staging-таблицу, вычисление границ event_timestamp, материализация
// as-of подзапроса каждого набора фич, итоговое соединение и выгрузка
// результата в файл. Все временные таблицы удаляются при любом исходе.
package retriever

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ruslano69/tdtp-featurestore/pkg/metrics"
	"github.com/ruslano69/tdtp-featurestore/pkg/processors"
	"github.com/ruslano69/tdtp-featurestore/pkg/resultlog"
	"github.com/ruslano69/tdtp-featurestore/pkg/staging"
	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

// Config - настройки выборки
type Config struct {
	// StagingLocation - каталог выходных файлов: путь, file:// или s3://
	StagingLocation string `yaml:"staging_location"`

	// MaxParallelism ограничивает число одновременных материализаций,
	// 0 - по числу наборов фич
	MaxParallelism int `yaml:"max_parallelism"`

	// ServerSideExport - выгрузка средствами СУБД (COPY ... TO), если доступна
	ServerSideExport bool `yaml:"server_side_export"`

	// Delimiter - разделитель полей входных и выходных файлов, по умолчанию tab
	Delimiter string `yaml:"delimiter"`

	Output processors.Config `yaml:"output"`
}

// Validate проверяет настройки
func (c Config) Validate() error {
	if c.StagingLocation == "" {
		return fmt.Errorf("staging_location is required")
	}
	if c.MaxParallelism < 0 {
		return fmt.Errorf("max_parallelism must not be negative")
	}
	if len([]rune(c.Delimiter)) > 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	return c.Output.Validate()
}

func (c Config) delimiter() rune {
	if c.Delimiter == "" {
		return '\t'
	}
	return []rune(c.Delimiter)[0]
}

// Publisher получает состояния заданий выборки
type Publisher interface {
	Publish(ctx context.Context, status resultlog.JobStatus) error
}

// Retriever выполняет запросы выборки исторических фич
type Retriever struct {
	db        *sql.DB
	gen       *templater.Generator
	store     *staging.Store
	cfg       Config
	publisher Publisher

	// stepDone вызывается после каждого завершенного шага (для тестов)
	stepDone func(step string)
}

// New создает Retriever поверх пула подключений
func New(db *sql.DB, gen *templater.Generator, store *staging.Store, cfg Config) (*Retriever, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retriever config: %w", err)
	}
	return &Retriever{db: db, gen: gen, store: store, cfg: cfg}, nil
}

// WithPublisher включает публикацию состояний заданий
func (r *Retriever) WithPublisher(p Publisher) *Retriever {
	r.publisher = p
	return r
}

// tempName возвращает уникальное имя временной таблицы
func (r *Retriever) tempName() string {
	return "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func validateFormat(src EntitySource) error {
	if !strings.EqualFold(string(src.Format), string(DataFormatCSV)) {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, src.Format, DataFormatCSV)
	}
	if len(src.FileURIs) == 0 {
		return fmt.Errorf("entity source has no files")
	}
	return nil
}

// GetHistoricalFeatures выполняет запрос выборки. Для каждой строки файлов
// сущностей результат содержит ровно одну строку с последними значениями фич
// на момент event_timestamp этой строки.
func (r *Retriever) GetHistoricalFeatures(ctx context.Context, req Request) (result *Result, err error) {
	if err := validateFormat(req.EntitySource); err != nil {
		metrics.Retrievals.WithLabelValues("rejected").Inc()
		return nil, err
	}

	infos, err := templater.NewQueryInfos(req.FeatureSets)
	if err != nil {
		metrics.Retrievals.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	logger := log.With().Str("correlation_id", req.CorrelationID).Logger()

	started := time.Now()
	r.publish(ctx, resultlog.JobStatus{
		CorrelationID: req.CorrelationID,
		State:         resultlog.StateRunning,
		StartedAt:     started.UTC(),
	})

	sess := newSession(r.db)
	scope := &tableScope{}

	defer func() {
		scope.release(ctx, sess, r.gen)
		sess.close()

		elapsed := time.Since(started)
		metrics.RetrievalDuration.Observe(elapsed.Seconds())

		status := resultlog.JobStatus{
			CorrelationID: req.CorrelationID,
			StartedAt:     started.UTC(),
			FinishedAt:    time.Now().UTC(),
			DurationMs:    elapsed.Milliseconds(),
		}
		if err != nil {
			metrics.Retrievals.WithLabelValues("failed").Inc()
			logger.Error().Err(err).Dur("elapsed", elapsed).Msg("historical retrieval failed")
			var stepErr *StepError
			if errors.As(err, &stepErr) && stepErr.SQL != "" {
				logger.Debug().Str("sql", stepErr.SQL).Msg("failed statement")
			}
			msg := err.Error()
			status.State = resultlog.StateFailed
			status.Error = &msg
		} else {
			metrics.Retrievals.WithLabelValues("success").Inc()
			logger.Info().
				Int64("rows", result.Rows).
				Strs("files", result.OutputFileURIs).
				Dur("elapsed", elapsed).
				Msg("historical retrieval completed")
			status.State = resultlog.StateDone
			status.OutputFileURIs = result.OutputFileURIs
			status.Rows = result.Rows
			status.Checksum = result.Checksum
		}
		r.publish(context.WithoutCancel(ctx), status)
	}()

	stagingTable, err := r.stage(ctx, sess, scope, infos, req.EntitySource.FileURIs)
	if err != nil {
		return nil, err
	}
	if err := r.checkpoint(ctx, StepLoad); err != nil {
		return nil, err
	}

	bounds, err := r.bounds(ctx, sess, stagingTable)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Bool("valid", bounds.Valid).
		Int64("min_ms", bounds.Min).
		Int64("max_ms", bounds.Max).
		Msg("entity timestamp bounds")
	if err := r.checkpoint(ctx, StepBounds); err != nil {
		return nil, err
	}

	if err := r.materialize(ctx, sess, scope, infos, stagingTable, bounds); err != nil {
		return nil, err
	}
	if err := r.checkpoint(ctx, StepMaterialize); err != nil {
		return nil, err
	}

	resultTable, err := r.join(ctx, sess, scope, infos, stagingTable)
	if err != nil {
		return nil, err
	}
	if err := r.checkpoint(ctx, StepJoin); err != nil {
		return nil, err
	}

	out, err := r.export(ctx, sess, resultTable, infos)
	if err != nil {
		return nil, err
	}

	return &Result{
		CorrelationID:  req.CorrelationID,
		OutputFileURIs: []string{out.uri},
		OutputFormat:   DataFormatCSV,
		Rows:           out.rows,
		Checksum:       out.checksum,
	}, nil
}

// checkpoint завершает шаг: брошенный запрос прекращается на границе шагов,
// созданные таблицы удаляются при выходе
func (r *Retriever) checkpoint(ctx context.Context, step string) error {
	if r.stepDone != nil {
		r.stepDone(step)
	}
	return ctx.Err()
}

func (r *Retriever) publish(ctx context.Context, status resultlog.JobStatus) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, status); err != nil {
		log.Warn().Err(err).Str("correlation_id", status.CorrelationID).Msg("failed to publish job status")
	}
}

// bounds возвращает глобальный диапазон event_timestamp staging-таблицы
func (r *Retriever) bounds(ctx context.Context, sess *session, table string) (templater.Bounds, error) {
	query, err := r.gen.TimestampBoundsSQL(table)
	if err != nil {
		return templater.Bounds{}, &StepError{Step: StepBounds, Table: table, Err: err}
	}

	var lo, hi sql.NullInt64
	err = sess.with(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query).Scan(&lo, &hi)
	})
	if err != nil {
		return templater.Bounds{}, &StepError{Step: StepBounds, Table: table, SQL: query, Err: err}
	}
	return templater.Bounds{Min: lo.Int64, Max: hi.Int64, Valid: lo.Valid && hi.Valid}, nil
}

// materialize сохраняет as-of подзапрос каждого набора в отдельную таблицу.
// Подзапросы независимы и выполняются параллельно; если СУБД не допускает
// параллельных сессий, они выполняются по очереди в сессии запроса.
func (r *Retriever) materialize(ctx context.Context, sess *session, scope *tableScope, infos []*templater.QueryInfo, stagingTable string, bounds templater.Bounds) error {
	limit := len(infos)
	if r.cfg.MaxParallelism > 0 && r.cfg.MaxParallelism < limit {
		limit = r.cfg.MaxParallelism
	}
	concurrent := r.gen.Dialect().ConcurrentSessions()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, info := range infos {
		g.Go(func() error {
			table := r.tempName()
			query, err := r.gen.PointInTimeSQL(info, stagingTable, bounds)
			if err != nil {
				return &StepError{Step: StepMaterialize, Table: table, Err: err}
			}
			stmt := r.gen.MaterializeSQL(table, query)

			scope.add(table)
			if concurrent {
				err = r.execOwnSession(gctx, stmt)
			} else {
				_, err = sess.exec(gctx, stmt)
			}
			if err != nil {
				return &StepError{
					Step:  StepMaterialize,
					Table: table,
					SQL:   stmt,
					Err:   fmt.Errorf("feature set %s: %w", info.Ref(), err),
				}
			}

			info.JoinedTable = table
			log.Debug().Str("feature_set", info.Ref()).Str("table", table).Msg("point-in-time subquery materialized")
			return nil
		})
	}
	return g.Wait()
}

func (r *Retriever) execOwnSession(ctx context.Context, stmt string) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.ExecContext(ctx, stmt)
	return err
}

// join соединяет staging-таблицу с материализованными подзапросами
func (r *Retriever) join(ctx context.Context, sess *session, scope *tableScope, infos []*templater.QueryInfo, stagingTable string) (string, error) {
	table := r.tempName()
	query, err := r.gen.JoinSQL(infos, stagingTable)
	if err != nil {
		return "", &StepError{Step: StepJoin, Table: table, Err: err}
	}
	stmt := r.gen.MaterializeSQL(table, query)

	scope.add(table)
	if _, err := sess.exec(ctx, stmt); err != nil {
		return "", &StepError{Step: StepJoin, Table: table, SQL: stmt, Err: err}
	}
	return table, nil
}

package retriever

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters"
	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
	"github.com/ruslano69/tdtp-featurestore/pkg/processors"
	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

// stage создает staging-таблицу и последовательно загружает в нее файлы сущностей
func (r *Retriever) stage(ctx context.Context, sess *session, scope *tableScope, infos []*templater.QueryInfo, uris []string) (string, error) {
	table := r.tempName()
	ddl, err := r.gen.CreateStagingSQL(table, infos)
	if err != nil {
		return "", &StepError{Step: StepStage, Table: table, Err: err}
	}

	scope.add(table)
	if _, err := sess.exec(ctx, ddl); err != nil {
		return "", &StepError{Step: StepStage, Table: table, SQL: ddl, Err: err}
	}

	entities := templater.StagingColumns(infos)
	for _, uri := range uris {
		n, err := r.loadFile(ctx, sess, table, entities, uri)
		if err != nil {
			return "", &StepError{Step: StepLoad, Table: table, Err: fmt.Errorf("file %s: %w", uri, err)}
		}
		log.Debug().Str("file", uri).Int64("rows", n).Str("table", table).Msg("entity file loaded")
	}
	return table, nil
}

// entityReader разбирает файл сущностей: заголовок с именами колонок,
// затем строки. Лишние колонки файла игнорируются.
type entityReader struct {
	csv          *csv.Reader
	types        []featureset.ValueType
	positions    []int
	binaryAsText bool
	line         int
}

func newEntityReader(r io.Reader, delimiter rune, entities []featureset.EntitySpec, binaryAsText bool) (*entityReader, []string, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("file is empty, header expected")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		index[name] = i
	}

	er := &entityReader{csv: cr, binaryAsText: binaryAsText, line: 1}
	columns := make([]string, 0, len(entities)+1)
	for _, e := range entities {
		pos, ok := index[e.Name]
		if !ok {
			return nil, nil, fmt.Errorf("entity column %q is missing from header", e.Name)
		}
		columns = append(columns, e.Name)
		er.types = append(er.types, e.ValueType)
		er.positions = append(er.positions, pos)
	}

	pos, ok := index[featureset.ColumnEventTimestamp]
	if !ok {
		return nil, nil, fmt.Errorf("column %q is missing from header", featureset.ColumnEventTimestamp)
	}
	columns = append(columns, featureset.ColumnEventTimestamp)
	er.positions = append(er.positions, pos)

	return er, columns, nil
}

// next возвращает аргументы INSERT следующей строки или io.EOF
func (er *entityReader) next() ([]any, error) {
	record, err := er.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("line %d: %w", er.line+1, err)
	}
	er.line++

	args := make([]any, len(er.positions))
	for i, pos := range er.positions {
		field := ""
		if pos < len(record) {
			field = record[pos]
		}

		if i == len(er.positions)-1 {
			ts, err := base.ParseTimestamp(field)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", er.line, err)
			}
			args[i] = ts
			continue
		}

		v, err := base.ParseText(er.types[i], field, er.binaryAsText)
		if err != nil {
			return nil, fmt.Errorf("line %d: column %d: %w", er.line, pos+1, err)
		}
		args[i] = v
	}
	return args, nil
}

// loadFile загружает один файл. Строки файла пишутся одной транзакцией,
// для диалектов с BulkLoader - одним вызовом COPY.
func (r *Retriever) loadFile(ctx context.Context, sess *session, table string, entities []featureset.EntitySpec, uri string) (int64, error) {
	rc, err := r.store.Open(ctx, uri)
	if err != nil {
		return 0, err
	}
	rc, err = processors.MaybeDecompress(uri, rc)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	dialect := r.gen.Dialect()
	er, columns, err := newEntityReader(rc, r.cfg.delimiter(), entities, dialect.BinaryAsText())
	if err != nil {
		return 0, err
	}

	if loader, ok := dialect.(adapters.BulkLoader); ok {
		rows := make([][]any, 0)
		for {
			args, err := er.next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return 0, err
			}
			rows = append(rows, args)
		}
		var copied int64
		err := sess.with(ctx, func(conn *sql.Conn) error {
			var err error
			copied, err = loader.CopyRows(ctx, conn, table, columns, rows)
			return err
		})
		return copied, err
	}

	insert, err := r.gen.BulkLoadSQL(table, columns)
	if err != nil {
		return 0, err
	}

	var loaded int64
	err = sess.with(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for {
			args, err := er.next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("line %d: %w", er.line, err)
			}
			loaded++
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return loaded, nil
}

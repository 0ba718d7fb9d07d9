package retriever

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters"
	"github.com/ruslano69/tdtp-featurestore/pkg/adapters/base"
	"github.com/ruslano69/tdtp-featurestore/pkg/processors"
	"github.com/ruslano69/tdtp-featurestore/pkg/staging"
	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

type exported struct {
	uri      string
	rows     int64
	checksum string
}

// export выгружает таблицу результата в один файл каталога staging
func (r *Retriever) export(ctx context.Context, sess *session, resultTable string, infos []*templater.QueryInfo) (*exported, error) {
	name := strings.TrimPrefix(resultTable, "_") + ".csv" + r.cfg.Output.Extension()
	uri := staging.Join(r.cfg.StagingLocation, name)

	if path, ok := r.serverExportPath(uri); ok {
		stmt, err := r.gen.ServerExportSQL(resultTable, infos, path, r.cfg.delimiter())
		if err != nil {
			return nil, &StepError{Step: StepExport, Table: resultTable, Err: err}
		}
		res, err := sess.exec(ctx, stmt)
		if err != nil {
			return nil, &StepError{Step: StepExport, Table: resultTable, SQL: stmt, Err: err}
		}
		rows, _ := res.RowsAffected()
		return &exported{uri: uri, rows: rows}, nil
	}

	query, err := r.gen.ExportQuery(resultTable, infos)
	if err != nil {
		return nil, &StepError{Step: StepExport, Table: resultTable, Err: err}
	}
	out, err := r.exportClient(ctx, sess, query, infos, uri)
	if err != nil {
		return nil, &StepError{Step: StepExport, Table: resultTable, SQL: query, Err: err}
	}
	return out, nil
}

// serverExportPath возвращает путь для выгрузки средствами сервера, если она
// включена, поддерживается диалектом и не требует обработки файла клиентом
func (r *Retriever) serverExportPath(uri string) (string, bool) {
	if !r.cfg.ServerSideExport {
		return "", false
	}
	if _, ok := r.gen.Dialect().(adapters.ServerExporter); !ok {
		log.Debug().Str("dialect", r.gen.Dialect().Name()).Msg("server-side export is not supported, exporting through client")
		return "", false
	}
	if r.cfg.Output.Compression != "" || r.cfg.Output.Checksum {
		log.Debug().Msg("output processing requested, exporting through client")
		return "", false
	}
	path, ok := staging.LocalPath(uri)
	if !ok {
		log.Debug().Str("uri", uri).Msg("server-side export requires a local path, exporting through client")
	}
	return path, ok
}

// exportClient читает результат и пишет файл с разделителем и заголовком
func (r *Retriever) exportClient(ctx context.Context, sess *session, query string, infos []*templater.QueryInfo, uri string) (*exported, error) {
	columns := templater.OutputColumns(infos)
	binaryAsText := r.gen.Dialect().BinaryAsText()

	dst, err := r.store.Create(ctx, uri)
	if err != nil {
		return nil, err
	}
	out, err := processors.NewOutput(dst, r.cfg.Output)
	if err != nil {
		dst.Abort(err)
		return nil, err
	}

	w := csv.NewWriter(out)
	w.Comma = r.cfg.delimiter()

	var rows int64
	err = sess.with(ctx, func(conn *sql.Conn) error {
		rs, err := conn.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rs.Close()

		header := make([]string, len(columns))
		for i, c := range columns {
			header[i] = c.Name
		}
		if err := w.Write(header); err != nil {
			return err
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		record := make([]string, len(columns))

		for rs.Next() {
			if err := rs.Scan(ptrs...); err != nil {
				return err
			}
			for i, c := range columns {
				if !c.Timestamp {
					record[i] = base.FormatValue(values[i], c.ValueType, binaryAsText)
					continue
				}
				ts, ok, err := base.TimestampFromDB(values[i])
				if err != nil {
					return fmt.Errorf("column %s: %w", c.Name, err)
				}
				record[i] = ""
				if ok {
					record[i] = ts.Format(base.TimestampLayout)
				}
			}
			if err := w.Write(record); err != nil {
				return err
			}
			rows++
		}
		return rs.Err()
	})
	if err == nil {
		w.Flush()
		err = w.Error()
	}
	if err != nil {
		out.Abort(err)
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	return &exported{uri: uri, rows: rows, checksum: out.Checksum()}, nil
}

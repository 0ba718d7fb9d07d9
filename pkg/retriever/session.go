package retriever

import (
	"context"
	"database/sql"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-featurestore/pkg/metrics"
	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

// session - одно подключение на запрос выборки, устанавливаемое при первом
// обращении. Операции сериализуются мьютексом.
type session struct {
	db *sql.DB

	mu   sync.Mutex
	conn *sql.Conn
}

func newSession(db *sql.DB) *session {
	return &session{db: db}
}

// with выполняет fn на подключении сессии под мьютексом
func (s *session) with(ctx context.Context, fn func(*sql.Conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return err
		}
		s.conn = conn
	}
	return fn(s.conn)
}

func (s *session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.with(ctx, func(conn *sql.Conn) error {
		var err error
		res, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// close освобождает подключение; следующий with возьмет новое из пула
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// tableScope - таблицы, созданные запросом; удаляются при выходе
type tableScope struct {
	mu     sync.Mutex
	tables []string
}

func (sc *tableScope) add(table string) {
	sc.mu.Lock()
	sc.tables = append(sc.tables, table)
	sc.mu.Unlock()
}

// release удаляет таблицы в обратном порядке создания. Контекст отвязан
// от отмены запроса: удаление выполняется и после отмены.
//
// Драйвер может закрыть подключение сессии при отмене запроса (pgx так
// делает), а *sql.Conn не переподключается. Поэтому после ошибки удаление
// повторяется на новом подключении: таблицы обычные и видны любой сессии.
func (sc *tableScope) release(ctx context.Context, sess *session, gen *templater.Generator) {
	ctx = context.WithoutCancel(ctx)

	sc.mu.Lock()
	tables := sc.tables
	sc.tables = nil
	sc.mu.Unlock()

	for i := len(tables) - 1; i >= 0; i-- {
		table := tables[i]
		drop, err := gen.DropTableSQL(table)
		if err == nil {
			_, err = sess.exec(ctx, drop)
			if err != nil {
				log.Debug().Err(err).Str("table", table).Msg("drop failed on session connection, retrying on a new one")
				sess.close()
				_, err = sess.exec(ctx, drop)
			}
		}
		if err != nil {
			metrics.TempTablesDropped.WithLabelValues("error").Inc()
			log.Warn().Err(err).Str("table", table).Msg("failed to drop temporary table")
			continue
		}
		metrics.TempTablesDropped.WithLabelValues("ok").Inc()
	}
}

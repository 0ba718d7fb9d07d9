package retriever

import (
	"context"
	"testing"
)

// Таблицы удаляются, даже если подключение сессии уже закрыто
func TestReleaseAfterConnectionLost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess := newSession(env.db)
	defer sess.close()
	scope := &tableScope{}

	for _, table := range []string{"_lost_a", "_lost_b"} {
		if _, err := sess.exec(ctx, "CREATE TABLE "+table+" (x INTEGER)"); err != nil {
			t.Fatalf("create %s: %v", table, err)
		}
		scope.add(table)
	}
	if left := env.tempTables(t); len(left) != 2 {
		t.Fatalf("таблиц = %v, want 2", left)
	}

	// подключение закрыто как после отмены запроса драйвером
	sess.conn.Close()

	scope.release(ctx, sess, env.gen)
	if left := env.tempTables(t); len(left) != 0 {
		t.Errorf("таблицы не удалены на новом подключении: %v", left)
	}
}

// release выполняется и с уже отмененным контекстом
func TestReleaseWithCancelledContext(t *testing.T) {
	env := newTestEnv(t)

	sess := newSession(env.db)
	defer sess.close()
	scope := &tableScope{}

	if _, err := sess.exec(context.Background(), "CREATE TABLE _cancelled (x INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	scope.add("_cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scope.release(ctx, sess, env.gen)
	if left := env.tempTables(t); len(left) != 0 {
		t.Errorf("таблицы не удалены: %v", left)
	}
}

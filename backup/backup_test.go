package backup

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chutils/chutils/ch"
	"github.com/chutils/chutils/ch/mock"
)

func newTestConn() *mock.Conn {
	conn := mock.New()
	conn.Databases = []string{"analytics", "default"}
	conn.Tables["analytics"] = []string{"events", "users"}
	return conn
}

// asyncResultFn serves BACKUP/RESTORE statements with sequential operation IDs
// and passes every other query through to fn.
func asyncResultFn(fn func(query string) (ch.Rows, error)) func(string, ...any) (ch.Rows, error) {
	n := 0
	return func(query string, _ ...any) (ch.Rows, error) {
		if strings.HasPrefix(query, "BACKUP ") || strings.HasPrefix(query, "RESTORE ") {
			n++
			return mock.NewRows([]any{fmt.Sprintf("op-%d", n), "CREATING_BACKUP"}), nil
		}
		if fn != nil {
			return fn(query)
		}
		return mock.NewRows(), nil
	}
}

func backupStore() Store {
	return Disk{Name: "backups", Path: "prod"}
}

func TestClientBackup(t *testing.T) {
	t.Parallel()

	t.Run("ok/all_tables_by_default", func(t *testing.T) {
		t.Parallel()
		conn := newTestConn()
		conn.QueryFn = asyncResultFn(nil)
		client := New(conn)

		ids, err := client.Backup(t.Context(), Request{
			Database: "analytics", Store: backupStore(),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"op-1", "op-2"}, ids)

		queries := conn.Queried()
		require.Len(t, queries, 2)
		assert.Equal(t,
			"BACKUP TABLE `analytics`.`events` TO DISK('backups', 'prod/analytics/events') ASYNC",
			queries[0].Query)
		assert.Equal(t,
			"BACKUP TABLE `analytics`.`users` TO DISK('backups', 'prod/analytics/users') ASYNC",
			queries[1].Query)
	})

	t.Run("ok/selected_tables_with_settings", func(t *testing.T) {
		t.Parallel()
		conn := newTestConn()
		conn.QueryFn = asyncResultFn(nil)
		client := New(conn)

		ids, err := client.Backup(t.Context(), Request{
			Database: "analytics",
			Tables:   []string{"events"},
			Store:    backupStore(),
			Settings: []string{"compression_method='zstd'", "compression_level=5"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"op-1"}, ids)

		queries := conn.Queried()
		require.Len(t, queries, 1)
		assert.Equal(t,
			"BACKUP TABLE `analytics`.`events` TO DISK('backups', 'prod/analytics/events') ASYNC"+
				" SETTINGS compression_method='zstd', compression_level=5",
			queries[0].Query)
	})

	t.Run("err/unknown_database", func(t *testing.T) {
		t.Parallel()
		client := New(newTestConn())

		_, err := client.Backup(t.Context(), Request{Database: "nope", Store: backupStore()})
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorContains(t, err, `database "nope" does not exist`)
	})

	t.Run("err/unknown_table", func(t *testing.T) {
		t.Parallel()
		client := New(newTestConn())

		_, err := client.Backup(t.Context(), Request{
			Database: "analytics", Tables: []string{"nope"}, Store: backupStore(),
		})
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorContains(t, err, `table "nope" does not exist in database "analytics"`)
	})

	t.Run("err/missing_database", func(t *testing.T) {
		t.Parallel()
		client := New(newTestConn())

		_, err := client.Backup(t.Context(), Request{Store: backupStore()})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("err/invalid_store", func(t *testing.T) {
		t.Parallel()
		client := New(newTestConn())

		_, err := client.Backup(t.Context(), Request{Database: "analytics", Store: Disk{}})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("err/statement_failure", func(t *testing.T) {
		t.Parallel()
		conn := newTestConn()
		conn.QueryFn = func(string, ...any) (ch.Rows, error) {
			return nil, errors.New("ACCESS_DENIED")
		}
		client := New(conn)

		_, err := client.Backup(t.Context(), Request{Database: "analytics", Store: backupStore()})
		assert.ErrorContains(t, err, `failed starting backup of table "events"`)
	})
}

func discoveryFn(tables ...string) func(query string) (ch.Rows, error) {
	return func(query string) (ch.Rows, error) {
		rows := make([][]any, len(tables))
		for i, table := range tables {
			rows[i] = []any{table}
		}
		return mock.NewRows(rows...), nil
	}
}

func TestClientRestore(t *testing.T) {
	t.Parallel()

	t.Run("ok/all_discovered_tables", func(t *testing.T) {
		t.Parallel()
		conn := newTestConn()
		conn.QueryFn = asyncResultFn(discoveryFn("events", "users"))
		client := New(conn)

		ids, err := client.Restore(t.Context(), RestoreRequest{
			Store: backupStore(), SourceDB: "analytics",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"op-1", "op-2"}, ids)

		queries := conn.Queried()
		require.Len(t, queries, 3)
		assert.Contains(t, queries[0].Query, "disk('backups', 'prod/analytics/*/.backup')")
		assert.Equal(t,
			"RESTORE TABLE `analytics`.`events` FROM DISK('backups', 'prod/analytics/events') ASYNC",
			queries[1].Query)
		assert.Equal(t,
			"RESTORE TABLE `analytics`.`users` FROM DISK('backups', 'prod/analytics/users') ASYNC",
			queries[2].Query)
	})

	t.Run("ok/target_database_override", func(t *testing.T) {
		t.Parallel()
		conn := newTestConn()
		conn.QueryFn = asyncResultFn(discoveryFn("events"))
		client := New(conn)

		_, err := client.Restore(t.Context(), RestoreRequest{
			Store: backupStore(), SourceDB: "analytics", TargetDB: "staging",
		})
		require.NoError(t, err)

		queries := conn.Queried()
		require.Len(t, queries, 2)
		// The restored table lands in the target database, but the backup is
		// read from the source database's path.
		assert.Equal(t,
			"RESTORE TABLE `staging`.`events` FROM DISK('backups', 'prod/analytics/events') ASYNC",
			queries[1].Query)
	})

	t.Run("ok/structure_only_mode", func(t *testing.T) {
		t.Parallel()
		conn := newTestConn()
		conn.QueryFn = asyncResultFn(discoveryFn("events"))
		client := New(conn)

		_, err := client.Restore(t.Context(), RestoreRequest{
			Store: backupStore(), SourceDB: "analytics", Mode: StructureOnly,
		})
		require.NoError(t, err)

		queries := conn.Queried()
		require.Len(t, queries, 2)
		assert.Contains(t, queries[1].Query, " SETTINGS structure_only=1")
	})

	t.Run("ok/data_only_mode", func(t *testing.T) {
		t.Parallel()
		conn := newTestConn()
		conn.QueryFn = asyncResultFn(discoveryFn("events"))
		client := New(conn)

		_, err := client.Restore(t.Context(), RestoreRequest{
			Store: backupStore(), SourceDB: "analytics", Mode: DataOnly,
			Settings: []string{"async=1"},
		})
		require.NoError(t, err)

		queries := conn.Queried()
		require.Len(t, queries, 2)
		assert.Contains(t, queries[1].Query,
			" SETTINGS async=1, structure_only=0, allow_non_empty_tables=1")
	})

	t.Run("err/empty_backup_source", func(t *testing.T) {
		t.Parallel()
		conn := newTestConn()
		conn.QueryFn = asyncResultFn(discoveryFn())
		client := New(conn)

		_, err := client.Restore(t.Context(), RestoreRequest{
			Store: backupStore(), SourceDB: "analytics",
		})
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorContains(t, err, "no tables found in the backup source")
	})

	t.Run("err/table_not_in_source", func(t *testing.T) {
		t.Parallel()
		conn := newTestConn()
		conn.QueryFn = asyncResultFn(discoveryFn("events"))
		client := New(conn)

		_, err := client.Restore(t.Context(), RestoreRequest{
			Store: backupStore(), SourceDB: "analytics", Tables: []string{"users"},
		})
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorContains(t, err, `table "users" not found in backup source`)
	})

	t.Run("err/missing_source_database", func(t *testing.T) {
		t.Parallel()
		client := New(newTestConn())

		_, err := client.Restore(t.Context(), RestoreRequest{Store: backupStore()})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

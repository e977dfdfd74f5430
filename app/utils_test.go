package app

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/require"

	actx "github.com/chutils/chutils/app/context"
	"github.com/chutils/chutils/ch"
	"github.com/chutils/chutils/ch/mock"
)

var timeNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

type testApp struct {
	*App
	fs             vfs.FileSystem
	conn           *mock.Conn
	stdout, stderr *bytes.Buffer
	env            *mockEnv
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	var (
		fs     = memoryfs.New()
		conn   = mock.New()
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
		env    = &mockEnv{env: map[string]string{}}
	)
	opts := []Option{
		WithTimeNow(timeNowFn),
		WithEnv(env),
		WithDB(conn),
		WithContext(t.Context()),
		WithFDs(strings.NewReader(""), stdout, stderr),
		WithFS(fs),
		WithLogger(false, false),
	}
	app, err := New("chutils", "/config.json", opts...)
	require.NoError(t, err)

	return &testApp{
		App: app, fs: fs, conn: conn,
		stdout: stdout, stderr: stderr, env: env,
	}
}

func (ta *testApp) Run(args ...string) error {
	return ta.App.Run(args)
}

// serveLedger makes the mock connection answer the ledger shape query with a
// compatible layout and every other query with the given rows.
func (ta *testApp) serveLedger(rows ...[]any) {
	ta.conn.QueryFn = func(query string, _ ...any) (ch.Rows, error) {
		if strings.Contains(query, "system.columns") {
			return mock.NewRows(
				[]any{"version", "UInt32"},
				[]any{"name", "String"},
				[]any{"status", "Enum8('pending' = 0, 'applied' = 1)"},
				[]any{"applied_at", "DateTime"},
			), nil
		}
		return mock.NewRows(rows...), nil
	}
}

func (ta *testApp) writeMigration(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, ta.fs.MkdirAll("migrations", 0o755))
	require.NoError(t, vfs.WriteFile(ta.fs, "migrations/"+name, []byte(content), 0o644))
}

type mockEnv struct {
	mx  sync.RWMutex
	env map[string]string
}

var _ actx.Environment = (*mockEnv)(nil)

func (me *mockEnv) Get(key string) string {
	me.mx.RLock()
	defer me.mx.RUnlock()
	return me.env[key]
}

func (me *mockEnv) Set(key, val string) error {
	me.mx.Lock()
	defer me.mx.Unlock()
	me.env[key] = val
	return nil
}

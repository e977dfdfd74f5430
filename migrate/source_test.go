package migrate

import (
	"testing"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, files map[string]string) *Source {
	t.Helper()
	fs := memoryfs.New()
	require.NoError(t, fs.MkdirAll("migrations", 0o755))
	for name, content := range files {
		require.NoError(t, vfs.WriteFile(fs, "migrations/"+name, []byte(content), 0o644))
	}
	return NewSource(fs, "migrations")
}

func TestSourceList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		files  map[string]string
		expErr error
		exp    []Migration
	}{
		{
			name: "ok/simple_and_reversible_sorted",
			files: map[string]string{
				"0002_add_index.up.sql":   "",
				"0002_add_index.down.sql": "",
				"0001_create_table.sql":   "",
				"0010_seed_data.sql":      "",
			},
			exp: []Migration{
				{Version: 1, Name: "create_table", Mode: Simple},
				{Version: 2, Name: "add_index", Mode: Reversible},
				{Version: 10, Name: "seed_data", Mode: Simple},
			},
		},
		{
			name: "ok/skips_unrelated_files",
			files: map[string]string{
				"README.md":       "docs",
				"notes.sql":       "-- not a migration",
				"0001_create.sql": "",
			},
			exp: []Migration{{Version: 1, Name: "create", Mode: Simple}},
		},
		{
			name:  "ok/empty_directory",
			files: map[string]string{},
			exp:   nil,
		},
		{
			name:  "ok/only_unrelated_files",
			files: map[string]string{"README.md": "docs"},
			exp:   nil,
		},
		{
			name:   "err/wrong_digit_width",
			files:  map[string]string{"001_create.sql": ""},
			expErr: ErrMalformedName,
		},
		{
			name:   "err/five_digit_version",
			files:  map[string]string{"00001_create.sql": ""},
			expErr: ErrMalformedName,
		},
		{
			name:   "err/bad_separator",
			files:  map[string]string{"0001-create.sql": ""},
			expErr: ErrMalformedName,
		},
		{
			name:   "err/unknown_suffix",
			files:  map[string]string{"0001_create.mid.sql": ""},
			expErr: ErrMalformedName,
		},
		{
			name:   "err/missing_down_half",
			files:  map[string]string{"0001_create.up.sql": ""},
			expErr: ErrMalformedName,
		},
		{
			name:   "err/missing_up_half",
			files:  map[string]string{"0001_create.down.sql": ""},
			expErr: ErrMalformedName,
		},
		{
			name: "err/pair_name_mismatch",
			files: map[string]string{
				"0001_create.up.sql": "",
				"0001_make.down.sql": "",
			},
			expErr: ErrMalformedName,
		},
		{
			name: "err/duplicate_version_simple_and_pair",
			files: map[string]string{
				"0001_x.sql":      "",
				"0001_y.up.sql":   "",
				"0001_y.down.sql": "",
			},
			expErr: ErrDuplicateVersion,
		},
		{
			name: "err/duplicate_version_two_pairs",
			files: map[string]string{
				"0001_a.up.sql":   "",
				"0001_a.down.sql": "",
				"0001_b.up.sql":   "",
				"0001_b.down.sql": "",
			},
			expErr: ErrDuplicateVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			source := newTestSource(t, tt.files)
			got, err := source.List()
			if tt.expErr != nil {
				require.ErrorIs(t, err, tt.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exp, got)

			// Listing must be deterministic.
			again, err := source.List()
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestSourceListMissingDirectory(t *testing.T) {
	t.Parallel()

	source := NewSource(memoryfs.New(), "does/not/exist")
	got, err := source.List()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSourceLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		migration Migration
		direction Direction
		expErr    error
		exp       []string
	}{
		{
			name: "ok/strips_comments_and_splits",
			content: "-- create the table\nCREATE TABLE t (id UInt64)\nENGINE = Memory;\n" +
				"  -- indented comment\nINSERT INTO t VALUES (1);\n",
			migration: Migration{Version: 1, Name: "create", Mode: Simple},
			direction: Up,
			exp: []string{
				"CREATE TABLE t (id UInt64)\nENGINE = Memory",
				"INSERT INTO t VALUES (1)",
			},
		},
		{
			name:      "ok/empty_file_is_noop",
			content:   "",
			migration: Migration{Version: 1, Name: "noop", Mode: Simple},
			direction: Up,
			exp:       nil,
		},
		{
			name:      "ok/all_comments_is_noop",
			content:   "-- nothing here\n-- nothing at all\n",
			migration: Migration{Version: 1, Name: "noop", Mode: Simple},
			direction: Up,
			exp:       nil,
		},
		{
			name:      "ok/trailing_semicolon_and_blank_statements",
			content:   "DROP TABLE IF EXISTS t;;\n;\n",
			migration: Migration{Version: 1, Name: "drop", Mode: Simple},
			direction: Up,
			exp:       []string{"DROP TABLE IF EXISTS t"},
		},
		{
			name:      "err/simple_has_no_down",
			content:   "SELECT 1;",
			migration: Migration{Version: 1, Name: "create", Mode: Simple},
			direction: Down,
			expErr:    ErrIrreversible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			source := newTestSource(t, map[string]string{
				tt.migration.Filename(Up): tt.content,
			})
			got, err := source.Load(tt.migration, tt.direction)
			if tt.expErr != nil {
				require.ErrorIs(t, err, tt.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exp, got)
		})
	}
}

func TestSourceLoadReversible(t *testing.T) {
	t.Parallel()

	source := newTestSource(t, map[string]string{
		"0001_create.up.sql":   "CREATE TABLE t (id UInt64) ENGINE = Memory;",
		"0001_create.down.sql": "DROP TABLE IF EXISTS t;",
	})
	m := Migration{Version: 1, Name: "create", Mode: Reversible}

	up, err := source.Load(m, Up)
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE TABLE t (id UInt64) ENGINE = Memory"}, up)

	down, err := source.Load(m, Down)
	require.NoError(t, err)
	assert.Equal(t, []string{"DROP TABLE IF EXISTS t"}, down)
}

func TestSourceNextVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		files  map[string]string
		expErr error
		exp    Version
	}{
		{
			name:  "ok/empty_directory_starts_at_one",
			files: map[string]string{},
			exp:   1,
		},
		{
			name:  "ok/one_past_max",
			files: map[string]string{"0001_a.sql": "", "0007_b.sql": ""},
			exp:   8,
		},
		{
			name:   "err/version_space_exhausted",
			files:  map[string]string{"9999_last.sql": ""},
			expErr: ErrVersionOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			source := newTestSource(t, tt.files)
			got, err := source.NextVersion()
			if tt.expErr != nil {
				require.ErrorIs(t, err, tt.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exp, got)
		})
	}
}

func TestSourceCreate(t *testing.T) {
	t.Parallel()

	t.Run("ok/simple", func(t *testing.T) {
		t.Parallel()
		source := newTestSource(t, map[string]string{"0001_init.sql": ""})
		paths, err := source.Create("add_users", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"migrations/0002_add_users.sql"}, paths)

		content, err := vfs.ReadFile(source.fs, paths[0])
		require.NoError(t, err)
		assert.Contains(t, string(content), "0002: add_users")
	})

	t.Run("ok/reversible_pair", func(t *testing.T) {
		t.Parallel()
		source := newTestSource(t, map[string]string{})
		paths, err := source.Create("init", true)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"migrations/0001_init.up.sql",
			"migrations/0001_init.down.sql",
		}, paths)

		// The new pair must itself be listable.
		migrations, err := source.List()
		require.NoError(t, err)
		require.Len(t, migrations, 1)
		assert.Equal(t, Migration{Version: 1, Name: "init", Mode: Reversible}, migrations[0])
	})

	t.Run("err/invalid_name", func(t *testing.T) {
		t.Parallel()
		source := newTestSource(t, map[string]string{})
		_, err := source.Create("bad name!", false)
		require.ErrorIs(t, err, ErrMalformedName)
	})
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expErr error
		exp    Version
	}{
		{name: "ok/min", input: "0000", exp: 0},
		{name: "ok/padded", input: "0042", exp: 42},
		{name: "ok/max", input: "9999", exp: 9999},
		{name: "err/too_short", input: "042", expErr: ErrMalformedName},
		{name: "err/too_long", input: "00042", expErr: ErrMalformedName},
		{name: "err/not_digits", input: "00x2", expErr: ErrMalformedName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseVersion(tt.input)
			if tt.expErr != nil {
				require.ErrorIs(t, err, tt.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exp, got)

			// Formatting and re-parsing must round-trip.
			again, err := ParseVersion(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

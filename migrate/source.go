package migrate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mandelsoft/vfs/pkg/vfs"
)

// Migration file name grammar: a 4-digit zero-padded version, an underscore,
// a [A-Za-z0-9_] slug, and either a plain .sql suffix (simple) or an
// .up.sql/.down.sql pair (reversible).
var (
	fileRx = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_]+)(?:\.(up|down))?\.sql$`)
	nameRx = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Source reads migrations from a directory on a filesystem. It is stateless;
// the directory is rescanned on every call.
type Source struct {
	fs  vfs.FileSystem
	dir string
}

// NewSource creates a migration source for the given directory.
func NewSource(fs vfs.FileSystem, dir string) *Source {
	return &Source{fs: fs, dir: dir}
}

// Dir returns the migrations directory path.
func (s *Source) Dir() string {
	return s.dir
}

// halves tracks which files were seen for a single version and name.
type halves struct {
	simple bool
	up     bool
	down   bool
}

// List scans the migrations directory non-recursively and returns all
// migrations sorted by ascending version. Files that don't look like
// migrations (no leading digit, or not ending in .sql) are skipped silently;
// files that do but violate the grammar fail with ErrMalformedName, and
// version collisions fail with ErrDuplicateVersion.
func (s *Source) List() ([]Migration, error) {
	entries, err := vfs.ReadDir(s.fs, s.dir)
	if err != nil {
		if vfs.IsErrNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed reading migrations directory %q: %w", s.dir, err)
	}

	seen := map[Version]map[string]*halves{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		if !strings.HasSuffix(fileName, ".sql") || !startsWithDigit(fileName) {
			continue
		}

		m := fileRx.FindStringSubmatch(fileName)
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedName, fileName)
		}
		version, err := ParseVersion(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, fileName)
		}

		names, ok := seen[version]
		if !ok {
			names = map[string]*halves{}
			seen[version] = names
		}
		h, ok := names[m[2]]
		if !ok {
			h = &halves{}
			names[m[2]] = h
		}
		switch m[3] {
		case "up":
			h.up = true
		case "down":
			h.down = true
		default:
			h.simple = true
		}
	}

	// A directory without migrations reads the same as a missing one.
	if len(seen) == 0 {
		return nil, nil
	}

	migrations := make([]Migration, 0, len(seen))
	for version, names := range seen {
		m, err := resolveVersion(version, names)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// resolveVersion validates all files seen for a single version and collapses
// them into one migration.
func resolveVersion(version Version, names map[string]*halves) (Migration, error) {
	if len(names) > 1 {
		if upDownNameMismatch(names) {
			return Migration{}, fmt.Errorf(
				"%w: up and down files of version %s have different names",
				ErrMalformedName, version)
		}
		return Migration{}, fmt.Errorf("%w: %s", ErrDuplicateVersion, version)
	}

	for name, h := range names {
		m := Migration{Version: version, Name: name}
		switch {
		case h.simple && (h.up || h.down):
			return Migration{}, fmt.Errorf("%w: %s", ErrDuplicateVersion, version)
		case h.simple:
			return m, nil
		case h.up != h.down:
			half := "down"
			if h.down {
				half = "up"
			}
			return Migration{}, fmt.Errorf("%w: version %s is missing its %s file",
				ErrMalformedName, version, half)
		default:
			m.Mode = Reversible
			return m, nil
		}
	}

	return Migration{}, fmt.Errorf("%w: %s", ErrMalformedName, version)
}

// upDownNameMismatch reports whether the version's files are exactly one up
// and one down half under different names, which is a naming error rather
// than a version conflict.
func upDownNameMismatch(names map[string]*halves) bool {
	if len(names) != 2 {
		return false
	}
	var ups, downs, other int
	for _, h := range names {
		switch {
		case h.simple, h.up && h.down:
			other++
		case h.up:
			ups++
		case h.down:
			downs++
		}
	}
	return ups == 1 && downs == 1 && other == 0
}

// Load reads the migration's payload for the given direction and splits it
// into executable statements. Full-line comments are stripped, statements are
// split on ';' and trimmed, and empty statements are discarded. A migration
// with zero statements is legal.
func (s *Source) Load(m Migration, dir Direction) ([]string, error) {
	if dir == Down && m.Mode != Reversible {
		return nil, fmt.Errorf("%w: %s_%s", ErrIrreversible, m.Version, m.Name)
	}

	path := filepath.Join(s.dir, m.Filename(dir))
	content, err := vfs.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed reading migration file %q: %w", path, err)
	}

	return splitStatements(string(content)), nil
}

func splitStatements(content string) []string {
	var sb strings.Builder
	for line := range strings.Lines(content) {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		sb.WriteString(line)
	}

	var stmts []string
	for _, raw := range strings.Split(sb.String(), ";") {
		if stmt := strings.TrimSpace(raw); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}

	return stmts
}

// NextVersion returns the version the next migration should use: one past the
// highest existing version, or 1 for an empty directory.
func (s *Source) NextVersion() (Version, error) {
	migrations, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(migrations) == 0 {
		return 1, nil
	}

	last := migrations[len(migrations)-1].Version
	if last >= maxVersion {
		return 0, fmt.Errorf("%w: cannot go past version %s", ErrVersionOverflow, maxVersion)
	}

	return last + 1, nil
}

// Create writes a new empty migration with the next available version and
// returns the created file paths.
func (s *Source) Create(name string, reversible bool) ([]string, error) {
	if !nameRx.MatchString(name) {
		return nil, fmt.Errorf("%w: name %q may only contain letters, digits and underscores",
			ErrMalformedName, name)
	}

	version, err := s.NextVersion()
	if err != nil {
		return nil, err
	}
	if err = s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating migrations directory %q: %w", s.dir, err)
	}

	m := Migration{Version: version, Name: name}
	dirs := []Direction{Up}
	if reversible {
		m.Mode = Reversible
		dirs = append(dirs, Down)
	}

	var paths []string
	for _, d := range dirs {
		path := filepath.Join(s.dir, m.Filename(d))
		content := fmt.Sprintf("-- Migration %s: %s\n-- Add SQL statements below, separated by ';'.\n",
			version, name)
		if err = vfs.WriteFile(s.fs, path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed writing migration file %q: %w", path, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

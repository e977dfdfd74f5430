package backup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chutils/chutils/ch"
)

// ErrInvalidConfig is returned when a backup or restore request is incomplete.
var ErrInvalidConfig = errors.New("invalid backup configuration")

// Store is a location backups are written to and restored from. The server
// performs all data transfer itself; the client only renders the target
// clause of BACKUP/RESTORE statements.
type Store interface {
	// Validate checks that all required fields are set.
	Validate() error
	// Target renders the store clause of a BACKUP/RESTORE statement, pointing
	// at the store root joined with the given path segments.
	Target(path ...string) string
	// Glob renders a table-function clause matching the backup metadata files
	// of all tables backed up under the given database.
	Glob(database string) string
}

// S3 stores backups in an S3-compatible object store, with the server
// performing the upload/download.
type S3 struct {
	URL       string
	AccessKey string
	SecretKey string
	// Prefix is an optional path under the bucket root.
	Prefix string
}

var _ Store = S3{}

// Validate implements the Store interface.
func (s S3) Validate() error {
	switch {
	case s.URL == "":
		return fmt.Errorf("%w: S3 URL must be specified", ErrInvalidConfig)
	case s.AccessKey == "":
		return fmt.Errorf("%w: S3 access key must be specified", ErrInvalidConfig)
	case s.SecretKey == "":
		return fmt.Errorf("%w: S3 secret key must be specified", ErrInvalidConfig)
	}
	return nil
}

func (s S3) root() string {
	if s.Prefix == "" {
		return s.URL
	}
	return joinPath(s.URL, s.Prefix)
}

// Target implements the Store interface.
func (s S3) Target(path ...string) string {
	return fmt.Sprintf("S3(%s, %s, %s)",
		ch.QuoteString(joinPath(s.root(), path...)),
		ch.QuoteString(s.AccessKey), ch.QuoteString(s.SecretKey))
}

// Glob implements the Store interface.
func (s S3) Glob(database string) string {
	return fmt.Sprintf("s3(%s, %s, %s)",
		ch.QuoteString(joinPath(s.root(), database, "*", ".backup")),
		ch.QuoteString(s.AccessKey), ch.QuoteString(s.SecretKey))
}

// Disk stores backups on a disk configured in the server's storage
// configuration.
type Disk struct {
	Name string
	Path string
}

var _ Store = Disk{}

// Validate implements the Store interface.
func (d Disk) Validate() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: disk name must be specified", ErrInvalidConfig)
	case d.Path == "":
		return fmt.Errorf("%w: disk path must be specified", ErrInvalidConfig)
	}
	return nil
}

// Target implements the Store interface.
func (d Disk) Target(path ...string) string {
	return fmt.Sprintf("DISK(%s, %s)",
		ch.QuoteString(d.Name), ch.QuoteString(joinPath(d.Path, path...)))
}

// Glob implements the Store interface.
func (d Disk) Glob(database string) string {
	return fmt.Sprintf("disk(%s, %s)",
		ch.QuoteString(d.Name),
		ch.QuoteString(joinPath(d.Path, database, "*", ".backup")))
}

// File stores backups in a path on the server's local filesystem.
type File struct {
	Path string
}

var _ Store = File{}

// Validate implements the Store interface.
func (f File) Validate() error {
	if f.Path == "" {
		return fmt.Errorf("%w: file path must be specified", ErrInvalidConfig)
	}
	return nil
}

// Target implements the Store interface.
func (f File) Target(path ...string) string {
	return fmt.Sprintf("FILE(%s)", ch.QuoteString(joinPath(f.Path, path...)))
}

// Glob implements the Store interface.
func (f File) Glob(database string) string {
	return fmt.Sprintf("file(%s)", ch.QuoteString(joinPath(f.Path, database, "*", ".backup")))
}

func joinPath(root string, path ...string) string {
	parts := append([]string{strings.TrimRight(root, "/")}, path...)
	for i := 1; i < len(parts); i++ {
		parts[i] = strings.Trim(parts[i], "/")
	}
	return strings.Join(parts, "/")
}

package migrate

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedName means a file looks like a migration but violates the
	// naming grammar.
	ErrMalformedName = errors.New("malformed migration file name")
	// ErrDuplicateVersion means two migrations claim the same version.
	ErrDuplicateVersion = errors.New("duplicate migration version")
	// ErrMissingFile means the ledger references a version with no
	// corresponding local file.
	ErrMissingFile = errors.New("migration file missing locally")
	// ErrIrreversible means a down plan includes a migration without a down
	// payload.
	ErrIrreversible = errors.New("migration is not reversible")
	// ErrLedgerSchema means the ledger table exists with an incompatible shape.
	ErrLedgerSchema = errors.New("incompatible migration ledger schema")
	// ErrVersionOverflow means the 4-digit version space is exhausted.
	ErrVersionOverflow = errors.New("migration version space exhausted")
)

// ExecError is returned when executing a migration or updating the ledger for
// it fails. Migrations completed earlier in the same batch stay applied or
// reverted; only the remaining batch is abandoned.
type ExecError struct {
	Version Version
	Name    string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("migration %s_%s failed: %v", e.Version, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecError) Unwrap() error {
	return e.Err
}

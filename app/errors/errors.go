// Package errors provides error types that carry structured metadata, which
// the CLI renders through slog on failure.
package errors

import (
	"errors"
	"log/slog"
	"maps"
	"slices"
)

// Log reports an error via the default slog logger. A StructuredError
// anywhere in the chain contributes its cause and metadata as log
// attributes, with keys in stable sorted order.
func Log(err error) {
	var serr *StructuredError
	if !errors.As(err, &serr) {
		slog.Error(err.Error())
		return
	}

	args := make([]any, 0, len(serr.metadata)*2+2)

	// An explicit cause wins over a "cause" metadata key.
	cause := serr.metadata["cause"]
	if serr.cause != nil {
		cause = serr.cause
	}
	if cause != nil {
		args = append(args, "cause", cause)
	}

	for _, k := range slices.Sorted(maps.Keys(serr.metadata)) {
		if k == "cause" {
			continue
		}
		args = append(args, k, serr.metadata[k])
	}

	slog.Error(serr.Error(), args...)
}

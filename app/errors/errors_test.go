package errors

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// captureLog swaps the default logger for one writing to a buffer for the
// duration of fn. Tests using it must not run in parallel.
func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	fn()
	return buf.String()
}

func TestLog(t *testing.T) {
	t.Run("ok/plain_error", func(t *testing.T) {
		out := captureLog(t, func() {
			Log(errors.New("something broke"))
		})
		assert.Contains(t, out, `msg="something broke"`)
	})

	t.Run("ok/metadata_sorted_after_cause", func(t *testing.T) {
		err := NewWithCause("request failed", errors.New("timeout"),
			"beta", 2, "alpha", 1)
		out := captureLog(t, func() {
			Log(err)
		})
		assert.Contains(t, out, `msg="request failed"`)
		assert.Contains(t, out, "cause=timeout alpha=1 beta=2")
	})

	t.Run("ok/cause_field_wins_over_metadata_key", func(t *testing.T) {
		err := NewWithCause("request failed", errors.New("real cause"),
			"cause", "stale metadata")
		out := captureLog(t, func() {
			Log(err)
		})
		assert.Contains(t, out, `cause="real cause"`)
		assert.NotContains(t, out, "stale metadata")
	})

	t.Run("ok/wrapped_structured_error", func(t *testing.T) {
		err := With(errors.New("inner"), "key", "val")
		out := captureLog(t, func() {
			Log(err)
		})
		assert.Contains(t, out, "msg=inner")
		assert.Contains(t, out, "key=val")
	})
}

// Package testutil provides fakes and helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/koustreak/dbconnector/internal/logger"
)

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *logger.Logger {
	t.Helper()
	return logger.New(&logger.Config{
		Level:  "debug",
		Format: "console",
		Output: testWriter{t},
	})
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

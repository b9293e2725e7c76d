package testutil

import (
	"bytes"
	"log"
	"strings"
	"sync"
)

// LogCapture collects the output of one or more *log.Logger values so tests
// can assert on what the daemon logged.
type LogCapture struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

// NewLogCapture creates an empty capture.
func NewLogCapture() *LogCapture {
	return &LogCapture{}
}

// Logger returns a logger writing into the capture with the given prefix.
func (lc *LogCapture) Logger(prefix string) *log.Logger {
	return log.New(lc, prefix, 0)
}

// Write implements io.Writer.
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// String returns all captured log output
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Contains checks if the log output contains the given substring
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

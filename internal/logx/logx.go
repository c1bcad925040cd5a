package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Options controls where log output goes.
type Options struct {
	// Verbose mirrors debug output to Stderr.
	Verbose bool
	// Stderr receives the mirrored output; nil means os.Stderr.
	Stderr io.Writer
}

// New creates a logger that writes to a timestamped file inside logsDir. The
// returned closer should be closed when logging is no longer needed.
func New(logsDir string, opts Options) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	filePath := filepath.Join(logsDir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = file
	if opts.Verbose {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		out = io.MultiWriter(file, stderr)
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000000",
		Level:           log.InfoLevel,
	})
	if opts.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger, file, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// Component returns l scoped with a prefix naming the component.
func Component(l *log.Logger, name string) *log.Logger {
	return OrDiscard(l).WithPrefix(name)
}

package logger

import (
	"io"
	"log/slog"
	"os"
)

// New builds the process logger. Output goes to stdout and, when file is
// non-empty, is mirrored into that file. The file handle is returned so
// main can close it on shutdown; it is nil when no file was requested.
func New(level slog.Level, file string) (*slog.Logger, io.Closer, error) {
	var (
		writer io.Writer = os.Stdout
		closer io.Closer
	)
	if file != "" {
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			return nil, nil, err
		}
		writer = io.MultiWriter(os.Stdout, f)
		closer = f
	}
	return newWithWriter(writer, level), closer, nil
}

func newWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

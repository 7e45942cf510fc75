package backend

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/papercomputeco/mnemo/pkg/logger"
)

// NewLogger builds the CLI logger: colorized output when w is a terminal,
// JSON lines otherwise. lv, when set, lets the level change at runtime.
func NewLogger(w io.Writer, debug bool, lv *slog.LevelVar) *slog.Logger {
	tty := IsTerminal(w)
	opts := []logger.Option{
		logger.WithWriter(w),
		logger.WithDebug(debug),
		logger.WithPretty(tty),
		logger.WithJSON(!tty),
	}
	if lv != nil {
		opts = append(opts, logger.WithLevelVar(lv))
	}
	return logger.New(opts...)
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// WithMirror returns a logger that also writes every record as JSON to
// mirror. A nil mirror returns l unchanged.
func WithMirror(l *slog.Logger, mirror io.Writer, debug bool, lv *slog.LevelVar) *slog.Logger {
	if mirror == nil {
		return l
	}
	opts := []logger.Option{
		logger.WithWriter(mirror),
		logger.WithDebug(debug),
		logger.WithJSON(true),
	}
	if lv != nil {
		opts = append(opts, logger.WithLevelVar(lv))
	}
	return logger.Multi(l, logger.New(opts...))
}

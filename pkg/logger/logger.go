// Package logger builds the *slog.Logger values shared by mnemo components.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level    slog.Level
	levelVar *slog.LevelVar
	pretty   bool
	json     bool
	writer   io.Writer
}

// New builds a logger from opts. Without options it writes slog's text
// format at Info level to os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo, writer: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	if c.writer == nil {
		c.writer = os.Stdout
	}

	var leveler slog.Leveler = c.level
	if c.levelVar != nil {
		c.levelVar.Set(c.level)
		leveler = c.levelVar
	}

	var h slog.Handler
	switch {
	case c.pretty:
		// charmlog filters on its own level, so it is opened fully and
		// gated by leveler instead.
		h = &levelGate{
			leveler: leveler,
			next: charmlog.NewWithOptions(c.writer, charmlog.Options{
				Level:           charmlog.DebugLevel,
				ReportTimestamp: true,
			}),
		}
	case c.json:
		h = slog.NewJSONHandler(c.writer, &slog.HandlerOptions{Level: leveler})
	default:
		h = slog.NewTextHandler(c.writer, &slog.HandlerOptions{Level: leveler})
	}
	return slog.New(h)
}

type levelGate struct {
	leveler slog.Leveler
	next    slog.Handler
}

func (g *levelGate) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= g.leveler.Level() && g.next.Enabled(ctx, level)
}

func (g *levelGate) Handle(ctx context.Context, r slog.Record) error {
	return g.next.Handle(ctx, r)
}

func (g *levelGate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelGate{leveler: g.leveler, next: g.next.WithAttrs(attrs)}
}

func (g *levelGate) WithGroup(name string) slog.Handler {
	return &levelGate{leveler: g.leveler, next: g.next.WithGroup(name)}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

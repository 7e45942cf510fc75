package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/logger"
)

func decodeLines(buf *bytes.Buffer) []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		Expect(json.Unmarshal([]byte(line), &rec)).To(Succeed())
		out = append(out, rec)
	}
	return out
}

var timeZero time.Time

type failingHandler struct{ calls *int }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (f failingHandler) Handle(context.Context, slog.Record) error {
	*f.calls++
	return errors.New("disk full")
}
func (f failingHandler) WithAttrs([]slog.Attr) slog.Handler { return f }
func (f failingHandler) WithGroup(string) slog.Handler      { return f }

var _ = Describe("New", func() {
	It("writes text at info level by default", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf))

		l.Debug("dropped")
		l.Info("message ingested", "message_id", 7)

		Expect(buf.String()).NotTo(ContainSubstring("dropped"))
		Expect(buf.String()).To(ContainSubstring("message ingested"))
		Expect(buf.String()).To(ContainSubstring("message_id=7"))
	})

	It("emits debug records with WithDebug", func() {
		var buf bytes.Buffer
		logger.New(logger.WithWriter(&buf), logger.WithDebug(true)).Debug("job claimed")
		Expect(buf.String()).To(ContainSubstring("job claimed"))
	})

	It("writes one JSON object per record", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))

		l.With("component", "worker").Info("memory recorded", "attempt", 2)
		l.WithGroup("media").Warn("upload skipped", "hash", "ab12")

		recs := decodeLines(&buf)
		Expect(recs).To(HaveLen(2))
		Expect(recs[0]).To(HaveKeyWithValue("component", "worker"))
		Expect(recs[0]).To(HaveKeyWithValue("attempt", BeNumerically("==", 2)))
		Expect(recs[1]).To(HaveKeyWithValue("media", HaveKeyWithValue("hash", "ab12")))
	})

	It("prefers the pretty handler over JSON", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithJSON(true))
		l.Info("server listening")

		Expect(buf.String()).To(ContainSubstring("server listening"))
		Expect(strings.TrimSpace(buf.String())).NotTo(HavePrefix("{"))
	})

	DescribeTable("follows a LevelVar",
		func(pretty, json bool) {
			var buf bytes.Buffer
			lv := new(slog.LevelVar)
			l := logger.New(
				logger.WithWriter(&buf),
				logger.WithPretty(pretty),
				logger.WithJSON(json),
				logger.WithLevelVar(lv),
			)
			Expect(lv.Level()).To(Equal(slog.LevelInfo))

			l.Debug("before reload")
			lv.Set(slog.LevelDebug)
			l.Debug("after reload")
			lv.Set(slog.LevelError)
			l.Warn("after raise")

			Expect(buf.String()).NotTo(ContainSubstring("before reload"))
			Expect(buf.String()).To(ContainSubstring("after reload"))
			Expect(buf.String()).NotTo(ContainSubstring("after raise"))
		},
		Entry("text", false, false),
		Entry("json", false, true),
		Entry("pretty", true, false),
	)

	It("seeds the LevelVar from WithDebug", func() {
		lv := new(slog.LevelVar)
		logger.New(logger.WithWriter(&bytes.Buffer{}), logger.WithDebug(true), logger.WithLevelVar(lv))
		Expect(lv.Level()).To(Equal(slog.LevelDebug))
	})
})

var _ = Describe("Nop", func() {
	It("is disabled at every level", func() {
		h := logger.Nop().Handler()
		for _, lvl := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelError} {
			Expect(h.Enabled(context.Background(), lvl)).To(BeFalse())
		}
		Expect(func() { logger.Nop().With("k", "v").WithGroup("g").Error("x") }).NotTo(Panic())
	})
})

var _ = Describe("Multi", func() {
	It("gives each logger the records its own level admits", func() {
		var info, debug bytes.Buffer
		l := logger.Multi(
			logger.New(logger.WithWriter(&info), logger.WithJSON(true)),
			logger.New(logger.WithWriter(&debug), logger.WithJSON(true), logger.WithDebug(true)),
		)

		l.Debug("retrying insert")
		l.With("user_id", 3).Info("user resolved")

		Expect(decodeLines(&info)).To(HaveLen(1))
		debugRecs := decodeLines(&debug)
		Expect(debugRecs).To(HaveLen(2))
		Expect(debugRecs[1]).To(HaveKeyWithValue("user_id", BeNumerically("==", 3)))
	})

	It("keeps groups on every branch", func() {
		var a, b bytes.Buffer
		l := logger.Multi(
			logger.New(logger.WithWriter(&a), logger.WithJSON(true)),
			logger.New(logger.WithWriter(&b), logger.WithJSON(true)),
		)
		l.WithGroup("webhook").Info("received", "sid", "SM1")

		for _, buf := range []*bytes.Buffer{&a, &b} {
			Expect(decodeLines(buf)[0]).To(HaveKeyWithValue("webhook", HaveKeyWithValue("sid", "SM1")))
		}
	})

	It("delivers to the remaining handlers when one fails", func() {
		var buf bytes.Buffer
		calls := 0
		l := logger.Multi(
			slog.New(failingHandler{calls: &calls}),
			logger.New(logger.WithWriter(&buf)),
		)

		err := l.Handler().Handle(context.Background(), slog.NewRecord(timeZero, slog.LevelInfo, "still written", 0))

		Expect(err).To(MatchError(ContainSubstring("disk full")))
		Expect(calls).To(Equal(1))
		Expect(buf.String()).To(ContainSubstring("still written"))
	})

	It("is disabled when every branch is", func() {
		l := logger.Multi(logger.Nop(), logger.Nop())
		Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
	})
})

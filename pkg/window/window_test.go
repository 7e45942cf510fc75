package window_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/window"
)

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	Expect(err).NotTo(HaveOccurred())
	return t
}

func localTime(tz, s string) time.Time {
	loc, err := time.LoadLocation(tz)
	Expect(err).NotTo(HaveOccurred())
	t, err := time.ParseInLocation("2006-01-02T15:04", s, loc)
	Expect(err).NotTo(HaveOccurred())
	return t
}

var _ = Describe("Resolve", func() {
	Context("in a fixed offset zone", func() {
		var now time.Time

		BeforeEach(func() {
			now = localTime("Asia/Kolkata", "2024-03-01T10:00")
		})

		It("resolves today to the local day in UTC", func() {
			w, err := window.Resolve("Asia/Kolkata", "today", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Start).To(Equal(utc("2024-02-29T18:30:00Z")))
			Expect(w.End).To(Equal(utc("2024-03-01T18:30:00Z")))
			Expect(w.Duration()).To(Equal(24 * time.Hour))
			Expect(w.Contains(now)).To(BeTrue())
			Expect(w.Contains(w.End)).To(BeFalse())
		})

		It("resolves yesterday across the leap day", func() {
			w, err := window.Resolve("Asia/Kolkata", "yesterday", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Start).To(Equal(utc("2024-02-28T18:30:00Z")))
			Expect(w.End).To(Equal(utc("2024-02-29T18:30:00Z")))
		})

		It("ignores case and surrounding space", func() {
			w, err := window.Resolve("Asia/Kolkata", "  TODAY ", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Start).To(Equal(utc("2024-02-29T18:30:00Z")))
		})
	})

	Context("across daylight saving transitions", func() {
		It("makes the spring-forward day 23 hours long", func() {
			now := localTime("America/New_York", "2024-03-10T12:00")
			w, err := window.Resolve("America/New_York", "today", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Start).To(Equal(utc("2024-03-10T05:00:00Z")))
			Expect(w.End).To(Equal(utc("2024-03-11T04:00:00Z")))
			Expect(w.Duration()).To(Equal(23 * time.Hour))
		})

		It("makes the fall-back day 25 hours long", func() {
			now := localTime("America/New_York", "2024-11-03T12:00")
			w, err := window.Resolve("America/New_York", "today", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Start).To(Equal(utc("2024-11-03T04:00:00Z")))
			Expect(w.End).To(Equal(utc("2024-11-04T05:00:00Z")))
			Expect(w.Duration()).To(Equal(25 * time.Hour))
		})

		It("uses each boundary's own offset for a range spanning the change", func() {
			now := localTime("Europe/Berlin", "2024-04-15T09:00")
			w, err := window.Resolve("Europe/Berlin", "2024-03-30..2024-03-31", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Start).To(Equal(utc("2024-03-29T23:00:00Z")))
			Expect(w.End).To(Equal(utc("2024-03-31T22:00:00Z")))
		})
	})

	Context("calendar expressions", func() {
		// Friday 2024-03-01 in UTC.
		now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

		DescribeTable("boundaries",
			func(expr, start, end string) {
				w, err := window.Resolve("UTC", expr, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(w.Start).To(Equal(utc(start)))
				Expect(w.End).To(Equal(utc(end)))
			},
			Entry("tomorrow", "tomorrow", "2024-03-02T00:00:00Z", "2024-03-03T00:00:00Z"),
			Entry("this week starts Monday", "this week", "2024-02-26T00:00:00Z", "2024-03-04T00:00:00Z"),
			Entry("last week", "last week", "2024-02-19T00:00:00Z", "2024-02-26T00:00:00Z"),
			Entry("next week", "next week", "2024-03-04T00:00:00Z", "2024-03-11T00:00:00Z"),
			Entry("this month", "this month", "2024-03-01T00:00:00Z", "2024-04-01T00:00:00Z"),
			Entry("last month", "last month", "2024-02-01T00:00:00Z", "2024-03-01T00:00:00Z"),
			Entry("next month", "next month", "2024-04-01T00:00:00Z", "2024-05-01T00:00:00Z"),
			Entry("this year", "this year", "2024-01-01T00:00:00Z", "2025-01-01T00:00:00Z"),
			Entry("last year", "last year", "2023-01-01T00:00:00Z", "2024-01-01T00:00:00Z"),
			Entry("last 7 days", "last 7 days", "2024-02-24T00:00:00Z", "2024-03-02T00:00:00Z"),
			Entry("past 1 day", "past 1 day", "2024-03-01T00:00:00Z", "2024-03-02T00:00:00Z"),
			Entry("last 2 weeks", "last 2 weeks", "2024-02-17T00:00:00Z", "2024-03-02T00:00:00Z"),
			Entry("single date", "2024-02-14", "2024-02-14T00:00:00Z", "2024-02-15T00:00:00Z"),
			Entry("dotted range", "2024-02-01..2024-02-03", "2024-02-01T00:00:00Z", "2024-02-04T00:00:00Z"),
			Entry("worded range", "2024-02-01 to 2024-02-01", "2024-02-01T00:00:00Z", "2024-02-02T00:00:00Z"),
		)

		It("handles Sunday as the last day of the ISO week", func() {
			sunday := time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)
			w, err := window.Resolve("UTC", "this week", sunday)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Start).To(Equal(utc("2024-02-26T00:00:00Z")))
		})

		It("rolls last month over the year boundary", func() {
			jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
			w, err := window.Resolve("UTC", "last month", jan)
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Start).To(Equal(utc("2023-12-01T00:00:00Z")))
			Expect(w.End).To(Equal(utc("2024-01-01T00:00:00Z")))
		})
	})

	Context("timezone fallback", func() {
		now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

		It("uses UTC for unknown or empty zones", func() {
			for _, tz := range []string{"", "Mars/Olympus_Mons"} {
				w, err := window.Resolve(tz, "today", now)
				Expect(err).NotTo(HaveOccurred())
				Expect(w.Start).To(Equal(utc("2024-03-01T00:00:00Z")))
				Expect(w.Location).To(Equal(time.UTC))
			}
		})

		It("reports whether a zone is valid", func() {
			_, ok := window.LoadLocation("Mars/Olympus_Mons")
			Expect(ok).To(BeFalse())
			Expect(window.ValidTimezone("Asia/Kolkata")).To(BeTrue())
			Expect(window.ValidTimezone("")).To(BeFalse())
		})
	})

	DescribeTable("invalid expressions",
		func(expr string) {
			_, err := window.Resolve("UTC", expr, time.Now())
			Expect(err).To(MatchError(window.ErrInvalidTimeExpression))
		},
		Entry("empty", ""),
		Entry("gibberish", "whenever"),
		Entry("zero days", "last 0 days"),
		Entry("bad date", "2024-02-30"),
		Entry("reversed range", "2024-03-05..2024-03-01"),
		Entry("half range", "2024-03-05.."),
		Entry("next year is not supported", "next year"),
	)
})

var _ = Describe("Resolver", func() {
	It("uses the injected clock", func() {
		r := &window.Resolver{Now: func() time.Time { return time.Date(2024, 6, 15, 23, 30, 0, 0, time.UTC) }}
		w, err := r.Resolve("Asia/Tokyo", "today")
		Expect(err).NotTo(HaveOccurred())
		// 23:30 UTC is already the 16th in Tokyo.
		Expect(w.Start).To(Equal(utc("2024-06-15T15:00:00Z")))
	})
})

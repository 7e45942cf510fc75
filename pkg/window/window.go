// Package window resolves human date expressions ("today", "last week",
// "2024-03-01..2024-03-07") into half-open UTC ranges computed in a user's
// local calendar.
//
// Boundaries are local midnights converted to UTC with the offset in effect
// at that instant, so days spanning a daylight-saving transition are 23 or
// 25 hours long rather than shifted by a fixed offset.
package window

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeExpression is returned for expressions that cannot be parsed
// or that describe an empty or reversed range.
var ErrInvalidTimeExpression = errors.New("invalid time expression")

const dateLayout = "2006-01-02"

var rollingPattern = regexp.MustCompile(`^(?:last|past) (\d+) (day|days|week|weeks)$`)

// Window is a half-open [Start, End) range in UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Location is the zone the expression was interpreted in.
	Location *time.Location `json:"-"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration is the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + "/" + w.End.Format(time.RFC3339)
}

// LoadLocation returns the named IANA zone, or UTC when the name is empty or
// unknown. ok is false when the fallback was used for a non-empty name.
func LoadLocation(tz string) (loc *time.Location, ok bool) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, true
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// ValidTimezone reports whether tz names a loadable IANA zone.
func ValidTimezone(tz string) bool {
	if strings.TrimSpace(tz) == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// Resolve interprets expr in the calendar of tz as of now.
func Resolve(tz, expr string, now time.Time) (Window, error) {
	loc, _ := LoadLocation(tz)
	local := now.In(loc)

	normalized := strings.Join(strings.Fields(strings.ToLower(expr)), " ")
	if normalized == "" {
		return Window{}, fmt.Errorf("%w: empty expression", ErrInvalidTimeExpression)
	}

	start, end, err := parse(normalized, local)
	if err != nil {
		return Window{}, err
	}
	if !start.Before(end) {
		return Window{}, fmt.Errorf("%w: %q ends before it starts", ErrInvalidTimeExpression, expr)
	}

	return Window{Start: start.UTC(), End: end.UTC(), Location: loc}, nil
}

// Resolver resolves expressions against an injectable clock.
type Resolver struct {
	Now func() time.Time
}

// NewResolver returns a Resolver on the wall clock.
func NewResolver() *Resolver {
	return &Resolver{Now: time.Now}
}

// Resolve interprets expr in tz relative to the resolver's clock.
func (r *Resolver) Resolve(tz, expr string) (Window, error) {
	now := time.Now
	if r != nil && r.Now != nil {
		now = r.Now
	}
	return Resolve(tz, expr, now())
}

// midnight returns local midnight of the given calendar day in loc. Day and
// month overflow is normalized, so day(y, m, d+1) is the following day.
func midnight(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func parse(expr string, local time.Time) (time.Time, time.Time, error) {
	loc := local.Location()
	y, m, d := local.Date()

	switch expr {
	case "today":
		return midnight(y, m, d, loc), midnight(y, m, d+1, loc), nil
	case "yesterday":
		return midnight(y, m, d-1, loc), midnight(y, m, d, loc), nil
	case "tomorrow":
		return midnight(y, m, d+1, loc), midnight(y, m, d+2, loc), nil
	case "this week", "last week", "next week":
		// ISO weeks start on Monday.
		monday := d - (int(local.Weekday())+6)%7
		monday += 7 * shift(expr)
		return midnight(y, m, monday, loc), midnight(y, m, monday+7, loc), nil
	case "this month", "last month", "next month":
		first := m + time.Month(shift(expr))
		return midnight(y, first, 1, loc), midnight(y, first+1, 1, loc), nil
	case "this year", "last year":
		year := y + shift(expr)
		return midnight(year, time.January, 1, loc), midnight(year+1, time.January, 1, loc), nil
	}

	if match := rollingPattern.FindStringSubmatch(expr); match != nil {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeExpression, expr)
		}
		days := n
		if strings.HasPrefix(match[2], "week") {
			days = 7 * n
		}
		return midnight(y, m, d+1-days, loc), midnight(y, m, d+1, loc), nil
	}

	if from, to, ok := splitRange(expr); ok {
		start, err := parseDate(from, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		last, err := parseDate(to, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		ly, lm, ld := last.Date()
		return start, midnight(ly, lm, ld+1, loc), nil
	}

	day, err := parseDate(expr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	dy, dm, dd := day.Date()
	return day, midnight(dy, dm, dd+1, loc), nil
}

func shift(expr string) int {
	switch {
	case strings.HasPrefix(expr, "last"):
		return -1
	case strings.HasPrefix(expr, "next"):
		return 1
	}
	return 0
}

func splitRange(expr string) (string, string, bool) {
	for _, sep := range []string{"..", " to "} {
		if from, to, ok := strings.Cut(expr, sep); ok {
			return strings.TrimSpace(from), strings.TrimSpace(to), true
		}
	}
	return "", "", false
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeExpression, s)
	}
	y, m, d := t.Date()
	return midnight(y, m, d, loc), nil
}

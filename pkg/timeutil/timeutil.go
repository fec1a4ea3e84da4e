// Package timeutil provides timezone-aware calendar helpers.
// Every function takes an explicit *time.Location: evaluation runs in the
// organization's zone, never in the process zone.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// LoadLocation resolves an IANA zone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: load location %q: %w", name, err)
	}
	return loc, nil
}

// OrUTC returns loc, or UTC when loc is nil.
func OrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(OrUTC(loc))
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// StartOfWeek returns Monday 00:00 of t's ISO week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	local := t.In(OrUTC(loc))
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	monday := local.AddDate(0, 0, -(weekday - 1))
	return StartOfDay(monday, loc)
}

// EndOfWeek returns the exclusive end of t's ISO week: the next Monday 00:00.
func EndOfWeek(t time.Time, loc *time.Location) time.Time {
	start := StartOfWeek(t, loc)
	return time.Date(start.Year(), start.Month(), start.Day()+7, 0, 0, 0, 0, start.Location())
}

// IsWeekend reports whether t falls on Saturday or Sunday in loc.
func IsWeekend(t time.Time, loc *time.Location) bool {
	weekday := t.In(OrUTC(loc)).Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

// MinuteOfDay returns minutes since local midnight, 0..1439.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(OrUTC(loc))
	return local.Hour()*60 + local.Minute()
}

// Day is a calendar date without a zone.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns t's calendar date in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(OrUTC(loc)).Date()
	return Day{Year: y, Month: m, Day: d}
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return d.ordinal() < other.ordinal()
}

// ordinal counts days since the Unix epoch. Computed in UTC so DST never
// shortens or lengthens a day.
func (d Day) ordinal() int {
	return int(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// DaysBetween returns the number of calendar days from a to b (b - a).
func DaysBetween(a, b Day) int {
	return b.ordinal() - a.ordinal()
}

// IsConsecutive reports whether b is the calendar day right after a.
func IsConsecutive(a, b Day) bool {
	return DaysBetween(a, b) == 1
}

// DaysSince returns whole elapsed days from anchor to now, by duration.
func DaysSince(anchor, now time.Time) int {
	if now.Before(anchor) {
		return 0
	}
	return int(now.Sub(anchor) / (24 * time.Hour))
}

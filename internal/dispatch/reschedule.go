package dispatch

import (
	"strings"
	"time"

	"payremind/internal/store"
)

// Month names in the id-ID locale used by the message templates
// ("... tagihan untuk bulan Januari, 2026-01-31 ...").
var monthNames = [...]string{
	time.January:   "Januari",
	time.February:  "Februari",
	time.March:     "Maret",
	time.April:     "April",
	time.May:       "Mei",
	time.June:      "Juni",
	time.July:      "Juli",
	time.August:    "Agustus",
	time.September: "September",
	time.October:   "Oktober",
	time.November:  "November",
	time.December:  "Desember",
}

// NextOccurrence returns the same calendar day one month later, clamped to
// the last valid day of the target month (Jan 31 -> Feb 28, or Feb 29 in a
// leap year). Time of day and location are preserved.
func NextOccurrence(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	// time.Date normalizes month 13 to January of the next year.
	ny, nm, _ := time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location()).Date()
	if last := daysIn(ny, nm); d > last {
		d = last
	}
	return time.Date(ny, nm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RewriteMessage advances the period references embedded in a reminder
// text: the old trigger date's ISO form and its month name are swapped for
// the new values, everything else is preserved verbatim.
func RewriteMessage(msg string, old, next time.Time) string {
	out := strings.ReplaceAll(msg, old.Format("2006-01-02"), next.Format("2006-01-02"))
	if old.Month() != next.Month() {
		out = strings.ReplaceAll(out, monthNames[old.Month()], monthNames[next.Month()])
	}
	return out
}

// Successor builds the next occurrence of a just-sent recurring reminder:
// fresh ID, advanced trigger time, rewritten message, attempt counter reset.
func Successor(r store.Reminder, id int64) store.Reminder {
	next := NextOccurrence(r.TriggerAt)
	return store.Reminder{
		ID:          id,
		PhoneNumber: r.PhoneNumber,
		TriggerAt:   next,
		Message:     RewriteMessage(r.Message, r.TriggerAt, next),
		Recurring:   true,
	}
}

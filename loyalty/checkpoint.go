package loyalty

import (
	"time"
)

// =============================================================================
// CHECKPOINT WINDOW
// =============================================================================

// Window is a half-open time range [Start, End). A zero End is unbounded.
type Window struct {
	Start time.Time
	End   time.Time
}

// Lifetime is the window used by clients without checkpoints and by raffles.
var Lifetime = Window{}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return IsWithinCheckpointWindow(t, w.Start, w.End)
}

// IsUnbounded reports whether the window never ends.
func (w Window) IsUnbounded() bool { return w.End.IsZero() }

// DaysRemaining returns whole days left in the window at now, rounded up.
// ok is false for unbounded windows.
func (w Window) DaysRemaining(now time.Time) (days int, ok bool) {
	if w.IsUnbounded() {
		return 0, false
	}
	left := w.End.Sub(now)
	if left <= 0 {
		return 0, true
	}
	days = int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days, true
}

// CheckpointWindow returns the user's current checkpoint window.
//
// An explicit [TierAchievedAt, NextCheckpointAt) range is used while it
// contains now. Otherwise the window rolls forward from the anchor in
// CheckpointMonths steps, like an anniversary period, so an overdue
// evaluation never strands progress in a closed window.
func CheckpointWindow(client Client, user User, now time.Time) Window {
	if client.CheckpointMonths <= 0 {
		return Lifetime
	}

	anchor := user.CreatedAt
	if user.TierAchievedAt != nil {
		anchor = *user.TierAchievedAt
	}
	anchor = anchor.UTC()

	if user.NextCheckpointAt != nil && anchor.Before(*user.NextCheckpointAt) {
		w := Window{Start: anchor, End: user.NextCheckpointAt.UTC()}
		if w.Contains(now) {
			return w
		}
	}

	if now.Before(anchor) {
		return Window{Start: anchor, End: anchor.AddDate(0, client.CheckpointMonths, 0)}
	}

	step := client.CheckpointMonths
	elapsed := monthsBetween(anchor, now) / step * step
	// AddDate normalizes month overflow (Jan 31 + 1 month is Mar 3), so the
	// estimate can land on either side of now.
	for elapsed > 0 && anchor.AddDate(0, elapsed, 0).After(now) {
		elapsed -= step
	}
	for !now.Before(anchor.AddDate(0, elapsed+step, 0)) {
		elapsed += step
	}
	return Window{Start: anchor.AddDate(0, elapsed, 0), End: anchor.AddDate(0, elapsed+step, 0)}
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

package window

import "time"

// Policy decides whether a publication date falls inside the look-back
// window. All day arithmetic happens in Location.
type Policy struct {
	Now      func() time.Time
	Location *time.Location
}

func NewPolicy(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{Now: time.Now, Location: loc}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p Policy) Today() Date {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return DateOf(now(), p.location())
}

// Cutoff is the earliest admissible date: today minus daysBack.
func (p Policy) Cutoff(daysBack int) Date {
	return p.Today().AddDays(-daysBack)
}

// InWindow reports whether candidate is on or after cutoff.
func InWindow(candidate, cutoff Date) bool {
	if candidate.IsZero() {
		return false
	}
	return !candidate.Before(cutoff)
}

// PublishedAfter is the instant used for API-side filtering: midnight UTC
// on the cutoff day.
func (p Policy) PublishedAfter(daysBack int) time.Time {
	return p.Cutoff(daysBack).Midnight(time.UTC)
}

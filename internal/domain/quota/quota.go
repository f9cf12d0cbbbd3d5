// Package quota derives weekly submission credits from voting activity.
package quota

import "time"

// VotesPerCredit is the number of votes in a week that unlocks one more submission.
const VotesPerCredit = 100

// Status is the submission eligibility for one voter, list and week.
type Status struct {
	CanSubmit   bool `json:"can_submit"`
	MaxAllowed  int  `json:"max_allowed"`
	VotesToNext int  `json:"votes_to_next"`
	Votes       int  `json:"votes"`
	Submissions int  `json:"submissions"`
}

// Evaluate computes eligibility from the counts inside the current window.
func Evaluate(votes, submissions int) Status {
	maxAllowed := votes/VotesPerCredit + 1
	return Status{
		CanSubmit:   submissions < maxAllowed,
		MaxAllowed:  maxAllowed,
		VotesToNext: max(0, maxAllowed*VotesPerCredit-votes),
		Votes:       votes,
		Submissions: submissions,
	}
}

// Window is a half-open calendar week [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WeekWindow returns the Sunday-00:00 to next-Sunday-00:00 week containing
// now, in now's location.
func WeekWindow(now time.Time) Window {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -int(now.Weekday()))
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// Package matches persists ranked (user, job) pairs and the status a user
// gives each of them.
//
// Status graph:
//
//	pending, interested, ignored ──► any other status
//	applied                      ──► ignored
//
// A re-match run only ever writes scores; the status is owned by the user.
package matches

import "fmt"

// Status values mirror the CHECK constraint on user_job_matches.status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInterested Status = "interested"
	StatusApplied    Status = "applied"
	StatusIgnored    Status = "ignored"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusPending, StatusInterested, StatusApplied, StatusIgnored}

var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInterested, StatusApplied, StatusIgnored},
	StatusInterested: {StatusPending, StatusApplied, StatusIgnored},
	StatusApplied:    {StatusIgnored},
	StatusIgnored:    {StatusPending, StatusInterested, StatusApplied},
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusInterested, StatusApplied, StatusIgnored:
		return st, nil
	}
	return "", fmt.Errorf("unknown match status %q", s)
}

// IsTransitionAllowed returns true when a user may move a match from → to.
// Setting the current status again is always allowed and is a no-op.
func IsTransitionAllowed(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

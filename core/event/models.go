package event

import (
	"time"
)

// Event statuses
const (
	StatusOpen     = "OPEN"
	StatusClosed   = "CLOSED"
	StatusArchived = "ARCHIVED"
)

type Event struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Venue     string    `json:"venue"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckInWindow returns when check-in opens (lead before the start) and closes (the end).
func (e Event) CheckInWindow(lead time.Duration) (opens, closes time.Time) {
	return e.StartDate.Add(-lead), e.EndDate
}

// CheckInOpen reports whether t lies inside the check-in window.
func (e Event) CheckInOpen(t time.Time, lead time.Duration) bool {
	opens, closes := e.CheckInWindow(lead)
	return !t.Before(opens) && !t.After(closes)
}

type QueryFilter struct {
	Search string `query:"search"`
	Status string `query:"status"`
}

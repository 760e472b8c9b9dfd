package domain

import (
	"strings"
	"time"
)

// Schedule is the sale window [StartsAt, EndsAt).
type Schedule struct {
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
	Timezone string    `json:"timezone"`
}

func NewSchedule(startsAt, endsAt time.Time, timezone string) (Schedule, error) {
	if startsAt.IsZero() {
		return Schedule{}, invalid("startsAt", "is required")
	}
	if endsAt.IsZero() {
		return Schedule{}, invalid("endsAt", "is required")
	}
	if strings.TrimSpace(timezone) == "" {
		return Schedule{}, invalid("timezone", "cannot be empty")
	}
	if !startsAt.Before(endsAt) {
		return Schedule{}, invalid("schedule", "start time must be before end time")
	}
	return Schedule{StartsAt: startsAt, EndsAt: endsAt, Timezone: timezone}, nil
}

func (s Schedule) HasStarted(now time.Time) bool {
	return !now.Before(s.StartsAt)
}

func (s Schedule) IsActive(now time.Time) bool {
	return s.HasStarted(now) && now.Before(s.EndsAt)
}

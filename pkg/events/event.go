// Package events implements the sports event domain on top of the backend client: hosting,
// listing, joining and cancelling events.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"
)

// Status is the event lifecycle state.
type Status string

// event states
const (
	StatusOpen      Status = "open"
	StatusCancelled Status = "cancelled"
)

// capacity and title limits
const (
	MinCapacity    = 2
	MaxCapacity    = 1000
	MaxTitleLength = 120
)

// Sports lists supported sports.
var Sports = []string{"football", "basketball", "volleyball", "tennis", "padel", "badminton", "running",
	"cycling", "hockey", "other"}

// SkillLevels lists supported skill levels, empty means any.
var SkillLevels = []string{"beginner", "intermediate", "advanced"}

// Event is a hosted sports event, stored in the events table.
type Event struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Sport       string     `json:"sport" yaml:"sport"`
	Description string     `json:"description,omitempty" yaml:"description"`
	Location    string     `json:"location" yaml:"location"`
	StartsAt    time.Time  `json:"starts_at" yaml:"starts_at"`
	EndsAt      time.Time  `json:"ends_at" yaml:"ends_at"`
	Capacity    int        `json:"capacity" yaml:"capacity"`
	SkillLevel  string     `json:"skill_level,omitempty" yaml:"skill_level"`
	HostID      string     `json:"host_id" yaml:"-"`
	Status      Status     `json:"status" yaml:"-"`
	CreatedAt   *time.Time `json:"created_at,omitempty" yaml:"-"`
}

// Participant is a user who joined an event, stored in the event_participants table.
type Participant struct {
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Validate checks event fields against now, reporting all problems together.
func (e *Event) Validate(now time.Time) error {
	errs := new(multierror.Error)

	title := strings.TrimSpace(e.Title)
	switch {
	case title == "":
		errs = multierror.Append(errs, errors.New("title is required"))
	case utf8.RuneCountInString(title) > MaxTitleLength:
		errs = multierror.Append(errs, fmt.Errorf("title is longer than %d characters", MaxTitleLength))
	}
	if !stringutils.Contains(e.Sport, Sports) {
		errs = multierror.Append(errs, fmt.Errorf("unknown sport %q", e.Sport))
	}
	if strings.TrimSpace(e.Location) == "" {
		errs = multierror.Append(errs, errors.New("location is required"))
	}
	if e.Capacity < MinCapacity || e.Capacity > MaxCapacity {
		errs = multierror.Append(errs, fmt.Errorf("capacity %d is out of range %d-%d", e.Capacity, MinCapacity, MaxCapacity))
	}
	if e.SkillLevel != "" && !stringutils.Contains(e.SkillLevel, SkillLevels) {
		errs = multierror.Append(errs, fmt.Errorf("unknown skill level %q", e.SkillLevel))
	}
	if !e.StartsAt.After(now) {
		errs = multierror.Append(errs, errors.New("start time must be in the future"))
	}
	if !e.EndsAt.After(e.StartsAt) {
		errs = multierror.Append(errs, errors.New("end time must be after start time"))
	}
	return errs.ErrorOrNil()
}

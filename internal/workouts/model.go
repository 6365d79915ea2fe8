package workouts

import (
	"fmt"
	"strings"
	"time"

	"github.com/2beens/healthpulse/internal/activity"
	"github.com/2beens/healthpulse/internal/stats"
)

// Profile is the single aggregate holding all the data of one user.
type Profile struct {
	Username   string  `json:"username"`
	Age        int     `json:"age"`
	Height     float64 `json:"height"`
	Weight     float64 `json:"weight"`
	Goals      []Goal  `json:"goals"`
	Activities []Entry `json:"activities"`
}

// Goal is the user target for one activity. Duration in minutes, distance in km.
type Goal struct {
	Activity string  `json:"activity"`
	Duration float64 `json:"duration"`
	Distance float64 `json:"distance"`
	Steps    int     `json:"steps"`
}

// Entry is one logged workout. Date is a calendar day, kept as UTC midnight.
type Entry struct {
	ID       int       `json:"id"`
	Activity string    `json:"activity"`
	Date     time.Time `json:"date"`
	Duration float64   `json:"duration"`
	Distance float64   `json:"distance"`
	Steps    int       `json:"steps"`
}

func (e Entry) Record() stats.Record {
	return stats.Record{
		Activity: e.Activity,
		Date:     e.Date,
		Duration: e.Duration,
		Distance: e.Distance,
		Steps:    e.Steps,
	}
}

func (p *Profile) GoalFor(activityName string) (*Goal, bool) {
	key := activity.Key(activityName)
	for i := range p.Goals {
		if activity.Key(p.Goals[i].Activity) == key {
			goal := p.Goals[i]
			return &goal, true
		}
	}
	return nil, false
}

func (p *Profile) HasEntryOn(activityName string, day time.Time) bool {
	key := activity.Key(activityName)
	for _, e := range p.Activities {
		if activity.Key(e.Activity) == key && SameDay(e.Date, day) {
			return true
		}
	}
	return false
}

func (p *Profile) Records() []stats.Record {
	records := make([]stats.Record, 0, len(p.Activities))
	for _, e := range p.Activities {
		records = append(records, e.Record())
	}
	return records
}

// Clone returns a deep copy, so stored profiles cannot be changed by callers.
func (p *Profile) Clone() *Profile {
	clone := *p
	clone.Goals = append(make([]Goal, 0, len(p.Goals)), p.Goals...)
	clone.Activities = append(make([]Entry, 0, len(p.Activities)), p.Activities...)
	return &clone
}

// Day returns the calendar day of t in loc, as UTC midnight.
func Day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ParseDay accepts a 2006-01-02 date, or an RFC 3339 timestamp which is reduced
// to its calendar day in loc.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &ValidationError{Field: "date", Reason: "missing"}
	}

	if day, err := time.ParseInLocation(time.DateOnly, value, time.UTC); err == nil {
		return day, nil
	}

	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:  "date",
			Reason: fmt.Sprintf("[%s] is not a valid date, use YYYY-MM-DD", value),
		}
	}

	return Day(ts, loc), nil
}

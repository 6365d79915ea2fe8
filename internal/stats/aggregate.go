package stats

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/2beens/healthpulse/internal/activity"
)

var ErrUnknownFrequency = errors.New("unknown frequency")

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Monthly:
		return true
	default:
		return false
	}
}

// ParseFrequency parses the frequency name, empty value meaning monthly.
func ParseFrequency(s string) (Frequency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Monthly, nil
	}
	f := Frequency(s)
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownFrequency, s)
	}
	return f, nil
}

// Record is a single logged workout, as seen by the aggregation.
// Date carries only calendar day semantics.
type Record struct {
	Activity string
	Date     time.Time
	Duration float64
	Distance float64
	Steps    int
}

type Bucket struct {
	Name     string    `json:"name"`
	Start    time.Time `json:"start"`
	Duration float64   `json:"duration"`
	Distance float64   `json:"distance"`
	Steps    int       `json:"steps"`
	Count    int       `json:"count"`
}

// FilterByActivity keeps the records of the given activity, matched by its canonical key.
func FilterByActivity(records []Record, activityName string) []Record {
	key := activity.Key(activityName)
	filtered := make([]Record, 0, len(records))
	for _, r := range records {
		if activity.Key(r.Activity) == key {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Aggregate groups records into period buckets and sums their values.
// Buckets are returned in chronological order of their period start.
func Aggregate(records []Record, frequency Frequency) ([]Bucket, error) {
	if !frequency.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrequency, frequency)
	}

	key2bucket := make(map[string]*Bucket)
	for _, r := range records {
		name, start := PeriodOf(r.Date, frequency)
		b, ok := key2bucket[name]
		if !ok {
			b = &Bucket{
				Name:  name,
				Start: start,
			}
			key2bucket[name] = b
		}
		b.Duration += r.Duration
		b.Distance += r.Distance
		b.Steps += r.Steps
		b.Count++
	}

	buckets := make([]Bucket, 0, len(key2bucket))
	for _, b := range key2bucket {
		buckets = append(buckets, *b)
	}
	slices.SortFunc(buckets, func(a, b Bucket) int {
		return a.Start.Compare(b.Start)
	})

	return buckets, nil
}

// PeriodOf returns the bucket key and the period start for the given day:
//   - daily: the day itself, 2006-01-02
//   - weekly: monday of the ISO week (sunday is the 7th day), 2006-01-02
//   - monthly: year and non padded month, e.g. 2024-6
func PeriodOf(date time.Time, frequency Frequency) (string, time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	switch frequency {
	case Daily:
		return day.Format(time.DateOnly), day
	case Weekly:
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		monday := day.AddDate(0, 0, -(weekday - 1))
		return monday.Format(time.DateOnly), monday
	default:
		monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return fmt.Sprintf("%d-%d", day.Year(), int(day.Month())), monthStart
	}
}

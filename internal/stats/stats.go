package stats

import (
	"math"

	"github.com/2beens/healthpulse/internal/activity"
)

// DefaultWeightKg is used for calorie estimates when the user weight is unknown.
const DefaultWeightKg = 70.0

type Stats struct {
	TotalDuration  float64 `json:"totalDuration"`
	AvgDuration    float64 `json:"avgDuration"`
	TotalDistance  float64 `json:"totalDistance"`
	AvgDistance    float64 `json:"avgDistance"`
	TotalSteps     int     `json:"totalSteps"`
	AvgSteps       float64 `json:"avgSteps"`
	CaloriesBurned int     `json:"caloriesBurned"`
}

// ComputeStats derives totals, per bucket averages and the estimated calories
// burned for the activity: MET x weight (kg) x duration (h).
func ComputeStats(buckets []Bucket, weightKg float64, activityName string) Stats {
	if len(buckets) == 0 {
		return Stats{}
	}

	var s Stats
	for _, b := range buckets {
		s.TotalDuration += b.Duration
		s.TotalDistance += b.Distance
		s.TotalSteps += b.Steps
	}

	n := float64(len(buckets))
	s.AvgDuration = s.TotalDuration / n
	s.AvgDistance = s.TotalDistance / n
	s.AvgSteps = float64(s.TotalSteps) / n
	s.CaloriesBurned = Calories(activityName, weightKg, s.TotalDuration)

	return s
}

func Calories(activityName string, weightKg, durationMinutes float64) int {
	if weightKg <= 0 {
		weightKg = DefaultWeightKg
	}
	return int(math.Round(activity.MET(activityName) * weightKg * durationMinutes / 60))
}

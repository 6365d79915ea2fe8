package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2beens/healthpulse/internal/stats"
)

func TestComputeStats_NoBuckets(t *testing.T) {
	s := stats.ComputeStats(nil, 80, "Running")
	assert.Equal(t, stats.Stats{}, s)

	s = stats.ComputeStats([]stats.Bucket{}, 0, "")
	assert.Zero(t, s.AvgDuration)
	assert.Zero(t, s.AvgSteps)
	assert.Zero(t, s.AvgDistance)
	assert.Zero(t, s.CaloriesBurned)
}

func TestComputeStats_RunningCalories(t *testing.T) {
	buckets := []stats.Bucket{
		{Name: "2024-6", Duration: 60, Distance: 10, Steps: 0, Count: 2},
	}

	s := stats.ComputeStats(buckets, 70, "Running")
	assert.Equal(t, 686, s.CaloriesBurned)
	assert.Equal(t, 60.0, s.TotalDuration)
	assert.Equal(t, 60.0, s.AvgDuration)
	assert.Equal(t, 10.0, s.TotalDistance)
}

func TestComputeStats_Averages(t *testing.T) {
	buckets := []stats.Bucket{
		{Duration: 30, Steps: 5000, Distance: 4, Count: 1},
		{Duration: 45, Steps: 7000, Distance: 6, Count: 1},
	}

	s := stats.ComputeStats(buckets, 80, "walking")
	assert.Equal(t, 75.0, s.TotalDuration)
	assert.Equal(t, 37.5, s.AvgDuration)
	assert.Equal(t, 12000, s.TotalSteps)
	assert.Equal(t, 6000.0, s.AvgSteps)
	assert.Equal(t, 10.0, s.TotalDistance)
	assert.Equal(t, 5.0, s.AvgDistance)
	// 3.5 * 80 * 1.25
	assert.Equal(t, 350, s.CaloriesBurned)
}

func TestCalories(t *testing.T) {
	// unknown activity uses MET 6
	assert.Equal(t, 420, stats.Calories("Parkour", 70, 60))
	// missing weight falls back to 70kg
	assert.Equal(t, 686, stats.Calories("running", 0, 60))
	assert.Equal(t, 105, stats.Calories(" Yoga", 70, 30))
	assert.Equal(t, 0, stats.Calories("Gym", 70, 0))
}

package workouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/healthpulse/internal/activity"
	"github.com/2beens/healthpulse/internal/cache"
	"github.com/2beens/healthpulse/internal/stats"
	"github.com/2beens/healthpulse/internal/telemetry/metrics"
	"github.com/2beens/healthpulse/internal/telemetry/tracing"
)

const defaultProfileCacheTTL = 10 * time.Minute

// NewEntryParams are the raw values of a workout to log.
// Date is 2006-01-02 or an RFC 3339 timestamp.
type NewEntryParams struct {
	Username string
	Activity string
	Date     string
	Duration float64
	Distance float64
	Steps    int
}

type StatsParams struct {
	Username  string
	Activity  string
	StartDate string
	EndDate   string
}

type StatsResult struct {
	TotalDuration float64 `json:"totalDuration"`
	TotalDistance float64 `json:"totalDistance"`
	TotalSteps    int     `json:"totalSteps"`
	TotalCalories int     `json:"totalCalories"`
	Activity      string  `json:"activity"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
}

type Dashboard struct {
	Activity  string          `json:"activity"`
	Frequency stats.Frequency `json:"frequency"`
	Buckets   []stats.Bucket  `json:"buckets"`
	Stats     stats.Stats     `json:"stats"`
	Goal      *Goal           `json:"goal,omitempty"`
}

type ServiceParams struct {
	Store          Store
	Cache          cache.Cache
	CacheTTL       time.Duration
	// nil means the domain metrics are recorded but not exported
	MetricsManager *metrics.Manager
	// days (e.g. today, for the future entries check) are evaluated in this location
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	store          Store
	cache          cache.Cache
	cacheTTL       time.Duration
	metricsManager *metrics.Manager
	loc            *time.Location
	now            func() time.Time
}

func NewService(params ServiceParams) *Service {
	s := &Service{
		store:          params.Store,
		cache:          params.Cache,
		cacheTTL:       params.CacheTTL,
		metricsManager: params.MetricsManager,
		loc:            params.Location,
		now:            params.Now,
	}
	if s.cache == nil {
		s.cache = cache.NoopCache{}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = defaultProfileCacheTTL
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.metricsManager == nil {
		s.metricsManager = metrics.NewUnregisteredManager("workouts")
	}
	return s
}

// Today returns the current calendar day in the service location.
func (s *Service) Today() time.Time {
	return Day(s.now(), s.loc)
}

// RecordEntry logs a workout. It fails with ErrFutureDate for days after today,
// ErrNoGoal when the user has no goal for the activity and ErrDuplicateEntry
// when the activity was already logged on that day.
func (s *Service) RecordEntry(ctx context.Context, params NewEntryParams) (_ *Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.recordEntry")
	defer func() {
		if err != nil {
			s.metricsManager.CounterEntriesRejected.WithLabelValues(rejectReason(err)).Inc()
		}
		tracing.EndSpanWithErrCheck(span, err)
	}()

	username := strings.TrimSpace(params.Username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "missing"}
	}
	if activity.Key(params.Activity) == "" {
		return nil, &ValidationError{Field: "activity", Reason: "missing"}
	}
	span.SetAttributes(
		attribute.String("username", username),
		attribute.String("activity", params.Activity),
	)

	day, err := ParseDay(params.Date, s.loc)
	if err != nil {
		return nil, err
	}
	if day.After(s.Today()) {
		return nil, ErrFutureDate
	}

	profile, err := s.loadProfile(ctx, username)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrNoGoals
		}
		return nil, err
	}

	if _, ok := profile.GoalFor(params.Activity); !ok {
		return nil, ErrNoGoal
	}

	if err := validateEntryValues(params); err != nil {
		return nil, err
	}

	if profile.HasEntryOn(params.Activity, day) {
		return nil, ErrDuplicateEntry
	}

	entry, err := s.store.AppendEntry(ctx, username, Entry{
		Activity: activity.Normalize(params.Activity),
		Date:     day,
		Duration: params.Duration,
		Distance: params.Distance,
		Steps:    params.Steps,
	})
	s.invalidateProfile(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}

	s.metricsManager.CounterEntriesRecorded.WithLabelValues(metricsActivityLabel(entry.Activity)).Inc()
	log.Debugf("entry [%d] recorded for [%s]: %s on %s", entry.ID, username, entry.Activity, entry.Date.Format(time.DateOnly))

	return entry, nil
}

// UpsertGoal sets the goal of the activity, replacing the previous one as a whole.
// The profile is created if it does not exist yet.
func (s *Service) UpsertGoal(ctx context.Context, params UpsertGoalParams) (_ *Goal, created bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.upsertGoal")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	params.Username = strings.TrimSpace(params.Username)
	if err := validateGoalParams(params); err != nil {
		return nil, false, err
	}
	params.Goal.Activity = activity.Normalize(params.Goal.Activity)
	span.SetAttributes(
		attribute.String("username", params.Username),
		attribute.String("activity", params.Goal.Activity),
	)

	goal, created, err := s.store.UpsertGoal(ctx, params)
	s.invalidateProfile(ctx, params.Username)
	if err != nil {
		return nil, false, fmt.Errorf("upsert goal: %w", err)
	}

	result := "updated"
	if created {
		result = "created"
	}
	s.metricsManager.CounterGoalsUpserted.WithLabelValues(result).Inc()
	log.Debugf("goal %s for [%s]: %+v", result, params.Username, *goal)

	return goal, created, nil
}

// HasGoal looks up the goal of the activity. A missing profile means no goal.
func (s *Service) HasGoal(ctx context.Context, username, activityName string) (bool, *Goal, error) {
	profile, err := s.loadProfile(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}

	goal, ok := profile.GoalFor(activityName)
	return ok, goal, nil
}

func (s *Service) GetProfile(ctx context.Context, username string) (*Profile, error) {
	return s.loadProfile(ctx, strings.TrimSpace(username))
}

// ListEntries returns all the user entries, empty if the user is not known.
func (s *Service) ListEntries(ctx context.Context, username string) ([]Entry, error) {
	profile, err := s.loadProfile(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return []Entry{}, nil
		}
		return nil, err
	}
	if profile.Activities == nil {
		return []Entry{}, nil
	}
	return profile.Activities, nil
}

// GetStats sums the activity entries between start and end date, both inclusive.
func (s *Service) GetStats(ctx context.Context, params StatsParams) (_ *StatsResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.getStats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if activity.Key(params.Activity) == "" {
		return nil, &ValidationError{Field: "activity", Reason: "missing"}
	}
	if strings.TrimSpace(params.StartDate) == "" || strings.TrimSpace(params.EndDate) == "" {
		return nil, &ValidationError{Field: "date range", Reason: "startDate and endDate are required"}
	}
	start, err := ParseDay(params.StartDate, s.loc)
	if err != nil {
		return nil, err
	}
	end, err := ParseDay(params.EndDate, s.loc)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, &ValidationError{Field: "date range", Reason: "startDate is after endDate"}
	}

	result := &StatsResult{
		Activity:  activity.Normalize(params.Activity),
		StartDate: start.Format(time.DateOnly),
		EndDate:   end.Format(time.DateOnly),
	}

	profile, err := s.loadProfile(ctx, strings.TrimSpace(params.Username))
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return result, nil
		}
		return nil, err
	}

	var inRange []stats.Record
	for _, r := range stats.FilterByActivity(profile.Records(), params.Activity) {
		if r.Date.Before(start) || r.Date.After(end) {
			continue
		}
		inRange = append(inRange, r)
	}

	buckets, err := stats.Aggregate(inRange, stats.Daily)
	if err != nil {
		return nil, err
	}
	st := stats.ComputeStats(buckets, profile.Weight, params.Activity)

	result.TotalDuration = st.TotalDuration
	result.TotalDistance = st.TotalDistance
	result.TotalSteps = st.TotalSteps
	result.TotalCalories = st.CaloriesBurned

	return result, nil
}

// Dashboard aggregates the activity entries by the given frequency (monthly if empty).
func (s *Service) Dashboard(ctx context.Context, username, activityName, frequency string) (_ *Dashboard, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.workouts.dashboard")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if activity.Key(activityName) == "" {
		return nil, &ValidationError{Field: "activity", Reason: "missing"}
	}
	freq, err := stats.ParseFrequency(frequency)
	if err != nil {
		return nil, &ValidationError{Field: "frequency", Reason: err.Error()}
	}

	profile, err := s.loadProfile(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}

	buckets, err := stats.Aggregate(stats.FilterByActivity(profile.Records(), activityName), freq)
	if err != nil {
		return nil, err
	}

	goal, _ := profile.GoalFor(activityName)
	return &Dashboard{
		Activity:  activity.Normalize(activityName),
		Frequency: freq,
		Buckets:   buckets,
		Stats:     stats.ComputeStats(buckets, profile.Weight, activityName),
		Goal:      goal,
	}, nil
}

func profileCacheKey(username string) string {
	return "profile::" + username
}

func profileGenerationKey(username string) string {
	return "profile-gen::" + username
}

// cachedProfile is stamped with the profile generation read before the store
// read. Every write bumps the generation, so a copy loaded before the write is
// never served after it, even if it lands in the cache late.
type cachedProfile struct {
	Generation int64    `json:"generation"`
	Profile    *Profile `json:"profile"`
}

// loadProfile reads through the profile cache.
func (s *Service) loadProfile(ctx context.Context, username string) (*Profile, error) {
	if username == "" {
		return nil, &ValidationError{Field: "username", Reason: "missing"}
	}

	generation, genErr := s.profileGeneration(ctx, username)
	if genErr != nil {
		s.metricsManager.CounterProfileCache.WithLabelValues("error").Inc()
		log.Warnf("get profile [%s] generation from cache: %s", username, genErr)
	}

	key := profileCacheKey(username)
	if genErr == nil {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var entry cachedProfile
			if unmarshalErr := json.Unmarshal(cached, &entry); unmarshalErr != nil {
				log.Errorf("failed to unmarshal cached profile [%s]: %s", username, unmarshalErr)
				s.metricsManager.CounterProfileCache.WithLabelValues("error").Inc()
			} else if entry.Profile != nil && entry.Generation == generation {
				s.metricsManager.CounterProfileCache.WithLabelValues("hit").Inc()
				return entry.Profile, nil
			} else {
				s.metricsManager.CounterProfileCache.WithLabelValues("stale").Inc()
			}
		case errors.Is(err, cache.ErrCacheMiss):
			s.metricsManager.CounterProfileCache.WithLabelValues("miss").Inc()
		default:
			s.metricsManager.CounterProfileCache.WithLabelValues("error").Inc()
			log.Warnf("get profile [%s] from cache: %s", username, err)
		}
	}

	profile, err := s.store.GetProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	// without a known generation the copy could not be told apart from a stale one
	if genErr != nil {
		return profile, nil
	}

	if profileJson, err := json.Marshal(cachedProfile{Generation: generation, Profile: profile}); err != nil {
		log.Errorf("failed to marshal profile [%s] for cache: %s", username, err)
	} else if err := s.cache.Set(ctx, key, profileJson, s.cacheTTL); err != nil {
		log.Warnf("set profile [%s] to cache: %s", username, err)
	}

	return profile, nil
}

// profileGeneration is 0 until the first write of the user.
func (s *Service) profileGeneration(ctx context.Context, username string) (int64, error) {
	value, err := s.cache.Get(ctx, profileGenerationKey(username))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return 0, nil
		}
		return 0, err
	}
	generation, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse profile generation: %w", err)
	}
	return generation, nil
}

// invalidateProfile bumps the profile generation and drops the cached profile,
// so the next read sees the last write.
func (s *Service) invalidateProfile(ctx context.Context, username string) {
	if _, err := s.cache.Incr(ctx, profileGenerationKey(username)); err != nil {
		log.Errorf("failed to bump cached profile [%s] generation: %s", username, err)
	}
	if err := s.cache.Delete(ctx, profileCacheKey(username)); err != nil {
		log.Errorf("failed to invalidate cached profile [%s]: %s", username, err)
	}
}

func validateEntryValues(params NewEntryParams) error {
	if params.Duration < 0 {
		return &ValidationError{Field: "duration", Reason: "must not be negative"}
	}
	if params.Distance < 0 {
		return &ValidationError{Field: "distance", Reason: "must not be negative"}
	}
	if params.Steps < 0 {
		return &ValidationError{Field: "steps", Reason: "must not be negative"}
	}

	fields := activity.FieldsFor(params.Activity)
	name := activity.Normalize(params.Activity)
	if !fields.Duration && params.Duration != 0 {
		return &ValidationError{Field: "duration", Reason: fmt.Sprintf("not tracked for %s", name)}
	}
	if !fields.Distance && params.Distance != 0 {
		return &ValidationError{Field: "distance", Reason: fmt.Sprintf("not tracked for %s", name)}
	}
	if !fields.Steps && params.Steps != 0 {
		return &ValidationError{Field: "steps", Reason: fmt.Sprintf("not tracked for %s", name)}
	}

	return nil
}

func validateGoalParams(params UpsertGoalParams) error {
	if params.Username == "" {
		return &ValidationError{Field: "username", Reason: "missing"}
	}
	if activity.Key(params.Goal.Activity) == "" {
		return &ValidationError{Field: "activity", Reason: "missing"}
	}
	if params.Goal.Duration < 0 || params.Goal.Distance < 0 || params.Goal.Steps < 0 {
		return &ValidationError{Field: "goal", Reason: "targets must not be negative"}
	}
	if params.Age != nil && *params.Age < 0 {
		return &ValidationError{Field: "age", Reason: "must not be negative"}
	}
	if params.Height != nil && *params.Height < 0 {
		return &ValidationError{Field: "height", Reason: "must not be negative"}
	}
	if params.Weight != nil && *params.Weight < 0 {
		return &ValidationError{Field: "weight", Reason: "must not be negative"}
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrFutureDate):
		return "future_date"
	case errors.Is(err, ErrNoGoal):
		return "no_goal"
	case errors.Is(err, ErrDuplicateEntry):
		return "duplicate"
	case IsValidationError(err):
		return "validation"
	default:
		return "error"
	}
}

// free-form activity names would blow up the label cardinality
func metricsActivityLabel(name string) string {
	if activity.IsKnown(name) {
		return activity.Normalize(name)
	}
	return "other"
}

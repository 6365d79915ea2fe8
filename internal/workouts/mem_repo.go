package workouts

import (
	"context"
	"sync"

	"github.com/2beens/healthpulse/internal/activity"
)

var (
	_ Store = (*MemRepo)(nil)
	_ Store = (*PsqlRepo)(nil)
)

// MemRepo keeps profiles in memory, used for local development and tests.
type MemRepo struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	lastID   int
}

func NewMemRepo() *MemRepo {
	return &MemRepo{
		profiles: make(map[string]*Profile),
	}
}

func (r *MemRepo) GetProfile(_ context.Context, username string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[username]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return profile.Clone(), nil
}

func (r *MemRepo) UpsertGoal(_ context.Context, params UpsertGoalParams) (_ *Goal, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[params.Username]
	if !ok {
		profile = &Profile{
			Username:   params.Username,
			Goals:      []Goal{},
			Activities: []Entry{},
		}
		r.profiles[params.Username] = profile
	}
	params.applyTo(profile)

	goal := params.Goal
	key := activity.Key(goal.Activity)
	for i := range profile.Goals {
		if activity.Key(profile.Goals[i].Activity) == key {
			profile.Goals[i] = goal
			return &goal, false, nil
		}
	}

	profile.Goals = append(profile.Goals, goal)
	return &goal, true, nil
}

func (r *MemRepo) AppendEntry(_ context.Context, username string, entry Entry) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[username]
	if !ok {
		return nil, ErrNoGoals
	}
	if _, hasGoal := profile.GoalFor(entry.Activity); !hasGoal {
		return nil, ErrNoGoal
	}
	if profile.HasEntryOn(entry.Activity, entry.Date) {
		return nil, ErrDuplicateEntry
	}

	r.lastID++
	entry.ID = r.lastID
	profile.Activities = append(profile.Activities, entry)

	return &entry, nil
}

package workouts

import (
	"context"
)

//go:generate mockgen -source=$GOFILE -destination=store_mocks_test.go -package=workouts_test

// Store persists user profiles. Every write is atomic for a single profile.
type Store interface {
	// GetProfile returns the profile with its goals and entries, or ErrProfileNotFound.
	GetProfile(ctx context.Context, username string) (*Profile, error)
	// UpsertGoal replaces or adds the goal, creating the profile if needed.
	// It reports whether the goal was newly created.
	UpsertGoal(ctx context.Context, params UpsertGoalParams) (_ *Goal, created bool, err error)
	// AppendEntry stores the entry if the user has a goal for its activity and
	// there is no entry of that activity on the same day. It returns ErrNoGoal
	// (or ErrNoGoals) and ErrDuplicateEntry otherwise.
	AppendEntry(ctx context.Context, username string, entry Entry) (*Entry, error)
}

// UpsertGoalParams carries the new goal, and optional profile attributes which
// are updated only when set.
type UpsertGoalParams struct {
	Username string
	Goal     Goal
	Age      *int
	Height   *float64
	Weight   *float64
}

func (p UpsertGoalParams) applyTo(profile *Profile) {
	if p.Age != nil {
		profile.Age = *p.Age
	}
	if p.Height != nil {
		profile.Height = *p.Height
	}
	if p.Weight != nil {
		profile.Weight = *p.Weight
	}
}
